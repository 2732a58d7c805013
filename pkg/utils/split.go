package utils

import "unicode/utf8"

// Piece is one chunk of a longer text. Sep is the boundary character removed
// between this piece and the next, restored verbatim when reassembling.
type Piece struct {
	Text string
	Sep  string
}

// Split breaks text into pieces of at most limit runes, preferring to cut at a
// newline, then at a space. A limit <= 0 returns the text as a single piece.
func Split(text string, limit int) []Piece {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []Piece{{Text: text}}
	}

	var pieces []Piece
	for len(runes) > limit {
		cut := lastIndex(runes[:limit+1], '\n')
		if cut <= 0 {
			cut = lastIndex(runes[:limit+1], ' ')
		}
		if cut <= 0 {
			pieces = append(pieces, Piece{Text: string(runes[:limit])})
			runes = runes[limit:]
			continue
		}
		pieces = append(pieces, Piece{Text: string(runes[:cut]), Sep: string(runes[cut])})
		runes = runes[cut+1:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, Piece{Text: string(runes)})
	}
	return pieces
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// Chunks splits text into message-sized chunks of at most limit runes,
// dropping the boundary characters between them.
func Chunks(text string, limit int) []string {
	pieces := Split(text, limit)
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

// RuneCount is the length measure used for message limits.
func RuneCount(s string) int {
	return utf8.RuneCountInString(s)
}
