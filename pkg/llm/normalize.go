package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	errEmptyReply     = errors.New("empty reply")
	errUnexpectedForm = errors.New("unexpected response shape")
)

// replyPaths lists where known backends put the reply text, most specific first.
var replyPaths = []string{
	"choices.0.message.content",
	"choices.0.delta.content",
	"choices.0.text",
	"message.content",
	"response",
	"text",
	"content",
}

// NormalizeReply turns any response body a chat backend may produce into plain
// text. Accepted shapes:
//   - an object with choices (OpenAI style) or message/response/text fields
//   - a JSON string whose value is the serialized form of such an object
//   - plain, non-JSON text
//
// Anything else is reported as KindMalformedResponse; an embedded error object
// is reported as KindUnavailable.
func NormalizeReply(provider string, raw []byte) (string, error) {
	return normalize(provider, raw, 0)
}

func normalize(provider string, raw []byte, depth int) (string, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "", Malformed(provider, errEmptyReply)
	}

	if !gjson.Valid(body) {
		if looksLikeJSON(body) {
			return "", Malformed(provider, fmt.Errorf("%w: invalid JSON", errUnexpectedForm))
		}
		// 非 JSON：後端直接回傳純文字
		return body, nil
	}

	res := gjson.Parse(body)
	switch {
	case res.Type == gjson.String:
		inner := strings.TrimSpace(res.String())
		// 字串內容本身是序列化的物件時，解開一層
		if depth == 0 && strings.HasPrefix(inner, "{") && gjson.Valid(inner) {
			return normalize(provider, []byte(inner), depth+1)
		}
		if inner == "" {
			return "", Malformed(provider, errEmptyReply)
		}
		return inner, nil

	case res.IsObject():
		if e := res.Get("error"); e.Exists() && e.Type != gjson.Null {
			msg := e.Get("message").String()
			if msg == "" {
				msg = e.String()
			}
			return "", Unavailable(provider, fmt.Errorf("backend error: %s", msg))
		}
		for _, path := range replyPaths {
			v := res.Get(path)
			if !v.Exists() || v.Type != gjson.String {
				continue
			}
			text := strings.TrimSpace(v.String())
			if text == "" {
				return "", Malformed(provider, fmt.Errorf("%w at %s", errEmptyReply, path))
			}
			return text, nil
		}
		return "", Malformed(provider, fmt.Errorf("%w: keys %s", errUnexpectedForm, objectKeys(res)))

	default:
		return "", Malformed(provider, fmt.Errorf("%w: %s", errUnexpectedForm, res.Type))
	}
}

// looksLikeJSON reports whether body is shaped like a JSON document, so that
// a broken envelope is never shown to the user as reply text.
func looksLikeJSON(body string) bool {
	first, last := body[0], body[len(body)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']') ||
		(len(body) > 1 && first == '"' && last == '"')
}

func objectKeys(res gjson.Result) string {
	var keys []string
	res.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return "[" + strings.Join(keys, ",") + "]"
}
