package toggle

import (
	"errors"
	"fmt"
	"strings"
)

const payloadPrefix = "toggle:"

// ErrMalformedPayload is returned by Parse for payloads it did not produce.
var ErrMalformedPayload = errors.New("malformed toggle payload")

// Variant names one of the two renderings of a cached reply.
type Variant string

const (
	// VariantA is the user-language rendering, shown first.
	VariantA Variant = "a"
	// VariantB is the generation-language rendering.
	VariantB Variant = "b"
)

// Valid reports whether v is VariantA or VariantB.
func (v Variant) Valid() bool {
	return v == VariantA || v == VariantB
}

// Other returns the opposite variant.
func (v Variant) Other() Variant {
	if v == VariantA {
		return VariantB
	}
	return VariantA
}

// Encode builds the control payload requesting variant v of messageID.
func Encode(messageID string, v Variant) string {
	return payloadPrefix + messageID + ":" + string(v)
}

// Parse splits a payload produced by Encode. The variant is taken after the
// last colon so message ids may contain colons themselves.
func Parse(payload string) (string, Variant, error) {
	rest, ok := strings.CutPrefix(payload, payloadPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	id, v := rest[:i], Variant(rest[i+1:])
	if !v.Valid() {
		return "", "", fmt.Errorf("%w: unknown variant %q", ErrMalformedPayload, v)
	}
	return id, v, nil
}
