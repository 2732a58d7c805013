// Package toggle switches a delivered reply between its two cached renderings.
// The machine is pure: it computes what the message should look like and
// leaves the edit to the caller.
package toggle

import (
	"fmt"

	"relaybot/pkg/api"
	"relaybot/pkg/replycache"
)

// ReplyLookup is the read side of the reply cache.
type ReplyLookup interface {
	Get(messageID string) (replycache.Reply, error)
}

// Outcome classifies a transition.
type Outcome int

const (
	// Rendered means the requested variant was found.
	Rendered Outcome = iota
	// NotFound means no reply is cached for the message.
	NotFound
	// Malformed means the payload could not be parsed.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Rendered:
		return "rendered"
	case NotFound:
		return "not_found"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Rendering is the new state of a message after a transition.
type Rendering struct {
	MessageID string       // message the payload refers to, empty when malformed
	Variant   Variant      // variant now shown
	Text      string       // text to display
	Control   *api.Control // nil on terminal outcomes
	Outcome   Outcome
	Err       error
}

// Terminal reports whether the message loses its control.
func (r Rendering) Terminal() bool {
	return r.Outcome != Rendered
}

// Labels are the button captions. ToA is shown while B is displayed and the
// other way round.
type Labels struct {
	ToA string
	ToB string
}

// NewLabels formats labelFormat (e.g. "Translate to %s") with each language name.
func NewLabels(labelFormat, userLanguage, generationLanguage string) Labels {
	return Labels{
		ToA: fmt.Sprintf(labelFormat, userLanguage),
		ToB: fmt.Sprintf(labelFormat, generationLanguage),
	}
}

// Texts are the terminal renderings.
type Texts struct {
	NotFound string
	Invalid  string
}

// Machine computes toggle transitions over a reply cache.
type Machine struct {
	replies ReplyLookup
	labels  Labels
	texts   Texts
}

// NewMachine creates a Machine.
func NewMachine(replies ReplyLookup, labels Labels, texts Texts) *Machine {
	return &Machine{replies: replies, labels: labels, texts: texts}
}

// ControlFor returns the control that, when pressed, shows target.
func (m *Machine) ControlFor(messageID string, target Variant) *api.Control {
	label := m.labels.ToB
	if target == VariantA {
		label = m.labels.ToA
	}
	return &api.Control{Label: label, Payload: Encode(messageID, target)}
}

// Key is the cache key of a reply delivered in a conversation. Platform
// message ids are only unique within one chat.
func Key(conversationID, messageID string) string {
	return conversationID + ":" + messageID
}

// Transition renders the variant requested by payload together with a control
// pointing back at the other one. The payload must name originID, the message
// whose control was pressed, and is resolved within conversationID only.
// Repeating a payload gives the same result.
func (m *Machine) Transition(conversationID, originID, payload string) Rendering {
	id, want, err := Parse(payload)
	if err != nil {
		return Rendering{Text: m.texts.Invalid, Outcome: Malformed, Err: err}
	}
	if id != originID {
		err := fmt.Errorf("%w: names message %q, pressed on %q", ErrMalformedPayload, id, originID)
		return Rendering{Text: m.texts.Invalid, Outcome: Malformed, Err: err}
	}

	reply, err := m.replies.Get(Key(conversationID, id))
	if err != nil {
		return Rendering{MessageID: id, Text: m.texts.NotFound, Outcome: NotFound, Err: err}
	}

	text := reply.A
	if want == VariantB {
		text = reply.B
	}
	return Rendering{
		MessageID: id,
		Variant:   want,
		Text:      text,
		Control:   m.ControlFor(id, want.Other()),
		Outcome:   Rendered,
	}
}
