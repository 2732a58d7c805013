package llm

import (
	"context"
	"errors"
	"testing"
)

type scriptedClient struct {
	name      string
	results   []error
	text      string
	calls     int
	transient bool
}

func (s *scriptedClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return "", s.results[i]
	}
	return s.text, nil
}

func (s *scriptedClient) Provider() string { return s.name }

func (s *scriptedClient) IsTransientError(err error) bool { return s.transient }

func TestFallbackRetriesTransientThenSucceeds(t *testing.T) {
	first := &scriptedClient{
		name:      "first",
		results:   []error{Unavailable("first", errors.New("503"))},
		text:      "ok",
		transient: true,
	}
	f := &FallbackClient{Clients: []LLMClient{first}, MaxRetries: 2}

	got, err := f.Complete(context.Background(), []Turn{NewUserTurn("hi")})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "ok" || first.calls != 2 {
		t.Fatalf("got %q after %d calls", got, first.calls)
	}
}

func TestFallbackMovesToNextProvider(t *testing.T) {
	broken := &scriptedClient{
		name:    "broken",
		results: []error{&Error{Kind: KindUnknown, Provider: "broken", Err: errors.New("401")}},
	}
	backup := &scriptedClient{name: "backup", text: "from backup"}
	f := &FallbackClient{Clients: []LLMClient{broken, backup}, MaxRetries: 3}

	got, err := f.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "from backup" {
		t.Fatalf("got %q", got)
	}
	if broken.calls != 1 {
		t.Fatalf("non-transient error should not be retried, calls=%d", broken.calls)
	}
}

func TestFallbackKeepsLastKind(t *testing.T) {
	a := &scriptedClient{name: "a", results: []error{Malformed("a", errors.New("bad shape"))}}
	f := &FallbackClient{Clients: []LLMClient{a}}

	_, err := f.Complete(context.Background(), nil)
	if KindOf(err) != KindMalformedResponse {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindMalformedResponse)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{Unavailable("x", nil), KindUnavailable},
		{context.DeadlineExceeded, KindUnavailable},
		{errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Errorf("tool should not be valid")
	}
}
