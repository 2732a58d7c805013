package google

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"relaybot/pkg/translate"
)

func TestTranslate(t *testing.T) {
	var gotQuery url.Values
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotText = r.PostForm.Get("q")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[[["Hello. ","ሰላም።",null,null,10],["How are you?","እንዴት ነህ?",null,null,10]],null,"am"]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	got, err := c.Translate(context.Background(), "ሰላም። እንዴት ነህ?", "am", "en")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "Hello. How are you?" {
		t.Fatalf("got %q", got)
	}
	if gotQuery.Get("client") != "gtx" || gotQuery.Get("sl") != "am" || gotQuery.Get("tl") != "en" || gotQuery.Get("dt") != "t" {
		t.Errorf("unexpected query: %v", gotQuery)
	}
	if gotText != "ሰላም። እንዴት ነህ?" {
		t.Errorf("unexpected q: %q", gotText)
	}
}

func TestTranslateSplitsLongInput(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		q := r.PostForm.Get("q")
		mu.Lock()
		calls = append(calls, q)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[[["X",null]]]`)
	}))
	defer srv.Close()

	long := strings.Repeat("a", MaxChunkRunes) + "\n" + "tail"
	c := NewClient(srv.URL, srv.Client())
	got, err := c.Translate(context.Background(), long, "en", "am")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(calls))
	}
	if got != "X\nX" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   translate.ErrorKind
	}{
		{name: "rate limited", status: 429, body: "", want: translate.KindUnavailable},
		{name: "server error", status: 502, body: "", want: translate.KindUnavailable},
		{name: "forbidden", status: 403, body: "", want: translate.KindUnknown},
		{name: "html", status: 200, body: "<html>captcha</html>", want: translate.KindUnknown},
		{name: "wrong shape", status: 200, body: `{"error":"x"}`, want: translate.KindUnknown},
		{name: "empty", status: 200, body: `[[],null,"en"]`, want: translate.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client()).Translate(context.Background(), "hi", "en", "am")
			if got := translate.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tc.want, err)
			}
		})
	}
}

func TestTranslateBlankSkipsBackend(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	got, err := c.Translate(context.Background(), "  ", "en", "am")
	if err != nil || got != "  " {
		t.Fatalf("got %q, %v", got, err)
	}
}
