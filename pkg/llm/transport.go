package llm

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// NewHTTPClient builds the HTTP client shared by providers that talk to a raw
// endpoint. The overall timeout is left to the caller's context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
	}
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper intercepts response and fixes illegal escapes (e.g., \$)
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	// Only filter text-type responses (mainly JSON / NDJSON)
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

// jsonFixingReadCloser drops the backslash of escapes JSON does not define
// (e.g. \$ becomes $). A valid pair such as \\ is copied as is, including
// when it is split across two reads.
type jsonFixingReadCloser struct {
	body    io.ReadCloser
	buf     []byte // fixed bytes not yet returned
	escaped bool   // previous chunk ended inside an escape
	err     error
}

func isJSONEscape(c byte) bool {
	switch c {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		return true
	}
	return false
}

func (j *jsonFixingReadCloser) fix(chunk []byte) []byte {
	out := make([]byte, 0, len(chunk)+1)
	for _, c := range chunk {
		switch {
		case j.escaped:
			j.escaped = false
			if isJSONEscape(c) {
				out = append(out, '\\')
			}
			out = append(out, c)
		case c == '\\':
			j.escaped = true
		default:
			out = append(out, c)
		}
	}
	return out
}

func (j *jsonFixingReadCloser) Read(p []byte) (int, error) {
	for len(j.buf) == 0 && j.err == nil {
		chunk := make([]byte, max(len(p), 512))
		n, err := j.body.Read(chunk)
		j.buf = j.fix(chunk[:n])
		j.err = err
		if err != nil && j.escaped {
			// 結尾殘留的反斜線原樣送出
			j.buf = append(j.buf, '\\')
			j.escaped = false
		}
	}

	n := copy(p, j.buf)
	j.buf = j.buf[n:]
	if len(j.buf) == 0 && j.err != nil {
		return n, j.err
	}
	return n, nil
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
