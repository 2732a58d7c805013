package llm

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestJSONFixingReader(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "illegal escape", in: `"costs \$5"`, want: `"costs $5"`},
		{name: "escaped backslash", in: `"C:\\Users\\me"`, want: `"C:\\Users\\me"`},
		{name: "escaped backslash then illegal", in: `"\\\$"`, want: `"\\$"`},
		{name: "valid escapes", in: `"a\"b\/c\n\u00e9"`, want: `"a\"b\/c\n\u00e9"`},
		{name: "trailing backslash", in: `abc\`, want: `abc\`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, split := range []bool{false, true} {
				var r io.Reader = strings.NewReader(tc.in)
				if split {
					// 每次只讀一個 byte，escape 會跨越兩次 Read
					r = iotest.OneByteReader(r)
				}
				fixer := &jsonFixingReadCloser{body: io.NopCloser(r)}
				got, err := io.ReadAll(fixer)
				if err != nil {
					t.Fatalf("read: %v", err)
				}
				if string(got) != tc.want {
					t.Fatalf("split=%v: got %s, want %s", split, got, tc.want)
				}
			}
		})
	}
}
