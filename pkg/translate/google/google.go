// Package google translates through the public Google web-translate endpoint.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relaybot/pkg/config"
	"relaybot/pkg/translate"
	"relaybot/pkg/utils"

	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the keyless "gtx" endpoint.
	DefaultBaseURL = "https://translate.googleapis.com/translate_a/single"

	// MaxChunkRunes stays under the endpoint's 5000 character input limit.
	MaxChunkRunes = 4500

	maxBodyBytes = 2 << 20
)

var errEmptyTranslation = errors.New("empty translation")

// Client calls the web-translate endpoint once per chunk.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client; an empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{http: httpClient, baseURL: baseURL}
}

func (c *Client) Backend() string { return "google" }

// Translate implements translate.Translator. Texts longer than MaxChunkRunes
// are split and translated piece by piece, in order.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	pieces := utils.Split(text, MaxChunkRunes)
	if len(pieces) > 1 {
		slog.DebugContext(ctx, "Splitting text for translation", "pieces", len(pieces), "runes", len([]rune(text)))
	}

	var out strings.Builder
	for _, p := range pieces {
		if strings.TrimSpace(p.Text) == "" {
			out.WriteString(p.Text + p.Sep)
			continue
		}
		translated, err := c.translateOne(ctx, p.Text, source, target)
		if err != nil {
			return "", err
		}
		out.WriteString(translated)
		out.WriteString(p.Sep)
	}
	return out.String(), nil
}

func (c *Client) translateOne(ctx context.Context, text, source, target string) (string, error) {
	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", source)
	query.Set("tl", target)
	query.Set("dt", "t")

	// q 放在 body，避免長文字超出 URL 長度限制
	form := url.Values{}
	form.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"?"+query.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", translate.Unknown(c.Backend(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", translate.Unavailable(c.Backend(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", translate.Unavailable(c.Backend(), fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", translate.Unavailable(c.Backend(), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return "", translate.Unknown(c.Backend(), fmt.Errorf("status %d", resp.StatusCode))
	}

	return parseSentences(c.Backend(), body)
}

// parseSentences joins the translated segments of a gtx response, which looks
// like [[["Hello","ሰላም",null,null,10],...],null,"am",...].
func parseSentences(backend string, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", translate.Unknown(backend, errors.New("response is not JSON"))
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() || !root.Get("0").IsArray() {
		return "", translate.Unknown(backend, fmt.Errorf("unexpected response shape: %.80s", root.Raw))
	}

	var out strings.Builder
	for _, seg := range root.Get("0.#.0").Array() {
		if seg.Type == gjson.String {
			out.WriteString(seg.String())
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", translate.Unknown(backend, errEmptyTranslation)
	}
	return out.String(), nil
}

// Factory builds the google backend from the translation config.
type Factory struct{}

// Create implements translate.BackendFactory
func (f *Factory) Create(cfg config.TranslationConfig, deps translate.Deps) (translate.Translator, error) {
	return NewClient(cfg.BaseURL, nil), nil
}

func init() {
	translate.RegisterBackend("google", &Factory{})
}
