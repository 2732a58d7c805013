package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadSystemConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		body string
	}{
		{name: "missing", body: ""},
		{name: "corrupt", body: "{not json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "absent.json")
			if tc.body != "" {
				path = writeFile(t, dir, tc.name+".json", tc.body)
			}
			got := LoadSystemConfig(path)
			want := DefaultSystemConfig()
			if *got != *want {
				t.Fatalf("expected defaults, got %+v", got)
			}
		})
	}
}

func TestLoadSystemConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "system.json", `{"message_limit": 100, "max_conversations": 5, "log_level": "debug"}`)

	got := LoadSystemConfig(path)
	if got.MessageLimit != 100 || got.MaxConversations != 5 || got.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.MaxRetries != DefaultSystemConfig().MaxRetries {
		t.Fatalf("unset field lost its default: %d", got.MaxRetries)
	}
}

func TestLoadAppliesTranslationDefaults(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{
		"llm": [{"type": "openai", "models": ["gpt-4o-mini"]}],
		"translation": {"enabled": true, "user_language": "am", "generation_language": "en"},
		"messages": {"generic_error": "custom"}
	}`)

	cfg, sys, err := Load(app, filepath.Join(dir, "system.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if sys == nil {
		t.Fatalf("expected system config defaults")
	}
	if cfg.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("system prompt default not applied: %q", cfg.SystemPrompt)
	}
	if cfg.Translation.Backend != "google" {
		t.Errorf("backend default = %q", cfg.Translation.Backend)
	}
	if got := cfg.Translation.LanguageName("en"); got != "English" {
		t.Errorf("LanguageName(en) = %q", got)
	}
	if cfg.Messages.GenericError != "custom" {
		t.Errorf("override lost: %q", cfg.Messages.GenericError)
	}
	if cfg.Messages.GenerationFailed != DefaultMessages("am").GenerationFailed {
		t.Errorf("expected Amharic default, got %q", cfg.Messages.GenerationFailed)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing llm", cfg: Config{}, wantErr: true},
		{name: "plain", cfg: Config{LLM: []byte(`[]`)}},
		{
			name:    "translation without languages",
			cfg:     Config{LLM: []byte(`[]`), Translation: TranslationConfig{Enabled: true}},
			wantErr: true,
		},
		{
			name: "same language twice",
			cfg: Config{LLM: []byte(`[]`), Translation: TranslationConfig{
				Enabled: true, UserLanguage: "en", GenerationLanguage: "en",
			}},
			wantErr: true,
		},
		{
			name: "menu link",
			cfg:  Config{LLM: []byte(`[]`), Menu: MenuConfig{Links: []LinkConfig{{Label: "Channel", URL: "https://t.me/x"}}}},
		},
		{
			name:    "menu link without url",
			cfg:     Config{LLM: []byte(`[]`), Menu: MenuConfig{Links: []LinkConfig{{Label: "Channel"}}}},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAmharicMessagesAreLocalized(t *testing.T) {
	en, am := DefaultMessages("en"), DefaultMessages("am")
	pairs := map[string][2]string{
		"greeting":           {en.Greeting, am.Greeting},
		"welcome":            {en.Welcome, am.Welcome},
		"help_button":        {en.HelpButton, am.HelpButton},
		"back_button":        {en.BackButton, am.BackButton},
		"creator_reply":      {en.CreatorReply, am.CreatorReply},
		"generation_failed":  {en.GenerationFailed, am.GenerationFailed},
		"original_not_found": {en.OriginalNotFound, am.OriginalNotFound},
		"invalid_action":     {en.InvalidAction, am.InvalidAction},
	}
	for name, p := range pairs {
		if p[1] == "" || p[0] == p[1] {
			t.Errorf("%s: am text %q is missing or still English", name, p[1])
		}
	}
}
