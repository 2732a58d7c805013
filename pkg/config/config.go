package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// DefaultSystemPrompt is sent as the fixed first turn of every completion call
// when config.json does not provide one.
const DefaultSystemPrompt = "When formatting responses, use markdown syntax. For titles and important points, use *bold* (asterisks) instead of **bold**. For example: *Important Title* instead of **Important Title**."

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel API keys and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the provider groups for the completion backend in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// Translation controls the optional bilingual wrapping of every turn.
	Translation TranslationConfig `json:"translation"`
	// SystemPrompt is the formatting/behaviour instruction prepended to every
	// completion call. It is never stored in conversation history.
	SystemPrompt string `json:"system_prompt"`
	// Messages overrides the fixed user-facing texts (errors, greeting, help).
	Messages Messages `json:"messages"`
	// Menu configures the /start menu buttons and the canned creator reply.
	Menu MenuConfig `json:"menu"`
}

// MenuConfig describes the inline menu sent with /start.
type MenuConfig struct {
	// Links are URL buttons (channel, group, developer) shown before Help.
	Links []LinkConfig `json:"links,omitempty"`
	// CreatorKeywords trigger Messages.CreatorReply (case-insensitive substring).
	CreatorKeywords []string `json:"creator_keywords,omitempty"`
}

// LinkConfig is one URL button.
type LinkConfig struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// TranslationConfig describes the translation backend and the language pair.
type TranslationConfig struct {
	// Enabled turns on translate-in / translate-out and the language toggle.
	Enabled bool `json:"enabled"`
	// Backend names a registered translate backend ("google", "llm").
	Backend string `json:"backend"`
	// UserLanguage is the language users write in and see first (e.g. "am").
	UserLanguage string `json:"user_language"`
	// GenerationLanguage is the language sent to the completion backend (e.g. "en").
	GenerationLanguage string `json:"generation_language"`
	// BaseURL overrides the backend endpoint.
	BaseURL string `json:"base_url,omitempty"`
	// LanguageNames maps language codes to the names shown on toggle buttons.
	LanguageNames map[string]string `json:"language_names,omitempty"`
	// ToggleLabel is a format string with one %s for the target language name.
	ToggleLabel string `json:"toggle_label,omitempty"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	for i, link := range c.Menu.Links {
		if link.Label == "" || link.URL == "" {
			return fmt.Errorf("menu link %d needs both 'label' and 'url'", i)
		}
	}
	if c.Translation.Enabled {
		if c.Translation.UserLanguage == "" || c.Translation.GenerationLanguage == "" {
			return fmt.Errorf("translation enabled but 'user_language' or 'generation_language' is empty")
		}
		if c.Translation.UserLanguage == c.Translation.GenerationLanguage {
			return fmt.Errorf("translation enabled but both languages are %q", c.Translation.UserLanguage)
		}
	}
	return nil
}

// applyDefaults fills optional fields after parsing.
func (c *Config) applyDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Translation.Backend == "" {
		c.Translation.Backend = "google"
	}
	if c.Translation.ToggleLabel == "" {
		c.Translation.ToggleLabel = "Translate to %s"
	}
	names := DefaultLanguageNames()
	for code, name := range c.Translation.LanguageNames {
		names[code] = name
	}
	c.Translation.LanguageNames = names

	lang := "en"
	if c.Translation.Enabled {
		lang = c.Translation.UserLanguage
	}
	c.Messages = DefaultMessages(lang).Merge(c.Messages)

	if c.Menu.CreatorKeywords == nil {
		c.Menu.CreatorKeywords = DefaultCreatorKeywords()
	}
}

// LanguageName returns the display name for a language code, or the code itself.
func (t TranslationConfig) LanguageName(code string) string {
	if name, ok := t.LanguageNames[code]; ok && name != "" {
		return name
	}
	return code
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the relay.
type SystemConfig struct {
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for one whole
	// turn, including both translations. The context is cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// TranslateTimeoutMs bounds a single translation backend call.
	TranslateTimeoutMs int `json:"translate_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// ThinkingInitDelayMs is the time to wait (in milliseconds) after a
	// user message before showing the typing indicator.
	ThinkingInitDelayMs int `json:"thinking_init_delay_ms"`
	// MessageLimit is the maximum character count for a single outbound
	// message. Longer replies are split into multiple chunks and lose the toggle.
	MessageLimit int `json:"message_limit"`
	// UseMarkdown sends replies with Markdown parse mode where supported.
	UseMarkdown bool `json:"use_markdown"`
	// DebugResponses saves every raw backend response body to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugResponses bool `json:"debug_responses"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// MaxTurnsPerConversation caps stored history per conversation (0 = unbounded).
	MaxTurnsPerConversation int `json:"max_turns_per_conversation"`
	// MaxConversations caps the number of live conversations; the least
	// recently used one is forgotten first (0 = unbounded).
	MaxConversations int `json:"max_conversations"`
	// MaxCachedReplies caps the bilingual reply cache; the oldest entry is
	// dropped first and toggling it reports "not found" (0 = unbounded).
	MaxCachedReplies int `json:"max_cached_replies"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:          3,
		RetryDelayMs:        500,
		LLMTimeoutMs:        120000,
		TranslateTimeoutMs:  30000,
		OllamaDefaultURL:    "http://localhost:11434",
		ThinkingInitDelayMs: 500,
		MessageLimit:        4000,
		UseMarkdown:         true,
		LogLevel:            "info",
	}
}

// Load reads and parses the JSON configuration files.
// The app config is mandatory; the system config falls back to defaults.
// Returns pointers to the loaded Config and SystemConfig, or an error if the mandatory app config fails.
func Load(appPath, sysPath string) (*Config, *SystemConfig, error) {
	// 1. Load Application Config
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 1a. Validate structure integrity
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cfg.applyDefaults()

	// 2. Load System Config independently
	sysCfg := LoadSystemConfig(sysPath)

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = DefaultSystemConfig().MessageLimit
	}
	return cfg
}
