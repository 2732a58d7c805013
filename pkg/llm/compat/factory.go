package compat

import (
	"fmt"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
)

// CompatFactory handles creation of OpenAI-compatible raw HTTP clients
type CompatFactory struct{}

// Create implements ProviderFactory
func (f *CompatFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("compat provider requires 'base_url'")
	}

	apiKey := ""
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		client := NewClient(cfg.BaseURL, apiKey, model, cfg.Options, nil)
		client.SetDebug(sys.DebugResponses)
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("compat", &CompatFactory{})
}
