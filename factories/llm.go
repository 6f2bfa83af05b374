package factories

import (
	"errors"

	openaillm "speechbot/services/openai/llm"
)

// LLMFactoryConfig holds provider-specific configs for the inference
// service. Set exactly one provider config; the rest should be left nil.
// Every provider speaks the OpenAI-compatible protocol and is served by the
// same client with a different base URL.
type LLMFactoryConfig struct {
	OllamaConfig     *openaillm.Config `json:"ollama,omitempty"`
	OpenAIConfig     *openaillm.Config `json:"openai,omitempty"`
	TogetherConfig   *openaillm.Config `json:"together,omitempty"`
	GroqConfig       *openaillm.Config `json:"groq,omitempty"`
	DeepSeekConfig   *openaillm.Config `json:"deepseek,omitempty"`
	OpenRouterConfig *openaillm.Config `json:"openrouter,omitempty"`
	MistralConfig    *openaillm.Config `json:"mistral,omitempty"`
}

// Default base URLs for OpenAI-compatible providers.
const (
	openaiBaseURL     = "https://api.openai.com/v1"
	togetherBaseURL   = "https://api.together.xyz/v1"
	groqBaseURL       = "https://api.groq.com/openai/v1"
	deepseekBaseURL   = "https://api.deepseek.com/v1"
	openrouterBaseURL = "https://openrouter.ai/api/v1"
	mistralBaseURL    = "https://api.mistral.ai/v1"
)

// DefaultLLMFactoryConfig selects a local Ollama server.
func DefaultLLMFactoryConfig() LLMFactoryConfig {
	return LLMFactoryConfig{OllamaConfig: &openaillm.Config{BaseURL: openaillm.DefaultBaseURL}}
}

// BuildLLMService constructs the inference service from the given factory
// config. Exactly one provider config must be non-nil.
func BuildLLMService(config LLMFactoryConfig) (*openaillm.OpenAILLMService, error) {
	if config.OllamaConfig != nil {
		return buildOpenAICompatible(*config.OllamaConfig, openaillm.DefaultBaseURL), nil
	}
	if config.OpenAIConfig != nil {
		return buildOpenAICompatible(*config.OpenAIConfig, openaiBaseURL), nil
	}
	if config.TogetherConfig != nil {
		return buildOpenAICompatible(*config.TogetherConfig, togetherBaseURL), nil
	}
	if config.GroqConfig != nil {
		return buildOpenAICompatible(*config.GroqConfig, groqBaseURL), nil
	}
	if config.DeepSeekConfig != nil {
		return buildOpenAICompatible(*config.DeepSeekConfig, deepseekBaseURL), nil
	}
	if config.OpenRouterConfig != nil {
		return buildOpenAICompatible(*config.OpenRouterConfig, openrouterBaseURL), nil
	}
	if config.MistralConfig != nil {
		return buildOpenAICompatible(*config.MistralConfig, mistralBaseURL), nil
	}
	return nil, errors.New("LLMFactoryConfig: no provider config specified")
}

// buildOpenAICompatible applies the provider's base URL when the config
// leaves it empty.
func buildOpenAICompatible(cfg openaillm.Config, defaultBaseURL string) *openaillm.OpenAILLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return openaillm.NewOpenAILLMService(cfg)
}
