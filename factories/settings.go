package factories

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"speechbot/handlers/session"
	"speechbot/transports/websocket"
)

// SettingsConfig is the top-level config loaded from settings.json. Absent
// fields keep their defaults; secrets are injected afterwards from the
// environment rather than stored in the file.
type SettingsConfig struct {
	// Server configures the browser-facing HTTP and WebSocket server.
	Server websocket.Config `json:"server"`
	// Session tunes the turn loop (history window, timeouts, speech output).
	Session session.SessionConfig `json:"session"`
	// LLM selects the inference provider.
	LLM LLMFactoryConfig `json:"llm"`
	// STT selects the server-side transcription provider. When nil, only
	// text recognized in the browser is accepted.
	STT *STTFactoryConfig `json:"stt,omitempty"`
	// TTS selects the speech provider. When nil, replies are not spoken.
	TTS *TTSFactoryConfig `json:"tts,omitempty"`
	// LogDir, when set, receives one JSONL log file per session.
	LogDir string `json:"log_dir,omitempty"`
	// SessionTimeoutSeconds bounds a browser session; 0 means unlimited.
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty"`
}

// DefaultSettingsConfig returns settings for a local Ollama server with the
// Google Translate voice and no server-side transcription.
func DefaultSettingsConfig() SettingsConfig {
	tts := DefaultTTSFactoryConfig()
	return SettingsConfig{
		Server:  *websocket.DefaultConfig(),
		Session: session.DefaultConfig(),
		LLM:     DefaultLLMFactoryConfig(),
		TTS:     &tts,
	}
}

// SessionTimeout returns SessionTimeoutSeconds as a duration.
func (c SettingsConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, starting
// from DefaultSettingsConfig. A provider section that is present replaces
// the default provider instead of being merged with it.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	var raw struct {
		LLM *LLMFactoryConfig `json:"llm,omitempty"`
		TTS *TTSFactoryConfig `json:"tts,omitempty"`
	}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}

	cfg := DefaultSettingsConfig()
	if raw.LLM != nil {
		cfg.LLM = LLMFactoryConfig{}
	}
	if raw.TTS != nil {
		cfg.TTS = nil
	}
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// SettingsConfigFromBase64 decodes settings passed as base64 JSON, the form
// used by SETTINGS_JSON_B64.
func SettingsConfigFromBase64(b64 string) (SettingsConfig, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: decode base64: %w", err)
	}
	return SettingsConfigFromJSON(data)
}

// APIKeys holds API credentials for all supported service providers.
// Pass to SettingsConfig.InjectAPIKeys after loading from JSON so that
// secrets are never stored in config files.
type APIKeys struct {
	OpenAI     string // Used for OpenAI LLM, Whisper and speech providers.
	Ollama     string // Sent to Ollama when it sits behind an authenticating proxy.
	Deepgram   string // Used for Deepgram STT and TTS providers.
	Together   string
	Groq       string
	DeepSeek   string
	OpenRouter string
	Mistral    string
}

// Environment variables read by APIKeysFromEnv, also accepted as keys of a
// control plane config update.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOllamaKey     = "OLLAMA_API_KEY"
	EnvDeepgramKey   = "DEEPGRAM_API_KEY"
	EnvTogetherKey   = "TOGETHER_API_KEY"
	EnvGroqKey       = "GROQ_API_KEY"
	EnvDeepSeekKey   = "DEEPSEEK_API_KEY"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
	EnvMistralKey    = "MISTRAL_API_KEY"
)

// APIKeysFromEnv reads provider credentials from the environment.
func APIKeysFromEnv() APIKeys {
	return APIKeysFromMap(map[string]string{
		EnvOpenAIKey:     os.Getenv(EnvOpenAIKey),
		EnvOllamaKey:     os.Getenv(EnvOllamaKey),
		EnvDeepgramKey:   os.Getenv(EnvDeepgramKey),
		EnvTogetherKey:   os.Getenv(EnvTogetherKey),
		EnvGroqKey:       os.Getenv(EnvGroqKey),
		EnvDeepSeekKey:   os.Getenv(EnvDeepSeekKey),
		EnvOpenRouterKey: os.Getenv(EnvOpenRouterKey),
		EnvMistralKey:    os.Getenv(EnvMistralKey),
	})
}

// APIKeysFromMap picks provider credentials out of an environment-style map.
func APIKeysFromMap(m map[string]string) APIKeys {
	return APIKeys{
		OpenAI:     m[EnvOpenAIKey],
		Ollama:     m[EnvOllamaKey],
		Deepgram:   m[EnvDeepgramKey],
		Together:   m[EnvTogetherKey],
		Groq:       m[EnvGroqKey],
		DeepSeek:   m[EnvDeepSeekKey],
		OpenRouter: m[EnvOpenRouterKey],
		Mistral:    m[EnvMistralKey],
	}
}

// InjectAPIKeys fills empty credentials of the configured providers.
func (c *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	injectLLMKeys(&c.LLM, keys)
	if c.STT != nil {
		if c.STT.OpenAIConfig != nil && c.STT.OpenAIConfig.APIKey == "" {
			c.STT.OpenAIConfig.APIKey = keys.OpenAI
		}
		if c.STT.DeepgramConfig != nil && c.STT.DeepgramConfig.APIKey == "" {
			c.STT.DeepgramConfig.APIKey = keys.Deepgram
		}
	}
	if c.TTS != nil {
		if c.TTS.OpenAIConfig != nil && c.TTS.OpenAIConfig.APIKey == "" {
			c.TTS.OpenAIConfig.APIKey = keys.OpenAI
		}
		if c.TTS.DeepgramConfig != nil && c.TTS.DeepgramConfig.APIKey == "" {
			c.TTS.DeepgramConfig.APIKey = keys.Deepgram
		}
	}
}

// injectLLMKeys applies the relevant API key to a single LLMFactoryConfig.
func injectLLMKeys(cfg *LLMFactoryConfig, keys APIKeys) {
	if cfg.OllamaConfig != nil && cfg.OllamaConfig.APIKey == "" {
		cfg.OllamaConfig.APIKey = keys.Ollama
	}
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
	if cfg.TogetherConfig != nil && cfg.TogetherConfig.APIKey == "" {
		cfg.TogetherConfig.APIKey = keys.Together
	}
	if cfg.GroqConfig != nil && cfg.GroqConfig.APIKey == "" {
		cfg.GroqConfig.APIKey = keys.Groq
	}
	if cfg.DeepSeekConfig != nil && cfg.DeepSeekConfig.APIKey == "" {
		cfg.DeepSeekConfig.APIKey = keys.DeepSeek
	}
	if cfg.OpenRouterConfig != nil && cfg.OpenRouterConfig.APIKey == "" {
		cfg.OpenRouterConfig.APIKey = keys.OpenRouter
	}
	if cfg.MistralConfig != nil && cfg.MistralConfig.APIKey == "" {
		cfg.MistralConfig.APIKey = keys.Mistral
	}
}
