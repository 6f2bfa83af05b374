package factories

import (
	"errors"

	"speechbot/core"
	deepgramtts "speechbot/services/deepgram/tts"
	googletts "speechbot/services/google/tts"
	openaitts "speechbot/services/openai/tts"
)

// TTSService is a synthesis provider with a lifecycle.
type TTSService interface {
	core.Synthesizer
	core.IService
}

// TTSFactoryConfig holds provider-specific configs for speech synthesis.
// Set exactly one provider config; the rest should be left nil.
type TTSFactoryConfig struct {
	GoogleConfig   *googletts.Config             `json:"google,omitempty"`
	OpenAIConfig   *openaitts.Config             `json:"openai,omitempty"`
	DeepgramConfig *deepgramtts.DepgramTTSConfig `json:"deepgram,omitempty"`
}

// DefaultTTSFactoryConfig selects the keyless Google Translate voice.
func DefaultTTSFactoryConfig() TTSFactoryConfig {
	cfg := googletts.DefaultConfig()
	return TTSFactoryConfig{GoogleConfig: &cfg}
}

// BuildTTSService constructs a TTSService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildTTSService(config TTSFactoryConfig, logger *core.Logger) (TTSService, error) {
	if config.GoogleConfig != nil {
		return googletts.NewGoogleTTSService(*config.GoogleConfig, logger), nil
	}
	if config.OpenAIConfig != nil {
		return openaitts.NewOpenAITTSService(*config.OpenAIConfig), nil
	}
	if config.DeepgramConfig != nil {
		return deepgramtts.NewDepgramTTS(*config.DeepgramConfig, logger), nil
	}
	return nil, errors.New("TTSFactoryConfig: no provider config specified")
}
