package factories

import (
	"errors"

	"speechbot/core"
	deepgramstt "speechbot/services/deepgram/stt"
	openaistt "speechbot/services/openai/stt"
)

// STTService is a transcription provider with a lifecycle.
type STTService interface {
	core.Transcriber
	core.IService
}

// STTFactoryConfig holds provider-specific configs for transcription.
// Set exactly one provider config; the rest should be left nil.
type STTFactoryConfig struct {
	OpenAIConfig   *openaistt.Config           `json:"openai,omitempty"`
	DeepgramConfig *deepgramstt.DeepgramConfig `json:"deepgram,omitempty"`
}

// BuildSTTService constructs an STTService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildSTTService(config STTFactoryConfig, logger *core.Logger) (STTService, error) {
	if config.OpenAIConfig != nil {
		return openaistt.NewOpenAISTTService(*config.OpenAIConfig), nil
	}
	if config.DeepgramConfig != nil {
		return deepgramstt.NewDeepgramSTTService(config.DeepgramConfig, logger), nil
	}
	return nil, errors.New("STTFactoryConfig: no provider config specified")
}
