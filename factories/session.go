package factories

import (
	"context"
	"fmt"

	"speechbot/core"
	"speechbot/handlers/session"
	openaillm "speechbot/services/openai/llm"
)

// Services holds the initialised providers shared by the sessions opened
// while they are current. Transcriber and Synthesizer may be nil.
type Services struct {
	Chat        *openaillm.OpenAILLMService
	Transcriber STTService
	Synthesizer TTSService
}

// BuildServices constructs and initialises every provider the settings
// select. The inference provider is required; a transcription or speech
// provider that fails to initialise is logged and left out, so the chat
// still works with browser-side recognition or without voice output.
func (c SettingsConfig) BuildServices(ctx context.Context, logger *core.Logger) (*Services, error) {
	if logger == nil {
		logger = core.GetLogger()
	}

	chat, err := BuildLLMService(c.LLM)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	if err := chat.Init(ctx); err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	services := &Services{Chat: chat}

	if c.STT != nil {
		stt, err := BuildSTTService(*c.STT, logger)
		if err == nil {
			err = stt.Init(ctx)
		}
		if err != nil {
			logger.With(map[string]interface{}{"error": err}).Warn("transcription provider unavailable, accepting text only")
		} else {
			services.Transcriber = stt
		}
	}

	if c.TTS != nil {
		tts, err := BuildTTSService(*c.TTS, logger)
		if err == nil {
			err = tts.Init(ctx)
		}
		if err != nil {
			logger.With(map[string]interface{}{"error": err}).Warn("speech provider unavailable, replies will not be spoken")
		} else {
			services.Synthesizer = tts
		}
	}

	return services, nil
}

// NewLoop builds the session loop for one connection around its own
// registry.
func (s *Services) NewLoop(registry *core.ConversationRegistry, presenter session.Presenter, config session.SessionConfig, logger *core.Logger) *session.SessionLoop {
	loop := session.NewSessionLoop(registry, s.Chat, presenter, config, logger)
	if s.Transcriber != nil {
		loop.WithTranscriber(s.Transcriber)
	}
	if s.Synthesizer != nil {
		loop.WithSynthesizer(s.Synthesizer)
	}
	return loop
}

// Capabilities names the roles these services can fill, for control plane
// registration.
func (s *Services) Capabilities() []string {
	caps := []string{"chat"}
	if s.Transcriber != nil {
		caps = append(caps, "stt")
	}
	if s.Synthesizer != nil {
		caps = append(caps, "tts")
	}
	return caps
}

// Close releases every provider.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Chat != nil {
		s.Chat.Cleanup()
	}
	if s.Transcriber != nil {
		s.Transcriber.Cleanup()
	}
	if s.Synthesizer != nil {
		s.Synthesizer.Cleanup()
	}
}
