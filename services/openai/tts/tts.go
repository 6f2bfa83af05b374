package tts

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"

	"speechbot/core"
)

// OpenAITTSService implements core.Synthesizer with the /audio/speech
// endpoint. Replies come back as MP3.
type OpenAITTSService struct {
	config Config
	client *openai.Client
	mu     sync.RWMutex
}

// Config holds the configuration for the speech service.
type Config struct {
	APIKey  string  `json:"api_key"`
	BaseURL string  `json:"base_url"`
	Model   string  `json:"model"` // Defaults to tts-1.
	Voice   string  `json:"voice"` // Defaults to alloy.
	Speed   float64 `json:"speed"`
}

func NewOpenAITTSService(config Config) *OpenAITTSService {
	if config.Model == "" {
		config.Model = string(openai.TTSModel1)
	}
	if config.Voice == "" {
		config.Voice = string(openai.VoiceAlloy)
	}
	return &OpenAITTSService{config: config}
}

func (s *OpenAITTSService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config.APIKey == "" && s.config.BaseURL == "" {
		return fmt.Errorf("openai tts: API key is required")
	}
	cfg := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		cfg.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(cfg)
	return nil
}

func (s *OpenAITTSService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	return nil
}

// Synthesize renders text as MP3. The voices are multilingual, so lang only
// labels errors.
func (s *OpenAITTSService) Synthesize(ctx context.Context, text string, lang core.Language) (core.AudioClip, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return core.AudioClip{}, fmt.Errorf("openai tts: service not initialized")
	}

	resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.config.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          s.config.Speed,
	})
	if err != nil {
		return core.AudioClip{}, fmt.Errorf("openai tts: speech (%s): %w", lang, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return core.AudioClip{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return core.AudioClip{Data: data, Format: core.MP3}, nil
}
