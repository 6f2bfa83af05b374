package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"speechbot/core"
	"speechbot/utils/audio"
)

// OpenAISTTService implements core.Transcriber with the Whisper-compatible
// /audio/transcriptions endpoint.
type OpenAISTTService struct {
	config Config
	client *openai.Client
	mu     sync.RWMutex
}

// Config holds the configuration for the transcription service.
type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"` // Empty selects the OpenAI API.
	Model   string `json:"model"`    // Defaults to whisper-1.
	Prompt  string `json:"prompt"`   // Optional vocabulary hint.
}

func NewOpenAISTTService(config Config) *OpenAISTTService {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	return &OpenAISTTService{config: config}
}

// Init creates the API client.
func (s *OpenAISTTService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config.APIKey == "" && s.config.BaseURL == "" {
		return fmt.Errorf("openai stt: API key is required")
	}
	cfg := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		cfg.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(cfg)
	return nil
}

func (s *OpenAISTTService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	return nil
}

// Transcribe uploads clip and returns the recognized text. Raw PCM and
// G.711 clips are wrapped as WAV first.
func (s *OpenAISTTService) Transcribe(ctx context.Context, clip core.AudioClip, lang core.Language) (string, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return "", fmt.Errorf("openai stt: service not initialized")
	}

	upload, err := audio.ToContainer(clip)
	if err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.Model,
		FilePath: "utterance." + upload.Format.String(),
		Reader:   bytes.NewReader(upload.Data),
		Prompt:   s.config.Prompt,
		Language: string(lang),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
