package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"speechbot/core"
	"speechbot/utils/text"
)

// maxChars is the longest text the translate_tts endpoint accepts per request.
const maxChars = 200

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Config holds configuration for the Google Translate speech endpoint.
type Config struct {
	BaseURL   string `json:"base_url"` // Defaults to https://translate.google.com.
	Slow      bool   `json:"slow"`     // Reduced speaking rate.
	UserAgent string `json:"user_agent"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://translate.google.com",
		UserAgent: defaultUserAgent,
	}
}

// GoogleTTSService implements core.Synthesizer with Google Translate's
// keyless text-to-speech endpoint. Long replies are split into short pieces
// and the MP3 responses are concatenated.
type GoogleTTSService struct {
	config Config
	client *http.Client
	logger *core.Logger
}

func NewGoogleTTSService(config Config, logger *core.Logger) *GoogleTTSService {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &GoogleTTSService{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With(map[string]interface{}{"service": "google_tts"}),
	}
}

func (s *GoogleTTSService) Init(ctx context.Context) error {
	if _, err := url.Parse(s.config.BaseURL); err != nil {
		return fmt.Errorf("google tts: invalid base url: %w", err)
	}
	return nil
}

func (s *GoogleTTSService) Cleanup() error {
	s.client.CloseIdleConnections()
	return nil
}

// Synthesize speaks input in lang and returns one MP3 clip.
func (s *GoogleTTSService) Synthesize(ctx context.Context, input string, lang core.Language) (core.AudioClip, error) {
	parts := text.SplitForSpeech(input, maxChars)
	if len(parts) == 0 {
		return core.AudioClip{}, errors.New("google tts: no text to speak")
	}

	var mp3 bytes.Buffer
	for i, part := range parts {
		if err := s.fetch(ctx, &mp3, part, lang, i, len(parts)); err != nil {
			return core.AudioClip{}, err
		}
	}
	s.logger.Debug("synthesized reply", "language", string(lang), "parts", len(parts), "bytes", mp3.Len())
	return core.AudioClip{Data: mp3.Bytes(), Format: core.MP3}, nil
}

func (s *GoogleTTSService) fetch(ctx context.Context, w io.Writer, part string, lang core.Language, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("q", part)
	q.Set("tl", string(lang))
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(part))))
	if s.config.Slow {
		q.Set("ttsspeed", "0.3")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("google tts: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Referer", s.config.BaseURL+"/")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("google tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("google tts: status %d (language %s): %s", resp.StatusCode, lang, bytes.TrimSpace(body))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("google tts: read audio: %w", err)
	}
	if n == 0 {
		return errors.New("google tts: empty audio response")
	}
	return nil
}
