package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"speechbot/core"
	"speechbot/utils/audio"
	"speechbot/utils/text"
)

// maxCharsBeforeFlush is the character limit before a flush is required.
// Deepgram returns DATA-0001 (1008) if too many characters are buffered between flushes.
const maxCharsBeforeFlush = 2000

const sampleRate = 24000

// DepgramTTSConfig holds configuration for the Deepgram TTS service
type DepgramTTSConfig struct {
	APIKey  string                   `json:"api_key"`
	BaseURL string                   `json:"base_url"`
	Model   string                   `json:"model"`
	Voices  map[core.Language]string `json:"voices"` // Per-language model override.
}

// DefaultConfig returns a DepgramTTSConfig with sensible defaults
func DefaultConfig() DepgramTTSConfig {
	return DepgramTTSConfig{
		BaseURL: "wss://api.deepgram.com/v1/speak",
		Model:   "aura-2-arcas-en",
		Voices: map[core.Language]string{
			core.LanguageSpanish:  "aura-2-celeste-es",
			core.LanguageGerman:   "aura-2-julius-de",
			core.LanguageFrench:   "aura-2-agathe-fr",
			core.LanguageItalian:  "aura-2-livia-it",
			core.LanguageDutch:    "aura-2-rhea-nl",
			core.LanguageJapanese: "aura-2-fujin-ja",
		},
	}
}

// DepgramTTS implements core.Synthesizer over Deepgram's Speak WebSocket API.
// Each reply opens its own connection and is returned as a 24kHz mono WAV.
type DepgramTTS struct {
	config DepgramTTSConfig
	logger *core.Logger
	dialer *websocket.Dialer
}

// Message types for Deepgram TTS WebSocket protocol
type (
	speakV1Text struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	speakV1Control struct {
		Type string `json:"type"`
	}

	speakV1Metadata struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
		ModelName string `json:"model_name"`
	}

	speakV1Flushed struct {
		Type       string  `json:"type"`
		SequenceID float64 `json:"sequence_id"`
	}

	speakV1Warning struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Code        string `json:"code"`
	}
)

// NewDepgramTTS creates a new Deepgram TTS service with the provided config.
// Use DefaultConfig() to get a config with sensible defaults and override only what you need.
func NewDepgramTTS(config DepgramTTSConfig, logger *core.Logger) *DepgramTTS {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Voices == nil {
		config.Voices = defaults.Voices
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &DepgramTTS{
		config: config,
		logger: logger.With(map[string]interface{}{"service": "deepgram_tts"}),
		dialer: &dialer,
	}
}

// Init validates the configuration.
func (d *DepgramTTS) Init(ctx context.Context) error {
	if d.config.APIKey == "" {
		return errors.New("deepgram tts: API key is required")
	}
	return nil
}

// Cleanup is a no-op; connections live only for one reply.
func (d *DepgramTTS) Cleanup() error {
	return nil
}

// modelFor picks the voice for lang, falling back to the configured model.
func (d *DepgramTTS) modelFor(lang core.Language) string {
	if v, ok := d.config.Voices[lang]; ok && v != "" {
		return v
	}
	return d.config.Model
}

// Synthesize speaks input and returns the audio as WAV.
func (d *DepgramTTS) Synthesize(ctx context.Context, input string, lang core.Language) (core.AudioClip, error) {
	chunks := text.SplitForSpeech(input, maxCharsBeforeFlush-100)
	if len(chunks) == 0 {
		return core.AudioClip{}, errors.New("deepgram tts: text cannot be empty")
	}

	conn, err := d.establishConnection(ctx, lang)
	if err != nil {
		return core.AudioClip{}, fmt.Errorf("deepgram tts: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for _, chunk := range chunks {
		if err := d.sendJSON(conn, speakV1Text{Type: "Speak", Text: chunk}); err != nil {
			return core.AudioClip{}, d.ctxErr(ctx, err)
		}
		if err := d.sendJSON(conn, speakV1Control{Type: "Flush"}); err != nil {
			return core.AudioClip{}, d.ctxErr(ctx, err)
		}
	}

	var pcm []byte
	flushed := 0
	for flushed < len(chunks) {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return core.AudioClip{}, d.ctxErr(ctx, fmt.Errorf("deepgram tts: read: %w", err))
		}
		if messageType == websocket.BinaryMessage {
			pcm = append(pcm, message...)
			continue
		}
		done, err := d.handleTextMessage(message)
		if err != nil {
			return core.AudioClip{}, fmt.Errorf("deepgram tts: %w", err)
		}
		if done {
			flushed++
		}
	}
	_ = d.sendJSON(conn, speakV1Control{Type: "Close"})

	if len(pcm) == 0 {
		return core.AudioClip{}, errors.New("deepgram tts: no audio received")
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	wav, err := audio.PCMBytesToWavBytes(pcm, 1, sampleRate)
	if err != nil {
		return core.AudioClip{}, fmt.Errorf("deepgram tts: %w", err)
	}
	return core.AudioClip{Data: wav, SampleRate: sampleRate, Channels: 1, Format: core.WAV}, nil
}

// establishConnection dials Deepgram with a short retry loop.
func (d *DepgramTTS) establishConnection(ctx context.Context, lang core.Language) (*websocket.Conn, error) {
	const maxRetries = 3
	const baseDelay = 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(attempt)
			d.logger.Infof("Deepgram TTS: retrying connection (attempt %d/%d) in %v after error: %v",
				attempt+1, maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, err := d.dialConnection(ctx, lang)
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

func (d *DepgramTTS) dialConnection(ctx context.Context, lang core.Language) (*websocket.Conn, error) {
	u, err := url.Parse(d.config.BaseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", d.modelFor(lang))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	u.RawQuery = q.Encode()

	headers := http.Header{"Authorization": {"Token " + d.config.APIKey}}
	conn, _, err := d.dialer.DialContext(ctx, u.String(), headers)
	return conn, err
}

// handleTextMessage reports whether message acknowledged a flush.
func (d *DepgramTTS) handleTextMessage(message []byte) (bool, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(message, &base); err != nil {
		return false, fmt.Errorf("failed to parse message: %w", err)
	}

	switch base.Type {
	case "Metadata":
		var metadata speakV1Metadata
		if err := sonic.Unmarshal(message, &metadata); err == nil {
			d.logger.Debugf("TTS Metadata received: model=%s", metadata.ModelName)
		}
	case "Flushed":
		var flushed speakV1Flushed
		if err := sonic.Unmarshal(message, &flushed); err == nil {
			d.logger.Debugf("TTS Flush complete, sequence_id: %v", flushed.SequenceID)
		}
		return true, nil
	case "Warning":
		var warning speakV1Warning
		if err := sonic.Unmarshal(message, &warning); err == nil {
			d.logger.Warnf("Deepgram TTS warning: %s (code: %s)", warning.Description, warning.Code)
		}
	case "Error":
		var errMsg speakV1Warning
		_ = sonic.Unmarshal(message, &errMsg)
		return false, fmt.Errorf("deepgram error: %s (code: %s)", errMsg.Description, errMsg.Code)
	}
	return false, nil
}

func (d *DepgramTTS) sendJSON(conn *websocket.Conn, msg interface{}) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("deepgram tts: send: %w", err)
	}
	return nil
}

func (d *DepgramTTS) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("deepgram tts: %w", ctx.Err())
	}
	return err
}
