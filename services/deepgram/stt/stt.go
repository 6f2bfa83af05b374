package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"speechbot/core"
	"speechbot/utils/audio"
)

// audio is sent in slices of this many bytes, 250ms of 16kHz mono PCM.
const sendChunkBytes = 8000

// DeepgramSTTService implements core.Transcriber with Deepgram's live
// listen API. Each utterance gets its own connection: the audio is streamed,
// the stream is closed, and every final result until the closing Metadata
// message is joined into the transcript.
type DeepgramSTTService struct {
	config *DeepgramConfig
	logger *core.Logger
	dialer *websocket.Dialer
}

// DeepgramConfig holds configuration options for Deepgram STT
type DeepgramConfig struct {
	APIKey          string            `json:"api_key"`
	BaseURL         string            `json:"base_url"`
	Model           string            `json:"model"`
	Punctuate       bool              `json:"punctuate"`
	SmartFormat     bool              `json:"smart_format"`
	ProfanityFilter bool              `json:"profanity_filter"`
	Numerals        bool              `json:"numerals"`
	Keyterms        []string          `json:"keyterms"`
	Extra           map[string]string `json:"extra"`
}

// DefaultConfig returns a default configuration for Deepgram STT
func DefaultConfig() *DeepgramConfig {
	return &DeepgramConfig{
		BaseURL:     "wss://api.deepgram.com",
		Model:       "nova-2",
		Punctuate:   true,
		SmartFormat: true,
	}
}

// NewDeepgramSTTService creates a new Deepgram STT service instance.
// Use DefaultConfig() to get a config with sensible defaults and override only what you need.
func NewDeepgramSTTService(config *DeepgramConfig, logger *core.Logger) *DeepgramSTTService {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "wss://api.deepgram.com"
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &DeepgramSTTService{
		config: config,
		logger: logger.With(map[string]interface{}{"service": "deepgram_stt"}),
		dialer: websocket.DefaultDialer,
	}
}

// Init validates the configuration.
func (d *DeepgramSTTService) Init(ctx context.Context) error {
	if d.config.APIKey == "" {
		return fmt.Errorf("deepgram stt: API key is required")
	}
	return nil
}

// Cleanup is a no-op; connections live only for one utterance.
func (d *DeepgramSTTService) Cleanup() error {
	return nil
}

// Transcribe sends clip to Deepgram and returns the final transcript. Clips
// must be decodable to PCM (PCM, G.711 or WAV).
func (d *DeepgramSTTService) Transcribe(ctx context.Context, clip core.AudioClip, lang core.Language) (string, error) {
	pcm, err := audio.ToPCM16(clip)
	if err != nil {
		return "", fmt.Errorf("deepgram stt: %w", err)
	}
	if pcm.Channels == 2 {
		pcm.Data = audio.StereoToMono(pcm.Data)
		pcm.Channels = 1
	}

	wsURL, err := d.buildWebSocketURL(lang, pcm.SampleRate, pcm.Channels)
	if err != nil {
		return "", fmt.Errorf("deepgram stt: build URL: %w", err)
	}
	headers := http.Header{"Authorization": {"Token " + d.config.APIKey}}
	conn, _, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("deepgram stt: connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for off := 0; off < len(pcm.Data); off += sendChunkBytes {
		end := min(off+sendChunkBytes, len(pcm.Data))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm.Data[off:end]); err != nil {
			return "", d.ctxErr(ctx, fmt.Errorf("deepgram stt: send audio: %w", err))
		}
	}
	closeMsg, _ := sonic.Marshal(ListenV1CloseStream{Type: "CloseStream"})
	if err := conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
		return "", d.ctxErr(ctx, fmt.Errorf("deepgram stt: close stream: %w", err))
	}

	var parts []string
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return "", d.ctxErr(ctx, fmt.Errorf("deepgram stt: read: %w", err))
		}
		if messageType != websocket.TextMessage {
			continue
		}
		done, transcript, err := d.handleMessage(message)
		if err != nil {
			if done {
				return "", fmt.Errorf("deepgram stt: %w", err)
			}
			d.logger.Warn("ignoring Deepgram message", "error", err)
			continue
		}
		if transcript != "" {
			parts = append(parts, transcript)
		}
		if done {
			break
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	d.logger.Debug("transcription complete", "language", string(lang), "chars", len(text))
	return text, nil
}

func (d *DeepgramSTTService) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("deepgram stt: %w", ctx.Err())
	}
	return err
}

// buildWebSocketURL constructs the WebSocket URL with query parameters
func (d *DeepgramSTTService) buildWebSocketURL(lang core.Language, sampleRate, channels int) (string, error) {
	base, err := url.Parse(d.config.BaseURL + "/v1/listen")
	if err != nil {
		return "", err
	}

	q := base.Query()
	if d.config.Model != "" {
		q.Set("model", d.config.Model)
	}
	if lang != "" {
		q.Set("language", string(lang))
	}
	q.Set("punctuate", strconv.FormatBool(d.config.Punctuate))
	q.Set("smart_format", strconv.FormatBool(d.config.SmartFormat))
	q.Set("profanity_filter", strconv.FormatBool(d.config.ProfanityFilter))
	q.Set("numerals", strconv.FormatBool(d.config.Numerals))
	q.Set("interim_results", "false")

	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))

	for _, keyterm := range d.config.Keyterms {
		q.Add("keyterm", keyterm)
	}
	for key, value := range d.config.Extra {
		q.Set(key, value)
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}

// handleMessage returns the final transcript carried by message, if any,
// and whether the stream has ended.
func (d *DeepgramSTTService) handleMessage(message []byte) (bool, string, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(message, &base); err != nil {
		return false, "", fmt.Errorf("failed to parse message type: %w", err)
	}

	switch base.Type {
	case "Results":
		var result ListenV1Results
		if err := sonic.Unmarshal(message, &result); err != nil {
			return false, "", fmt.Errorf("failed to parse results: %w", err)
		}
		if !(result.IsFinal || result.SpeechFinal || result.FromFinalize) || len(result.Channel.Alternatives) == 0 {
			return false, "", nil
		}
		return false, strings.TrimSpace(result.Channel.Alternatives[0].Transcript), nil
	case "Metadata":
		return true, "", nil
	case "Error":
		var e ListenV1Error
		_ = sonic.Unmarshal(message, &e)
		return true, "", errors.New("deepgram error: " + e.Description)
	case "UtteranceEnd", "SpeechStarted":
		return false, "", nil
	default:
		return false, "", fmt.Errorf("unknown message type: %s", base.Type)
	}
}

// Deepgram listen API messages.

type ListenV1Results struct {
	Type        string  `json:"type"`
	Duration    float64 `json:"duration"`
	Start       float64 `json:"start"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	FromFinalize bool `json:"from_finalize,omitempty"`
}

type ListenV1Error struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

type ListenV1CloseStream struct {
	Type string `json:"type"`
}
