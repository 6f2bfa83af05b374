package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechbot/core"
)

type listenStub struct {
	mu       sync.Mutex
	query    string
	auth     string
	received int
	messages []string
}

func (s *listenStub) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.query = r.URL.RawQuery
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				s.mu.Lock()
				s.received += len(data)
				s.mu.Unlock()
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				for _, m := range s.messages {
					conn.WriteMessage(websocket.TextMessage, []byte(m))
				}
				return
			}
		}
	}
}

func newService(t *testing.T, stub *listenStub) *DeepgramSTTService {
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.APIKey = "dg-key"
	cfg.BaseURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	svc := NewDeepgramSTTService(cfg, core.NewLogger(nil))
	require.NoError(t, svc.Init(context.Background()))
	return svc
}

func TestTranscribeJoinsFinalResults(t *testing.T) {
	stub := &listenStub{messages: []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hello there."}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"How are you?"}]}}`,
		`{"type":"Metadata","request_id":"r1","duration":1.5,"channels":1}`,
	}}
	svc := newService(t, stub)

	clip := core.AudioClip{Data: make([]byte, 20000), SampleRate: 16000, Channels: 1, Format: core.PCM}
	text, err := svc.Transcribe(context.Background(), clip, core.LanguageFrench)
	require.NoError(t, err)
	assert.Equal(t, "Hello there. How are you?", text)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, 20000, stub.received)
	assert.Equal(t, "Token dg-key", stub.auth)
	assert.Contains(t, stub.query, "language=fr")
	assert.Contains(t, stub.query, "encoding=linear16")
	assert.Contains(t, stub.query, "sample_rate=16000")
}

func TestTranscribeSilenceIsEmpty(t *testing.T) {
	stub := &listenStub{messages: []string{
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		`{"type":"Metadata"}`,
	}}
	svc := newService(t, stub)

	text, err := svc.Transcribe(context.Background(), core.AudioClip{Data: make([]byte, 320), Format: core.PCM}, core.LanguageEnglish)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscribeErrorMessage(t *testing.T) {
	stub := &listenStub{messages: []string{`{"type":"Error","description":"bad audio"}`}}
	svc := newService(t, stub)

	_, err := svc.Transcribe(context.Background(), core.AudioClip{Data: make([]byte, 320), Format: core.PCM}, core.LanguageEnglish)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad audio")
}

func TestTranscribeRejectsUndecodableAudio(t *testing.T) {
	svc := NewDeepgramSTTService(&DeepgramConfig{APIKey: "k"}, core.NewLogger(nil))
	_, err := svc.Transcribe(context.Background(), core.AudioClip{Data: []byte{1, 2}, Format: core.MP3}, core.LanguageEnglish)
	assert.Error(t, err)
}

func TestInitRequiresKey(t *testing.T) {
	svc := NewDeepgramSTTService(nil, core.NewLogger(nil))
	assert.Error(t, svc.Init(context.Background()))
}
