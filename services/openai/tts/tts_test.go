package tts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechbot/core"
)

func TestSynthesizeReturnsMP3(t *testing.T) {
	var req struct {
		Model          string `json:"model"`
		Input          string `json:"input"`
		Voice          string `json:"voice"`
		ResponseFormat string `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	svc := NewOpenAITTSService(Config{APIKey: "sk", BaseURL: srv.URL + "/v1", Voice: "nova"})
	require.NoError(t, svc.Init(context.Background()))

	clip, err := svc.Synthesize(context.Background(), "Bonjour", core.LanguageFrench)
	require.NoError(t, err)
	assert.Equal(t, core.MP3, clip.Format)
	assert.Equal(t, []byte("ID3fake"), clip.Data)
	assert.Equal(t, "tts-1", req.Model)
	assert.Equal(t, "Bonjour", req.Input)
	assert.Equal(t, "nova", req.Voice)
	assert.Equal(t, "mp3", req.ResponseFormat)
}

func TestSynthesizeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	}))
	defer srv.Close()

	svc := NewOpenAITTSService(Config{APIKey: "sk", BaseURL: srv.URL + "/v1"})
	require.NoError(t, svc.Init(context.Background()))

	_, err := svc.Synthesize(context.Background(), "hi", core.LanguageEnglish)
	assert.Error(t, err)
}
