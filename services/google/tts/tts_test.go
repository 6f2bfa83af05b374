package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechbot/core"
)

func TestSynthesizeConcatenatesParts(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	var langs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/translate_tts", r.URL.Path)
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		langs = append(langs, r.URL.Query().Get("tl"))
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3|"))
	}))
	defer srv.Close()

	svc := NewGoogleTTSService(Config{BaseURL: srv.URL}, core.NewLogger(nil))
	require.NoError(t, svc.Init(context.Background()))

	input := strings.Repeat("Une phrase assez longue pour le test. ", 8)
	clip, err := svc.Synthesize(context.Background(), input, core.LanguageFrench)
	require.NoError(t, err)
	assert.Equal(t, core.MP3, clip.Format)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, queries, 2)
	for _, q := range queries {
		assert.LessOrEqual(t, len([]rune(q)), maxChars)
	}
	assert.Equal(t, []string{"fr", "fr"}, langs)
	assert.Equal(t, "mp3|mp3|", string(clip.Data))
}

func TestSynthesizeUnsupportedLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad tl", http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewGoogleTTSService(Config{BaseURL: srv.URL}, core.NewLogger(nil))
	_, err := svc.Synthesize(context.Background(), "hello", core.Language("xx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSynthesizeEmptyInput(t *testing.T) {
	svc := NewGoogleTTSService(Config{}, core.NewLogger(nil))
	_, err := svc.Synthesize(context.Background(), " ", core.LanguageEnglish)
	assert.Error(t, err)
}

func TestSynthesizeEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	svc := NewGoogleTTSService(Config{BaseURL: srv.URL}, core.NewLogger(nil))
	_, err := svc.Synthesize(context.Background(), "hello", core.LanguageEnglish)
	assert.Error(t, err)
}
