package session

import "time"

// SessionConfig controls turn orchestration. Zero values fall back to the
// defaults noted on each field.
type SessionConfig struct {
	TranscribeTimeoutSeconds int    `json:"transcribe_timeout_seconds"` // Upper bound for one transcription call, default 30.
	InferenceTimeoutSeconds  int    `json:"inference_timeout_seconds"`  // Upper bound for one model call, default 120.
	SynthesisTimeoutSeconds  int    `json:"synthesis_timeout_seconds"`  // Upper bound for one synthesis call, default 30.
	SpeakReplies             bool   `json:"speak_replies"`              // Synthesize assistant replies.
	NormalizeSpeech          bool   `json:"normalize_speech"`           // Strip markdown and emoji before synthesis.
	SaveAudio                bool   `json:"save_audio"`                 // Also write each synthesized reply to SaveAudioPath.
	SaveAudioPath            string `json:"save_audio_path"`            // Target file, default "output.mp3"; the extension follows the clip format.
}

// DefaultConfig returns a SessionConfig with sensible defaults.
func DefaultConfig() SessionConfig {
	return SessionConfig{
		TranscribeTimeoutSeconds: 30,
		InferenceTimeoutSeconds:  120,
		SynthesisTimeoutSeconds:  30,
		SpeakReplies:             true,
		NormalizeSpeech:          true,
		SaveAudioPath:            "output.mp3",
	}
}

func (c SessionConfig) transcribeTimeout() time.Duration {
	return secondsOr(c.TranscribeTimeoutSeconds, 30)
}

func (c SessionConfig) inferenceTimeout() time.Duration {
	return secondsOr(c.InferenceTimeoutSeconds, 120)
}

func (c SessionConfig) synthesisTimeout() time.Duration {
	return secondsOr(c.SynthesisTimeoutSeconds, 30)
}

func (c SessionConfig) saveAudioPath() string {
	if c.SaveAudioPath == "" {
		return "output.mp3"
	}
	return c.SaveAudioPath
}

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
