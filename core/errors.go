package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyModel          = errors.New("core: model id is required")
	ErrEmptyMessage        = errors.New("core: user message content is empty")
	ErrInvalidRole         = errors.New("core: message role must be user or assistant")
	ErrRegistryClosed      = errors.New("core: conversation registry is closed")
	ErrUnsupportedLanguage = errors.New("core: unsupported language")
	ErrEmptyReply          = errors.New("core: model returned an empty reply")
)

// TranscriptionError reports a failed speech-to-text call.
type TranscriptionError struct {
	Language Language
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed (language %s): %v", e.Language, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// InferenceError reports a failed or unusable language-model call. The user
// message that triggered it stays in history.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed (model %s): %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// SynthesisError reports a failed text-to-speech call or audio delivery.
type SynthesisError struct {
	Language Language
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed (language %s): %v", e.Language, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
