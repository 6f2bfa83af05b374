package core

import "context"

// Transcriber turns one recorded utterance into text. An empty string with a
// nil error means nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, clip AudioClip, lang Language) (string, error)
}

// ChatModel generates the assistant reply for a conversation history.
type ChatModel interface {
	Chat(ctx context.Context, model string, history []Message) (Message, error)
}

// ModelLister enumerates the model identifiers a ChatModel accepts.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Synthesizer renders text as playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang Language) (AudioClip, error)
}

// IService is implemented by providers holding resources that need explicit
// setup and teardown.
type IService interface {
	Init(ctx context.Context) error
	Cleanup() error
}

// TranscriberFunc adapts an ordinary function to Transcriber.
type TranscriberFunc func(ctx context.Context, clip AudioClip, lang Language) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, clip AudioClip, lang Language) (string, error) {
	return f(ctx, clip, lang)
}

// ChatModelFunc adapts an ordinary function to ChatModel.
type ChatModelFunc func(ctx context.Context, model string, history []Message) (Message, error)

func (f ChatModelFunc) Chat(ctx context.Context, model string, history []Message) (Message, error) {
	return f(ctx, model, history)
}

// SynthesizerFunc adapts an ordinary function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string, lang Language) (AudioClip, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, lang Language) (AudioClip, error) {
	return f(ctx, text, lang)
}
