package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"speechbot/core"
	"speechbot/events/turn"
	"speechbot/utils/text"
)

const relayer = "SessionLoop"

// ErrNoTranscriber is returned when audio arrives but the loop was built
// without a transcription provider.
var ErrNoTranscriber = errors.New("session: no transcriber configured")

// Presenter is the presentation boundary: it renders messages, plays audio
// and shows notices. Nothing flows back from it into conversation state.
type Presenter interface {
	Present(packet *core.EventPacket) error
}

// PresenterFunc adapts an ordinary function to Presenter.
type PresenterFunc func(packet *core.EventPacket) error

func (f PresenterFunc) Present(packet *core.EventPacket) error {
	return f(packet)
}

// CycleRequest is the input of one interaction cycle. Text wins over Audio
// when both are set; a request with neither is an idle cycle.
type CycleRequest struct {
	Model    string
	Language core.Language
	Audio    *core.AudioClip
	Text     string
}

// TurnResult describes what a cycle did.
type TurnResult struct {
	Model        string
	Skipped      bool            // Idle cycle: nothing appended, no provider called after transcription.
	User         *core.Message   // Committed user message.
	Assistant    *core.Message   // Committed assistant message.
	Audio        *core.AudioClip // Synthesized reply.
	SavedPath    string          // Where the reply audio was written, when enabled.
	SynthesisErr error           // Reported synthesis failure; state was kept.
}

// SessionLoop drives one user-turn/assistant-turn cycle per call. Calls are
// serialized: a turn never overlaps another on the same loop.
type SessionLoop struct {
	registry    *core.ConversationRegistry
	chat        core.ChatModel
	transcriber core.Transcriber
	synthesizer core.Synthesizer
	presenter   Presenter
	config      SessionConfig
	logger      *core.Logger

	mu sync.Mutex
}

// NewSessionLoop creates a loop over registry and chat. Use WithTranscriber
// and WithSynthesizer to attach the optional speech providers.
func NewSessionLoop(registry *core.ConversationRegistry, chat core.ChatModel, presenter Presenter, config SessionConfig, logger *core.Logger) *SessionLoop {
	if registry == nil {
		registry = core.NewConversationRegistry()
	}
	if presenter == nil {
		presenter = PresenterFunc(func(*core.EventPacket) error { return nil })
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &SessionLoop{
		registry:  registry,
		chat:      chat,
		presenter: presenter,
		config:    config,
		logger:    logger.With(map[string]interface{}{"component": "session_loop"}),
	}
}

// WithTranscriber sets the speech-to-text provider used for audio cycles.
func (l *SessionLoop) WithTranscriber(t core.Transcriber) *SessionLoop {
	l.transcriber = t
	return l
}

// WithSynthesizer sets the text-to-speech provider used for replies.
func (l *SessionLoop) WithSynthesizer(s core.Synthesizer) *SessionLoop {
	l.synthesizer = s
	return l
}

// Registry returns the registry this loop mutates.
func (l *SessionLoop) Registry() *core.ConversationRegistry {
	return l.registry
}

// Cycle runs one interaction: transcribe the utterance when only audio is
// given, then run the turn. An empty transcription is an idle cycle, not an
// error.
func (l *SessionLoop) Cycle(ctx context.Context, req CycleRequest) (TurnResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Model == "" {
		return TurnResult{}, core.ErrEmptyModel
	}
	lang := req.Language
	if lang == "" {
		lang = core.DefaultLanguage
	}

	utterance := req.Text
	if strings.TrimSpace(utterance) == "" && req.Audio != nil && !req.Audio.Empty() {
		transcribed, err := l.transcribe(ctx, *req.Audio, lang)
		if err != nil {
			terr := &core.TranscriptionError{Language: lang, Err: err}
			l.logger.With(map[string]interface{}{"model": req.Model, "language": string(lang), "error": err}).Error("transcription failed")
			l.notify(req.Model, turn.NoticeTranscriptionFailure, turn.NoticeLevelError, "Error transcribing speech: "+err.Error())
			l.complete(req.Model, false, terr)
			return TurnResult{Model: req.Model}, terr
		}
		if strings.TrimSpace(transcribed) == "" {
			l.notify(req.Model, turn.NoticeEmptyTranscription, turn.NoticeLevelInfo, "No speech was recognized.")
		}
		utterance = transcribed
	}

	return l.runTurnLocked(ctx, req.Model, lang, utterance)
}

// RunTurn runs one turn for already-transcribed text. Blank text is an idle
// cycle: no append and no provider call.
//
// When inference fails the user message stays in history and a
// *core.InferenceError is returned. Synthesis failures are reported through
// TurnResult.SynthesisErr and a notice; they do not fail the turn.
func (l *SessionLoop) RunTurn(ctx context.Context, model string, lang core.Language, utterance string) (TurnResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lang == "" {
		lang = core.DefaultLanguage
	}
	return l.runTurnLocked(ctx, model, lang, utterance)
}

func (l *SessionLoop) runTurnLocked(ctx context.Context, model string, lang core.Language, utterance string) (TurnResult, error) {
	if model == "" {
		return TurnResult{}, core.ErrEmptyModel
	}
	result := TurnResult{Model: model}
	logger := l.logger.With(map[string]interface{}{"model": model, "language": string(lang)})

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		result.Skipped = true
		l.complete(model, true, nil)
		return result, nil
	}

	user := core.NewUserMessage(utterance)
	if err := l.registry.Append(model, user); err != nil {
		return result, fmt.Errorf("session: append user message: %w", err)
	}
	result.User = &user
	l.present(&turn.UserMessageEvent{Model: model, Message: user})

	reply, err := l.infer(ctx, model, l.registry.Snapshot(model))
	if err != nil {
		ierr := &core.InferenceError{Model: model, Err: err}
		logger.With(map[string]interface{}{"error": err}).Error("inference failed")
		l.notify(model, turn.NoticeInferenceFailure, turn.NoticeLevelError, "Error generating a reply: "+err.Error())
		l.complete(model, false, ierr)
		return result, ierr
	}

	if err := l.registry.Append(model, reply); err != nil {
		return result, fmt.Errorf("session: append assistant message: %w", err)
	}
	result.Assistant = &reply
	l.present(&turn.AssistantMessageEvent{Model: model, Message: reply})
	logger.Debug("turn committed", "history", l.registry.Len(model))

	if l.synthesizer != nil && l.config.SpeakReplies {
		clip, saved, err := l.speak(ctx, model, lang, reply.Content)
		if err != nil {
			serr := &core.SynthesisError{Language: lang, Err: err}
			logger.With(map[string]interface{}{"error": err}).Warn("speech synthesis failed")
			l.notify(model, turn.NoticeSynthesisFailure, turn.NoticeLevelError, "Error converting text to speech: "+err.Error())
			result.SynthesisErr = serr
		}
		result.Audio = clip
		result.SavedPath = saved
	}

	l.complete(model, false, nil)
	return result, nil
}

// History presents and returns the current snapshot of model's conversation.
func (l *SessionLoop) History(model string) []core.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := l.registry.Snapshot(model)
	l.present(&turn.HistoryEvent{Model: model, Messages: snapshot})
	return snapshot
}

func (l *SessionLoop) transcribe(ctx context.Context, clip core.AudioClip, lang core.Language) (string, error) {
	if l.transcriber == nil {
		return "", ErrNoTranscriber
	}
	ctx, cancel := context.WithTimeout(ctx, l.config.transcribeTimeout())
	defer cancel()
	return l.transcriber.Transcribe(ctx, clip, lang)
}

func (l *SessionLoop) infer(ctx context.Context, model string, history []core.Message) (core.Message, error) {
	if l.chat == nil {
		return core.Message{}, errors.New("session: no chat model configured")
	}
	ctx, cancel := context.WithTimeout(ctx, l.config.inferenceTimeout())
	defer cancel()

	reply, err := l.chat.Chat(ctx, model, history)
	if err != nil {
		return core.Message{}, err
	}
	if strings.TrimSpace(reply.Content) == "" {
		return core.Message{}, core.ErrEmptyReply
	}
	return core.NewAssistantMessage(reply.Content), nil
}

// speak synthesizes reply, optionally saves it, and hands it to the
// presenter. A reply with nothing pronounceable is skipped silently.
func (l *SessionLoop) speak(ctx context.Context, model string, lang core.Language, reply string) (*core.AudioClip, string, error) {
	spoken := reply
	if l.config.NormalizeSpeech {
		spoken = text.Speakable(reply)
	}
	if spoken == "" {
		return nil, "", nil
	}

	sctx, cancel := context.WithTimeout(ctx, l.config.synthesisTimeout())
	clip, err := l.synthesizer.Synthesize(sctx, spoken, lang)
	cancel()
	if err != nil {
		return nil, "", err
	}
	if clip.Empty() {
		return nil, "", errors.New("synthesizer returned no audio")
	}

	saved := ""
	if l.config.SaveAudio {
		path := audioPath(l.config.saveAudioPath(), clip.Format)
		if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
			return &clip, "", fmt.Errorf("save audio: %w", err)
		}
		saved = path
		l.notify(model, turn.NoticeAudioSaved, turn.NoticeLevelSuccess, "Audio saved as "+path)
	}

	packet := core.NewEventPacket(&turn.AudioOutputEvent{Model: model, Language: lang, Audio: clip, SavedPath: saved}, relayer)
	if err := l.presenter.Present(packet); err != nil {
		return &clip, saved, fmt.Errorf("play audio: %w", err)
	}
	return &clip, saved, nil
}

func (l *SessionLoop) present(event core.IEvent) {
	if err := l.presenter.Present(core.NewEventPacket(event, relayer)); err != nil {
		l.logger.With(map[string]interface{}{"event": event.GetId(), "error": err}).Warn("presenter rejected event")
	}
}

func (l *SessionLoop) notify(model string, kind turn.NoticeKind, level turn.NoticeLevel, msg string) {
	l.present(&turn.NoticeEvent{Model: model, Kind: kind, Level: level, Text: msg})
}

func (l *SessionLoop) complete(model string, skipped bool, err error) {
	event := &turn.TurnCompletedEvent{Model: model, Skipped: skipped}
	if err != nil {
		event.Error = err.Error()
	}
	l.present(event)
}

// audioPath swaps the extension of path for the one matching format.
func audioPath(path string, format core.AudioEncodingFormat) string {
	ext := "." + format.String()
	if format.Raw() {
		ext = ".raw"
	}
	if filepath.Ext(path) == ext {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
