package turn

import "speechbot/core"

// UserMessageEvent is emitted once the user's utterance has been committed
// to history.
type UserMessageEvent struct {
	Model   string
	Message core.Message
}

func (e *UserMessageEvent) GetId() string {
	return "turn.user_message"
}

// AssistantMessageEvent is emitted once the model's reply has been committed
// to history.
type AssistantMessageEvent struct {
	Model   string
	Message core.Message
}

func (e *AssistantMessageEvent) GetId() string {
	return "turn.assistant_message"
}

// AudioOutputEvent carries the synthesized reply for playback.
type AudioOutputEvent struct {
	Model     string
	Language  core.Language
	Audio     core.AudioClip
	SavedPath string // Set when the clip was also written to disk.
}

func (e *AudioOutputEvent) GetId() string {
	return "turn.audio_output"
}

// HistoryEvent carries a full snapshot of one model's conversation, used to
// re-render the chat after a model switch or reconnect.
type HistoryEvent struct {
	Model    string
	Messages []core.Message
}

func (e *HistoryEvent) GetId() string {
	return "turn.history"
}

// TurnCompletedEvent closes every cycle, including skipped and failed ones.
type TurnCompletedEvent struct {
	Model   string
	Skipped bool   // No utterance this cycle; state untouched.
	Error   string // Turn-level failure, empty on success.
}

func (e *TurnCompletedEvent) GetId() string {
	return "turn.completed"
}

type NoticeKind string

const (
	NoticeEmptyTranscription   NoticeKind = "empty_transcription"
	NoticeTranscriptionFailure NoticeKind = "transcription_failure"
	NoticeInferenceFailure     NoticeKind = "inference_failure"
	NoticeSynthesisFailure     NoticeKind = "synthesis_failure"
	NoticeAudioSaved           NoticeKind = "audio_saved"
)

type NoticeLevel string

const (
	NoticeLevelInfo    NoticeLevel = "info"
	NoticeLevelSuccess NoticeLevel = "success"
	NoticeLevelError   NoticeLevel = "error"
)

// NoticeEvent is a user-visible status or failure message.
type NoticeEvent struct {
	Model string
	Kind  NoticeKind
	Level NoticeLevel
	Text  string
}

func (e *NoticeEvent) GetId() string {
	return "turn.notice"
}
