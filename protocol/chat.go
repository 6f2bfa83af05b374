package protocol

// Browser chat socket.
const (
	// Browser -> server
	MsgListModels     MessageType = "list_models"
	MsgSelectModel    MessageType = "select_model"
	MsgSelectLanguage MessageType = "select_language"
	MsgUtterance      MessageType = "utterance"
	MsgText           MessageType = "text"

	// Server -> browser
	MsgReady   MessageType = "ready"
	MsgModels  MessageType = "models"
	MsgHistory MessageType = "history"
	MsgMessage MessageType = "message"
	MsgAudio   MessageType = "audio"
	MsgNotice  MessageType = "notice"
	MsgTurnEnd MessageType = "turn_end"
)

// --- Browser -> server payloads ---

// SelectModelPayload switches the active model; the server answers with its
// history.
type SelectModelPayload struct {
	Model string `json:"model"`
}

// SelectLanguagePayload sets the language used for transcription and speech.
type SelectLanguagePayload struct {
	Language string `json:"language"`
}

// UtterancePayload carries one recorded utterance. Model and Language
// override the session selection when set.
type UtterancePayload struct {
	Model      string `json:"model,omitempty"`
	Language   string `json:"language,omitempty"`
	Format     string `json:"format"` // webm, ogg, wav, mp3, pcm, ulaw, alaw
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Audio      []byte `json:"audio"` // base64 in JSON.
}

// TextPayload carries text recognized in the browser or typed by the user.
type TextPayload struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

// --- Server -> browser payloads ---

type ReadyPayload struct {
	SessionID       string   `json:"session_id"`
	Languages       []string `json:"languages"`
	DefaultLanguage string   `json:"default_language"`
}

type ModelsPayload struct {
	Models   []string `json:"models"`
	Selected string   `json:"selected,omitempty"`
}

// ChatMessage is one rendered history entry.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Direction string `json:"direction"` // ltr or rtl
}

type HistoryPayload struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type MessagePayload struct {
	Model string `json:"model"`
	ChatMessage
}

type AudioPayload struct {
	Model     string `json:"model"`
	MIME      string `json:"mime"`
	Format    string `json:"format"`
	Data      []byte `json:"data"` // base64 in JSON.
	SavedPath string `json:"saved_path,omitempty"`
}

type NoticePayload struct {
	Model string `json:"model,omitempty"`
	Kind  string `json:"kind"`
	Level string `json:"level"` // info, success, error
	Text  string `json:"text"`
}

type TurnEndPayload struct {
	Model   string `json:"model"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}
