package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"speechbot/core"
	"speechbot/events/turn"
	"speechbot/handlers/session"
	"speechbot/protocol"
	"speechbot/utils/text"
)

const writeTimeout = 10 * time.Second

// Session is one browser connection. It implements session.Presenter by
// translating turn events into protocol messages, and Serve feeds client
// messages into a SessionLoop one at a time.
type Session struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	startedAt  time.Time
	binary     core.AudioEncodingFormat
	logger     *core.Logger

	mu     sync.Mutex // protects writes
	closed bool

	stateMu  sync.RWMutex
	model    string
	language core.Language
}

// NewSession wraps an upgraded connection. binaryFormat is the encoding
// assumed for binary frames.
func NewSession(conn *websocket.Conn, remoteAddr string, binaryFormat core.AudioEncodingFormat, logger *core.Logger) *Session {
	if logger == nil {
		logger = core.GetLogger()
	}
	id := uuid.New().String()
	return &Session{
		id:         id,
		conn:       conn,
		remoteAddr: remoteAddr,
		startedAt:  time.Now().UTC(),
		binary:     binaryFormat,
		language:   core.DefaultLanguage,
		logger:     logger.With(map[string]interface{}{"session_id": id}),
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Model returns the model the browser selected last.
func (s *Session) Model() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.model
}

// Language returns the language the browser selected last.
func (s *Session) Language() core.Language {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.language
}

// Info describes the session for control plane status reports.
func (s *Session) Info(status string) protocol.SessionInfo {
	return protocol.SessionInfo{
		SessionID:  s.id,
		RemoteAddr: s.remoteAddr,
		Model:      s.Model(),
		StartedAt:  s.startedAt.Format(time.RFC3339),
		Status:     status,
	}
}

// Send writes one envelope to the browser.
func (s *Session) Send(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Present implements session.Presenter.
func (s *Session) Present(packet *core.EventPacket) error {
	if packet == nil || packet.Event == nil {
		return nil
	}
	switch e := packet.Event.(type) {
	case *turn.UserMessageEvent:
		return s.Send(protocol.MsgMessage, protocol.MessagePayload{Model: e.Model, ChatMessage: chatMessage(e.Message)})
	case *turn.AssistantMessageEvent:
		return s.Send(protocol.MsgMessage, protocol.MessagePayload{Model: e.Model, ChatMessage: chatMessage(e.Message)})
	case *turn.AudioOutputEvent:
		return s.Send(protocol.MsgAudio, protocol.AudioPayload{
			Model:     e.Model,
			MIME:      e.Audio.Format.MIMEType(),
			Format:    e.Audio.Format.String(),
			Data:      e.Audio.Data,
			SavedPath: e.SavedPath,
		})
	case *turn.NoticeEvent:
		return s.Send(protocol.MsgNotice, protocol.NoticePayload{
			Model: e.Model,
			Kind:  string(e.Kind),
			Level: string(e.Level),
			Text:  e.Text,
		})
	case *turn.HistoryEvent:
		messages := make([]protocol.ChatMessage, 0, len(e.Messages))
		for _, m := range e.Messages {
			messages = append(messages, chatMessage(m))
		}
		return s.Send(protocol.MsgHistory, protocol.HistoryPayload{Model: e.Model, Messages: messages})
	case *turn.TurnCompletedEvent:
		return s.Send(protocol.MsgTurnEnd, protocol.TurnEndPayload{Model: e.Model, Skipped: e.Skipped, Error: e.Error})
	default:
		s.logger.Debugf("ignoring event %s", packet.Event.GetId())
		return nil
	}
}

func chatMessage(m core.Message) protocol.ChatMessage {
	return protocol.ChatMessage{
		Role:      string(m.Role),
		Content:   m.Content,
		Direction: string(text.DirectionOf(m.Content)),
	}
}

// Serve announces the session and processes client messages until the
// connection drops or ctx is cancelled. Turn failures are reported to the
// browser and never end the session.
func (s *Session) Serve(ctx context.Context, loop *session.SessionLoop, models core.ModelLister) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	languages := core.SupportedLanguages()
	codes := make([]string, len(languages))
	for i, l := range languages {
		codes[i] = string(l)
	}
	if err := s.Send(protocol.MsgReady, protocol.ReadyPayload{
		SessionID:       s.id,
		Languages:       codes,
		DefaultLanguage: string(core.DefaultLanguage),
	}); err != nil {
		return fmt.Errorf("websocket: send ready: %w", err)
	}

	for {
		messageType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("websocket: read: %w", err)
		}

		switch messageType {
		case websocket.TextMessage:
			s.dispatch(ctx, msg, loop, models)
		case websocket.BinaryMessage:
			clip := core.AudioClip{Data: msg, Format: s.binary}
			s.cycle(ctx, loop, session.CycleRequest{Model: s.Model(), Language: s.Language(), Audio: &clip})
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg []byte, loop *session.SessionLoop, models core.ModelLister) {
	msgType, raw, err := protocol.Unmarshal(msg)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from browser")
		s.notice("", turn.NoticeLevelError, "Invalid message: "+err.Error())
		return
	}

	switch msgType {
	case protocol.MsgListModels:
		s.listModels(ctx, loop, models)

	case protocol.MsgSelectModel:
		p, err := protocol.UnmarshalPayload[protocol.SelectModelPayload](raw)
		if err != nil || strings.TrimSpace(p.Model) == "" {
			s.notice("", turn.NoticeLevelError, "Select model requires a model name.")
			return
		}
		s.selectModel(loop, p.Model)

	case protocol.MsgSelectLanguage:
		p, err := protocol.UnmarshalPayload[protocol.SelectLanguagePayload](raw)
		if err != nil {
			s.notice("", turn.NoticeLevelError, "Invalid language selection.")
			return
		}
		s.selectLanguage(p.Language)

	case protocol.MsgUtterance:
		p, err := protocol.UnmarshalPayload[protocol.UtterancePayload](raw)
		if err != nil {
			s.notice("", turn.NoticeLevelError, "Invalid utterance: "+err.Error())
			return
		}
		format, err := core.ParseAudioFormat(p.Format)
		if err != nil {
			s.notice(p.Model, turn.NoticeLevelError, err.Error())
			return
		}
		if !s.applyOverrides(loop, p.Model, p.Language) {
			return
		}
		clip := core.AudioClip{Data: p.Audio, Format: format, SampleRate: p.SampleRate, Channels: p.Channels}
		s.cycle(ctx, loop, session.CycleRequest{Model: s.Model(), Language: s.Language(), Audio: &clip})

	case protocol.MsgText:
		p, err := protocol.UnmarshalPayload[protocol.TextPayload](raw)
		if err != nil {
			s.notice("", turn.NoticeLevelError, "Invalid text message: "+err.Error())
			return
		}
		if !s.applyOverrides(loop, p.Model, p.Language) {
			return
		}
		s.cycle(ctx, loop, session.CycleRequest{Model: s.Model(), Language: s.Language(), Text: p.Text})

	default:
		s.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from browser")
	}
}

func (s *Session) listModels(ctx context.Context, loop *session.SessionLoop, models core.ModelLister) {
	if models == nil {
		s.notice("", turn.NoticeLevelError, "No model provider configured.")
		return
	}
	names, err := models.ListModels(ctx)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("listing models failed")
		s.notice("", turn.NoticeLevelError, "Error listing models: "+err.Error())
		return
	}

	selected := s.Model()
	if selected == "" && len(names) > 0 {
		selected = names[0]
	}
	if err := s.Send(protocol.MsgModels, protocol.ModelsPayload{Models: names, Selected: selected}); err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("failed to send models")
		return
	}
	if selected != "" && selected != s.Model() {
		s.selectModel(loop, selected)
	}
}

// selectModel switches the active conversation and re-renders its history.
func (s *Session) selectModel(loop *session.SessionLoop, model string) {
	s.stateMu.Lock()
	s.model = model
	s.stateMu.Unlock()
	loop.History(model)
}

func (s *Session) selectLanguage(code string) bool {
	lang, err := core.ParseLanguage(code)
	if err != nil {
		s.notice("", turn.NoticeLevelError, err.Error())
		return false
	}
	s.stateMu.Lock()
	s.language = lang
	s.stateMu.Unlock()
	return true
}

func (s *Session) applyOverrides(loop *session.SessionLoop, model, language string) bool {
	if language != "" && !s.selectLanguage(language) {
		return false
	}
	if model != "" && model != s.Model() {
		s.selectModel(loop, model)
	}
	return true
}

func (s *Session) cycle(ctx context.Context, loop *session.SessionLoop, req session.CycleRequest) {
	if req.Model == "" {
		s.notice("", turn.NoticeLevelError, "Select a model first.")
		return
	}
	_, err := loop.Cycle(ctx, req)
	if err == nil {
		return
	}

	// Transcription and inference failures were already reported by the loop.
	var terr *core.TranscriptionError
	var ierr *core.InferenceError
	if errors.As(err, &terr) || errors.As(err, &ierr) {
		return
	}
	s.logger.With(map[string]interface{}{"model": req.Model, "error": err}).Warn("turn failed")
	s.notice(req.Model, turn.NoticeLevelError, err.Error())
}

func (s *Session) notice(model string, level turn.NoticeLevel, msg string) {
	if err := s.Send(protocol.MsgNotice, protocol.NoticePayload{Model: model, Kind: "session", Level: string(level), Text: msg}); err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Debug("failed to send notice")
	}
}

// Close shuts down the WebSocket connection
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
