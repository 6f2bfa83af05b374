package factories

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"speechbot/controlplane"
	"speechbot/core"
	"speechbot/events/turn"
	"speechbot/handlers/session"
	"speechbot/transports/websocket"
)

// PipelineConfig configures a Pipeline's lifecycle behaviour.
type PipelineConfig struct {
	Timeout time.Duration         // Per-session limit; 0 means none.
	LogDir  string                // Per-session JSONL logs when set.
	Session session.SessionConfig // Turn loop settings for new sessions.
}

// Pipeline runs one SessionLoop per browser connection. Every connection
// gets its own ConversationRegistry, discarded when the connection ends.
//
// The Pipeline owns its Services. A set replaced by Update is closed once
// the last session using it ends.
type Pipeline struct {
	logger *core.Logger

	mu           sync.RWMutex
	config       PipelineConfig
	current      *servicesLease
	controlPlane *controlplane.Client
	provider     *websocket.Provider
}

// servicesLease counts the sessions running on one set of Services.
type servicesLease struct {
	services *Services
	sessions int
	retired  bool
}

// NewPipeline creates a Pipeline serving sessions with services.
func NewPipeline(services *Services, config PipelineConfig, logger *core.Logger) *Pipeline {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Pipeline{
		current: &servicesLease{services: services},
		config:  config,
		logger:  logger,
	}
}

// WithControlPlane ships session logs, turn events and status to client.
func (p *Pipeline) WithControlPlane(client *controlplane.Client) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controlPlane = client
	return p
}

// Update swaps the providers and loop settings used by sessions opened from
// now on. Open sessions keep what they started with; the previous services
// are closed when the last of them ends.
func (p *Pipeline) Update(services *Services, config PipelineConfig) {
	p.mu.Lock()
	old := p.current
	p.current = &servicesLease{services: services}
	p.config = config
	p.mu.Unlock()

	if old.services != services {
		p.retire(old)
	}
}

// Close retires the current services. They are closed now, or when the
// last open session ends.
func (p *Pipeline) Close() {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()
	p.retire(current)
}

// ListModels lists models through the current inference provider, so the
// model endpoint follows config updates.
func (p *Pipeline) ListModels(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	services := p.current.services
	p.mu.RUnlock()
	if services == nil || services.Chat == nil {
		return nil, errors.New("pipeline: no inference provider")
	}
	return services.Chat.ListModels(ctx)
}

func (p *Pipeline) acquire() (*servicesLease, PipelineConfig, *controlplane.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.sessions++
	return p.current, p.config, p.controlPlane
}

func (p *Pipeline) release(lease *servicesLease) {
	p.mu.Lock()
	lease.sessions--
	idle := lease.retired && lease.sessions == 0
	p.mu.Unlock()
	if idle {
		lease.services.Close()
	}
}

func (p *Pipeline) retire(lease *servicesLease) {
	p.mu.Lock()
	if lease.retired {
		p.mu.Unlock()
		return
	}
	lease.retired = true
	idle := lease.sessions == 0
	p.mu.Unlock()
	if idle {
		lease.services.Close()
	}
}

// Run serves a single browser session and blocks until it ends.
func (p *Pipeline) Run(sess *websocket.Session, ctx context.Context) error {
	lease, config, cp := p.acquire()
	defer p.release(lease)
	services := lease.services

	writer := p.logWriter(sess, config, cp)
	base := p.logger
	if writer != nil {
		defer writer.Close()
		base = core.NewSessionLogger(p.logger, writer)
	}
	logger := base.With(map[string]interface{}{"session_id": sess.ID()})
	ctx = core.ContextWithSessionLogger(ctx, logger)

	if services == nil || services.Chat == nil {
		logger.Warn("no inference provider, skipping session")
		return nil
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	registry := core.NewConversationRegistry()
	defer registry.Close()

	presenter := session.Presenter(sess)
	if cp != nil {
		presenter = &eventRelay{sess: sess, client: cp}
	}
	loop := services.NewLoop(registry, presenter, config.Session, logger)

	logger.With(map[string]interface{}{"remote_addr": sess.RemoteAddr()}).Info("session started")
	p.reportStatus(cp)

	err := sess.Serve(ctx, loop, services.Chat)

	logger.With(map[string]interface{}{"models": registry.Models()}).Info("session ended")
	p.reportStatus(cp)
	return err
}

// Serve registers a job handler with the provider, starts it,
// and blocks until ctx is cancelled. It then stops the provider.
func (p *Pipeline) Serve(provider *websocket.Provider, ctx context.Context) error {
	logger := p.logger.With(map[string]interface{}{"component": "pipeline"})

	p.mu.Lock()
	p.provider = provider
	p.mu.Unlock()

	if err := provider.RegisterJobHandler(func(sess *websocket.Session, jobCtx context.Context) error {
		return p.Run(sess, jobCtx)
	}); err != nil {
		logger.With(map[string]interface{}{"error": err}).Error("failed to register job handler")
		return err
	}

	if err := provider.Start(); err != nil {
		logger.With(map[string]interface{}{"error": err}).Error("provider failed to start")
		return err
	}

	logger.Info("provider started, waiting for sessions")
	<-ctx.Done()

	logger.Info("stopping provider")
	if err := provider.Stop(); err != nil {
		logger.With(map[string]interface{}{"error": err}).Error("error stopping provider")
	}
	return nil
}

// ActiveSessions reports open sessions for control plane heartbeats.
func (p *Pipeline) ActiveSessions() int {
	p.mu.RLock()
	provider := p.provider
	p.mu.RUnlock()
	if provider == nil {
		return 0
	}
	return provider.ActiveSessions()
}

func (p *Pipeline) logWriter(sess *websocket.Session, config PipelineConfig, cp *controlplane.Client) core.LogWriter {
	if cp != nil {
		return controlplane.NewWSLogWriter(cp, sess.ID())
	}
	if config.LogDir == "" {
		return nil
	}
	w, err := core.NewSessionLogWriter(config.LogDir, sess.ID(), sess.RemoteAddr())
	if err != nil {
		p.logger.With(map[string]interface{}{"error": err}).Warn("session log file unavailable")
		return nil
	}
	return w
}

func (p *Pipeline) reportStatus(cp *controlplane.Client) {
	if cp == nil {
		return
	}
	p.mu.RLock()
	provider := p.provider
	p.mu.RUnlock()
	if provider == nil {
		return
	}
	sessions := provider.Sessions()
	status := "idle"
	if len(sessions) > 0 {
		status = "running"
	}
	cp.SendStatus(status, sessions)
}

// eventRelay presents to the browser and mirrors a summary of every event
// to the control plane. Audio bytes are not mirrored.
type eventRelay struct {
	sess   *websocket.Session
	client *controlplane.Client
}

func (r *eventRelay) Present(packet *core.EventPacket) error {
	err := r.sess.Present(packet)
	if data, merr := sonic.Marshal(eventSummary(packet)); merr == nil {
		r.client.SendEvent(r.sess.ID(), packet.Uid, data)
	}
	return err
}

func eventSummary(packet *core.EventPacket) map[string]interface{} {
	out := map[string]interface{}{
		"kind":    packet.Event.GetId(),
		"relayer": packet.Relayer,
		"ts":      packet.Timestamp.Format(time.RFC3339Nano),
	}
	switch e := packet.Event.(type) {
	case *turn.UserMessageEvent:
		out["model"], out["role"], out["content"] = e.Model, string(e.Message.Role), e.Message.Content
	case *turn.AssistantMessageEvent:
		out["model"], out["role"], out["content"] = e.Model, string(e.Message.Role), e.Message.Content
	case *turn.AudioOutputEvent:
		out["model"], out["format"], out["bytes"] = e.Model, e.Audio.Format.String(), len(e.Audio.Data)
	case *turn.NoticeEvent:
		out["model"], out["notice"], out["level"], out["text"] = e.Model, string(e.Kind), string(e.Level), e.Text
	case *turn.HistoryEvent:
		out["model"], out["messages"] = e.Model, len(e.Messages)
	case *turn.TurnCompletedEvent:
		out["model"], out["skipped"], out["error"] = e.Model, e.Skipped, e.Error
	}
	return out
}
