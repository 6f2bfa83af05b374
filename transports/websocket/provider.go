package websocket

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"speechbot/core"
	"speechbot/protocol"
)

//go:embed web
var webFS embed.FS

// JobHandler runs one browser session and returns when it ends.
type JobHandler func(sess *Session, ctx context.Context) error

// Provider serves the chat page, a small JSON API and the session socket.
type Provider struct {
	config     *Config
	models     core.ModelLister
	logger     *core.Logger
	upgrader   websocket.Upgrader
	binary     core.AudioEncodingFormat
	server     *http.Server
	listener   net.Listener
	jobHandler JobHandler
	mu         sync.RWMutex
	isRunning  bool

	ctx    context.Context
	cancel context.CancelFunc

	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	wg         sync.WaitGroup
}

// NewProvider creates a provider. models backs GET /api/models and may be
// nil.
func NewProvider(config *Config, models core.ModelLister, logger *core.Logger) *Provider {
	config = config.withDefaults()
	if logger == nil {
		logger = core.GetLogger()
	}
	binary, err := core.ParseAudioFormat(config.BinaryAudioFormat)
	if err != nil {
		binary = core.WEBM
	}

	p := &Provider{
		config:   config,
		models:   models,
		logger:   logger.With(map[string]interface{}{"component": "websocket_provider"}),
		binary:   binary,
		sessions: make(map[string]*Session),
	}
	p.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     p.checkOrigin,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// RegisterJobHandler sets the function run for every accepted session.
func (p *Provider) RegisterJobHandler(handler JobHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	p.jobHandler = handler
	return nil
}

// Handler returns the HTTP routes without starting a server.
func (p *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(webFS, "web")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/api/models", p.handleModels)
	mux.HandleFunc("/healthz", p.handleHealth)
	mux.HandleFunc(p.config.Path, p.handleWebSocket)
	return mux
}

// Start binds the listen address and serves in the background.
func (p *Provider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("provider already running")
	}

	ln, err := net.Listen("tcp", p.config.Addr)
	if err != nil {
		return fmt.Errorf("websocket provider: listen %s: %w", p.config.Addr, err)
	}
	p.listener = ln
	p.server = &http.Server{Handler: p.Handler()}

	go func() {
		var err error
		if p.config.EnableTLS {
			err = p.server.ServeTLS(ln, p.config.TLSCertFile, p.config.TLSKeyFile)
		} else {
			err = p.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.With(map[string]interface{}{"error": err}).Error("http server stopped")
		}
	}()

	p.isRunning = true
	p.logger.Infof("chat server listening on %s, socket path %s", ln.Addr(), p.config.Path)
	return nil
}

// Addr returns the bound address once started.
func (p *Provider) Addr() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.listener == nil {
		return p.config.Addr
	}
	return p.listener.Addr().String()
}

// Stop closes every session, waits for their handlers and shuts the server
// down.
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel()

	p.sessionsMu.Lock()
	for _, sess := range p.sessions {
		sess.Close()
	}
	p.sessionsMu.Unlock()
	p.wg.Wait()

	if !p.isRunning {
		return nil
	}
	if p.server != nil {
		if err := p.server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("error shutting down server: %w", err)
		}
	}
	p.isRunning = false
	return nil
}

// ActiveSessions returns the number of open sessions.
func (p *Provider) ActiveSessions() int {
	p.sessionsMu.RLock()
	defer p.sessionsMu.RUnlock()
	return len(p.sessions)
}

// Sessions describes the open sessions, oldest first.
func (p *Provider) Sessions() []protocol.SessionInfo {
	p.sessionsMu.RLock()
	out := make([]protocol.SessionInfo, 0, len(p.sessions))
	for _, sess := range p.sessions {
		out = append(out, sess.Info("active"))
	}
	p.sessionsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

func (p *Provider) checkOrigin(r *http.Request) bool {
	if len(p.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range p.config.AllowedOrigins {
		if allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}

func (p *Provider) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": p.ActiveSessions(),
	})
}

func (p *Provider) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.models == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no model provider configured"})
		return
	}
	names, err := p.models.ListModels(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, protocol.ModelsPayload{Models: names})
}

func (p *Provider) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Stop holds p.mu for its whole run, so a session is either counted
	// before Stop waits or sees the cancelled context.
	p.mu.RLock()
	handler := p.jobHandler
	stopping := p.ctx.Err() != nil
	if !stopping && handler != nil {
		p.wg.Add(1)
	}
	p.mu.RUnlock()

	if stopping {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if handler == nil {
		http.Error(w, "no session handler registered", http.StatusServiceUnavailable)
		return
	}
	defer p.wg.Done()

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.With(map[string]interface{}{"error": err}).Warn("failed to upgrade connection")
		return
	}
	conn.SetReadLimit(p.config.MaxMessageSize)

	sess := NewSession(conn, r.RemoteAddr, p.binary, p.logger)

	p.sessionsMu.Lock()
	p.sessions[sess.ID()] = sess
	p.sessionsMu.Unlock()

	defer func() {
		p.sessionsMu.Lock()
		delete(p.sessions, sess.ID())
		p.sessionsMu.Unlock()
		sess.Close()
	}()

	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	if err := handler(sess, ctx); err != nil {
		p.logger.With(map[string]interface{}{"session_id": sess.ID(), "error": err}).Warn("session ended with error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
