package main

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/samlabs/sam-gateway/internal/chat"
	"github.com/samlabs/sam-gateway/internal/config"
	"github.com/samlabs/sam-gateway/internal/notify"
	"github.com/samlabs/sam-gateway/internal/server"
	"github.com/samlabs/sam-gateway/internal/store"
	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/samlabs/sam-gateway/internal/widget"
)

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))
var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type loginData struct {
	Error     bool
	CSRFToken string
	Version   string
	Year      int
}

type indexData struct {
	Version string
	Year    int
}

// Server is the HTTP server for the gateway web interface.
type Server struct {
	config   *config.Config
	store    *store.Store
	ctrl     *chat.Controller
	widget   *widget.Hub
	toasts   *notify.Hub
	sessions *server.SessionManager
	commands *server.CommandHandler
	version  *VersionChecker

	mu       sync.Mutex
	watchers map[chan struct{}]struct{}
	stopCh   chan struct{}
}

// NewServer returns a new Server wired to the session store, the
// conversation controller, and the page-facing hubs.
func NewServer(cfg *config.Config, st *store.Store, ctrl *chat.Controller, hub *widget.Hub, toasts *notify.Hub, commands *server.CommandHandler) *Server {
	return &Server{
		config:   cfg,
		store:    st,
		ctrl:     ctrl,
		widget:   hub,
		toasts:   toasts,
		sessions: server.NewSessionManager(),
		commands: commands,
		version:  NewVersionChecker(),
		watchers: make(map[chan struct{}]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// handleWebSocket handles bidirectional WebSocket communication for
// real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	s.addWatcher(statusUpdate)
	s.toasts.Subscribe(send)
	s.widget.Bind(send)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(r.Context(), conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)

	// Detach every publisher before closing send; the hubs hold their
	// locks across sends, so after these return nothing writes to it.
	s.widget.Unbind(send)
	s.toasts.Unsubscribe(send)
	s.removeWatcher(statusUpdate)
	close(send)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(ctx context.Context, conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(ctx, cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes periodic state and level updates until
// the connection goes away. It does not close send; the caller detaches
// publishers first.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(100 * time.Millisecond)  // 10 fps for the avatar meter
	statusTicker := time.NewTicker(3000 * time.Millisecond) // Heartbeat state push every 3s
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial state
	if !trySend(s.buildWSState()) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if !trySend(s.buildWSState()) {
				return
			}
		case <-levelsTicker.C:
			if !trySend(types.WSLevelResponse{Type: "level", Level: s.store.AudioLevel()}) {
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSState()) {
				return
			}
		}
	}
}

// buildWSState returns the current session state push.
func (s *Server) buildWSState() types.WSStateResponse {
	platform, account := s.store.Identity()
	view := s.ctrl.View()

	return types.WSStateResponse{
		Type:           "state",
		Phase:          s.store.Phase(),
		Platform:       platform,
		AccountID:      account,
		IntroSeen:      s.store.IntroSeen(),
		DeviceWarning:  view.DeviceWarning,
		NowPlaying:     view.NowPlaying,
		ShowWidget:     view.ShowWidget,
		WidgetTrackURL: view.WidgetTrackURL,
		Version:        s.version.Info(),
	}
}

// addWatcher registers a connection's status-update channel.
func (s *Server) addWatcher(ch chan struct{}) {
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
}

// removeWatcher unregisters a connection's status-update channel.
func (s *Server) removeWatcher(ch chan struct{}) {
	s.mu.Lock()
	delete(s.watchers, ch)
	s.mu.Unlock()
}

// fanOutUpdates forwards coalesced store change signals to every
// connected page's status-update channel.
func (s *Server) fanOutUpdates() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.store.Updates():
			s.mu.Lock()
			for ch := range s.watchers {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
			s.mu.Unlock()
		}
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware()

	// Public routes (no auth required)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	// Public static assets (needed for login page styling)
	mux.HandleFunc("/style.css", s.handlePublicStatic)
	mux.HandleFunc("/favicon.svg", s.handlePublicStatic)

	// OAuth return target; the backend redirects the browser here after
	// a platform connection completes.
	mux.HandleFunc("/callback", s.handleCallback)

	// Protected routes
	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/", auth(s.handleStatic))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleCallback finishes a platform connection. The query carries the
// connected platform and account, plus device availability when the
// backend already knows it; passing that hint on skips a status
// round-trip in the device check.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platform := q.Get("platform")
	if platform != types.PlatformSpotify && platform != types.PlatformSoundCloud {
		http.Error(w, "unknown platform", http.StatusBadRequest)
		return
	}

	accountID, err := strconv.ParseInt(q.Get("account_id"), 10, 64)
	if err != nil {
		accountID = 0
	}

	var hint *bool
	if v := q.Get("has_device"); v != "" {
		b := v == "true" || v == "1"
		hint = &b
	}

	// Identity outlives this request; the device check must not die
	// with the redirect.
	if err := s.ctrl.SetIdentity(context.Background(), platform, accountID, hint); err != nil {
		slog.Error("failed to adopt platform identity", "platform", platform, "error", err)
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// handlePublicStatic handles requests for static files without authentication.
func (s *Server) handlePublicStatic(w http.ResponseWriter, r *http.Request) {
	if !serveStaticFile(w, r.URL.Path) {
		http.NotFound(w, r)
	}
}

// serveStaticFile serves a static file by path and reports whether it was found.
func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

// handleLogin handles login page display and form submission.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("gateway_session"); err == nil {
		if s.sessions.Validate(cookie.Value) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}

	cfg := s.config.Snapshot()
	data := loginData{
		Version:   Version,
		Year:      time.Now().Year(),
		CSRFToken: s.sessions.CreateCSRFToken(),
	}

	if r.Method == http.MethodPost {
		csrfToken := r.FormValue("csrf_token")
		if !s.sessions.ValidateCSRFToken(csrfToken) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		username := r.FormValue("username")
		password := r.FormValue("password")

		if s.sessions.Login(w, r, username, password, cfg.WebUser, cfg.WebPassword) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		data.Error = true
		data.CSRFToken = s.sessions.CreateCSRFToken() // New token for retry
	}

	w.Header().Set("Content-Type", "text/html")
	if err := loginTmpl.Execute(w, data); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

// handleLogout handles user logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// staticFile is an embedded static file with content type and data.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles is a map from URL paths to static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
	"/favicon.svg": {
		contentType: "image/svg+xml",
		content:     faviconSVG,
		name:        "favicon.svg",
	},
}

// handleStatic handles requests for embedded static web interface files.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	// Serve index.html with dynamic placeholders.
	if path == "/index.html" {
		w.Header().Set("Content-Type", "text/html")
		if err := indexTmpl.Execute(w, indexData{
			Version: Version,
			Year:    time.Now().Year(),
		}); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	if serveStaticFile(w, path) {
		return
	}

	http.NotFound(w, r)
}

// Start begins the HTTP server and the store-to-page update fan-out.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go s.fanOutUpdates()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}

// Stop halts the update fan-out and the version checker.
func (s *Server) Stop() {
	close(s.stopCh)
	s.version.Stop()
}
