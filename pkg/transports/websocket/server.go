// Package websocket serves the browser voice client: raw 16-bit PCM comes in
// as binary frames on /ws/audio, JSON events and WAV chunks go back.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/logging"
	"github.com/harunnryd/tutorvoice/pkg/session"
	"github.com/harunnryd/tutorvoice/pkg/transports"
)

const (
	AudioPath = "/ws/audio"

	defaultWriteTimeout = 10 * time.Second
	audioQueueSize      = 64
)

var errClientClosed = errors.New("client closed connection")

type Config struct {
	Addr              string
	StaticDir         string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	MaxMessageBytes   int64
	WriteTimeout      time.Duration
}

// SessionFactory builds the session for one upgraded connection.
type SessionFactory func(id string, conn session.Conn) (*session.Session, error)

type Option func(*Server)

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

type Server struct {
	cfg        Config
	newSession SessionFactory
	metrics    http.Handler
	log        *slog.Logger
	upgrader   gorilla.Upgrader
	router     chi.Router

	httpSrv  *http.Server
	listener net.Listener
	baseCtx  context.Context
	draining atomic.Bool
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[string]context.CancelFunc
}

func New(cfg Config, factory SessionFactory, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8001"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	s := &Server{
		cfg:        cfg,
		newSession: factory,
		log:        logging.NewComponentLogger(slog.Default(), "websocket"),
		baseCtx:    context.Background(),
		conns:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = gorilla.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Name() string { return "websocket" }

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get(AudioPath, s.handleAudio)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.cfg.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.cfg.StaticDir))
		r.Handle("/static/*", http.StripPrefix("/static", fs))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(s.cfg.StaticDir, "index.html"))
		})
	}
	return r
}

// Start binds the listener and serves in the background until ctx ends or
// Drain is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.baseCtx = ctx
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", slog.String("error", err.Error()))
		}
	}()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()), slog.String("audio_path", AudioPath))
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Drain refuses new clients, closes open sessions and waits for their
// handlers to return.
func (s *Server) Drain(ctx context.Context) error {
	s.draining.Store(true)
	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.mu.Lock()
	for _, cancel := range s.conns {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, errorsx.Errorf(errorsx.ReasonShutdownTimeout, "%d sessions still open", s.Sessions()))
	}
	return errors.Join(errs...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.draining.Load() {
		status = "draining"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "sessions": s.Sessions()})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.ReasonTransportUpgrade)))
		return
	}
	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.baseCtx)
	if !s.track(id, cancel) {
		cancel()
		newConn(ws, s.cfg.WriteTimeout).closeWith(gorilla.CloseGoingAway, "draining")
		return
	}
	defer s.untrack(id)
	defer cancel()

	c := newConn(ws, s.cfg.WriteTimeout)
	log := s.log.With(slog.String(frames.MetaSessionID, id))
	sess, err := s.newSession(id, c)
	if err != nil {
		log.Error("session setup failed", slog.String("error", err.Error()))
		c.closeWith(gorilla.CloseInternalServerErr, "session setup failed")
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("session close", slog.String("error", err.Error()))
		}
	}()

	err = s.serve(ctx, ws, sess)
	switch {
	case err == nil, errors.Is(err, errClientClosed), errors.Is(err, context.Canceled):
		c.closeWith(gorilla.CloseNormalClosure, "")
	default:
		log.Warn("session ended with error",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.Reason(err))))
		c.closeWith(gorilla.CloseInternalServerErr, "")
	}
}

// serve reads audio on one goroutine and answers it on another, so slow turns
// never stall the socket reader.
func (s *Server) serve(ctx context.Context, ws *gorilla.Conn, sess *session.Session) error {
	g, gctx := errgroup.WithContext(ctx)
	audio := make(chan []byte, audioQueueSize)

	g.Go(func() error {
		<-gctx.Done()
		// Unblocks ReadMessage.
		_ = ws.SetReadDeadline(time.Now())
		return nil
	})
	g.Go(func() error {
		defer close(audio)
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway, gorilla.CloseNoStatusReceived) {
					return errClientClosed
				}
				return errorsx.Wrap(err, errorsx.ReasonTransportSend)
			}
			if kind != gorilla.BinaryMessage || len(data) == 0 {
				continue
			}
			select {
			case audio <- data:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		for chunk := range audio {
			if err := sess.HandleAudio(gctx, chunk); err != nil {
				return err
			}
		}
		return errClientClosed
	})
	return g.Wait()
}

func (s *Server) track(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining.Load() {
		return false
	}
	s.conns[id] = cancel
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		switch {
		case a == "*":
			return true
		case a == "":
			continue
		case strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://"):
			if strings.EqualFold(a, origin) {
				return true
			}
		case strings.EqualFold(a, originHost):
			return true
		}
	}
	return false
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Duration("took", time.Since(start)))
	})
}

var _ transports.Transport = (*Server)(nil)
