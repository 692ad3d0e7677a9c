package callback

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
)

// Result is a successful authorization redirect.
type Result struct {
	Code        string
	State       string
	RedirectURI string
}

// Receiver accepts one authorization redirect.
type Receiver interface {
	// Start binds the listener and returns the redirect URI to register.
	Start(ctx context.Context) (string, error)
	// Wait blocks until the redirect arrives, ctx ends, or the timeout passes.
	Wait(ctx context.Context) (*Result, error)
	// Close shuts the listener down. It is safe to call more than once.
	Close() error
}

type outcome struct {
	result *Result
	err    error
}

// Server is the gin-backed Receiver.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	log        *logger.Logger

	mu          sync.Mutex
	redirectURI string
	outcomes    chan outcome
	closed      bool
}

var pages = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><title>Authentication Successful</title></head>
<body><h1>Authentication Successful</h1><p>You can close this window and return to the terminal.</p>
<script>setTimeout(function () { window.close() }, 3000)</script></body></html>`))

func init() {
	template.Must(pages.New("failure").Parse(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><title>Authentication Failed</title></head>
<body><h1>Authentication Failed</h1><p>{{.Error}}</p>{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>Return to the terminal and try again.</p></body></html>`))
}

// NewServer creates a callback server. Nothing is bound until Start.
func NewServer(cfg Config, log *logger.Logger) *Server {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		engine:   gin.New(),
		log:      log.WithComponent("callback"),
		outcomes: make(chan outcome, 1),
	}
	s.engine.SetHTMLTemplate(pages)
	s.engine.Use(recovery(s.log), requestLogger(s.log))
	s.engine.GET(cfg.Path, s.handleCallback)
	return s
}

// Start binds the first available port and begins serving.
func (s *Server) Start(ctx context.Context) (string, error) {
	if err := s.cfg.Validate(); err != nil {
		return "", err
	}

	listener, err := s.listen(ctx)
	if err != nil {
		return "", err
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURI := fmt.Sprintf("http://%s%s", net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)), s.cfg.Path)

	s.mu.Lock()
	s.redirectURI = redirectURI
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Callback server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	s.log.Info("Callback server listening", logger.Fields(logger.FieldURL, redirectURI))
	return redirectURI, nil
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	if len(s.cfg.Ports) == 0 {
		l, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.Host, "0"))
		if err != nil {
			return nil, errors.Callback("cannot bind callback listener").WithCause(err)
		}
		return l, nil
	}

	var lastErr error
	for _, port := range s.cfg.Ports {
		l, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)))
		if err == nil {
			return l, nil
		}
		lastErr = err
		s.log.Debug("Callback port unavailable", logger.Fields("port", port, logger.FieldError, err.Error()))
	}
	return nil, errors.Callback(fmt.Sprintf("no callback port available (tried %d)", len(s.cfg.Ports))).
		WithDetail("ports", s.cfg.Ports).
		WithCause(lastErr)
}

// RedirectURI returns the URI produced by Start.
func (s *Server) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectURI
}

func (s *Server) handleCallback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		desc := c.Query("error_description")
		c.HTML(http.StatusBadRequest, "failure", gin.H{"Error": e, "Description": desc})
		err := errors.Callback(fmt.Sprintf("authorization failed: %s", e)).
			WithDetail("error", e).
			WithDetail("error_description", desc)
		s.deliver(outcome{err: err})
		return
	}

	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		c.HTML(http.StatusBadRequest, "failure", gin.H{"Error": "Missing code or state parameter"})
		s.deliver(outcome{err: errors.Callback("authorization callback is missing code or state")})
		return
	}

	c.HTML(http.StatusOK, "success", nil)
	s.deliver(outcome{result: &Result{Code: code, State: state, RedirectURI: s.RedirectURI()}})
}

// deliver keeps the first outcome; later redirects are ignored.
func (s *Server) deliver(o outcome) {
	select {
	case s.outcomes <- o:
	default:
		s.log.Warn("Ignoring repeated callback")
	}
}

// Wait blocks for the redirect.
func (s *Server) Wait(ctx context.Context) (*Result, error) {
	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case o := <-s.outcomes:
		if o.err != nil {
			return nil, o.err
		}
		s.log.Debug("Authorization code received", logger.Fields(logger.FieldState, o.result.State))
		return o.result, nil
	case <-ctx.Done():
		return nil, errors.Callback("stopped waiting for the authorization callback").WithCause(ctx.Err())
	case <-timer.C:
		return nil, errors.Callback(fmt.Sprintf("authorization callback timed out after %s", s.cfg.Timeout)).
			WithDetail("timeout", true)
	}
}

// Close gracefully shuts the server down with a 5-second deadline.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.httpServer
	if s.closed || srv == nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("callback server shutdown error: %w", err)
	}
	s.log.Debug("Callback server shut down")
	return nil
}

// compile-time check
var _ Receiver = (*Server)(nil)
