// Package api provides the HealthMate HTTP server: health checks, the
// per-user record feed read by the dashboard, and the Twilio inbound webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
	"github.com/BTreeMap/HealthMate/internal/twiliowhatsapp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Constants for server configuration
const (
	// DefaultServerAddr is the default listen address
	DefaultServerAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds slow clients
	DefaultReadHeaderTimeout = 10 * time.Second
	// TwilioSignatureHeader carries the webhook HMAC
	TwilioSignatureHeader = "X-Twilio-Signature"
)

// RecordLister reads the finalized records of one user.
type RecordLister interface {
	ListRecords(ctx context.Context, userID string) ([]models.Record, error)
}

// SignatureValidator checks Twilio webhook signatures.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	Webhook          http.HandlerFunc   // Twilio inbound handler; nil disables the route
	Validator        SignatureValidator // nil disables signature checks
	PublicWebhookURL string             // URL Twilio signs; defaults to the request URL
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioWebhook mounts POST /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.Webhook = h }
}

// WithSignatureValidator rejects webhook requests whose X-Twilio-Signature does not verify.
func WithSignatureValidator(v SignatureValidator) Option {
	return func(o *Opts) { o.Validator = v }
}

// WithPublicWebhookURL sets the externally visible webhook URL used for signature checks.
func WithPublicWebhookURL(url string) Option {
	return func(o *Opts) { o.PublicWebhookURL = url }
}

var _ SignatureValidator = (*twiliowhatsapp.SignatureValidator)(nil)

// Server is the HealthMate HTTP API.
type Server struct {
	records RecordLister
	cfg     Opts
	router  chi.Router
	srv     *http.Server
}

// NewServer builds the router. Call Run to start listening.
func NewServer(records RecordLister, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultServerAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{records: records, cfg: cfg}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Get("/records/{userID}", s.recordsHandler)
	if s.cfg.Webhook != nil {
		r.With(s.verifyTwilioSignature).Post("/webhook/twilio", s.cfg.Webhook)
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.cfg.Addr, "twilio_webhook", s.cfg.Webhook != nil)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
