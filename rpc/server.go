package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xlend/core/events"
	"xlend/native/lending"
)

const (
	maxRequestBytes     = 1 << 20 // 1 MiB
	defaultEventsLimit  = 100
	maxEventsLimit      = 1000
	shutdownGracePeriod = 10 * time.Second
)

// Options tunes the HTTP surface.
type Options struct {
	Logger *slog.Logger
	// RateLimit is the sustained per-client request rate; zero disables it.
	RateLimit     float64
	RateBurst     int
	TimestampSkew time.Duration
	NonceCapacity int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ExposeMetrics bool
	Now           func() time.Time
}

// Server exposes the lending engine over JSON/HTTP.
type Server struct {
	engine  *lending.Engine
	events  *events.Log
	logger  *slog.Logger
	auth    *verifier
	limiter *RateLimiter
	opts    Options
	router  chi.Router
}

// NewServer wires the routes for engine. log may be nil, in which case the
// events endpoint returns an empty page.
func NewServer(engine *lending.Engine, log *events.Log, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		events:  log,
		logger:  opts.Logger,
		auth:    newVerifier(opts.TimestampSkew, opts.NonceCapacity, opts.Now),
		limiter: NewRateLimiter(opts.RateLimit, opts.RateBurst),
		opts:    opts,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe(s.logger))
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.opts.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deposit", s.handleDeposit)
		r.Post("/withdraw", s.handleWithdraw)

		r.Post("/orders", s.handlePlaceOrder)
		r.Get("/orders/{id}", s.handleGetOrder)
		r.Post("/orders/{id}/cancel", s.handleCancelOrder)
		r.Post("/orders/{id}/close", s.handleCloseOrder)

		r.Post("/attestations", s.handleAttest)
		r.Post("/attestations/clear", s.handleClearAttestation)
		r.Get("/attestations/{chain}/{lock}", s.handleGetAttestation)

		r.Post("/borrow", s.handleBorrow)
		r.Get("/receipts/{id}", s.handleGetReceipt)
		r.Get("/receipts/{id}/quote", s.handleQuote)
		r.Post("/receipts/{id}/repay", s.handleRepay)
		r.Post("/receipts/{id}/liquidate", s.handleLiquidate)

		r.Get("/witnesses", s.handleGetWitnesses)
		r.Get("/config", s.handleGetConfig)
		r.Get("/relay-fees/{chain}", s.handleGetRelayFee)
		r.Get("/accounts/{addr}", s.handleGetAccount)
		r.Get("/events", s.handleEvents)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/config", s.handleSetConfig)
			r.Post("/fees", s.handleSetRelayFee)
			r.Post("/witnesses/add", s.handleAddWitness)
			r.Post("/witnesses/remove", s.handleRemoveWitness)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutdown: %w", err)
		}
		return nil
	}
}

// authenticate decodes a signed envelope from the request body, verifies it
// and decodes its payload into out. It returns the signer's address.
func (s *Server) authenticate(r *http.Request, out any) ([20]byte, error) {
	var env Envelope
	body := io.LimitReader(r.Body, maxRequestBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return [20]byte{}, invalidParam(fmt.Errorf("decode envelope: %w", err))
	}
	signer, err := s.auth.verify(r.Method+" "+r.URL.Path, &env)
	if err != nil {
		return [20]byte{}, err
	}
	setCaller(r.Context(), signer)
	if out != nil && len(env.Payload) > 0 {
		payload := json.NewDecoder(bytes.NewReader(env.Payload))
		payload.DisallowUnknownFields()
		if err := payload.Decode(out); err != nil {
			return [20]byte{}, invalidParam(fmt.Errorf("decode payload: %w", err))
		}
	}
	return signer, nil
}

func uintParam(r *http.Request, name string, bits int) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		return 0, invalidParam(fmt.Errorf("%s: invalid value %q", name, raw))
	}
	return v, nil
}
