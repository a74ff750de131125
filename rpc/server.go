package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendcore/core"
	"lendcore/core/events"
	"lendcore/crypto"
	"lendcore/services/journal"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Config tunes the HTTP surface.
type Config struct {
	RateLimit RateLimit
	Auth      AuthConfig
	// PinSubject requires the token subject to equal the batch signer.
	PinSubject bool
}

// JournalReader serves the persisted event history.
type JournalReader interface {
	Query(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// Server exposes the node over HTTP.
type Server struct {
	node    *core.Node
	stream  *events.Broadcaster
	journal JournalReader
	logger  *slog.Logger
	cfg     Config
	limiter *RateLimiter
	auth    *Authenticator
}

// NewServer wires handlers for node. stream may be nil, which disables the
// event websocket.
func NewServer(node *core.Node, stream *events.Broadcaster, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		stream:  stream,
		logger:  logger,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
		auth:    NewAuthenticator(cfg.Auth),
	}
}

// SetJournal enables the journal route.
func (s *Server) SetJournal(j JournalReader) { s.journal = j }

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)
		v1.With(accessLog(s.logger, "submit"), s.auth.Middleware(ScopeSubmit)).Post("/tx", s.handleSubmit)
		v1.With(accessLog(s.logger, "slot")).Get("/slot", s.handleSlot)
		v1.With(accessLog(s.logger, "market")).Get("/markets/{address}", s.handleMarket)
		v1.With(accessLog(s.logger, "reserves")).Get("/reserves", s.handleReserves)
		v1.With(accessLog(s.logger, "reserve")).Get("/reserves/{address}", s.handleReserve)
		v1.With(accessLog(s.logger, "obligation")).Get("/obligations/{address}", s.handleObligation)
		v1.With(accessLog(s.logger, "feed")).Get("/feeds/{address}", s.handleFeed)
		v1.With(accessLog(s.logger, "balance")).Get("/balances/{mint}/{owner}", s.handleBalance)
		v1.With(accessLog(s.logger, "nonce")).Get("/nonces/{address}", s.handleNonce)
		v1.With(accessLog(s.logger, "journal")).Get("/journal", s.handleJournal)
		v1.Get("/events/ws", s.handleEventsWS)
	})
	return otelhttp.NewHandler(r, "lendd.rpc")
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "failed to read request body", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large", nil)
		return
	}
	var env core.Envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, codeParseError, "invalid envelope", err.Error())
		return
	}
	if s.cfg.PinSubject && s.cfg.Auth.Enabled {
		if sub := SubjectFrom(r.Context()); sub != env.Signer.String() {
			writeError(w, http.StatusForbidden, codeForbidden, "token subject does not match signer", nil)
			return
		}
	}
	receipt, err := s.node.Execute(r.Context(), &env)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) (crypto.Address, bool) {
	raw := chi.URLParam(r, param)
	addr, err := crypto.DecodeAddress(raw)
	if err != nil || addr.IsZero() {
		writeError(w, http.StatusBadRequest, codeInvalidParams, fmt.Sprintf("invalid %s", param), raw)
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) handleSlot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"slot": s.node.Slot()})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	market, err := s.node.Market(addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(market))
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	reserve, err := s.node.Reserve(addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := newReserveView(reserve)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReserves(w http.ResponseWriter, _ *http.Request) {
	reserves, err := s.node.Reserves()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]ReserveView, 0, len(reserves))
	for _, reserve := range reserves {
		view, err := newReserveView(reserve)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleObligation(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	obligation, err := s.node.Obligation(addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newObligationView(obligation))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	feed, err := s.node.Feed(addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathAddress(w, r, "mint")
	if !ok {
		return
	}
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	balance, err := s.node.Balance(mint, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceView{Mint: mint, Owner: owner, Balance: balance})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceView{Address: addr, Nonce: nonce, Slot: s.node.Slot()})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "journal disabled", nil)
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{Type: q.Get("type")}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid after", raw)
			return
		}
		filter.AfterSeq = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidParams, "invalid limit", raw)
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal query failed", slog.String("request_id", RequestIDFrom(r.Context())), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, codeServerError, "journal query failed", nil)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
