// Package dashboard exposes the cache, ledger and analytics over a JSON
// HTTP API consumed by the trading dashboard frontend.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/sahilm88/orbit/internal/analytics"
	"github.com/sahilm88/orbit/internal/execution"
	"github.com/sahilm88/orbit/internal/ledger"
	"github.com/sahilm88/orbit/internal/models"
	"github.com/sahilm88/orbit/internal/securities"
)

const defaultStrikeCount = 10

type Server struct {
	router   *chi.Mux
	server   *http.Server
	cache    *securities.Cache
	executor *execution.Executor
	logger   *logrus.Logger
	port     int
	now      func() time.Time
}

type Config struct {
	Port     int
	Cache    *securities.Cache
	Executor *execution.Executor
	Logger   *logrus.Logger
	Now      func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		router:   chi.NewRouter(),
		cache:    cfg.Cache,
		executor: cfg.Executor,
		logger:   cfg.Logger,
		port:     cfg.Port,
		now:      cfg.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)

	s.router.Get("/api/expiry", s.handleExpiry)
	s.router.Get("/api/strikes", s.handleStrikes)
	s.router.Get("/api/resolve", s.handleResolve)
	s.router.Get("/api/cache/status", s.handleCacheStatus)
	s.router.Post("/api/cache/refresh", s.handleCacheRefresh)

	s.router.Post("/api/order", s.handleOrder)
	s.router.Post("/api/exit", s.handleExit)

	s.router.Get("/api/positions", s.handlePositions)
	s.router.Get("/api/trades", s.handleTrades)
	s.router.Get("/api/analytics", s.handleAnalytics)
	s.router.Get("/api/analytics/chart", s.handleChart)

	s.router.Get("/api/config/paper-mode", s.handleGetPaperMode)
	s.router.Post("/api/config/paper-mode", s.handleSetPaperMode)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler tree, used by tests via httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
	})
}

func (s *Server) handleExpiry(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cache.ExpiryInfo())
}

// handleStrikes lists strikes for a horizon. With ?around=<spot>, it
// narrows to count strikes centered on the ATM strike for that spot.
func (s *Server) handleStrikes(w http.ResponseWriter, r *http.Request) {
	horizon := queryHorizon(r)
	if !horizon.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown expiry %q", r.URL.Query().Get("expiry")))
		return
	}

	if around := r.URL.Query().Get("around"); around != "" {
		spot, err := strconv.ParseFloat(around, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid around value %q", around))
			return
		}
		count := defaultStrikeCount
		if v := r.URL.Query().Get("count"); v != "" {
			count, err = strconv.Atoi(v)
			if err != nil || count <= 0 {
				s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid count value %q", v))
				return
			}
		}
		atm := s.cache.ATMStrike(spot)
		s.writeJSON(w, http.StatusOK, map[string]any{
			"expiry":  horizon,
			"atm":     atm,
			"strikes": s.cache.StrikesAround(atm, count, horizon),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"expiry":  horizon,
		"strikes": s.cache.AvailableStrikes(horizon),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strike, err := strconv.Atoi(q.Get("strike"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid strike %q", q.Get("strike")))
		return
	}
	kind := models.OptionKind(q.Get("option_type"))
	if !kind.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown option_type %q", q.Get("option_type")))
		return
	}
	horizon := queryHorizon(r)
	if !horizon.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown expiry %q", q.Get("expiry")))
		return
	}

	id, err := s.cache.Resolve(strike, kind, horizon)
	if err != nil {
		if errors.Is(err, securities.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, map[string]any{
				"error":          err.Error(),
				"nearby_strikes": s.cache.NearbyStrikes(strike, horizon),
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{"security_id": id}
	if contract, err := s.cache.Contract(id); err == nil {
		resp["contract"] = contract
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cache.Status())
}

// handleCacheRefresh kicks off a refresh without holding the request open.
// Concurrent requests coalesce into one feed fetch.
func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.cache.Refresh(); err != nil {
			s.logger.WithError(err).Error("Cache refresh failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req execution.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid order body: %w", err))
		return
	}

	trade, err := s.executor.PlaceOrder(req)
	if err != nil {
		switch {
		case errors.Is(err, securities.ErrNotFound):
			s.writeJSON(w, http.StatusNotFound, map[string]any{
				"error":          err.Error(),
				"nearby_strikes": s.cache.NearbyStrikes(req.Strike, req.Horizon),
			})
		case errors.Is(err, ledger.ErrInvalidTrade):
			s.writeError(w, http.StatusBadRequest, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SecurityID string `json:"security_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid exit body: %w", err))
		return
	}
	if req.SecurityID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("security_id is required"))
		return
	}

	trade, err := s.executor.ExitPosition(req.SecurityID)
	if err != nil {
		if errors.Is(err, ledger.ErrTradeNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledgerFor(r).OpenPositions())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.ledgerFor(r).AllTrades(limit))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	trades := s.ledgerFor(r).Trades()
	s.writeJSON(w, http.StatusOK, analytics.Summarize(trades, s.now()))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	period := analytics.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = analytics.PeriodWeek
	}
	switch period {
	case analytics.PeriodWeek, analytics.PeriodMonth, analytics.PeriodAll:
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown period %q", period))
		return
	}
	trades := s.ledgerFor(r).Trades()
	s.writeJSON(w, http.StatusOK, analytics.PnLSeries(trades, period, s.now()))
}

func (s *Server) handleGetPaperMode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"paper_mode": s.executor.PaperMode()})
}

func (s *Server) handleSetPaperMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaperMode bool `json:"paper_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if err := s.executor.SetPaperMode(req.PaperMode); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.logger.Infof("Paper mode set to %v", req.PaperMode)
	s.writeJSON(w, http.StatusOK, map[string]bool{"paper_mode": s.executor.PaperMode()})
}

// ledgerFor picks the ledger per ?mode=, defaulting to the active mode.
func (s *Server) ledgerFor(r *http.Request) *ledger.Ledger {
	switch r.URL.Query().Get("mode") {
	case string(ledger.ModeLive):
		return s.executor.LedgerFor(ledger.ModeLive)
	case string(ledger.ModePaper):
		return s.executor.LedgerFor(ledger.ModePaper)
	default:
		return s.executor.Ledger()
	}
}

func queryHorizon(r *http.Request) models.Horizon {
	h := models.Horizon(r.URL.Query().Get("expiry"))
	if h == "" {
		return models.HorizonCurrent
	}
	return h
}
