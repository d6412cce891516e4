// Package server exposes the sync trigger and the reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"agrofin/finsync/appcontext"
	"agrofin/finsync/normalize"
	"agrofin/finsync/reports"
	"agrofin/finsync/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrSyncInProgress is returned when a sync is triggered while another run holds the guard.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// SyncRunner performs one sync run.
type SyncRunner interface {
	RunSync(ctx context.Context) syncer.Result
}

// ReportSource serves the dashboard reports.
type ReportSource interface {
	CashFlow(ctx context.Context, year int) (reports.CashFlow, error)
	CategoryBreakdown(ctx context.Context, from, to time.Time) ([]reports.CategoryTotal, error)
	AccountBalances(ctx context.Context) (reports.Balances, error)
	Invalidate()
}

// Server holds the HTTP handlers.
type Server struct {
	syncer  SyncRunner
	reports ReportSource
	running sync.Mutex
	now     func() time.Time
}

// New creates a Server.
func New(s SyncRunner, r ReportSource) *Server {
	return &Server{syncer: s, reports: r, now: time.Now}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			appcontext.LoggerFromContext(req.Context()).WarnContext(req.Context(), "write error", "error", err)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/cash-flow", s.handleCashFlow)
			r.Get("/categories", s.handleCategories)
			r.Get("/accounts", s.handleAccounts)
		})
	})
	return r
}

func (s *Server) handleSync(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	logger := appcontext.LoggerFromContext(ctx)

	if !s.running.TryLock() {
		logger.WarnContext(ctx, "Rejected sync trigger", "error", ErrSyncInProgress)
		writeError(w, http.StatusConflict, ErrSyncInProgress)
		return
	}
	defer s.running.Unlock()

	// A run is never cancelled once started; a dropped client must not abort it.
	result := s.syncer.RunSync(context.WithoutCancel(ctx))
	s.reports.Invalidate()

	logger.InfoContext(ctx, "Sync finished", "status", result.Status, "total_logs", result.TotalLogs)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCashFlow(w http.ResponseWriter, req *http.Request) {
	year := s.now().In(normalize.Zone).Year()
	if raw := req.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 9999 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid year %q", raw))
			return
		}
		year = parsed
	}

	report, err := s.reports.CashFlow(req.Context(), year)
	if err != nil {
		s.reportFailed(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCategories(w http.ResponseWriter, req *http.Request) {
	from, err := parseDate(req, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDate(req, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	totals, err := s.reports.CategoryBreakdown(req.Context(), from, to)
	if errors.Is(err, reports.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.reportFailed(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleAccounts(w http.ResponseWriter, req *http.Request) {
	balances, err := s.reports.AccountBalances(req.Context())
	if err != nil {
		s.reportFailed(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) reportFailed(w http.ResponseWriter, req *http.Request, err error) {
	appcontext.LoggerFromContext(req.Context()).ErrorContext(req.Context(), "Report failed", "path", req.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, errors.New("report unavailable"))
}

func parseDate(req *http.Request, name string) (time.Time, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s parameter", name)
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, normalize.Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q, want YYYY-MM-DD", name, raw)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
