// Package dashboard is the read-only HTTP surface: JSON views of the
// portfolio and journal streams plus a websocket feed of finished cycles.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{Addr: "127.0.0.1:8089"}
}

type Server struct {
	reader  journal.Reader
	state   portfolio.Store
	metrics metrics.Config
	hub     *Hub
	log     *logrus.Entry
}

func NewServer(reader journal.Reader, state portfolio.Store, mcfg metrics.Config, hub *Hub, log *logrus.Entry) *Server {
	return &Server{reader: reader, state: state, metrics: mcfg, hub: hub, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/decisions", s.handleDecisions)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("GET /api/equity", s.handleEquity)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/completed", s.handleCompleted)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("dashboard listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.state.Load(r.Context())
	if errors.Is(err, portfolio.ErrEmpty) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, "state", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		portfolio.State
		FreeBalance string `json:"free_balance"`
		UsedMargin  string `json:"used_margin"`
	}{st, st.FreeBalance().String(), st.UsedMargin().String()})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.reader.ListTrades(r.Context(), q)
	if err != nil {
		s.fail(w, "trades", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.reader.ListDecisions(r.Context(), q)
	if err != nil {
		s.fail(w, "decisions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.reader.ListMessages(r.Context(), q)
	if err != nil {
		s.fail(w, "messages", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.reader.ListEquity(r.Context(), q)
	if err != nil {
		s.fail(w, "equity", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q.Asset, q.CycleID, q.Limit = "", "", 0

	eq, err := s.reader.ListEquity(r.Context(), q)
	if err != nil {
		s.fail(w, "summary", err)
		return
	}
	trades, err := s.reader.ListTrades(r.Context(), q)
	if err != nil {
		s.fail(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.Summarize(eq, trades, s.metrics))
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	trades, err := s.reader.ListTrades(r.Context(), journal.Query{Start: q.Start, End: q.End, Asset: q.Asset})
	if err != nil {
		s.fail(w, "completed", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(metrics.Pair(trades)))
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.log.WithError(err).WithField("view", what).Error("dashboard read failed")
	writeError(w, http.StatusInternalServerError, fmt.Errorf("read %s failed", what))
}

// parseQuery reads start, end (RFC3339), asset, cycle and limit.
func parseQuery(r *http.Request) (journal.Query, error) {
	v := r.URL.Query()
	var q journal.Query
	var err error
	if s := v.Get("start"); s != "" {
		if q.Start, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("start: %w", err)
		}
	}
	if s := v.Get("end"); s != "" {
		if q.End, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("end: %w", err)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("limit: want a non-negative integer, got %q", s)
		}
	}
	q.Asset = v.Get("asset")
	q.CycleID = v.Get("cycle")
	return q, nil
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
