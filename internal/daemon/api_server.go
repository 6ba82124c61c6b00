package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// broadcastView is the wire shape of one ledger row.
type broadcastView struct {
	RemoteID    string     `json:"remote_id"`
	State       string     `json:"state"`
	Title       string     `json:"title"`
	PlaylistKey string     `json:"playlist_key"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	WentLiveAt  *time.Time `json:"went_live_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	MotionCount int        `json:"motion_count"`
	FailureNote string     `json:"failure_note,omitempty"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(cfg.Paths.APIToken))
		r.Get("/status", srv.handleStatus)
		r.Get("/broadcasts", srv.handleBroadcasts)
	})
	if d.metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.metrics.Handler(srv.updateGauges))
	}

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	states, err := requestedStates(r.URL.Query().Get("state"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parts, err := s.daemon.store.ByState(r.Context(), states...)
	if err != nil {
		s.logger.Error("broadcast listing failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "broadcast listing failed")
		return
	}

	views := make([]broadcastView, 0, len(parts))
	for _, b := range parts {
		views = append(views, viewOf(b))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"broadcasts": views})
}

// requestedStates parses the optional state filter; the default is every
// state still needing supervision.
func requestedStates(raw string) ([]broadcast.State, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []broadcast.State{
			broadcast.StatePending,
			broadcast.StateScheduled,
			broadcast.StateLive,
			broadcast.StateEnded,
		}, nil
	}
	var states []broadcast.State
	for _, part := range strings.Split(raw, ",") {
		state, err := broadcast.ParseState(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func viewOf(b *broadcast.Broadcast) broadcastView {
	view := broadcastView{
		RemoteID:    b.RemoteID,
		State:       string(b.State),
		Title:       b.Title,
		PlaylistKey: b.PlaylistKey,
		WindowStart: b.WindowStart,
		WindowEnd:   b.WindowEnd,
		MotionCount: b.MotionCount,
		FailureNote: b.FailureNote,
	}
	if !b.WentLiveAt.IsZero() {
		t := b.WentLiveAt
		view.WentLiveAt = &t
	}
	if !b.EndedAt.IsZero() {
		t := b.EndedAt
		view.EndedAt = &t
	}
	return view
}

func (s *apiServer) updateGauges() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	summary, err := s.daemon.store.HealthSummary(ctx)
	if err == nil {
		s.daemon.metrics.SetBroadcastCounts(summary)
	}
	horizon, err := s.daemon.store.LatestWindowEnd(ctx)
	if err == nil && !horizon.IsZero() {
		s.daemon.metrics.SetScheduledHorizon(time.Until(horizon).Seconds())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api response encoding failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
