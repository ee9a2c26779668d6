package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"imagededup/internal/match"
	"imagededup/internal/models"
	"imagededup/internal/processor"
	"imagededup/internal/storage"
	"imagededup/internal/strategy"
)

// Config wires the server to its collaborators
type Config struct {
	Addr        string
	IdleTimeout time.Duration // 0 disables the idle shutdown
	Store       *storage.Storage
	Processor   *processor.Processor
	Source      processor.Source
	Logger      *slog.Logger
}

// Server represents the review API server
type Server struct {
	store       *storage.Storage
	proc        *processor.Processor
	source      processor.Source
	logger      *slog.Logger
	router      chi.Router
	addr        string
	idleTimeout time.Duration
	httpServer  *http.Server

	// Idle timeout management
	mu           sync.Mutex
	lastActivity time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// New creates a new Server
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		store:        cfg.Store,
		proc:         cfg.Processor,
		source:       cfg.Source,
		logger:       logger,
		router:       chi.NewRouter(),
		addr:         cfg.Addr,
		idleTimeout:  cfg.IdleTimeout,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/groups", s.handleGroups)
		r.Post("/groups/{groupID}/keep", s.handleKeep)
		r.Get("/items/{id}/thumbnail", s.handleThumbnail)
		r.Post("/plan", s.handlePlan)
		r.Post("/apply", s.handleApply)
		r.Post("/abort", s.handleAbort)
		r.Post("/exclusions", s.handleExclusions)
	})
}

// Router exposes the HTTP router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// requestLogger logs each request and counts it as activity
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		s.recordActivity()

		defer func() {
			s.logger.Debug("request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start serves until ctx is cancelled, a signal arrives or the idle timeout
// passes
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker()
	}

	go s.handleShutdown(ctx)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleShutdown(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		s.logger.Info("shutting down server")
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down server")
	case <-s.shutdownChan:
		s.logger.Info("idle timeout reached, shutting down server")
	}

	// Stop any apply still running
	if s.proc != nil {
		s.proc.Abort()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) idleTimeoutChecker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()

			if idle >= s.idleTimeout {
				s.shutdownOnce.Do(func() { close(s.shutdownChan) })
				return
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// API Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

type groupsResponse struct {
	ScanID    string                       `json:"scan_id"`
	Algorithm models.Algorithm             `json:"algorithm"`
	Threshold float64                      `json:"threshold"`
	Groups    []*models.DuplicateGroup     `json:"groups"`
	Decisions map[int]models.DedupDecision `json:"decisions"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	scan, groups, ok := s.latestGroups(w)
	if !ok {
		return
	}

	decisions, err := s.store.Decisions(scan.ScanID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, groupsResponse{
		ScanID:    scan.ScanID,
		Algorithm: scan.Algorithm,
		Threshold: scan.Threshold,
		Groups:    groups,
		Decisions: decisions,
	})
}

// latestGroups loads the latest scan with keep-all groups filtered out.
// Group IDs stay as stored so saved decisions still line up.
// It writes the error response itself and reports false on failure.
func (s *Server) latestGroups(w http.ResponseWriter) (*models.ScanResult, []*models.DuplicateGroup, bool) {
	scan, err := s.store.LatestScan()
	if errors.Is(err, storage.ErrNoScan) {
		httpError(w, http.StatusNotFound, "no scan recorded yet")
		return nil, nil, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}

	exclusions, err := s.store.Exclusions()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}

	groups := match.DropExcluded(scan.Groups, exclusions)
	if groups == nil {
		groups = []*models.DuplicateGroup{}
	}
	return scan, groups, true
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		httpError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, err := s.proc.Thumbnail(r.Context(), id)
	if errors.Is(err, processor.ErrNoPayload) && s.source != nil {
		// Not seen by this process, read it from the source
		data, err = s.source.FetchPayload(r.Context(), models.Item{ID: id})
	}
	if err != nil || len(data) == 0 {
		s.logger.Debug("thumbnail unavailable", "item", id, "error", err)
		httpError(w, http.StatusNotFound, fmt.Sprintf("no payload for %s", id))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	strat, err := strategy.Parse(req.Strategy)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	scan, groups, ok := s.latestGroups(w)
	if !ok {
		return
	}

	decisions, err := s.proc.GenerateDecisions(r.Context(), groups, strat)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.SaveDecisions(scan.ScanID, groups, decisions); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byGroup := make(map[int]models.DedupDecision, len(groups))
	for i, g := range groups {
		byGroup[g.ID] = decisions[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id":   scan.ScanID,
		"strategy":  strat,
		"decisions": byGroup,
	})
}

func (s *Server) handleKeep(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.Atoi(chi.URLParam(r, "groupID"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	var req struct {
		Item string `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	scan, groups, ok := s.latestGroups(w)
	if !ok {
		return
	}

	group := findGroup(groups, groupID)
	if group == nil {
		httpError(w, http.StatusNotFound, fmt.Sprintf("group %d not found", groupID))
		return
	}

	decision, err := strategy.KeepItem(group, req.Item)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveDecision(scan.ScanID, groupID, decision); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type applyRequest struct {
	Action    string                 `json:"action"`
	Label     string                 `json:"label,omitempty"`
	Target    string                 `json:"target,omitempty"`
	Decisions []models.DedupDecision `json:"decisions,omitempty"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	kind, err := processor.ParseAction(req.Action)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	decisions := req.Decisions
	if len(decisions) == 0 {
		// Fall back to the plan saved for the latest scan
		scan, groups, ok := s.latestGroups(w)
		if !ok {
			return
		}
		stored, err := s.store.Decisions(scan.ScanID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, g := range groups {
			if d, ok := stored[g.ID]; ok {
				decisions = append(decisions, d)
			}
		}
	}

	result, err := s.proc.Apply(r.Context(), decisions, processor.Action{Kind: kind, Label: req.Label, Target: req.Target}, nil)
	if errors.Is(err, processor.ErrBusy) {
		httpError(w, http.StatusConflict, "another scan or apply is in progress")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Moved and deleted items are gone from the scanned tree
	for _, id := range result.GoneIDs() {
		if err := s.store.DeleteItem(id); err != nil {
			s.logger.Warn("failed to forget item", "item", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.proc.Abort()
	writeJSON(w, http.StatusAccepted, map[string]any{"aborted": true})
}

// handleExclusions stores a keep-all set. Either explicit items or the
// group_id of a group in the latest scan may be given.
func (s *Server) handleExclusions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID int      `json:"group_id,omitempty"`
		Items   []string `json:"items,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.GroupID != 0 {
		scan, groups, ok := s.latestGroups(w)
		if !ok {
			return
		}
		group := findGroup(groups, req.GroupID)
		if group == nil {
			httpError(w, http.StatusNotFound, fmt.Sprintf("group %d not found", req.GroupID))
			return
		}
		req.Items = group.Items
		if err := s.store.SaveDecision(scan.ScanID, group.ID, strategy.MarkKeepAll(group)); err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := s.store.AddExclusion(req.Items); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": req.Items})
}

func findGroup(groups []*models.DuplicateGroup, id int) *models.DuplicateGroup {
	for _, g := range groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
