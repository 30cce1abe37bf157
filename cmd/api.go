package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/monitoring"
	"github.com/sells-group/topic-leads/internal/pipeline"
	"github.com/sells-group/topic-leads/internal/store"
)

// errRunActive is returned when a run is triggered while another is in progress.
var errRunActive = eris.New("serve: a run is already in progress")

// runner executes one aggregation pass.
type runner interface {
	Run(ctx context.Context, ro pipeline.RunOptions) (*model.RunResult, error)
}

// catalog lists sources for the API.
type catalog interface {
	ListSources(minTier model.Tier) []model.SourceDescriptor
}

// runManager starts at most one run at a time in the background.
type runManager struct {
	ctx    context.Context
	runner runner
	store  store.Store

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

func newRunManager(ctx context.Context, r runner, st store.Store) *runManager {
	return &runManager{ctx: ctx, runner: r, store: st}
}

// Trigger records a queued run and starts it in the background. It returns
// errRunActive when a run is already in progress.
func (m *runManager) Trigger(minTier model.Tier) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != "" {
		return "", errRunActive
	}

	run, err := m.store.CreateRun(m.ctx)
	if err != nil {
		return "", eris.Wrap(err, "serve: create run")
	}
	m.active = run.ID

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.clear()

		result, err := m.runner.Run(m.ctx, pipeline.RunOptions{RunID: run.ID, MinTier: minTier})
		if err != nil {
			zap.L().Error("serve: run failed", zap.String("run_id", run.ID), zap.Error(err))
			return
		}
		zap.L().Info("serve: run finished",
			zap.String("run_id", run.ID),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("candidates", len(result.Candidates)),
		)
	}()
	return run.ID, nil
}

// Active returns the id of the run in progress, or "".
func (m *runManager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Wait blocks until the background run, if any, returns.
func (m *runManager) Wait() {
	m.wg.Wait()
}

func (m *runManager) clear() {
	m.mu.Lock()
	m.active = ""
	m.mu.Unlock()
}

// buildRouter wires the HTTP API.
func buildRouter(runs *runManager, st store.Store, cat catalog, collector *monitoring.Collector, allowedOrigins []string, lookbackHours int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/sources", func(w http.ResponseWriter, req *http.Request) {
		tier, err := parseTierParam(req.URL.Query().Get("min_tier"), model.TierLow)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cat.ListSources(tier))
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				MinTier string `json:"min_tier"`
			}
			if req.ContentLength != 0 {
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeError(w, http.StatusBadRequest, "invalid request body")
					return
				}
			}
			var tier model.Tier
			if body.MinTier != "" {
				t, err := model.ParseTier(body.MinTier)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				tier = t
			}

			id, err := runs.Trigger(tier)
			if errors.Is(err, errRunActive) {
				writeJSON(w, http.StatusConflict, map[string]string{
					"error":  err.Error(),
					"run_id": runs.Active(),
				})
				return
			}
			if err != nil {
				zap.L().Error("serve: trigger run", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "could not start run")
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"run_id": id,
			})
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
			if v := q.Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid limit")
					return
				}
				filter.Limit = n
			}
			if v := q.Get("offset"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid offset")
					return
				}
				filter.Offset = n
			}
			if v := q.Get("since"); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid since")
					return
				}
				filter.Since = time.Now().Add(-d)
			}

			list, err := st.ListRuns(req.Context(), filter)
			if err != nil {
				zap.L().Error("serve: list runs", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "could not list runs")
				return
			}
			if list == nil {
				list = []model.Run{}
			}
			writeJSON(w, http.StatusOK, list)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			if err != nil {
				zap.L().Error("serve: get run", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "could not load run")
				return
			}
			writeJSON(w, http.StatusOK, run)
		})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		hours := lookbackHours
		if v := req.URL.Query().Get("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid hours")
				return
			}
			hours = n
		}
		snap, err := collector.Collect(req.Context(), hours)
		if err != nil {
			zap.L().Error("serve: collect stats", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not collect stats")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

func parseTierParam(v string, def model.Tier) (model.Tier, error) {
	if v == "" {
		return def, nil
	}
	return model.ParseTier(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
