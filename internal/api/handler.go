// Package api serves knowledge lookups, unit annotation and corpus
// introspection over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/cache"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/middleware"
)

const maxUnitBytes = 1 << 20

// Resolver produces a lookup result and reports whether it was cached.
type Resolver interface {
	Resolve(ctx context.Context, text string, topN int) (engine.Result, bool, error)
}

// Tracker receives one analytics event per lookup.
type Tracker interface {
	Track(event analytics.LookupEvent)
}

type engineResolver struct{ eng *engine.Engine }

func (r engineResolver) Resolve(_ context.Context, text string, topN int) (engine.Result, bool, error) {
	return r.eng.Resolve(text, topN), false, nil
}

type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type LookupResponse struct {
	Query    string  `json:"query"`
	Found    bool    `json:"found"`
	Context  string  `json:"context"`
	Matches  []Match `json:"matches"`
	CacheHit bool    `json:"cacheHit"`
	TookMs   float64 `json:"tookMs"`
}

type DocumentView struct {
	ID       string   `json:"id"`
	Keywords []string `json:"keywords"`
	Text     string   `json:"text,omitempty"`
}

type Handler struct {
	engine   *engine.Engine
	resolver Resolver
	cache    *cache.LookupCache
	injector *pipeline.Injector
	tracker  Tracker
	logger   *slog.Logger
}

// New builds the handler. lookupCache and tracker may be nil; without a
// cache every lookup goes straight to the engine.
func New(eng *engine.Engine, lookupCache *cache.LookupCache, injector *pipeline.Injector, tracker Tracker) *Handler {
	h := &Handler{
		engine:   eng,
		resolver: engineResolver{eng: eng},
		cache:    lookupCache,
		injector: injector,
		tracker:  tracker,
		logger:   slog.Default().With("component", "api-handler"),
	}
	if lookupCache != nil {
		h.resolver = lookupCache
	}
	return h
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/lookup", h.Lookup)
	mux.HandleFunc("POST /api/v1/annotate", h.Annotate)
	mux.HandleFunc("GET /api/v1/documents", h.Documents)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	topN, err := h.parseTopN(r.URL.Query().Get("top_n"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, cacheHit, err := h.resolver.Resolve(ctx, query, topN)
	if err != nil {
		log.Error("lookup failed", "query", query, "error", err)
		h.writeError(w, fmt.Errorf("%w: lookup failed", apperrors.ErrInternal))
		return
	}
	took := time.Since(start)

	resp := LookupResponse{
		Query:    query,
		Found:    res.Found,
		Context:  res.Context,
		Matches:  make([]Match, 0, len(res.Matches)),
		CacheHit: cacheHit,
		TookMs:   float64(took.Microseconds()) / 1000,
	}
	ids := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		resp.Matches = append(resp.Matches, Match{ID: m.DocID, Score: m.Score})
		ids = append(ids, m.DocID)
	}

	log.Info("lookup completed",
		"query", query,
		"found", res.Found,
		"matches", len(ids),
		"cache_hit", cacheHit,
		"latency_us", took.Microseconds(),
	)
	h.track(r, analytics.LookupEvent{
		Query:     query,
		Found:     res.Found,
		Matches:   ids,
		LatencyUs: took.Microseconds(),
		CacheHit:  cacheHit,
	})
	h.writeJSON(w, http.StatusOK, resp)
}

// Annotate runs one unit through the injection stage and returns what
// would be forwarded downstream.
func (h *Handler) Annotate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var unit pipeline.Unit
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUnitBytes))
	if err := dec.Decode(&unit); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid unit: %v", err))
		return
	}
	if err := unit.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	ann := h.injector.Annotate(r.Context(), unit)
	if text, ok := unit.TextPayload(); ok {
		h.track(r, analytics.LookupEvent{
			Query:     text,
			Found:     ann.Found,
			Matches:   ann.Matches,
			LatencyUs: time.Since(start).Microseconds(),
			Session:   unit.Session,
		})
	}
	h.writeJSON(w, http.StatusOK, ann.Unit)
}

// Documents lists the corpus in index order. Text is included with
// ?text=true.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	withText := r.URL.Query().Get("text") == "true"
	docs := h.engine.Index().Documents()
	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		v := DocumentView{ID: d.ID, Keywords: d.Keywords}
		if withText {
			v.Text = d.Text
		}
		views = append(views, v)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(views),
		"fingerprint": h.engine.Index().Fingerprint(),
		"documents":   views,
	})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, d := range h.engine.Index().Documents() {
		if d.ID == id {
			h.writeJSON(w, http.StatusOK, DocumentView{ID: d.ID, Keywords: d.Keywords, Text: d.Text})
			return
		}
	}
	h.writeError(w, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "document %q not found", id))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, fmt.Errorf("%w: cache invalidation failed", apperrors.ErrUnavailable))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) parseTopN(raw string) (int, error) {
	if raw == "" {
		return h.engine.TopN(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "top_n must be a positive integer")
	}
	if size := h.engine.Index().Len(); n > size {
		n = size
	}
	return n, nil
}

func (h *Handler) track(r *http.Request, event analytics.LookupEvent) {
	if h.tracker == nil {
		return
	}
	event.Type = analytics.EventLookup
	event.Source = analytics.SourceHTTP
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(r)
	h.tracker.Track(event)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Only AppError messages reach the
// client; anything else is reported by its sentinel.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else if status < http.StatusInternalServerError {
		message = err.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
