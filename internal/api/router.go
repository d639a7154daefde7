// Package api exposes the knowledge base to downstream campaign tools over
// HTTP. It is read-only.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/kb"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// MaxLimit caps the number of records one request can return.
const MaxLimit = 500

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Load           kb.LoadOpts
	// Sectors is the vocabulary served by GET /sectors and used to validate
	// sector parameters. Empty disables validation.
	Sectors []string
}

type handler struct {
	store   store.Store
	opts    Options
	sectors map[string]bool
}

// NewRouter builds the HTTP handler.
func NewRouter(st store.Store, opts Options) http.Handler {
	h := &handler{store: st, opts: opts, sectors: make(map[string]bool, len(opts.Sectors))}
	for _, s := range opts.Sectors {
		h.sectors[s] = true
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Get("/sectors", h.listSectors)
	r.Route("/records", func(r chi.Router) {
		r.Get("/", h.listRecords)
		r.Get("/{id}", h.getRecord)
	})
	r.Post("/topup", h.topUp)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listSectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sectors": h.opts.Sectors})
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := kb.QueryOpts{Sector: strings.TrimSpace(q.Get("sector")), Load: h.opts.Load}

	region, ok := h.parseRegion(w, q.Get("region"))
	if !ok {
		return
	}
	opts.Region = region
	if !h.checkSector(w, opts.Sector, false) {
		return
	}
	if opts.MinConfidence, ok = parseInt(w, q.Get("min_confidence"), "min_confidence", 0, 100); !ok {
		return
	}
	if opts.Limit, ok = parseInt(w, q.Get("limit"), "limit", 0, MaxLimit); !ok {
		return
	}
	if opts.Limit == 0 {
		opts.Limit = store.DefaultListLimit
	}

	recs, err := kb.Query(r.Context(), h.store, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (h *handler) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) topUp(w http.ResponseWriter, r *http.Request) {
	var req kb.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Sector = strings.TrimSpace(req.Sector)
	if !h.checkSector(w, req.Sector, true) {
		return
	}
	if req.Region != "" && !req.Region.Valid() {
		writeError(w, http.StatusBadRequest, "unknown region")
		return
	}
	if req.Need > MaxLimit {
		req.Need = MaxLimit
	}

	recs, err := kb.TopUp(r.Context(), h.store, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (h *handler) parseRegion(w http.ResponseWriter, raw string) (model.Region, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", true
	}
	region := model.Region(raw)
	if !region.Valid() {
		writeError(w, http.StatusBadRequest, "unknown region")
		return "", false
	}
	return region, true
}

func (h *handler) checkSector(w http.ResponseWriter, sector string, required bool) bool {
	if sector == "" {
		if required {
			writeError(w, http.StatusBadRequest, "sector is required")
			return false
		}
		return true
	}
	if len(h.sectors) > 0 && !h.sectors[sector] {
		writeError(w, http.StatusBadRequest, "unknown sector")
		return false
	}
	return true
}

func parseInt(w http.ResponseWriter, raw, name string, lo, hi int) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		writeError(w, http.StatusBadRequest, name+" must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		return 0, false
	}
	return n, true
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
