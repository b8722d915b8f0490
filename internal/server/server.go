// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftoolkit/internal/engine"
	"github.com/local/pdftoolkit/internal/filetype"
	"github.com/local/pdftoolkit/internal/history"
	"github.com/local/pdftoolkit/internal/limiter"
	"github.com/local/pdftoolkit/internal/logger"
	"github.com/local/pdftoolkit/internal/metrics"
	"github.com/local/pdftoolkit/internal/pdferr"
	"github.com/local/pdftoolkit/internal/statuscheck"
	"github.com/local/pdftoolkit/internal/storage"
)

// Limits bound what a single request may carry.
type Limits struct {
	MaxUploadBytes int64
	MaxMergeFiles  int
	MaxBatchFiles  int
}

// Dependencies wires the server. Fetcher and Status are optional.
type Dependencies struct {
	Engine   *engine.Engine
	Sink     storage.Sink
	History  history.Store
	Limiter  *limiter.Inflight
	Fetcher  *storage.Fetcher
	Status   *statuscheck.Checker
	Detector *filetype.Detector
	Limits   Limits
}

type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.Limiter == nil {
		deps.Limiter = limiter.New(limiter.Options{})
	}
	if deps.Limits.MaxUploadBytes <= 0 {
		deps.Limits.MaxUploadBytes = 64 << 20
	}
	if deps.Limits.MaxMergeFiles <= 0 {
		deps.Limits.MaxMergeFiles = 10
	}
	if deps.Limits.MaxBatchFiles <= 0 {
		deps.Limits.MaxBatchFiles = 20
	}
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/pdf/upload", s.handleUpload)
	mux.HandleFunc("/api/pdf/merge", s.handleMerge)
	mux.HandleFunc("/api/pdf/split", s.handleSplit)
	mux.HandleFunc("/api/pdf/compress", s.handleCompress)
	mux.HandleFunc("/api/pdf/encrypt", s.handleEncrypt)
	mux.HandleFunc("/api/pdf/image-to-pdf", s.handleImageToPDF)
	mux.HandleFunc("/api/pdf/batch-process", s.handleBatch)
	mux.HandleFunc("/api/pdf/extract-text", s.handleExtractText)
	mux.HandleFunc("/api/pdf/preview", s.handlePreview)
	mux.HandleFunc("/api/pdf/history", s.handleHistory)
	mux.HandleFunc("/outputs/", s.handleDownload)
}

// Handler returns the routed mux wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return withRequestID(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithRequestID(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		zerolog.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a structured body. Context
// cancellation and unclassified errors are reported without their details.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := pdferr.HTTPStatus(err)
	var body errorBody
	body.Error.Kind = string(pdferr.KindOf(err))
	body.Error.Message = pdferr.Message(err)
	if body.Error.Kind == string(pdferr.Internal) {
		body.Error.Message = "internal error"
	}
	if status >= 500 {
		zerolog.Ctx(ctx).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	sum := s.deps.Status.Summary(r.Context())
	status := http.StatusOK
	if !sum.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sum)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.deps.History.List(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, pdferr.Wrap(pdferr.IOFailure, err, "unable to list history"))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/outputs/")
	data, err := s.deps.Sink.Get(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
	log.Debug().Str("file", name).Int("size", len(data)).Msg("artifact downloaded")
}
