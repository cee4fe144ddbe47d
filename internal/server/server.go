// Package server exposes the mosaic pipeline over HTTP.
//
// Routes:
//
//	GET  /healthz     liveness check
//	GET  /candidates  the loaded candidate catalog as JSON
//	POST /mosaic      build a mosaic from the image in the request body
//
// POST /mosaic accepts the query parameters repeat, blend, size and variant
// ("blend", the default, or "mosaic") and answers with a JPEG. Mosaic builds
// are serialized; each request matches against a fresh copy of the catalog
// so usage counts never carry over between requests.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/tessera/pkg/catalog"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/observability"
	"github.com/matzehuels/tessera/pkg/pipeline"
	"github.com/matzehuels/tessera/pkg/tiles"
)

const (
	// DefaultOutputSize is the mosaic edge length when size is not given.
	// It is smaller than the CLI default to keep responses quick.
	DefaultOutputSize = 1000

	// MaxOutputSize bounds the size parameter.
	MaxOutputSize = 10000

	// DefaultMaxBodyBytes limits uploaded images.
	DefaultMaxBodyBytes = 32 << 20

	// Variants of the returned image.
	VariantBlend  = "blend"
	VariantMosaic = "mosaic"
)

// Options configures a Server.
type Options struct {
	Repeat       int     // Default repeat limit
	BlendFactor  float64 // Default blend factor
	OutputSize   int     // Default output size; 0 means DefaultOutputSize
	MaxBodyBytes int64   // 0 means DefaultMaxBodyBytes
	Logger       *log.Logger
}

// Server serves mosaics built from one processed tile directory.
type Server struct {
	runner  *pipeline.Runner
	store   *tiles.Store
	cat     *catalog.Catalog
	loader  *tiles.Loader
	opts    Options
	logger  *log.Logger
	buildMu sync.Mutex
}

// New loads the catalog of store and returns a server for it.
func New(runner *pipeline.Runner, store *tiles.Store, opts Options) (*Server, error) {
	if runner == nil || store == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "server needs a runner and a tile store")
	}
	cat, err := store.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if opts.OutputSize == 0 {
		opts.OutputSize = DefaultOutputSize
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if err := errors.ValidateNonNegative("repeat", opts.Repeat); err != nil {
		return nil, err
	}
	if opts.OutputSize < 0 || opts.OutputSize > MaxOutputSize {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "output size must be in 1..%d, got %d", MaxOutputSize, opts.OutputSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = runner.Logger
	}
	return &Server{
		runner: runner,
		store:  store,
		cat:    cat,
		loader: runner.Loader(store),
		opts:   opts,
		logger: logger,
	}, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Get("/candidates", s.handleCandidates)
	r.Post("/mosaic", s.handleMosaic)
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("listening", "addr", addr, "candidates", s.cat.Len(), "cell_size", s.store.CellSize())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type candidatesResponse struct {
	CellSize   int                 `json:"cell_size"`
	Count      int                 `json:"count"`
	Candidates []catalog.Candidate `json:"candidates"`
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	cands := s.cat.Candidates()
	writeJSON(w, http.StatusOK, candidatesResponse{
		CellSize:   s.store.CellSize(),
		Count:      len(cands),
		Candidates: cands,
	})
}

type mosaicParams struct {
	repeat  int
	blend   float64
	size    int
	variant string
}

func (s *Server) parseParams(r *http.Request) (mosaicParams, error) {
	p := mosaicParams{
		repeat:  s.opts.Repeat,
		blend:   s.opts.BlendFactor,
		size:    s.opts.OutputSize,
		variant: VariantBlend,
	}
	q := r.URL.Query()
	if v := q.Get("repeat"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.Wrap(errors.ErrCodeInvalidConfig, err, "repeat %q is not an integer", v)
		}
		if err := errors.ValidateNonNegative("repeat", n); err != nil {
			return p, err
		}
		p.repeat = n
	}
	if v := q.Get("blend"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, errors.Wrap(errors.ErrCodeInvalidConfig, err, "blend %q is not a number", v)
		}
		p.blend = f
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.Wrap(errors.ErrCodeInvalidConfig, err, "size %q is not an integer", v)
		}
		if n <= 0 || n > MaxOutputSize {
			return p, errors.New(errors.ErrCodeInvalidConfig, "size must be in 1..%d, got %d", MaxOutputSize, n)
		}
		p.size = n
	}
	if v := q.Get("variant"); v != "" {
		if v != VariantBlend && v != VariantMosaic {
			return p, errors.New(errors.ErrCodeInvalidConfig, "variant must be %q or %q, got %q", VariantBlend, VariantMosaic, v)
		}
		p.variant = v
	}
	return p, nil
}

func (s *Server) handleMosaic(w http.ResponseWriter, r *http.Request) {
	p, err := s.parseParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	img, err := imaging.Decode(body, imaging.AutoOrientation(true))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, errors.Wrap(errors.ErrCodeImageDecode, err, "decode uploaded image"))
		return
	}
	target, err := pipeline.Fit(img, p.size)
	if err != nil {
		writeError(w, err)
		return
	}

	m, err := s.build(r.Context(), target, p)
	if err != nil {
		writeError(w, err)
		return
	}

	out := m.Blend
	if p.variant == VariantMosaic {
		out = m.Mosaic
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Tessera-Cells", strconv.Itoa(len(m.Plan)))
	w.Header().Set("X-Tessera-Blend-Factor", strconv.FormatFloat(m.BlendFactor, 'f', -1, 64))
	w.WriteHeader(http.StatusOK)
	if err := imaging.Encode(w, out, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		s.logger.Warn("write mosaic response", "err", err)
	}
}

func (s *Server) build(ctx context.Context, target image.Image, p mosaicParams) (*pipeline.Mosaic, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.runner.Mosaic(ctx, target, s.cat.Clone(), s.loader, pipeline.MosaicOptions{
		CellSize:    s.store.CellSize(),
		Repeat:      p.repeat,
		BlendFactor: p.blend,
	})
}

// =============================================================================
// Responses
// =============================================================================

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrCodeNoEligibleCandidate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrCodeInvalidInput),
		errors.Is(err, errors.ErrCodeInvalidConfig),
		errors.Is(err, errors.ErrCodeImageDecode),
		errors.Is(err, errors.ErrCodeEmptyImage),
		errors.Is(err, errors.ErrCodeUnreadablePixels):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.RootCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSONError(w, StatusFor(err), string(code), errors.UserMessage(err))
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Middleware
// =============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// observe reports every request to the server hooks and the logger.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		observability.Server().OnRequest(ctx, r.Method, r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		d := time.Since(start)
		observability.Server().OnResponse(ctx, r.Method, route, rec.status, d)
		s.logger.Debug("request", "method", r.Method, "route", route, "status", rec.status, "duration", d)
	})
}
