// Package cli implements the tessera command-line interface.
//
// This package provides commands for preparing tile libraries, building
// mosaics, inspecting the candidate catalog, serving mosaics over HTTP, and
// managing the preparation cache. The CLI is built using cobra and supports
// verbose logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - build: Prepare tiles (unless --exist) and build the mosaic
//   - prepare: Turn raw photos into a processed tile directory
//   - catalog: List the candidates of a processed tile directory
//   - serve: Serve mosaics over HTTP
//   - cache: Manage the preparation cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// elapsed returns the time since start, rounded to the millisecond.
func (p *progress) elapsed() time.Duration {
	return time.Since(p.start).Round(time.Millisecond)
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Prepared 42 tiles (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, p.elapsed())
}

// ctxKey is the type for context keys used in this package.
type ctxKey int

// loggerKey is the context key for storing a logger.
const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx.
// If no logger is attached, it returns log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// =============================================================================
// Observability
// =============================================================================

// logHooks writes pipeline, cache and server events to a logger at debug
// level.
type logHooks struct {
	logger *log.Logger
}

func newLogHooks(l *log.Logger) *logHooks {
	return &logHooks{logger: l.WithPrefix("hooks")}
}

func (h *logHooks) OnPrepareStart(_ context.Context, sources int) {
	h.logger.Debug("prepare started", "sources", sources)
}

func (h *logHooks) OnPrepareComplete(_ context.Context, tiles int, d time.Duration, err error) {
	h.logger.Debug("prepare finished", "tiles", tiles, "duration", d, "err", err)
}

func (h *logHooks) OnAssignStart(_ context.Context, cells, candidates int) {
	h.logger.Debug("assign started", "cells", cells, "candidates", candidates)
}

func (h *logHooks) OnAssignComplete(_ context.Context, cells int, d time.Duration, err error) {
	h.logger.Debug("assign finished", "cells", cells, "duration", d, "err", err)
}

func (h *logHooks) OnRenderStart(_ context.Context, cells int) {
	h.logger.Debug("render started", "cells", cells)
}

func (h *logHooks) OnRenderComplete(_ context.Context, cells int, d time.Duration, err error) {
	h.logger.Debug("render finished", "cells", cells, "duration", d, "err", err)
}

func (h *logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *logHooks) OnRequest(_ context.Context, method, route string) {
	h.logger.Debug("request", "method", method, "path", route)
}

func (h *logHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "route", route, "status", status, "duration", d)
}
