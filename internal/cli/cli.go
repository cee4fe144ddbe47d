// Package cli implements the tessera command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/tessera/pkg/buildinfo"
	"github.com/matzehuels/tessera/pkg/cache"
	"github.com/matzehuels/tessera/pkg/observability"
	"github.com/matzehuels/tessera/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "tessera"

	// defaultAddr is the listen address of the serve command.
	defaultAddr = ":8080"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level. At debug level the pipeline,
// cache and server hooks are routed to the logger as well.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		h := newLogHooks(c.Logger)
		observability.SetPipelineHooks(h)
		observability.SetCacheHooks(h)
		observability.SetServerHooks(h)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Tessera builds photo mosaics",
		Long:          `Tessera rebuilds a target image from a library of photos: every cell of the target is replaced by the photo whose average color matches it best, and the result is blended with the original.`,
		Version:       buildinfo.Read().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.buildCommand())
	root.AddCommand(c.prepareCommand())
	root.AddCommand(c.catalogCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	completePaths(root)

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// cacheFlags selects the cache backend shared by prepare, build and serve.
type cacheFlags struct {
	noCache   bool
	redisAddr string
	dir       string
}

func (f *cacheFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the preparation and tile cache")
	fs.StringVar(&f.redisAddr, "redis-addr", "", "use a shared Redis cache at host:port instead of the local one")
	fs.StringVar(&f.dir, "cache-dir", "", "local cache directory (default $XDG_CACHE_HOME/tessera)")
}

// apply fills unset cache flags from a config file.
func (f *cacheFlags) apply(cfg pipeline.CacheConfig, changed func(string) bool) {
	if cfg.Disabled != nil && !changed("no-cache") {
		f.noCache = *cfg.Disabled
	}
	if cfg.RedisAddr != nil && !changed("redis-addr") {
		f.redisAddr = *cfg.RedisAddr
	}
	if cfg.Dir != nil && !changed("cache-dir") {
		f.dir = *cfg.Dir
	}
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, f cacheFlags) (*pipeline.Runner, error) {
	cache, err := newCache(ctx, f)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cache, nil, c.Logger), nil
}

func newCache(ctx context.Context, f cacheFlags) (cache.Cache, error) {
	switch {
	case f.noCache:
		return cache.NewNullCache(), nil
	case f.redisAddr != "":
		return cache.NewRedisCache(ctx, cache.RedisOptions{Addr: f.redisAddr})
	}
	dir, err := f.localDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// localDir returns --cache-dir or the default cache directory.
func (f *cacheFlags) localDir() (string, error) {
	if f.dir != "" {
		return f.dir, nil
	}
	return cacheDir()
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/tessera/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
