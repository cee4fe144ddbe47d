package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tessera/internal/server"
	"github.com/matzehuels/tessera/pkg/pipeline"
	"github.com/matzehuels/tessera/pkg/tiles"
)

// serveFlags holds the flag values of the serve command.
type serveFlags struct {
	addr  string
	dir   string
	opts  server.Options
	cache cacheFlags
}

// serveCommand creates the serve command, which exposes mosaic building
// over HTTP for one processed tile directory.
func (c *CLI) serveCommand() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve mosaics over HTTP",
		Long: `Serve mosaics over HTTP.

The tiles in --processedImageDir are loaded once. POST an image to /mosaic
to receive the blended mosaic as JPEG; GET /candidates lists the tiles.`,
		Example: `  tessera serve --processedImageDir tiles/ --addr :8080
  curl --data-binary @target.jpg 'localhost:8080/mosaic?repeat=2&size=2000' -o mosaic.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.addr, "addr", defaultAddr, "listen address")
	fs.StringVar(&f.dir, "processedImageDir", "", "directory of prepared tiles")
	fs.IntVar(&f.opts.Repeat, "repeat", pipeline.DefaultRepeat, "default maximum uses of each tile (0 = unlimited)")
	fs.Float64Var(&f.opts.BlendFactor, "blendFactor", pipeline.DefaultBlendFactor, "default blend factor")
	fs.IntVar(&f.opts.OutputSize, "outputSize", server.DefaultOutputSize, "default mosaic edge length in pixels")
	fs.Int64Var(&f.opts.MaxBodyBytes, "max-body", server.DefaultMaxBodyBytes, "largest accepted upload in bytes")
	f.cache.register(fs)
	_ = cmd.MarkFlagRequired("processedImageDir")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, f serveFlags) error {
	runner, err := c.newRunner(ctx, f.cache)
	if err != nil {
		return err
	}
	defer runner.Close()

	store, err := tiles.Open(f.dir, c.Logger)
	if err != nil {
		return err
	}
	f.opts.Logger = c.Logger
	srv, err := server.New(runner, store, f.opts)
	if err != nil {
		return err
	}

	printInfo("Serving %d tiles from %s on %s", store.Len(), store.Dir(), f.addr)
	err = srv.ListenAndServe(ctx, f.addr)
	if errors.Is(err, context.Canceled) {
		printSuccess("Server stopped")
		return nil
	}
	return err
}
