package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tessera/pkg/pipeline"
)

// prepareCommand creates the prepare command, which only runs the tile
// preparation stage.
func (c *CLI) prepareCommand() *cobra.Command {
	var (
		opts  pipeline.Options
		cf    cacheFlags
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Prepare raw photos as mosaic tiles",
		Long: `Prepare raw photos as mosaic tiles.

Every image in --rawImageDir is cropped to a centered square, resized to
--inputSize pixels and written to --processedImageDir together with a
manifest of average colors. Unchanged photos are served from the cache.`,
		Example: `  tessera prepare --rawImageDir photos/ --processedImageDir tiles/ --inputSize 64`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPrepare(cmd.Context(), opts, cf, quiet)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.RawImageDir, "rawImageDir", "", "directory of raw source photos")
	fs.StringVar(&opts.ProcessedImageDir, "processedImageDir", "", "directory to write prepared tiles to")
	fs.IntVar(&opts.InputSize, "inputSize", pipeline.DefaultCellSize, "tile edge length in pixels")
	fs.IntVar(&opts.Workers, "workers", 0, "parallel workers (0 = number of CPUs)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "no spinner")
	cf.register(fs)
	_ = cmd.MarkFlagRequired("rawImageDir")
	_ = cmd.MarkFlagRequired("processedImageDir")

	return cmd
}

func (c *CLI) runPrepare(ctx context.Context, opts pipeline.Options, cf cacheFlags, quiet bool) error {
	runner, err := c.newRunner(ctx, cf)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts.Logger = c.Logger
	prog := newProgress(c.Logger)
	var spinner *Spinner
	if !quiet {
		spinner = newSpinner(ctx, os.Stderr, "Preparing tiles...")
		spinner.Start()
		opts.PrepareProgress = func(done, total int) {
			spinner.SetMessage(fmt.Sprintf("Preparing tiles %d/%d", done, total))
		}
	}

	res, err := runner.Prepare(ctx, opts)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	if quiet {
		prog.done(fmt.Sprintf("Prepared %d tiles", res.Sources))
		return nil
	}
	printSuccess("Prepared %d tiles in %s", res.Sources, res.Duration.Round(time.Millisecond))
	printKeyValue("Cell size", fmt.Sprintf("%dpx", opts.InputSize))
	printKeyValue("Cached", fmt.Sprintf("%d of %d", res.CacheHits, res.Sources))
	printFile(opts.ProcessedImageDir)
	printNextStep("Build a mosaic", fmt.Sprintf("%s build --exist --processedImageDir %s --input <image>", appName, opts.ProcessedImageDir))
	return nil
}
