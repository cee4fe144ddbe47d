package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tessera/pkg/grid"
	"github.com/matzehuels/tessera/pkg/pipeline"
)

// buildFlags holds the flag values of the build command.
type buildFlags struct {
	opts   pipeline.Options
	config string
	cache  cacheFlags
	quiet  bool
}

// configKeys maps flag names to the config file keys they override.
var configKeys = map[string]string{
	"input":             "input",
	"rawImageDir":       "raw_image_dir",
	"processedImageDir": "processed_image_dir",
	"output":            "output",
	"exist":             "exist",
	"inputSize":         "input_size",
	"outputSize":        "output_size",
	"repeat":            "repeat",
	"blendFactor":       "blend_factor",
	"workers":           "workers",
	"s3-bucket":         "s3.bucket",
	"s3-endpoint":       "s3.endpoint",
	"s3-region":         "s3.region",
	"s3-prefix":         "s3.prefix",
}

// buildCommand creates the build command, which runs the whole pipeline.
func (c *CLI) buildCommand() *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a photo mosaic from a target image",
		Long: `Build a photo mosaic from a target image.

The raw images are prepared into square tiles first (skip with --exist to
reuse a processed directory). The target is then cropped to a square of
--outputSize pixels, divided into --inputSize cells, and every cell is
replaced by the tile whose average color is closest. Two images are
written: the mosaic itself and a blend of the mosaic with the target.`,
		Example: `  # Prepare tiles and build
  tessera build --input target.jpg --rawImageDir photos/ --processedImageDir tiles/

  # Reuse prepared tiles, use every tile at most three times
  tessera build --input target.jpg --processedImageDir tiles/ --exist --repeat 3

  # Read settings from a file; flags still win
  tessera build --config mosaic.toml --output out/mosaic.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.loadConfig(cmd); err != nil {
				return err
			}
			return c.runBuild(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.opts.Input, "input", "", "target image")
	fs.StringVar(&f.opts.RawImageDir, "rawImageDir", "", "directory of raw source photos")
	fs.StringVar(&f.opts.ProcessedImageDir, "processedImageDir", "", "directory of prepared tiles")
	fs.StringVar(&f.opts.Output, "output", pipeline.DefaultOutput, "mosaic output path; the blend is written next to it")
	fs.BoolVar(&f.opts.Exist, "exist", false, "reuse the prepared tiles instead of preparing raw images")
	fs.IntVar(&f.opts.InputSize, "inputSize", pipeline.DefaultCellSize, "tile and cell edge length in pixels")
	fs.IntVar(&f.opts.OutputSize, "outputSize", pipeline.DefaultOutputSize, "mosaic edge length in pixels")
	fs.IntVar(&f.opts.Repeat, "repeat", pipeline.DefaultRepeat, "maximum uses of each tile (0 = unlimited)")
	fs.Float64Var(&f.opts.BlendFactor, "blendFactor", pipeline.DefaultBlendFactor, "weight of the target in the blend, in (0,1)")
	fs.IntVar(&f.opts.Workers, "workers", 0, "parallel preparation workers (0 = number of CPUs)")
	fs.StringVar(&f.opts.Publish.Bucket, "s3-bucket", "", "upload the outputs to this bucket")
	fs.StringVar(&f.opts.Publish.Endpoint, "s3-endpoint", "", "custom S3 endpoint, e.g. MinIO")
	fs.StringVar(&f.opts.Publish.Region, "s3-region", "", "S3 region")
	fs.StringVar(&f.opts.Publish.Prefix, "s3-prefix", "", "key prefix for uploaded outputs")
	fs.StringVar(&f.config, "config", "", "TOML file with build settings")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "no spinner or progress bar")
	f.cache.register(fs)

	return cmd
}

// loadConfig applies the --config file to every flag the user did not set.
func (f *buildFlags) loadConfig(cmd *cobra.Command) error {
	if f.config == "" {
		return nil
	}
	cfg, err := pipeline.LoadConfig(f.config)
	if err != nil {
		return err
	}
	explicit := explicitKeys(cmd)
	cfg.Apply(&f.opts, explicit)
	f.cache.apply(cfg.Cache, cmd.Flags().Changed)
	return nil
}

// explicitKeys reports, per config key, whether the matching flag was set
// on the command line.
func explicitKeys(cmd *cobra.Command) func(key string) bool {
	changed := make(map[string]bool)
	for flag, key := range configKeys {
		if cmd.Flags().Changed(flag) {
			changed[key] = true
		}
	}
	return func(key string) bool { return changed[key] }
}

func (c *CLI) runBuild(ctx context.Context, f buildFlags) error {
	runner, err := c.newRunner(ctx, f.cache)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts := f.opts
	opts.Logger = c.Logger

	var spinner *Spinner
	var bar *progressBar
	if !f.quiet {
		if !opts.Exist {
			spinner = newSpinner(ctx, os.Stderr, "Preparing tiles...")
			spinner.Start()
			opts.PrepareProgress = func(done, total int) {
				spinner.SetMessage(fmt.Sprintf("Preparing tiles %d/%d", done, total))
			}
		}
		bar = newProgressBar(ctx, "Assigning", os.Stderr)
		opts.Progress = func(p grid.Progress) {
			if spinner != nil {
				spinner.Stop()
			}
			bar.Report(p)
		}
	}

	result, err := runner.Execute(ctx, opts)
	if spinner != nil {
		spinner.Stop()
	}
	if bar != nil {
		bar.Close()
	}
	if err != nil {
		return err
	}

	printSuccess("Mosaic built in %s", result.Stats.TotalTime.Round(time.Millisecond))
	printStats(result.Stats)
	printFile(result.MosaicPath)
	printFile(result.BlendPath)
	for _, uri := range result.URIs {
		printURI(uri)
	}
	return nil
}
