package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tessera/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the tile preparation cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var cf cacheFlags

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached tiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cf.redisAddr != "" {
				rc, err := cache.NewRedisCache(cmd.Context(), cache.RedisOptions{Addr: cf.redisAddr})
				if err != nil {
					return err
				}
				defer rc.Close()
				n, err := rc.Clear(cmd.Context())
				if err != nil {
					return fmt.Errorf("clear redis cache: %w", err)
				}
				printSuccess("Cleared %d cached entries", n)
				printDetail("Redis: %s", cf.redisAddr)
				return nil
			}

			dir, err := cf.localDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			fc, err := cache.NewFileCache(dir)
			if err != nil {
				return err
			}
			n, err := fc.Clear()
			if err != nil {
				return err
			}
			printSuccess("Cleared %d cached entries", n)
			printDetail("Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&cf.redisAddr, "redis-addr", "", "clear the Redis cache at host:port instead of the local one")
	cmd.Flags().StringVar(&cf.dir, "cache-dir", "", "local cache directory (default $XDG_CACHE_HOME/tessera)")
	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(dir)
			return nil
		},
	}
}
