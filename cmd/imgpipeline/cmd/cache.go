package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dateapp/imgpipeline/internal/cache"
	"github.com/dateapp/imgpipeline/internal/helpers"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or modify the image cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print L1 occupancy and which L2 backend is active",
	RunE:  runCacheStats,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <url> [url...]",
	Short: "Remove one or more URLs from the cache",
	Args: func(cmd *cobra.Command, args []string) error {
		if cacheInvalidateAll {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runCacheInvalidate,
}

var cacheInvalidateAll bool

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheInvalidateCmd.Flags().BoolVar(&cacheInvalidateAll, "all", false, "Clear the entire cache (both L1 and L2) instead of specific URLs")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := cache.New(cfg, cacheDir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	stats := c.Stats()
	fmt.Printf("L1 entries: %d\n", stats.L1Entries)
	fmt.Printf("L1 bytes:   %s\n", helpers.BytesToSize(uint64(stats.L1Bytes)))
	fmt.Printf("L2 backend: %s\n", stats.L2Backend)
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	c, err := cache.New(cfg, cacheDir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	ctx := context.Background()

	if cacheInvalidateAll {
		if err := c.InvalidateAll(ctx); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		log.Info("cleared L1 and L2 cache")
		return nil
	}

	for _, u := range args {
		if err := c.Invalidate(ctx, u); err != nil {
			log.WithError(err).WithField("url", u).Error("failed to invalidate")
			continue
		}
		log.WithField("url", u).Debug("invalidated")
	}
	return nil
}
