// Package cmd implements the imgpipeline CLI, the same cobra+viper
// layering the teacher's cmd/civitai-downloader/cmd uses: a root command
// loads configuration in PersistentPreRunE, subcommands read the result
// from a package-level variable.
package cmd

import (
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dateapp/imgpipeline/internal/config"
	"github.com/dateapp/imgpipeline/internal/metrics"
)

var (
	cfgFile      string
	logLevel     string
	logFormat    string
	metricsAddr  string
	cacheDir     string

	cfg config.PipelineConfig
)

var rootCmd = &cobra.Command{
	Use:               "imgpipeline",
	Short:             "Download, validate, score, and cache the best images from a set of URLs",
	PersistentPreRunE: setup,
}

// Execute runs the CLI; it is the sole entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "imgpipeline: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a TOML config file (defaults baked in if omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics at this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "imgpipeline-cache", "Directory for the local L2 cache store when no L2 URL is configured")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(cacheCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	initLogging()

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg = loaded

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.WithField("addr", metricsAddr).Info("serving Prometheus metrics")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}
	return nil
}

func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if logFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
