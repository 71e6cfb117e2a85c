package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dateapp/imgpipeline/internal/pipeline"
)

var (
	inputFile string
	noCache   bool
)

var processCmd = &cobra.Command{
	Use:   "process [url...]",
	Short: "Run the image pipeline over a set of URLs and print the selected results as JSON",
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&inputFile, "input", "", "Read URLs, one per line, from this file instead of arguments (use - for stdin)")
	processCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the cache for this run (use_cache=false): fetch and score every URL fresh, and do not populate the cache")
}

func runProcess(cmd *cobra.Command, args []string) error {
	urls := args
	if inputFile != "" {
		fromFile, err := readURLList(inputFile)
		if err != nil {
			return fmt.Errorf("reading --input: %w", err)
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given: pass them as arguments or with --input")
	}

	coord, err := pipeline.New(cfg, cacheDir)
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}
	defer coord.Close()

	result, err := coord.Process(context.Background(), urls, !noCache)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readURLList(path string) ([]string, error) {
	if path == "-" {
		return scanURLs(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanURLs(f)
}

func scanURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
