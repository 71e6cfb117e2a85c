// Package eventlog is the pipeline's dedicated per-stage event log,
// grounded on the teacher's internal/api.LoggingTransport (same shape:
// a buffered *os.File behind a mutex, a package-level registry so every
// open logger can be flushed and closed together at shutdown). Where
// the teacher dumped full HTTP request/response bodies, this logger
// only ever writes the structured facts spec.md §10 allows at this
// level — URL fingerprint, stage name, outcome, duration — never a raw
// URL or image byte.
package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	activeLoggers []*Logger
	registryMu    sync.Mutex
)

// StageEvent is one record: what stage ran, for which (fingerprinted)
// URL, how it turned out, and how long it took.
type StageEvent struct {
	Time        time.Time
	URLFP       string
	Stage       string
	Outcome     string
	DurationMs  int64
	Detail      string
}

// Logger appends StageEvents to a file, one line per event.
type Logger struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// Open opens path for appending and registers the logger for
// CloseAll. Pass an empty path to get a no-op discard logger.
func Open(path string) (*Logger, error) {
	if path == "" {
		return &Logger{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open stage event log %s: %w", path, err)
	}
	l := &Logger{file: f, writer: bufio.NewWriter(f)}

	registryMu.Lock()
	activeLoggers = append(activeLoggers, l)
	registryMu.Unlock()
	return l, nil
}

// Record appends one event, flushing immediately so a crash doesn't
// lose the most recent line.
func (l *Logger) Record(ev StageEvent) {
	if l == nil || l.writer == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.writer, "%s stage=%s url_fp=%s outcome=%s duration_ms=%d detail=%q\n",
		ev.Time.Format(time.RFC3339), ev.Stage, ev.URLFP, ev.Outcome, ev.DurationMs, ev.Detail)
	if err := l.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "eventlog: flush failed: %v\n", err)
	}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	flushErr := l.writer.Flush()
	closeErr := l.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush stage event log: %w", flushErr)
	}
	return closeErr
}

// CloseAll closes every Logger opened via Open, for use at process
// shutdown.
func CloseAll() {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, l := range activeLoggers {
		if err := l.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "eventlog: close failed: %v\n", err)
		}
	}
	activeLoggers = nil
}
