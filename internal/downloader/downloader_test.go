package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dateapp/imgpipeline/internal/config"
	"github.com/dateapp/imgpipeline/internal/models"
)

func testConfig() config.PipelineConfig {
	cfg := config.Default()
	cfg.MaxBytes = 1024
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.RetryMax = 3
	cfg.MaxConcurrentDownloads = 4
	return cfg
}

func TestMain(m *testing.M) {
	// Speed up retry tests: real backoff of 1s/2s would make the suite
	// take several seconds per retryable case.
	backoff = []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}
	m.Run()
}

func TestDownloadSuccess(t *testing.T) {
	body := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d := New(testConfig())
	results := d.Download(context.Background(), []string{srv.URL})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if !r.Success {
		t.Fatalf("expected success, got error: %v", r.Err)
	}
	if string(r.Bytes) != string(body) {
		t.Errorf("body mismatch: got %q", r.Bytes)
	}
	if r.RetryCount != 0 {
		t.Errorf("expected no retries, got %d", r.RetryCount)
	}
}

func TestDownloadRetriesOn5xxThenFails(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hits++
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RetryMax = 3
	d := New(cfg)
	results := d.Download(context.Background(), []string{srv.URL})

	r := results[0]
	if r.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if r.Err.Kind != models.ErrHTTPError {
		t.Errorf("expected HTTP_ERROR, got %s", r.Err.Kind)
	}
	if hits != cfg.RetryMax {
		t.Errorf("expected %d attempts, observed %d", cfg.RetryMax, hits)
	}
}

func TestDownloadNonRetryable4xx(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hits++
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(testConfig())
	results := d.Download(context.Background(), []string{srv.URL})

	r := results[0]
	if r.Success {
		t.Fatal("expected failure on 404")
	}
	if r.Err.Kind != models.ErrHTTPError {
		t.Errorf("expected HTTP_ERROR, got %s", r.Err.Kind)
	}
	if hits != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable status, got %d", hits)
	}
}

func TestDownloadRejectsOversizeViaHeadPreflight(t *testing.T) {
	var gotHit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "999999")
			w.WriteHeader(http.StatusOK)
			return
		}
		gotHit = true
		w.Write(make([]byte, 2000))
	}))
	defer srv.Close()

	d := New(testConfig())
	results := d.Download(context.Background(), []string{srv.URL})

	r := results[0]
	if r.Success {
		t.Fatal("expected failure due to oversize preflight")
	}
	if r.Err.Kind != models.ErrFileTooLarge {
		t.Errorf("expected FILE_TOO_LARGE, got %s", r.Err.Kind)
	}
	if gotHit {
		t.Error("GET should never have been issued after a failing HEAD preflight")
	}
}

func TestDownloadRejectsOversizeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	d := New(testConfig())
	results := d.Download(context.Background(), []string{srv.URL})

	r := results[0]
	if r.Success {
		t.Fatal("expected failure: body exceeds MaxBytes")
	}
	if r.Err.Kind != models.ErrFileTooLarge {
		t.Errorf("expected FILE_TOO_LARGE, got %s", r.Err.Kind)
	}
}

func TestDownloadMultipleURLsPreserveOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Query().Get("id")))
	}))
	defer srv.Close()

	urls := []string{
		srv.URL + "?id=a",
		srv.URL + "?id=b",
		srv.URL + "?id=c",
	}
	d := New(testConfig())
	results := d.Download(context.Background(), urls)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(results[i].Bytes) != want {
			t.Errorf("result[%d] = %q, want %q", i, results[i].Bytes, want)
		}
	}
}
