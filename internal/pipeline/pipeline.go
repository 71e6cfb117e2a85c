// Package pipeline implements C9: the coordinator that drives a batch of
// URLs through validation, download, decode, metadata extraction,
// quality scoring, caching, and selection, producing the pipeline's
// single PipelineResult. I/O-bound downloads and CPU-bound decode/score
// work are deliberately run through separate concurrency primitives —
// downloader.Downloader's semaphore for the former, a fixed worker pool
// here for the latter — the same separation the teacher's download
// command keeps between its HTTP fetch goroutines and on-disk hashing.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dateapp/imgpipeline/internal/cache"
	"github.com/dateapp/imgpipeline/internal/config"
	"github.com/dateapp/imgpipeline/internal/decoder"
	"github.com/dateapp/imgpipeline/internal/downloader"
	"github.com/dateapp/imgpipeline/internal/eventlog"
	"github.com/dateapp/imgpipeline/internal/metadata"
	"github.com/dateapp/imgpipeline/internal/metrics"
	"github.com/dateapp/imgpipeline/internal/models"
	"github.com/dateapp/imgpipeline/internal/normalize"
	"github.com/dateapp/imgpipeline/internal/quality"
	"github.com/dateapp/imgpipeline/internal/selector"
	"github.com/dateapp/imgpipeline/internal/validator"
)

// urlValidator is the C1 gate Coordinator depends on. Satisfied by
// *validator.Validator; narrowed to an interface so tests can substitute
// a fake without standing up real host/extension policy.
type urlValidator interface {
	Validate(rawURL string) bool
}

// imageDownloader is the C2 fetch stage Coordinator depends on. Satisfied
// by *downloader.Downloader.
type imageDownloader interface {
	Download(ctx context.Context, urls []string) []models.DownloadResult
}

// resultCache is the C8 cache Coordinator depends on. Satisfied by
// *cache.Cache.
type resultCache interface {
	GetWithLevel(ctx context.Context, url string) (value []byte, ok bool, level string, err error)
	Set(ctx context.Context, url string, value []byte) error
	Close() error
}

// Coordinator owns every stage's components for one long-lived pipeline
// instance. Build one with New and reuse it across calls to Process.
type Coordinator struct {
	cfg        config.PipelineConfig
	validator  urlValidator
	downloader imageDownloader
	cache      resultCache
	eventlog   *eventlog.Logger
}

// New wires up a Coordinator from configuration. cacheLocalPath is the
// bitcask directory used when cfg.L2URL is empty.
func New(cfg config.PipelineConfig, cacheLocalPath string) (*Coordinator, error) {
	c, err := cache.New(cfg, cacheLocalPath)
	if err != nil {
		return nil, err
	}
	var el *eventlog.Logger
	if cfg.LogStageEvents {
		el, err = eventlog.Open("stage_events.log")
		if err != nil {
			return nil, err
		}
	} else {
		el, _ = eventlog.Open("")
	}

	return &Coordinator{
		cfg:        cfg,
		validator:  validator.New(cfg.AllowHosts, cfg.DenyExts),
		downloader: downloader.New(cfg),
		cache:      c,
		eventlog:   el,
	}, nil
}

// Close releases the coordinator's cache connection and event log.
func (c *Coordinator) Close() error {
	_ = c.eventlog.Close()
	return c.cache.Close()
}

// candidate is the in-flight record for one URL that survived through
// C7, before selection.
type candidate struct {
	url       string
	normImg   models.NormalizedImage
	meta      models.ImageMetadata
	qualityM  models.QualityMetrics
}

// cacheEntry is what Coordinator stores per URL: the final normalized
// image plus the metadata and quality needed to re-run selection
// without redoing any decode/score work on a cache hit.
type cacheEntry struct {
	Image    models.NormalizedImage
	Metadata models.ImageMetadata
	Quality  models.QualityMetrics
}

// Process runs the full pipeline over urls and returns the selected
// top-K images. It never blocks past ctx's cancellation, and it never
// pads the result to reach K — fewer survivors just means a shorter
// result. useCache mirrors the use_cache parameter of the process
// contract: when false, every URL is fetched and scored fresh and
// nothing is read from or written to the cache for this call.
func (c *Coordinator) Process(ctx context.Context, urls []string, useCache bool) (models.PipelineResult, error) {
	start := time.Now()
	result := models.PipelineResult{}

	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		if c.validator.Validate(u) {
			valid = append(valid, u)
		} else {
			result.Errors = append(result.Errors, models.PipelineError{
				URL: u, Kind: models.ErrInvalidURL, Detail: "failed host/scheme/extension policy",
			})
			metrics.StageErrorsTotal.WithLabelValues("validate", string(models.ErrInvalidURL)).Inc()
		}
	}

	candidates, errs := c.fetchAndProcess(ctx, valid, useCache)
	result.Errors = append(result.Errors, errs...)

	selCandidates := make([]selector.Candidate, len(candidates))
	byURL := make(map[string]candidate, len(candidates))
	for i, cd := range candidates {
		selCandidates[i] = selector.Candidate{URL: cd.url, Quality: cd.qualityM, PHash: cd.meta.PHash}
		byURL[cd.url] = cd
	}

	selected := selector.Select(selCandidates, c.cfg.TopK, c.cfg.DedupThreshold, c.cfg.QualityFloor)
	selectedURLs := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		cd := byURL[s.URL]
		result.Images = append(result.Images, cd.normImg)
		result.Metadata = append(result.Metadata, cd.meta)
		result.QualityScores = append(result.QualityScores, cd.qualityM.Overall)
		selectedURLs[s.URL] = struct{}{}
	}

	// Every candidate that made it through download/decode/scoring but
	// was still cut by the quality floor or the diversity pass needs to
	// surface in Errors — an empty Images with a silently dropped URL
	// would leave the caller unable to tell "filtered" from "never seen".
	for _, cd := range candidates {
		if _, ok := selectedURLs[cd.url]; ok {
			continue
		}
		result.Errors = append(result.Errors, models.PipelineError{
			URL: cd.url, Kind: models.ErrQualityTooLow,
			Detail: "did not survive quality-floor or diversity selection",
		})
		metrics.StageErrorsTotal.WithLabelValues("select", string(models.ErrQualityTooLow)).Inc()
	}

	metrics.SelectedImages.Observe(float64(len(result.Images)))
	result.ProcessingTime = time.Since(start)
	metrics.RunDuration.Observe(result.ProcessingTime.Seconds())
	return result, nil
}

// fetchAndProcess resolves each URL to either a candidate or a
// PipelineError, consulting the cache first and otherwise running the
// download-decode-metadata-quality-normalize chain through the CPU
// worker pool. When useCache is false the cache is neither read nor
// written for this call.
func (c *Coordinator) fetchAndProcess(ctx context.Context, urls []string, useCache bool) ([]candidate, []models.PipelineError) {
	toDownload := make([]string, 0, len(urls))
	candidates := make([]candidate, 0, len(urls))
	var errs []models.PipelineError

	for _, u := range urls {
		if !useCache {
			toDownload = append(toDownload, u)
			continue
		}
		raw, ok, level, err := c.cache.GetWithLevel(ctx, u)
		if err == nil && ok {
			if entry, ok := decodeCacheEntry(raw); ok {
				metrics.CacheHitsTotal.WithLabelValues(level, "hit").Inc()
				candidates = append(candidates, candidate{url: u, normImg: entry.Image, meta: entry.Metadata, qualityM: entry.Quality})
				continue
			}
		}
		missLevel := level
		if missLevel == "" {
			missLevel = "l1"
		}
		metrics.CacheHitsTotal.WithLabelValues(missLevel, "miss").Inc()
		toDownload = append(toDownload, u)
	}

	if len(toDownload) == 0 {
		return candidates, errs
	}

	downloads := c.downloader.Download(ctx, toDownload)
	for _, d := range downloads {
		outcome := "success"
		if d.Err != nil {
			outcome = string(d.Err.Kind)
		}
		metrics.DownloadsTotal.WithLabelValues(outcome).Inc()
		c.eventlog.Record(eventlog.StageEvent{
			Time: time.Now(), URLFP: fingerprint(d.URL), Stage: "download",
			Outcome: outcome, DurationMs: d.Duration.Milliseconds(),
		})
		if d.Err != nil {
			errs = append(errs, models.PipelineError{URL: d.URL, Kind: d.Err.Kind, Detail: d.Err.Detail})
		}
	}

	results := c.runCPUPool(ctx, downloads)
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, models.PipelineError{URL: r.url, Kind: r.err.Kind, Detail: r.err.Detail})
			continue
		}
		candidates = append(candidates, r.cand)
		if !useCache {
			continue
		}
		entry := cacheEntry{Image: r.cand.normImg, Metadata: r.cand.meta, Quality: r.cand.qualityM}
		if blob, ok := encodeCacheEntry(entry); ok {
			_ = c.cache.Set(ctx, r.url, blob)
		}
	}
	return candidates, errs
}

type cpuResult struct {
	url  string
	cand candidate
	err  *models.StageError
}

// runCPUPool fans downloaded bytes out across a fixed number of
// goroutines for the CPU-bound decode/metadata/quality/normalize chain,
// bounded independently of the I/O concurrency the downloader already
// applied.
func (c *Coordinator) runCPUPool(ctx context.Context, downloads []models.DownloadResult) []cpuResult {
	workers := c.cfg.CPUWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan models.DownloadResult)
	out := make(chan cpuResult, len(downloads))
	done := make(chan struct{})

	for i := 0; i < workers; i++ {
		go func() {
			for d := range jobs {
				out <- c.processOne(d)
			}
			done <- struct{}{}
		}()
	}

	go func() {
		for _, d := range downloads {
			if d.Err != nil {
				continue
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
			}
		}
		close(jobs)
	}()

	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(out)
	}()

	results := make([]cpuResult, 0, len(downloads))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// processOne runs C3 through C7 for a single successfully downloaded
// image.
func (c *Coordinator) processOne(d models.DownloadResult) cpuResult {
	stageStart := time.Now()
	fp := fingerprint(d.URL)

	dec, stageErr := decoder.Decode(d.Bytes, c.cfg.MaxPixels)
	c.recordStage("decode", fp, stageStart, stageErr)
	if stageErr != nil {
		return cpuResult{url: d.URL, err: stageErr}
	}

	md := metadata.Build(d.URL, d.Bytes, dec)

	qualityStart := time.Now()
	qm := quality.Analyze(dec.Image, d.ContentLength)
	c.recordStage("quality", fp, qualityStart, nil)

	normStart := time.Now()
	norm, stageErr := normalize.Normalize(dec.Image, normalize.Options{
		MaxDim:           c.cfg.MaxDim,
		JPEGQuality:      c.cfg.JPEGQuality,
		JPEGQualityFloor: c.cfg.JPEGQualityFloor,
		MaxOutputBytes:   c.cfg.NormalizeMaxBytes,
	})
	c.recordStage("normalize", fp, normStart, stageErr)
	if stageErr != nil {
		return cpuResult{url: d.URL, err: stageErr}
	}

	return cpuResult{
		url: d.URL,
		cand: candidate{
			url:      d.URL,
			normImg:  *norm,
			meta:     md,
			qualityM: qm,
		},
	}
}

func (c *Coordinator) recordStage(stage, urlFP string, start time.Time, stageErr *models.StageError) {
	duration := time.Since(start)
	metrics.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	outcome := "success"
	detail := ""
	if stageErr != nil {
		outcome = string(stageErr.Kind)
		detail = stageErr.Detail
		metrics.StageErrorsTotal.WithLabelValues(stage, string(stageErr.Kind)).Inc()
	}
	c.eventlog.Record(eventlog.StageEvent{
		Time: time.Now(), URLFP: urlFP, Stage: stage, Outcome: outcome,
		DurationMs: duration.Milliseconds(), Detail: detail,
	})
	if stageErr != nil {
		log.WithFields(log.Fields{"stage": stage, "url_fp": urlFP}).
			Warnf("stage failed: %s", stageErr.Error())
	}
}

func fingerprint(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

func encodeCacheEntry(entry cacheEntry) ([]byte, bool) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		log.WithError(err).Warn("cache: failed to encode entry")
		return nil, false
	}
	return buf.Bytes(), true
}

func decodeCacheEntry(raw []byte) (cacheEntry, bool) {
	var entry cacheEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry); err != nil {
		log.WithError(err).Warn("cache: failed to decode entry, treating as miss")
		return cacheEntry{}, false
	}
	return entry, true
}
