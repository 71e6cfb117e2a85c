// Package config loads the pipeline's configuration: a TOML file for
// static defaults (the teacher's github.com/BurntSushi/toml pattern),
// overlaid by IMG_* environment variables via viper.AutomaticEnv the way
// cmd/root.go layers flags and env vars over a loaded file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// PipelineConfig is the explicit configuration struct passed to the
// pipeline coordinator at construction (spec §9 "Patterns and their
// neutral strategies": no global/package-level config).
type PipelineConfig struct {
	MaxBytes       int64    `toml:"MaxBytes"`
	MaxPixels      int64    `toml:"MaxPixels"`
	MaxDim         int      `toml:"MaxDim"`
	MaxConcurrentDownloads int `toml:"MaxConcurrentDownloads"`

	ConnectTimeout time.Duration `toml:"-"`
	ReadTimeout    time.Duration `toml:"-"`
	WriteTimeout   time.Duration `toml:"-"`
	ConnectTimeoutMs int `toml:"ConnectTimeoutMs"`
	ReadTimeoutMs    int `toml:"ReadTimeoutMs"`
	WriteTimeoutMs   int `toml:"WriteTimeoutMs"`

	RetryMax         int     `toml:"RetryMax"`
	TopK             int     `toml:"TopK"`
	DedupThreshold   float64 `toml:"DedupThreshold"`
	QualityFloor     float64 `toml:"QualityFloor"`
	JPEGQuality      int     `toml:"JPEGQuality"`
	JPEGQualityFloor int     `toml:"JPEGQualityFloor"`
	NormalizeMaxBytes int64  `toml:"NormalizeMaxBytes"`

	AllowHosts []string `toml:"AllowHosts"`
	DenyExts   []string `toml:"DenyExts"`

	L1MaxEntries int           `toml:"L1MaxEntries"`
	L1MaxBytes   int64         `toml:"L1MaxBytes"`
	L1TTL        time.Duration `toml:"-"`
	L1TTLSecs    int           `toml:"L1TTLSecs"`

	L2URL     string        `toml:"L2URL"`
	L2TTL     time.Duration `toml:"-"`
	L2TTLSecs int           `toml:"L2TTLSecs"`

	CPUWorkers int `toml:"CPUWorkers"`

	// LogStageEvents gates the dedicated per-stage structured event log
	// (internal/eventlog), mirroring the teacher's --log-api / api.log.
	LogStageEvents bool `toml:"LogStageEvents"`
}

// Default returns the configuration the spec documents as defaults (§6).
func Default() PipelineConfig {
	return PipelineConfig{
		MaxBytes:               10 * 1024 * 1024,
		MaxPixels:              100_000_000,
		MaxDim:                 1024,
		MaxConcurrentDownloads: 3,
		ConnectTimeout:         5 * time.Second,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           5 * time.Second,
		RetryMax:               3,
		TopK:                   3,
		DedupThreshold:         0.85,
		QualityFloor:           0.3,
		JPEGQuality:            85,
		JPEGQualityFloor:       50,
		NormalizeMaxBytes:      2 * 1024 * 1024,
		AllowHosts: []string{
			"instagram.com", "cdninstagram.com", "fbcdn.net", "ytimg.com",
			"googleusercontent.com", "pstatic.net", "kakaocdn.net",
			"cloudfront.net", "amazonaws.com", "akamaihd.net",
		},
		DenyExts:     []string{".exe", ".bat", ".sh", ".cmd", ".com"},
		L1MaxEntries: 100,
		L1MaxBytes:   500 * 1024 * 1024,
		L1TTL:        time.Hour,
		L2TTL:        7 * 24 * time.Hour,
		CPUWorkers:   4,
	}
}

// LoadFile reads TOML static defaults from path, returning Default() when
// path is empty. A path that is given but cannot be read or parsed
// (including a file that does not exist) is reported as an error.
func LoadFile(path string) (PipelineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("error loading config file %s: %w", path, err)
	}
	applyDurations(&cfg)
	return cfg, nil
}

// LoadEnv overlays IMG_* environment variables onto cfg, the way the
// teacher's root.go binds viper.AutomaticEnv with a key replacer.
func LoadEnv(cfg PipelineConfig) PipelineConfig {
	v := viper.New()
	v.SetEnvPrefix("IMG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if v.IsSet("MAX_BYTES") {
		cfg.MaxBytes = v.GetInt64("MAX_BYTES")
	}
	if v.IsSet("MAX_PIXELS") {
		cfg.MaxPixels = v.GetInt64("MAX_PIXELS")
	}
	if v.IsSet("MAX_DIM") {
		cfg.MaxDim = v.GetInt("MAX_DIM")
	}
	if v.IsSet("MAX_CONCURRENT_DL") {
		cfg.MaxConcurrentDownloads = v.GetInt("MAX_CONCURRENT_DL")
	}
	if v.IsSet("DL_TIMEOUT_CONNECT_MS") {
		cfg.ConnectTimeout = time.Duration(v.GetInt("DL_TIMEOUT_CONNECT_MS")) * time.Millisecond
	}
	if v.IsSet("DL_TIMEOUT_READ_MS") {
		cfg.ReadTimeout = time.Duration(v.GetInt("DL_TIMEOUT_READ_MS")) * time.Millisecond
	}
	if v.IsSet("DL_TIMEOUT_WRITE_MS") {
		cfg.WriteTimeout = time.Duration(v.GetInt("DL_TIMEOUT_WRITE_MS")) * time.Millisecond
	}
	if v.IsSet("RETRY_MAX") {
		cfg.RetryMax = v.GetInt("RETRY_MAX")
	}
	if v.IsSet("TOP_K") {
		cfg.TopK = v.GetInt("TOP_K")
	}
	if v.IsSet("DEDUP_THRESHOLD") {
		cfg.DedupThreshold = v.GetFloat64("DEDUP_THRESHOLD")
	}
	if v.IsSet("QUALITY_FLOOR") {
		cfg.QualityFloor = v.GetFloat64("QUALITY_FLOOR")
	}
	if v.IsSet("JPEG_QUALITY") {
		cfg.JPEGQuality = v.GetInt("JPEG_QUALITY")
	}
	if v.IsSet("ALLOW_HOSTS") {
		cfg.AllowHosts = splitCSV(v.GetString("ALLOW_HOSTS"))
	}
	if v.IsSet("DENY_EXTS") {
		cfg.DenyExts = splitCSV(v.GetString("DENY_EXTS"))
	}
	if v.IsSet("L1_MAX_ENTRIES") {
		cfg.L1MaxEntries = v.GetInt("L1_MAX_ENTRIES")
	}
	if v.IsSet("L1_MAX_BYTES") {
		cfg.L1MaxBytes = v.GetInt64("L1_MAX_BYTES")
	}
	if v.IsSet("L1_TTL_SECS") {
		cfg.L1TTL = time.Duration(v.GetInt("L1_TTL_SECS")) * time.Second
	}
	if v.IsSet("L2_URL") {
		cfg.L2URL = v.GetString("L2_URL")
	}
	if v.IsSet("L2_TTL_SECS") {
		cfg.L2TTL = time.Duration(v.GetInt("L2_TTL_SECS")) * time.Second
	}

	log.Debug("Configuration overlaid with IMG_* environment variables")
	return cfg
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyDurations(cfg *PipelineConfig) {
	if cfg.ConnectTimeoutMs > 0 {
		cfg.ConnectTimeout = time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond
	}
	if cfg.ReadTimeoutMs > 0 {
		cfg.ReadTimeout = time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
	}
	if cfg.WriteTimeoutMs > 0 {
		cfg.WriteTimeout = time.Duration(cfg.WriteTimeoutMs) * time.Millisecond
	}
	if cfg.L1TTLSecs > 0 {
		cfg.L1TTL = time.Duration(cfg.L1TTLSecs) * time.Second
	}
	if cfg.L2TTLSecs > 0 {
		cfg.L2TTL = time.Duration(cfg.L2TTLSecs) * time.Second
	}
}

// Load combines LoadFile and LoadEnv, the standard entrypoint used by
// cmd/imgpipeline.
func Load(tomlPath string) (PipelineConfig, error) {
	cfg, err := LoadFile(tomlPath)
	if err != nil {
		return cfg, err
	}
	return LoadEnv(cfg), nil
}
