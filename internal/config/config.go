// Package config loads framecast settings with precedence
// defaults < YAML file < environment. CLI flags are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	QuantizerPalette  = "palette"
	QuantizerBitDepth = "bitdepth"
)

type Config struct {
	FFmpegPath        string        `yaml:"ffmpeg"`
	WebPMuxPath       string        `yaml:"webpmux"`
	FFmpegCandidates  []string      `yaml:"ffmpegCandidates"`
	WebPMuxCandidates []string      `yaml:"webpmuxCandidates"`
	DisableExternal   bool          `yaml:"disableExternal"`
	TempDir           string        `yaml:"tempDir"`
	PausePoll         time.Duration `yaml:"pausePoll"`
	SupervisorPoll    time.Duration `yaml:"supervisorPoll"`
	ProgressInterval  time.Duration `yaml:"progressInterval"`
	Quantizer         string        `yaml:"quantizer"`
	RemoteEndpoint    string        `yaml:"remoteEndpoint"`
	RemoteTimeout     time.Duration `yaml:"remoteTimeout"`
	APIKey            string        `yaml:"apiKey"`
	LogLevel          string        `yaml:"logLevel"`
}

func Default() Config {
	return Config{
		FFmpegCandidates: []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
			"ffmpeg",
		},
		WebPMuxCandidates: []string{
			"/opt/homebrew/bin/webpmux",
			"/usr/local/bin/webpmux",
			"/usr/bin/webpmux",
			"webpmux",
		},
		TempDir:          os.TempDir(),
		PausePoll:        50 * time.Millisecond,
		SupervisorPoll:   100 * time.Millisecond,
		ProgressInterval: 100 * time.Millisecond,
		Quantizer:        QuantizerPalette,
		RemoteEndpoint:   "https://api.tinify.com/shrink",
		RemoteTimeout:    60 * time.Second,
		LogLevel:         "info",
	}
}

// Load builds the effective configuration. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.FFmpegPath = envString("FRAMECAST_FFMPEG", cfg.FFmpegPath)
	cfg.WebPMuxPath = envString("FRAMECAST_WEBPMUX", cfg.WebPMuxPath)
	cfg.TempDir = envString("FRAMECAST_TEMP_DIR", cfg.TempDir)
	cfg.LogLevel = envString("FRAMECAST_LOG_LEVEL", cfg.LogLevel)
	cfg.RemoteEndpoint = envString("FRAMECAST_REMOTE_ENDPOINT", cfg.RemoteEndpoint)
	cfg.APIKey = envString("FRAMECAST_API_KEY", cfg.APIKey)
	cfg.Quantizer = envString("FRAMECAST_QUANTIZER", cfg.Quantizer)
	cfg.DisableExternal = envBool("FRAMECAST_DISABLE_EXTERNAL", cfg.DisableExternal)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func (c Config) Validate() error {
	if c.PausePoll <= 0 {
		return fmt.Errorf("pausePoll must be positive")
	}
	if c.SupervisorPoll <= 0 {
		return fmt.Errorf("supervisorPoll must be positive")
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progressInterval must not be negative")
	}
	switch c.Quantizer {
	case QuantizerPalette, QuantizerBitDepth:
	default:
		return fmt.Errorf("unknown quantizer %q (expected %s|%s)", c.Quantizer, QuantizerPalette, QuantizerBitDepth)
	}
	if c.RemoteEndpoint != "" {
		u, err := url.Parse(c.RemoteEndpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid remoteEndpoint %q", c.RemoteEndpoint)
		}
	}
	return nil
}
