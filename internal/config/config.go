package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/batchstream/internal/protocol/frame"
	"github.com/danmuck/batchstream/internal/transform"
)

var (
	ErrMissingName = errors.New("config: name is required")
	ErrMissingAddr = errors.New("config: addr is required")
	ErrBadPath     = errors.New("config: route paths must start with /")
	ErrPathClash   = errors.New("config: route paths must be distinct")
	ErrBadLimit    = errors.New("config: limits must not be negative")
)

// ServerConfig drives `streamctl serve`.
type ServerConfig struct {
	Name         string   `toml:"name"`
	Addr         string   `toml:"addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	MaxDepth     int      `toml:"max_depth"`
	MaxLineBytes int      `toml:"max_line_bytes"`
	FlushLines   bool     `toml:"flush_lines"`
	MetricsPath  string   `toml:"metrics_path"`
	StreamPath   string   `toml:"stream_path"`
	WSPath       string   `toml:"ws_path"`
	Transformer  string   `toml:"transformer"`
}

func DefaultConfig() ServerConfig {
	return ServerConfig{
		Name:         "batchstream",
		Addr:         ":9300",
		CorsOrigins:  []string{"http://localhost:3000"},
		MaxDepth:     8,
		MaxLineBytes: frame.DefaultLimits().MaxLineBytes,
		FlushLines:   true,
		MetricsPath:  "/metrics",
		StreamPath:   "/stream",
		WSPath:       "/ws",
		Transformer:  transform.NameIdentity,
	}
}

// Load overlays the keys present in path onto DefaultConfig and validates
// the result.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultConfig()

	var raw ServerConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load config (%s): %w", path, err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("max_depth") {
		cfg.MaxDepth = raw.MaxDepth
	}
	if meta.IsDefined("max_line_bytes") {
		cfg.MaxLineBytes = raw.MaxLineBytes
	}
	if meta.IsDefined("flush_lines") {
		cfg.FlushLines = raw.FlushLines
	}
	if meta.IsDefined("metrics_path") {
		cfg.MetricsPath = strings.TrimSpace(raw.MetricsPath)
	}
	if meta.IsDefined("stream_path") {
		cfg.StreamPath = strings.TrimSpace(raw.StreamPath)
	}
	if meta.IsDefined("ws_path") {
		cfg.WSPath = strings.TrimSpace(raw.WSPath)
	}
	if meta.IsDefined("transformer") {
		cfg.Transformer = strings.TrimSpace(raw.Transformer)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServerConfig{}, fmt.Errorf("load config (%s): unknown keys %v", path, undecoded)
	}
	if err := Validate(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func Validate(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return ErrMissingAddr
	}
	if cfg.MaxDepth < 0 || cfg.MaxLineBytes < 0 {
		return ErrBadLimit
	}
	seen := make(map[string]struct{}, 3)
	for _, p := range []string{cfg.MetricsPath, cfg.StreamPath, cfg.WSPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: %q", ErrBadPath, p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %q", ErrPathClash, p)
		}
		seen[p] = struct{}{}
	}
	if _, err := transform.ByName(cfg.Transformer); err != nil {
		return err
	}
	return nil
}

// Limits returns the consumer line limits for cfg.
func (c ServerConfig) Limits() frame.Limits {
	if c.MaxLineBytes <= 0 {
		return frame.DefaultLimits()
	}
	return frame.Limits{MaxLineBytes: c.MaxLineBytes}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
