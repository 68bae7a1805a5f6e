package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/batchstream/internal/testutil/testlog"
	"github.com/danmuck/batchstream/internal/transform"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "edge-stream"
max_depth = 0
flush_lines = false
cors_origins = [" http://a.local ", ""]
transformer = "tagged"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Name != "edge-stream" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.MaxDepth != 0 {
		t.Fatalf("explicit zero max_depth should win, got %d", cfg.MaxDepth)
	}
	if cfg.FlushLines {
		t.Fatalf("expected flush_lines=false")
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://a.local" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.Transformer != transform.NameTagged {
		t.Fatalf("unexpected transformer: %q", cfg.Transformer)
	}
	if cfg.Addr != def.Addr || cfg.StreamPath != def.StreamPath || cfg.WSPath != def.WSPath {
		t.Fatalf("undefined keys should keep defaults: %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "addr = \":1\"\nseeds = []\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*ServerConfig)
		want   error
	}{
		{name: "missing name", mutate: func(c *ServerConfig) { c.Name = " " }, want: ErrMissingName},
		{name: "missing addr", mutate: func(c *ServerConfig) { c.Addr = "" }, want: ErrMissingAddr},
		{name: "negative depth", mutate: func(c *ServerConfig) { c.MaxDepth = -1 }, want: ErrBadLimit},
		{name: "relative path", mutate: func(c *ServerConfig) { c.StreamPath = "stream" }, want: ErrBadPath},
		{name: "clashing paths", mutate: func(c *ServerConfig) { c.WSPath = c.StreamPath }, want: ErrPathClash},
		{name: "unknown transformer", mutate: func(c *ServerConfig) { c.Transformer = "superjson" }, want: transform.ErrUnknownTransformer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := Validate(cfg); !errors.Is(err, tc.want) {
				t.Fatalf("validate=%v, want %v", err, tc.want)
			}
		})
	}
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := DefaultConfig()
	if cfg.Name != def.Name || cfg.Addr != def.Addr || cfg.MaxLineBytes != def.MaxLineBytes {
		t.Fatalf("template drifted from defaults: %+v", cfg)
	}
}
