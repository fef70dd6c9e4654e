package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/sv2wire/internal/buffer"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
mode = "Client"
dial_addr = "10.0.0.2:34254"
encrypted = true
read_timeout = "2s"
max_payload = 1024
pool_slots = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeClient {
		t.Fatalf("unexpected mode %q", cfg.Mode)
	}
	if cfg.DialTarget() != "10.0.0.2:34254" {
		t.Fatalf("unexpected dial target %q", cfg.DialTarget())
	}
	if !cfg.Session.Encrypted || cfg.Session.ReadTimeout != 2*time.Second {
		t.Fatalf("session overrides not applied: %+v", cfg.Session)
	}
	if cfg.Session.Limits.MaxPayload != 1024 || cfg.Pool.Slots != 4 {
		t.Fatalf("limits/pool overrides not applied")
	}
	def := DefaultConfig()
	if cfg.Pings != def.Pings || cfg.Session.WriteTimeout != def.Session.WriteTimeout {
		t.Fatalf("defaults lost for undefined keys")
	}
}

func TestLoadExplicitZeroOverridesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `read_timeout = "0s"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.ReadTimeout != 0 {
		t.Fatalf("explicit zero ignored: %v", cfg.Session.ReadTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"mode":     `mode = "relay"`,
		"duration": `handshake_timeout = "soon"`,
		"slots":    `pool_slots = 9`,
		"payload":  `max_payload = 16777216`,
		"addr":     `listen_addr = "nope"`,
		"unknown":  `pool_slotz = 2`,
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTemplateIsValid(t *testing.T) {
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
	if cfg.AdminAddr == "" || cfg.Pool.History != 64 {
		t.Fatalf("template values not loaded: %+v", cfg)
	}
	var raw map[string]any
	if _, err := toml.Decode(Template(), &raw); err != nil {
		t.Fatalf("template decode: %v", err)
	}
}

func TestNewPoolWiresHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pool = PoolConfig{Slots: 2, SlotSize: 64, History: 4}
	pool, hist := cfg.NewPool()
	if hist == nil {
		t.Fatalf("expected history")
	}
	pool.Acquire(8).Release()
	if hist.Len() != 2 {
		t.Fatalf("history len=%d want 2", hist.Len())
	}
	if pool.Slots() != 2 {
		t.Fatalf("slots=%d", pool.Slots())
	}

	cfg.Pool.History = 0
	if _, hist := cfg.NewPool(buffer.ObserverFunc(func(buffer.ToggleEvent) {})); hist != nil {
		t.Fatalf("expected no history")
	}
}
