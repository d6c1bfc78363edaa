package zlink

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseConfig(t *testing.T) {
	blob := []byte(`{
		// comments are tolerated
		"mode": "client",
		"connect": {"endpoints": ["tcp/10.0.0.1:7447"],},
	}`)
	cfg, err := ParseConfig(blob)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Mode != ModeClient {
		t.Errorf("Mode = %q, want client", cfg.Mode)
	}
	if len(cfg.Connect.Endpoints) != 1 || cfg.Connect.Endpoints[0] != "tcp/10.0.0.1:7447" {
		t.Errorf("Connect.Endpoints = %v", cfg.Connect.Endpoints)
	}
}

func TestParseConfigDefaultsMode(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Mode != ModePeer {
		t.Errorf("Mode = %q, want peer default", cfg.Mode)
	}
}

func TestParseConfigErrors(t *testing.T) {
	for _, blob := range [][]byte{
		nil,
		[]byte(""),
		[]byte("{not json at all"),
		[]byte(`{"mode": "gateway"}`),
	} {
		if _, err := ParseConfig(blob); !errors.Is(err, ErrConfigParse) {
			t.Errorf("ParseConfig(%q) = %v, want ErrConfigParse", blob, err)
		}
	}
}

func TestLoadConfigFileJSON5(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join("testdata", "client.json5"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Mode != ModeClient {
		t.Errorf("Mode = %q, want client", cfg.Mode)
	}
	if cfg.multicastEnabled() {
		t.Error("multicast should be explicitly disabled")
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join("testdata", "router.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Mode != ModeRouter {
		t.Errorf("Mode = %q, want router", cfg.Mode)
	}
	if len(cfg.Listen.Endpoints) != 1 {
		t.Errorf("Listen.Endpoints = %v", cfg.Listen.Endpoints)
	}
	if !cfg.multicastEnabled() {
		t.Error("multicast should be explicitly enabled")
	}
}

func TestLoadConfigFileTOML(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join("testdata", "peer.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Mode != ModePeer {
		t.Errorf("Mode = %q, want peer", cfg.Mode)
	}
	if len(cfg.Listen.Endpoints) != 2 {
		t.Errorf("Listen.Endpoints = %v", cfg.Listen.Endpoints)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join("testdata", "missing.json")); !errors.Is(err, ErrConfigParse) {
		t.Errorf("missing file: %v, want ErrConfigParse", err)
	}
	if _, err := LoadConfigFile(filepath.Join("testdata", "client.ini")); !errors.Is(err, ErrConfigParse) {
		t.Errorf("unsupported extension: %v, want ErrConfigParse", err)
	}
}

func TestMulticastTriState(t *testing.T) {
	var cfg Config
	if cfg.multicastEnabled() != defaultMulticast {
		t.Error("nil Enabled should resolve to the platform default")
	}
	on, off := true, false
	cfg.Scouting.Multicast.Enabled = &on
	if !cfg.multicastEnabled() {
		t.Error("explicit true should win")
	}
	cfg.Scouting.Multicast.Enabled = &off
	if cfg.multicastEnabled() {
		t.Error("explicit false should win")
	}
}
