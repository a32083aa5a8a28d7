package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigFlagDefaults(t *testing.T) {
	cmd := buildRootCmd()
	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.PortStart != 8000 || cfg.PythonBin != "python3" {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestResolveConfigFileThenFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vllmd.yaml")
	content := "addr: \":9999\"\nport_start: 9100\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cmd := buildRootCmd()
	if err := cmd.Flags().Set("config", path); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := cmd.Flags().Set("addr", ":7777"); err != nil {
		t.Fatalf("set addr: %v", err)
	}
	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Fatalf("flag should win over file: %+v", cfg)
	}
	if cfg.PortStart != 9100 || cfg.LogLevel != "debug" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.PythonBin != "python3" {
		t.Fatalf("flag default not applied: %+v", cfg)
	}
}

func TestResolveConfigMissingFile(t *testing.T) {
	cmd := buildRootCmd()
	if err := cmd.Flags().Set("config", "/nonexistent/vllmd.toml"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if _, err := resolveConfig(cmd); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("VLLMD_TEST_STR", "x")
	if envStr("VLLMD_TEST_STR", "d") != "x" {
		t.Fatalf("envStr set")
	}
	if envStr("VLLMD_TEST_UNSET", "d") != "d" {
		t.Fatalf("envStr default")
	}
	t.Setenv("VLLMD_TEST_INT", "42")
	if envInt("VLLMD_TEST_INT", 1) != 42 {
		t.Fatalf("envInt set")
	}
	t.Setenv("VLLMD_TEST_INT", "junk")
	if envInt("VLLMD_TEST_INT", 1) != 1 {
		t.Fatalf("envInt junk falls back")
	}
}
