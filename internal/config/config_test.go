package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	want := Config{DebuggerPath: "gdb", MaxTraceSteps: 5000, Platform: "arm64", LoggerLevel: "debug"}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("got %#v, want %#v", *got, want)
	}
}

func TestLevelDefaultsToInfo(t *testing.T) {
	c := Config{}
	if c.Level().String() != "INFO" {
		t.Fatalf("got %v", c.Level())
	}
}

func TestApplyEnvOverridesMaxTraceSteps(t *testing.T) {
	t.Setenv("VEX_MAX_TRACE_STEPS", "42")
	t.Setenv("VEX_PLATFORM", "riscv64")
	c := &Config{MaxTraceSteps: 100}
	ApplyEnv(c)
	if c.MaxTraceSteps != 42 {
		t.Fatalf("MaxTraceSteps = %d, want 42", c.MaxTraceSteps)
	}
	if c.Platform != "riscv64" {
		t.Fatalf("Platform = %q, want riscv64", c.Platform)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VEX_API_KEY", "")

	if err := SaveCredential("sk-test-key"); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	path, _ := CredentialPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %v, want 0600", info.Mode().Perm())
	}

	got, err := LoadCredential()
	if err != nil {
		t.Fatalf("LoadCredential: %v", err)
	}
	if got != "sk-test-key" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadCredentialPrefersEnv(t *testing.T) {
	t.Setenv("VEX_API_KEY", "env-key")
	got, err := LoadCredential()
	if err != nil {
		t.Fatalf("LoadCredential: %v", err)
	}
	if got != "env-key" {
		t.Fatalf("got %q, want env-key", got)
	}
}
