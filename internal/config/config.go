// Package config holds the engine's configuration and the credential
// store, as explicit values threaded through constructors rather than a
// module-process-wide singleton (spec §9 "Global mutable state...
// should be redesigned as an explicit configuration value").
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v2"
)

// Config is the engine's tunable surface: tracer limits, platform hints,
// logging, and artifact paths. Grounded directly on conftamer/config.go's
// shape (YAML-backed struct, Level() mapping to slog.Level), generalized
// from taint-tracking parameters to this engine's trace/debugger/LLM
// parameters.
type Config struct {
	// DebuggerPath is the debugger binary the tracer spawns.
	DebuggerPath string `yaml:"debugger_path"`
	// MaxTraceSteps overrides trace.DefaultMaxSteps; <= 0 means default.
	MaxTraceSteps int `yaml:"max_trace_steps"`
	// Platform is a cross-arch emulation hint loaded from the config file
	// or VEX_PLATFORM (spec §6 "Environment"). It is not passed to the
	// tracer; nothing else in this module reads it.
	Platform string `yaml:"platform"`
	// LLMEndpoint is the narrative collaborator's HTTP endpoint; empty
	// disables the LLM step entirely.
	LLMEndpoint string `yaml:"llm_endpoint"`
	// FreeWrappers supplements the tracer's minimal {"free"} list (spec
	// §9 Open Questions: "a future extension may accept a declarative
	// list of wrappers" — implemented here rather than deferred).
	FreeWrappers []string `yaml:"free_wrappers,omitempty"`
	// LoggerLevel is one of "debug", "info", "warn", "error".
	LoggerLevel string `yaml:"logger_level"`
	// DiagnosisCSV and RootsGraph name output artifact paths; empty
	// disables that artifact.
	DiagnosisCSV string `yaml:"diagnosis_csv"`
	RootsGraph   string `yaml:"roots_graph"`
}

// Level maps LoggerLevel to an slog.Level, defaulting to Info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LoggerLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads a YAML config file, same shape as conftamer/config.go's
// LoadConfig.
func Load(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return &Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return &Config{}, fmt.Errorf("reading config data: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return &Config{}, fmt.Errorf("decoding config file: %w", err)
	}
	return &c, nil
}

// Save writes c to file as YAML.
func Save(file string, c Config) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(out)
	return err
}

// ApplyEnv overrides c's fields from the process environment (spec §6
// "Environment"): VEX_API_KEY (handled separately by the credential
// store), VEX_MAX_TRACE_STEPS, VEX_PLATFORM. Loads a .env file first, if
// present, via godotenv — optional, never an error if absent.
func ApplyEnv(c *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("VEX_MAX_TRACE_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTraceSteps = n
		}
	}
	if v := os.Getenv("VEX_PLATFORM"); v != "" {
		c.Platform = v
	}
}

// CredentialPath returns $HOME/.config/vex/credentials, the owner-only
// file the `configure` subcommand writes the LLM API key to (spec §6).
func CredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vex", "credentials"), nil
}

// SaveCredential persists apiKey to CredentialPath with owner-only
// read/write permissions (spec §6 "configure").
func SaveCredential(apiKey string) error {
	path, err := CredentialPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}
	return os.WriteFile(path, []byte(apiKey), 0o600)
}

// LoadCredential reads the stored API key, preferring VEX_API_KEY when
// set (spec §6 "Environment": "overrides stored credentials").
func LoadCredential() (string, error) {
	if v := os.Getenv("VEX_API_KEY"); v != "" {
		return v, nil
	}
	path, err := CredentialPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading credential file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
