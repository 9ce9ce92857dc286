package config

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  rootDir: "` + filepath.ToSlash(dir) + `"
  logLevel: "debug"
  shutdownGrace: 5s

remote:
  baseUrl: "http://worker.local:8000"
  whisperModel: "medium"

llm:
  primary:
    provider: "gemini"
    baseUrl: "https://generativelanguage.googleapis.com"
    apiKey: "abc"
  secondary:
    provider: "ollama"
    baseUrl: "http://localhost:11434"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("logLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.ShutdownGrace != 5*time.Second {
		t.Fatalf("shutdownGrace = %v", cfg.Server.ShutdownGrace)
	}
	if cfg.Server.DatabasePath == "" {
		t.Fatalf("databasePath should be defaulted to rootDir/sermonforge.db")
	}
	matched, _ := regexp.MatchString(`sermonforge\.db$`, cfg.Server.DatabasePath)
	if !matched {
		t.Fatalf("databasePath should end with sermonforge.db, got %s", cfg.Server.DatabasePath)
	}

	if cfg.Remote.BaseURL != "http://worker.local:8000" || cfg.Remote.WhisperModel != "medium" {
		t.Fatalf("remote config mismatch: %+v", cfg.Remote)
	}
	if cfg.Remote.DeployTimeout == 0 || cfg.Remote.PollTimeout == 0 || cfg.Remote.RetrieveTimeout == 0 {
		t.Fatalf("remote timeout defaults not applied")
	}

	if cfg.LLM.Primary.APIKey != "abc" || cfg.LLM.Secondary.Provider != "ollama" {
		t.Fatalf("llm config mismatch: %+v", cfg.LLM)
	}
	if cfg.LLM.Secondary.NumCtx == 0 {
		t.Fatalf("secondary numCtx default not applied")
	}

	if _, err := os.Stat(filepath.Join(dir, "jobs")); err != nil {
		t.Fatalf("jobs dir not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Fatalf("logs dir not created: %v", err)
	}
}

func TestLoad_MockModeSkipsRemoteValidation(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  rootDir: "` + filepath.ToSlash(dir) + `"
llm:
  useMock: true
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	if !cfg.LLM.UseMock {
		t.Fatalf("expected UseMock true")
	}
}

func TestLoad_MissingRemoteBaseURLFails(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  rootDir: "` + filepath.ToSlash(dir) + `"
llm:
  primary:
    baseUrl: "http://primary"
  secondary:
    baseUrl: "http://secondary"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for missing remote.baseUrl")
	}
}
