// Package config loads the process-wide, immutable configuration struct
// used to initialize the store, the remote coordinator, the language-model
// clients, and the download/trim collaborator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Remote RemoteConfig `yaml:"remote"`
	LLM    LLMConfig    `yaml:"llm"`
}

// ServerConfig holds filesystem roots and process-wide runtime settings.
type ServerConfig struct {
	RootDir       string        `yaml:"rootDir"`      // parent of jobs/ and logs/
	DatabasePath  string        `yaml:"databasePath"` // defaults to rootDir/sermonforge.db
	LogLevel      string        `yaml:"logLevel"`     // debug|info|warn|error
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`
}

// RemoteConfig configures the transcription worker HTTP coordinator.
type RemoteConfig struct {
	BaseURL         string        `yaml:"baseUrl"`
	WhisperModel    string        `yaml:"whisperModel"`
	DeployTimeout   time.Duration `yaml:"deployTimeout"`
	PollTimeout     time.Duration `yaml:"pollTimeout"`
	RetrieveTimeout time.Duration `yaml:"retrieveTimeout"`
}

// LLMConfig selects and configures the two language-model endpoints plus a
// mock used in tests and local development.
type LLMConfig struct {
	Primary   LLMEndpointConfig `yaml:"primary"`   // cloud endpoint, e.g. Gemini-style
	Secondary LLMEndpointConfig `yaml:"secondary"` // local endpoint, e.g. Ollama-style
	Mock      MockSettings      `yaml:"mock"`
	UseMock   bool              `yaml:"useMock"`
}

// LLMEndpointConfig configures one language-model HTTP endpoint.
type LLMEndpointConfig struct {
	Provider    string  `yaml:"provider"` // "gemini" or "ollama"
	BaseURL     string  `yaml:"baseUrl"`
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	NumCtx      int     `yaml:"numCtx"` // ollama-style context window
	MaxTokens   int     `yaml:"maxTokens"`
}

// MockSettings configures the mock LLM used in tests.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// Load reads YAML config from path, expands environment variables, and
// validates it. If path is empty, it reads SERMONFORGE_CONFIG then falls
// back to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("SERMONFORGE_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(cfg.Server.RootDir, "jobs"), 0o750); err != nil {
		return nil, fmt.Errorf("ensure jobs dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Server.RootDir, "logs"), 0o750); err != nil {
		return nil, fmt.Errorf("ensure logs dir: %w", err)
	}
	if cfg.Server.DatabasePath == "" {
		cfg.Server.DatabasePath = filepath.Join(cfg.Server.RootDir, "sermonforge.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.RootDir == "" {
		cfg.Server.RootDir = "data"
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}

	if cfg.Remote.WhisperModel == "" {
		cfg.Remote.WhisperModel = "large"
	}
	if cfg.Remote.DeployTimeout == 0 {
		cfg.Remote.DeployTimeout = 60 * time.Second
	}
	if cfg.Remote.PollTimeout == 0 {
		cfg.Remote.PollTimeout = 10 * time.Second
	}
	if cfg.Remote.RetrieveTimeout == 0 {
		cfg.Remote.RetrieveTimeout = 60 * time.Second
	}

	if cfg.LLM.Primary.Provider == "" {
		cfg.LLM.Primary.Provider = "gemini"
	}
	if cfg.LLM.Secondary.Provider == "" {
		cfg.LLM.Secondary.Provider = "ollama"
	}
	if cfg.LLM.Secondary.NumCtx == 0 {
		cfg.LLM.Secondary.NumCtx = 32768
	}
	if cfg.LLM.Mock.Prefix == "" {
		cfg.LLM.Mock.Prefix = "Mock response"
	}
}

func validate(cfg *Config) error {
	if !cfg.LLM.UseMock {
		if strings.TrimSpace(cfg.LLM.Primary.BaseURL) == "" {
			return errors.New("llm.primary.baseUrl is required unless llm.useMock is set")
		}
		if strings.TrimSpace(cfg.LLM.Secondary.BaseURL) == "" {
			return errors.New("llm.secondary.baseUrl is required unless llm.useMock is set")
		}
	}
	if !cfg.LLM.UseMock && strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return errors.New("remote.baseUrl is required")
	}
	return nil
}
