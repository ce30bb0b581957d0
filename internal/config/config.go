package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything tunable about a run. Values from the YAML file
// overlay the defaults, so a partial file is fine.
type Config struct {
	// Output
	OutputDir string `yaml:"output_dir"`

	// Sampling
	MaxFrames     int `yaml:"max_frames"`
	SnapshotWidth int `yaml:"snapshot_width"`

	// Model
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	UploadVideo    bool   `yaml:"upload_video"`

	// Prompt
	MaxPromptBytes int `yaml:"max_prompt_bytes"`

	// SectionHeadings maps a canonical section name to the headings the
	// parser accepts for it (case-insensitive). The model is only nudged
	// toward these names by the prompt, so they are configuration, not a
	// schema.
	SectionHeadings map[string][]string `yaml:"section_headings"`
}

// Canonical section names used by the parser and renderer.
const (
	SectionTitle           = "title"
	SectionWarnings        = "warnings"
	SectionTools           = "tools"
	SectionSteps           = "steps"
	SectionTroubleshooting = "troubleshooting"
	SectionTips            = "tips"
	SectionFlow            = "flow"
)

func defaultConfig() *Config {
	c := &Config{}

	c.OutputDir = "output"

	c.MaxFrames = 8
	c.SnapshotWidth = 400

	c.Model = "gemini-1.5-pro"
	c.BaseURL = "https://generativelanguage.googleapis.com"
	c.TimeoutSeconds = 180
	c.MaxRetries = 2
	c.UploadVideo = true

	c.MaxPromptBytes = 16000

	c.SectionHeadings = map[string][]string{
		SectionTitle:           {"title", "objective", "title & objective", "title and objective"},
		SectionWarnings:        {"warnings", "safety warnings", "safety", "safety precautions"},
		SectionTools:           {"tools", "tools & materials", "tools and materials", "materials"},
		SectionSteps:           {"steps", "step-by-step instructions", "procedure", "instructions"},
		SectionTroubleshooting: {"troubleshooting", "troubleshooting/diagnostics", "diagnostics"},
		SectionTips:            {"tips", "tribal knowledge", "tribal knowledge/tips", "notes"},
		SectionFlow:            {"process flow", "flowchart", "flow diagram"},
	}

	return c
}

// Load reads the config at path, overlaying the defaults. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxFrames < 1 {
		return fmt.Errorf("max_frames must be at least 1, got %d", c.MaxFrames)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxPromptBytes < 1 {
		return fmt.Errorf("max_prompt_bytes must be positive, got %d", c.MaxPromptBytes)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the model-call timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey resolves the Google AI API key. The flag value wins; otherwise the
// environment (optionally populated from a .env file by the caller).
func APIKey(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no API key: pass --api-key or set GOOGLE_API_KEY")
}
