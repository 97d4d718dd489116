package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PolicyFile is the on-disk moderation policy override.
// Zero values leave the environment configuration untouched.
type PolicyFile struct {
	Policy     string   `yaml:"policy"`
	Threshold  *float64 `yaml:"threshold"`
	FrameCount int      `yaml:"frame_count"`
	Prompt     string   `yaml:"prompt"`
}

// ApplyPolicyFile merges the YAML file at cfg.PolicyFile into cfg.
// It is a no-op when no file is configured.
func ApplyPolicyFile(cfg *Config) error {
	if cfg.PolicyFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse policy file %s: %w", cfg.PolicyFile, err)
	}

	if pf.Policy != "" {
		cfg.Policy = pf.Policy
	}
	if pf.Threshold != nil {
		cfg.PolicyThreshold = *pf.Threshold
	}
	if pf.FrameCount > 0 {
		cfg.FrameCount = pf.FrameCount
	}
	if pf.Prompt != "" {
		cfg.Prompt = pf.Prompt
	}
	return nil
}

// Validate reports configuration values the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSurrealDB, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unsupported store: %s", c.Store)
	}

	switch c.VisionProvider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderBedrock:
	default:
		return fmt.Errorf("unsupported vision provider: %s", c.VisionProvider)
	}

	switch c.Policy {
	case "zero_tolerance", "threshold":
	default:
		return fmt.Errorf("unsupported moderation policy: %s", c.Policy)
	}

	if c.PolicyThreshold < 0 || c.PolicyThreshold > 1 {
		return fmt.Errorf("policy threshold must be within [0, 1], got %v", c.PolicyThreshold)
	}
	if c.FrameCount <= 0 {
		return fmt.Errorf("frame count must be positive, got %d", c.FrameCount)
	}
	if c.ClassifyInterval <= 0 {
		return fmt.Errorf("classify interval must be positive")
	}
	return nil
}
