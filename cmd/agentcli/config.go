package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional agentcli.yaml layer, overridden by any flag the
// caller passes explicitly. Grounded on the config-file-plus-flags pattern
// used across the example pack's CLIs (a YAML/JSON file loaded beneath flag
// overrides), e.g. the hector config loader.
type fileConfig struct {
	Model         string   `yaml:"model"`
	MaxTurns      int      `yaml:"max_turns"`
	ToolAllowlist []string `yaml:"tool_allowlist"`
}

// loadConfig reads path if it exists. A missing file is not an error: the
// CLI runs fine on flags and defaults alone.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// allowed reports whether name is permitted by an allowlist. An empty
// allowlist permits everything.
func allowed(allowlist []string, name string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, a := range allowlist {
		if a == name {
			return true
		}
	}
	return false
}
