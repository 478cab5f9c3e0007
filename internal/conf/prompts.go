package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/devricklin/discord-relay/internal/biz/usecase"
)

// PromptsConfig contains the persona configuration loaded from YAML
type PromptsConfig struct {
	Persona PersonaPrompts `yaml:"persona"`
}

// PersonaPrompts contains the generation persona
type PersonaPrompts struct {
	SystemInstruction string `yaml:"system_instruction"`
}

// DefaultPromptsConfig returns the built-in persona
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Persona: PersonaPrompts{
			SystemInstruction: usecase.DefaultSystemInstruction,
		},
	}
}

// LoadPromptsConfig loads prompts configuration from YAML file
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/discord-relay/prompts.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string

	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			loadedPath = p
			break
		}
		if configPath != "" {
			return nil, fmt.Errorf("failed to read prompts %s: %w", configPath, err)
		}
	}

	if data == nil {
		// Return default config if no file found
		slog.Debug("no prompts.yaml found, using defaults")
		return DefaultPromptsConfig(), nil
	}

	slog.Info("loading prompts", "path", loadedPath)

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

func (c *PromptsConfig) fillDefaults() {
	if c.Persona.SystemInstruction == "" {
		c.Persona.SystemInstruction = DefaultPromptsConfig().Persona.SystemInstruction
	}
}
