package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratforge/optimizer/internal/types"
)

// runFile is the on-disk YAML layout: a parameter space plus run settings.
type runFile struct {
	Space types.ParameterSpace `yaml:"space"`
	Run   types.RunConfig      `yaml:"run"`
}

// LoadRunFile reads the parameter space and run configuration from a YAML
// file. Run fields the file leaves at zero are filled from
// DefaultRunConfig before validation.
func LoadRunFile(path string) (types.ParameterSpace, types.RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.ParameterSpace{}, types.RunConfig{}, fmt.Errorf("failed to read run config %s: %w", path, err)
	}

	rf := runFile{Run: DefaultRunConfig}
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return types.ParameterSpace{}, types.RunConfig{}, fmt.Errorf("failed to parse run config %s: %w", path, err)
	}

	if err := rf.Space.Validate(); err != nil {
		return types.ParameterSpace{}, types.RunConfig{}, fmt.Errorf("invalid parameter space: %w", err)
	}
	if err := rf.Run.Validate(); err != nil {
		return types.ParameterSpace{}, types.RunConfig{}, fmt.Errorf("invalid run configuration: %w", err)
	}

	return rf.Space, rf.Run, nil
}
