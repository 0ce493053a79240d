package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads a stack configuration from disk, fills in defaults, validates
// it, and returns the resulting model.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, relayerrors.NewPreconditionError("config", fmt.Sprintf("cannot read %s", path), err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, relayerrors.NewValidationError(path, fmt.Sprintf("yaml parse failed at line %d", extractLine(err)), err)
	}

	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
