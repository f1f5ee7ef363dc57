// Package parser decodes and validates the host configuration file.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// YamlConfigParser implements ConfigParser for YAML.
type YamlConfigParser struct{}

// NewYamlConfigParser creates a new YamlConfigParser.
func NewYamlConfigParser() ports.ConfigParser {
	return &YamlConfigParser{}
}

// Parse unmarshals YAML bytes into a HostConfig, starting from the defaults.
// Unknown keys are rejected.
func (p *YamlConfigParser) Parse(data []byte) (*entities.HostConfig, error) {
	cfg := entities.DefaultHostConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse host config: %w", err)
	}
	if cfg.MaxResultSize == 0 {
		cfg.MaxResultSize = entities.DefaultMaxResultSize
	}
	return &cfg, nil
}
