package parser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reglet-dev/toolhost/domain/entities"
)

// LoadFile reads, parses and validates the config file at path. Relative
// module paths are resolved against the file's directory.
func LoadFile(path string) (*entities.HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host config: %w", err)
	}

	cfg, err := NewYamlConfigParser().Parse(data)
	if err != nil {
		return nil, err
	}
	if err := NewStructValidator().Validate(cfg); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i := range cfg.Modules {
		if p := cfg.Modules[i].Path; !filepath.IsAbs(p) {
			cfg.Modules[i].Path = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}
