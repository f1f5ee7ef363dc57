package ports

import "github.com/reglet-dev/toolhost/domain/entities"

// ConfigValidator checks a decoded host configuration.
type ConfigValidator interface {
	Validate(cfg *entities.HostConfig) error
}
