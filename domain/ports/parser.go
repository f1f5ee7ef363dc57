package ports

import "github.com/reglet-dev/toolhost/domain/entities"

// ConfigParser decodes a host configuration document.
type ConfigParser interface {
	Parse(data []byte) (*entities.HostConfig, error)
}
