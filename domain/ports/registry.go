package ports

import "github.com/reglet-dev/toolhost/domain/entities"

// ToolCatalog lists registered tools in registration order.
type ToolCatalog interface {
	ListTools() []entities.ToolInfo
}
