package entities

// ToolInfo is the listing view of a registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// ParametersSchema is the module-supplied JSON Schema text. The host
	// treats it as opaque.
	ParametersSchema string `json:"parameters_schema"`

	// Plugin is the path of the module that registered the tool.
	Plugin string `json:"plugin,omitempty"`
}
