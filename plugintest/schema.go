package plugintest

import "github.com/reglet-dev/toolhost/application/schema"

// SchemaFor reflects a JSON Schema from the Go type of v, for use as a
// tool's parameters schema.
func SchemaFor(v any) string {
	s, err := schema.GenerateCompact(v)
	if err != nil {
		panic(err)
	}
	return s
}
