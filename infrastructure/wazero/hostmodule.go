package wazero

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/toolhost/abi"
	hostlog "github.com/reglet-dev/toolhost/log"
)

// declFields is the number of u32 address fields in a guest tool declaration.
const declFields = 5

type pluginPathKey struct{}

// withPluginPath records the module path for host function calls made
// under ctx.
func withPluginPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pluginPathKey{}, path)
}

// pluginName is the module path host functions log against, falling back to
// the guest's module name for calls made outside withPluginPath.
func pluginName(ctx context.Context, mod api.Module) string {
	if path, ok := ctx.Value(pluginPathKey{}).(string); ok {
		return path
	}
	return mod.Name()
}

// instantiateHostModule exports register_tool and log_message to guests.
func (o *Opener) instantiateHostModule(ctx context.Context) error {
	builder := o.runtime.NewHostModuleBuilder(o.config.HostModuleName)

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, registrar, decl uint32) uint32 {
			return uint32(o.registerTool(ctx, mod, registrar, decl)) //nolint:gosec // G115: status is an i32 on the wire
		}).
		WithParameterNames("registrar", "decl").
		Export("register_tool")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) {
			o.logMessage(ctx, mod, ptr, length)
		}).
		WithParameterNames("ptr", "len").
		Export("log_message")

	_, err := builder.Instantiate(ctx)
	return err
}

// registerTool decodes a guest declaration and forwards it to the Registrar
// the guest was handed.
func (o *Opener) registerTool(ctx context.Context, mod api.Module, handle, declPtr uint32) abi.Status {
	reg, ok := o.registrars.get(handle)
	if !ok {
		o.config.Logger.ErrorContext(ctx, "wazero: register_tool called with unknown registrar",
			"plugin", pluginName(ctx, mod), "registrar", handle)
		return abi.StatusInvalidDeclaration
	}

	mem := mod.Memory()
	var fields [declFields]string
	for i := range fields {
		addr, ok := mem.ReadUint32Le(declPtr + uint32(i)*4) //nolint:gosec // G115: i < declFields
		if !ok {
			o.config.Logger.ErrorContext(ctx, "wazero: tool declaration outside guest memory",
				"plugin", pluginName(ctx, mod), "decl", declPtr)
			return abi.StatusInvalidDeclaration
		}
		if addr == 0 {
			continue
		}
		s, ok := readCString(mem, addr, o.config.MaxStringSize)
		if !ok {
			o.config.Logger.ErrorContext(ctx, "wazero: unterminated string in tool declaration",
				"plugin", pluginName(ctx, mod), "field", i)
			return abi.StatusInvalidDeclaration
		}
		fields[i] = s
	}

	// A missing execute export leaves Execute nil and the Registrar rejects
	// the declaration.
	decl := abi.ToolDeclaration{
		Name:             fields[0],
		Description:      fields[1],
		ParametersSchema: fields[2],
		Execute:          reg.module.executor(fields[3]),
	}
	if fields[4] != "" {
		decl.Release = reg.module.releaser(fields[4])
		if decl.Release == nil {
			o.config.Logger.WarnContext(ctx, "wazero: tool release export not found",
				"plugin", pluginName(ctx, mod), "tool", decl.Name, "export", fields[4])
			return abi.StatusInvalidDeclaration
		}
	}
	return reg.registrar.Register(ctx, decl)
}

// logMessage routes a guest's log wire payload into slog.
func (o *Opener) logMessage(ctx context.Context, mod api.Module, ptr, length uint32) {
	plugin := pluginName(ctx, mod)
	if length > o.config.MaxStringSize {
		o.config.Logger.WarnContext(ctx, "wazero: guest log message too large", "plugin", plugin, "len", length)
		return
	}
	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}

	msg, err := hostlog.DecodeMessage(payload)
	if err != nil {
		o.config.Logger.InfoContext(ctx, "plugin log (raw)", "plugin", plugin, "payload", string(payload))
		return
	}

	level, err := hostlog.ParseLevel(msg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	args := append([]any{"plugin", plugin}, msg.Args()...)
	o.config.Logger.Log(ctx, level, msg.Message, args...)
}

// readCString reads a NUL-terminated string of at most limit bytes.
func readCString(mem api.Memory, ptr, limit uint32) (string, bool) {
	size := mem.Size()
	if ptr >= size {
		return "", false
	}
	// One extra byte for the terminator, counted in uint64 so a limit of
	// math.MaxUint32 does not wrap.
	n := uint64(size - ptr)
	if maxLen := uint64(limit) + 1; n > maxLen {
		n = maxLen
	}
	buf, ok := mem.Read(ptr, uint32(n))
	if !ok {
		return "", false
	}
	end := bytes.IndexByte(buf, 0)
	if end < 0 {
		return "", false
	}
	return string(buf[:end]), true
}
