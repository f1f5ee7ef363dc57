// Package host is the plugin host runtime. It loads modules through a
// ports.ModuleOpener, evaluates their embedded API version, lets them
// declare tools through a Registrar, and invokes those tools through the
// Bridge, which owns the cross-allocator buffer handoff.
//
// A Host is constructed explicitly and owns one tool registry:
//
//	h, err := host.New(host.WithOpener(wazero.NewOpener(ctx)))
//	if err != nil {
//	    return err
//	}
//	defer h.Close(ctx)
//
//	if _, err := h.Load(ctx, "plugins/echo.wasm"); err != nil {
//	    return err
//	}
//	out, err := h.Execute(ctx, "echo", []byte(`{"input":"hi"}`))
//
// Tool invocations may run concurrently from any number of goroutines; the
// host adds no serialization of its own.
package host
