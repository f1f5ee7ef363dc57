// Package wazero loads plugin modules compiled to WebAssembly and runs them
// on the wazero runtime.
//
// An Opener implements ports.ModuleOpener for .wasm files. Every module it
// opens gets its own instance with its own linear memory and allocator, so the
// host must hand every buffer the guest produces back to the guest's release
// export. The package handles:
//
//   - Resolving the fixed plugin entry points into abi function references
//   - Copying call arguments into guest memory through the "allocate" export
//   - Reading result locations out of guest-written output slots
//   - Serving the "mcp_host" import module (register_tool, log_message)
//
// # Basic Usage
//
//	opener, err := wazero.NewOpener(ctx, wazero.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer opener.Close(ctx)
//
//	h, err := host.New(host.WithOpener(opener))
//	handle, err := h.Load(ctx, "plugins/echo.wasm")
//
// # Guest ABI
//
// A guest exports "memory", "allocate(size) ptr", the global
// "mcp_plugin_version" holding the address of three little-endian u32
// (major, minor, patch), "mcp_plugin_register(registrar) status" and
// "mcp_plugin_release(ptr, len)". During registration it calls the imported
// "register_tool(registrar, decl) status", where decl is the address of five
// u32 addresses of NUL-terminated strings: name, description, parameters
// JSON, execute export and release export (0 selects mcp_plugin_release).
//
// Tool execute exports take (args_ptr, args_len, out_ptr_slot, out_len_slot)
// and return a status. On success they store the result location in the two
// slots.
//
// # Concurrency
//
// A wasm instance is single-threaded. Calls into one instance are serialized
// by the Module; calls into different instances run in parallel.
package wazero
