// Package ports defines the interfaces between the host core and the module
// backends that implement them (wazero for WebAssembly, plugintest for
// in-process modules).
package ports
