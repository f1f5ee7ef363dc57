// Package plugintest provides an in-process plugin module for exercising the
// tool host without compiling a real module.
//
// A Module owns a private Arena allocator: every result buffer it produces
// lives there and can only be returned through the module's release entries,
// which record each (pointer, length) pair they receive. Tests use this to
// check that the host releases every buffer exactly once with the pair it was
// given.
//
//	mod := plugintest.NewModule("echo",
//	    plugintest.WithTool(plugintest.Tool{
//	        Name:    "echo",
//	        Schema:  `{"type":"object"}`,
//	        Handler: func(_ context.Context, args []byte) ([]byte, error) { return args, nil },
//	    }),
//	)
//	h, _ := host.New(host.WithOpener(plugintest.NewOpener(mod)))
package plugintest
