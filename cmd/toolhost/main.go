package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/reglet-dev/toolhost/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	code := 0
	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		code = 1
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		}
	}
	stop()
	os.Exit(code)
}
