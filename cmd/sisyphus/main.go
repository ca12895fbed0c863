package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ekorchmar/sisyphus/internal/cli"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
)

func main() {
	// Recover from panics to ensure graceful exits with stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(sisyphus.ExitPanic)
		}
	}()

	if os.Getenv("SISYPHUS_TEST_PANIC") == "1" {
		panic("intentional test panic")
	}

	if err := cli.Execute(); err != nil {
		os.Exit(sisyphus.ExitCodeForError(err))
	}
}
