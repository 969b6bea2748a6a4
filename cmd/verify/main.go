// File: cmd/verify/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/verify-cli/cmd"
	"github.com/xkilldash9x/verify-cli/internal/observability"
)

const panicLogFile = "panic.log"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

func main() {
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	// stop cancels ctx, so the status must be read first.
	code := exitCode(ctx, err)
	stop()
	osExit(code)
}

// exitCode maps the command outcome to the process status: 0 on full completion,
// 130 after an interrupt and 1 for any other failure.
func exitCode(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return exitInterrupted
	case err != nil:
		return exitFailure
	default:
		return exitOK
	}
}

// handlePanic writes the stack to panic.log and exits with a failure status.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(exitFailure)
		return
	}
	fmt.Fprintf(os.Stderr, "verify-cli crashed; details logged to %s\n", panicLogFile)
	osExit(exitFailure)
}
