package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/crytic/routerguard/cmd"
	"github.com/crytic/routerguard/cmd/exitcodes"
)

func main() {
	// Stop long-running validations on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	// Run our root CLI command, which contains all underlying command logic and will handle parsing/invocation.
	err := cmd.ExecuteContext(ctx)
	stop()

	// Obtain the actual error and exit code from the error, if any.
	var exitCode int
	err, exitCode = exitcodes.GetInnerErrorAndExitCode(err)

	// If we have an error that was not reported already, print it.
	if err != nil && exitCode != exitcodes.ExitCodeHandledError && exitCode != exitcodes.ExitCodeValidationFailed {
		fmt.Fprintln(os.Stderr, err)
	}

	// If we have a non-success exit code, exit with it.
	if exitCode != exitcodes.ExitCodeSuccess {
		os.Exit(exitCode)
	}
}
