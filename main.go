package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run executes the command line and returns the process exit code. Only a
// fatal error or an interrupt is non-zero; files that failed individually
// are reported in the summary and retried by the next run.
func run(ctx context.Context, args []string) int {
	cc := &CLIContext{}
	defer cc.Close()

	cmd := newRootCmd(cc)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		if errors.Is(err, errInterrupted) {
			return exitInterrupted
		}

		return 1
	}

	return 0
}
