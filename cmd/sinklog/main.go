// sinklog pipes standard input into a configured logger and performs
// maintenance on log files.
//
// Usage:
//
//	sinklog [options]                 read lines from stdin and log them
//	sinklog rotate --file <path>      rotate a log file now
//	sinklog validate <config>         check a configuration file
//
// A line may start with a level name and a colon ("error: disk full") to
// choose its level; other lines are logged at --default-level.
//
// Exit codes:
//
//	0: success
//	1: logging or rotation failed
//	2: invalid arguments or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Version can be set with -ldflags "-X main.Version=..."
var Version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "sinklog: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) || errors.Is(err, types.ErrInvalidConfig) {
		return 2
	}
	return 1
}

// usageError marks errors caused by the command line itself
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "sinklog",
		Usage:   "pipe standard input into a multi-sink logger",
		Version: Version,
		Flags:   pipeFlags(),
		Action:  pipeAction,
		Commands: []*cli.Command{
			rotateCommand(),
			validateCommand(),
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}
