// Package main provides the raidfinder command-line tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MJE43/raid-frame-finder/internal/cli"
)

func main() {
	cfg, err := cli.LoadConfig()
	if err != nil {
		exitf(1, "Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = cli.New(cfg, os.Stdout, os.Stderr).Run(ctx, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, cli.ErrUsage):
		stop()
		exitf(2, "Error: %v", err)
	default:
		stop()
		exitf(1, "Error: %v", err)
	}
}

func exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
