// Package main provides a CLI for moving oracle prices on a forked chain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/archon-research/oracle-forge/internal/pkg/env"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

const usage = `usage: oracle-forge [-version] <command> [flags]

commands:
  set       move the price a protocol sees for an asset
  reset     restore the recorded original price, or set it to zero
  discover  print the feed a protocol reads for an asset
  inject    replace the code at an address with the mock feed
  verify    compare the value at a feed with an expected value
  slot      compute or write a mapping storage slot
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("oracle-forge", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	showVersion := fs.Bool("version", false, "Show version information and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "oracle-forge\n")
		fmt.Fprintf(out, "  Commit:     %s\n", GitCommit)
		fmt.Fprintf(out, "  Branch:     %s\n", GitBranch)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		return nil
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	env.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}
	return cmd(ctx, logger, fs.Args()[1:], out)
}
