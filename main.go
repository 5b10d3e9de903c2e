package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/radiorec/radiorec/cmd"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=..."
var (
	version   string
	buildDate string
	commit    string
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := app.NewContext(&buildinfo.Context{
		Version:   version,
		BuildDate: buildDate,
		Commit:    commit,
	})
	defer ctx.Shutdown()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(ctx)
	if err := rootCmd.ExecuteContext(sigCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
