package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/application"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/version"
)

func main() {
	args := os.Args[1:]
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("chatserver %s (commit %s, built %s)\n", version.String(), version.GitCommit, version.BuildTime)
			return
		}
	}

	undo, err := maxprocs.Set(maxprocs.Logger(log.S().Infof))
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	defer undo()

	// Stop accepting on SIGINT/SIGTERM; open sessions are closed after their queued replies are written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Main(ctx, args); err != nil {
		log.Error("chat server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}
