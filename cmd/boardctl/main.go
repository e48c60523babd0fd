// Command boardctl is an operator client for a running boardcheck service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/boardcheck/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("boardctl: " + err.Error() + "\n")
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
