package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/G-Research/scalebench/internal/common/benchcontext"
)

// CreateContextWithShutdown returns a context that is cancelled when SIGINT or SIGTERM is received, or when the
// returned cancel function is called.
func CreateContextWithShutdown() (*benchcontext.Context, context.CancelFunc) {
	ctx, cancel := benchcontext.WithCancel(benchcontext.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			ctx.Warnf("Interrupted; writing the results gathered so far")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
