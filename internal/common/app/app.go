package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// CreateContextWithShutdown returns a context that reports done when a
// SIGINT or SIGTERM is received.  A second signal is not handled specially:
// shutdown is cooperative and bounded by the caller's grace period.
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			log.Infof("Received %s, shutting down gracefully", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
