// Package main is the entry point for the Aloud server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/di"
	"github.com/aloudapp/aloud-server/internal/logger"
)

func main() {
	injector := di.NewContainer()

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// The injector tears services down in reverse dependency order.
	if err := injector.Shutdown(); err != nil {
		log.WithError(err).Error("shutdown error")
	}

	log.Info("goodbye")
}
