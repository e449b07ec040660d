//go:build no_serial
// +build no_serial

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healnexus/internal/logging"
	"github.com/healnexus/internal/rtdb"
)

func main() {
	storeURL := flag.String("store", "http://localhost:9000", "realtime database base URL")
	secret := flag.String("secret", "", "realtime database secret")
	interval := flag.Duration("interval", time.Second, "publish interval")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *level, "text")
	if err != nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "publisher")

	client, err := rtdb.New(rtdb.Options{BaseURL: *storeURL, Secret: *secret, Logger: logger})
	if err != nil {
		logger.Error("store client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("publishing simulated readings", "store", *storeURL, "interval", *interval)
	simulate(ctx, client, *interval, rtdb.DefaultTimeout, logger)
}
