//go:build !no_serial
// +build !no_serial

package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tarm/serial"

	"github.com/healnexus/internal/logging"
	"github.com/healnexus/internal/rtdb"
)

func main() {
	port := flag.String("port", "/dev/tty.usbmodem14101", "serial port for arduino")
	baud := flag.Int("baud", 9600, "serial baud rate")
	storeURL := flag.String("store", "http://localhost:9000", "realtime database base URL")
	secret := flag.String("secret", "", "realtime database secret")
	interval := flag.Duration("interval", time.Second, "simulation publish interval")
	sim := flag.Bool("sim", true, "simulate sensors instead of reading serial")
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

	if *sim {
		logger.Info("publishing simulated readings", "store", *storeURL, "interval", *interval)
		simulate(ctx, client, *interval, rtdb.DefaultTimeout, logger)
		return
	}

	s, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
	if err != nil {
		logger.Error("open serial", "port", *port, "error", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	logger.Info("publishing serial readings", "port", *port, "baud", *baud)
	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		snap, err := parseLine(scanner.Text())
		if err != nil {
			logger.Warn("skipping serial line", "line", scanner.Text(), "error", err)
			continue
		}
		push(ctx, client, snap, rtdb.DefaultTimeout, logger)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Error("serial read", "error", err)
	}
}
