package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/healnexus/internal/config"
	"github.com/healnexus/internal/ingestion"
	"github.com/healnexus/internal/logging"
	"github.com/healnexus/internal/mqttclient"
	"github.com/healnexus/internal/query"
	"github.com/healnexus/internal/rtdb"
	"github.com/healnexus/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (searched in ., ./config, /etc/healnexus when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healnexus: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healnexus: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	store, err := rtdb.New(rtdb.Options{
		BaseURL: cfg.Store.URL,
		Secret:  cfg.Store.Secret,
		Timeout: cfg.Store.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sinks []ingestion.Sink
	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(logger)
		go hub.Run(ctx)
	}

	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "healnexus-" + uuid.NewString()
		}
		mqttc, err := mqttclient.New(mqttclient.Options{BrokerURL: cfg.MQTT.Broker, ClientID: clientID})
		if err != nil {
			return err
		}
		defer mqttc.Close()
		logger.Info("live feed connected", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)

		sinks = append(sinks, mqttclient.NewReadingPublisher(mqttc, cfg.MQTT.Topic))
		if hub != nil {
			if err := hub.SubscribeMQTT(mqttc, cfg.MQTT.Topic); err != nil {
				return err
			}
		}
	} else if hub != nil {
		sinks = append(sinks, hub)
	}

	recorder := ingestion.NewRecorder(store, logger)
	poller := ingestion.NewPoller(store, recorder, ingestion.PollerOptions{
		Interval:        cfg.Poller.Interval,
		PollImmediately: cfg.Poller.Immediate,
		Sinks:           sinks,
		Logger:          logger,
	})

	engine := query.NewEngine(store, store, query.Options{
		HistoryLimit: cfg.Query.HistoryLimit,
		Logger:       logger,
	})
	var live query.LiveFeed
	if hub != nil {
		live = hub
	}
	svc := query.NewService(engine, poller, live, logger)
	server := query.NewServer(cfg.Server.Port, svc.Handler(), logger)

	poller.Start()

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case serveErr = <-errc:
		logger.Error("query server stopped", "error", serveErr)
	}

	poller.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("query server shutdown", "error", err)
	}
	cancel()
	return serveErr
}
