// Package main is the entry point for the eventbridge command/event
// protocol layer: it starts the server engine, or drives the client
// protocol engine for manual wire testing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/nugget/eventbridge/internal/adminhttp"
	"github.com/nugget/eventbridge/internal/buildinfo"
	"github.com/nugget/eventbridge/internal/config"
	"github.com/nugget/eventbridge/internal/obslog"
	"github.com/nugget/eventbridge/internal/obsmetrics"
	"github.com/nugget/eventbridge/internal/protocol"
	"github.com/nugget/eventbridge/internal/protocol/client"
	"github.com/nugget/eventbridge/internal/protocol/server"
	"github.com/nugget/eventbridge/internal/store"
	"github.com/nugget/eventbridge/internal/transport"
	"github.com/nugget/eventbridge/internal/transport/mqtttransport"
	"github.com/nugget/eventbridge/internal/transport/wstransport"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "serve":
		runServe(logger, *configPath)
	case "send":
		if flag.NArg() < 4 {
			fmt.Fprintln(os.Stderr, "usage: eventbridge send <target> <name> <payload-json>")
			os.Exit(1)
		}
		runSend(logger, *configPath, flag.Arg(1), flag.Arg(2), flag.Arg(3))
	case "subscribe":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: eventbridge subscribe <streamId>")
			os.Exit(1)
		}
		runSubscribe(logger, *configPath, flag.Arg(1))
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("eventbridge - correlated command/event protocol layer")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the server protocol engine, event store, and admin HTTP surface")
	fmt.Println("  send       Send a single command and print its result")
	fmt.Println("  subscribe  Subscribe to a stream and print events as they arrive")
	fmt.Println("  version    Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func loadConfig(logger *slog.Logger, configPath string) *config.Config {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	return cfg
}

func reconfigureLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		l, err := obslog.ParseLevel(cfg.LogLevel)
		if err == nil {
			level = l
		}
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: obslog.ReplaceLevelNames}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// runServe starts the server protocol engine bound to the configured
// transport, the event store/aggregate engine demo driving it, and the
// admin HTTP surface.
func runServe(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(cfg)
	logger.Info("starting eventbridge", "version", buildinfo.Version, "transport", cfg.Transport.Kind)

	registry := prometheus.NewRegistry()
	serverMetrics := obsmetrics.NewServerRegistry(registry)

	var (
		transportServer transport.Server
		httpServer      *http.Server
	)

	switch cfg.Transport.Kind {
	case "memory":
		logger.Error("transport.kind \"memory\" only works within a single process; run a library-embedded demo instead of the CLI for it")
		os.Exit(1)

	case "websocket":
		wsListener := wstransport.NewListener(logger)
		transportServer = wsListener
		httpServer = &http.Server{Addr: cfg.Transport.WebSocket.Address, Handler: wsListener}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("websocket listener failed", "error", err)
			}
		}()
		logger.Info("websocket transport listening", "address", cfg.Transport.WebSocket.Address)

	case "mqtt":
		ctx := context.Background()
		mqttListener, err := mqtttransport.Listen(ctx, cfg.Transport.MQTT.BrokerURL, cfg.Transport.MQTT.TopicPrefix, logger)
		if err != nil {
			logger.Error("failed to connect mqtt transport", "error", err)
			os.Exit(1)
		}
		transportServer = mqttListener
		logger.Info("mqtt transport connected", "broker", cfg.Transport.MQTT.BrokerURL, "prefix", cfg.Transport.MQTT.TopicPrefix)

	default:
		logger.Error("unknown transport.kind", "kind", cfg.Transport.Kind)
		os.Exit(1)
	}

	srv := server.New(transportServer, server.WithLogger(logger), server.WithMetrics(serverMetrics))

	if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0755); err != nil {
		logger.Error("failed to create store directory", "error", err)
		os.Exit(1)
	}
	eventStore, err := store.Open(cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open event store", "path", cfg.Store.DSN, "error", err)
		os.Exit(1)
	}
	defer eventStore.Close()
	logger.Info("event store opened", "dsn", cfg.Store.DSN)

	engine := store.NewEngine(eventStore, srv, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil {
			logger.Error("event engine stopped with error", "error", err)
		}
	}()

	var adminServer *http.Server
	if cfg.AdminHTTP.Enabled {
		router := adminhttp.NewRouter(srv, nil, registry)
		adminAddr := fmt.Sprintf("%s:%d", cfg.AdminHTTP.Address, cfg.AdminHTTP.Port)
		adminServer = &http.Server{Addr: adminAddr, Handler: router}
		go func() {
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin http server failed", "error", err)
			}
		}()
		logger.Info("admin http listening", "address", adminAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	<-engineDone

	shutdownCtx := context.Background()
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Error("error closing server", "error", err)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	if adminServer != nil {
		_ = adminServer.Shutdown(shutdownCtx)
	}

	logger.Info("eventbridge stopped")
}

// runSend dials the configured transport, sends one command, prints
// its result, and exits.
func runSend(logger *slog.Logger, configPath, target, name, payloadJSON string) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(cfg)

	t := dialClientTransport(logger, cfg)
	defer t.Close()

	p := client.New(t, client.WithLogger(logger))
	defer p.Close(context.Background())

	result, err := p.Send(context.Background(), protocol.Command{
		ID:      uuid.NewString(),
		Target:  target,
		Name:    name,
		Payload: json.RawMessage(payloadJSON),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
	if result.Success {
		fmt.Printf("ok: stream=%s eventNumber=%d\n", result.Position.StreamID, result.Position.EventNumber)
	} else {
		fmt.Printf("rejected: %s\n", result.Err)
		os.Exit(1)
	}
}

// runSubscribe dials the configured transport, opens a subscription on
// streamID, and prints events as they arrive until interrupted.
func runSubscribe(logger *slog.Logger, configPath, streamID string) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(cfg)

	t := dialClientTransport(logger, cfg)
	defer t.Close()

	p := client.New(t, client.WithLogger(logger))
	defer p.Close(context.Background())

	var (
		sub *client.Subscription
		err error
	)
	if cfg.Subscriptions.Bounded {
		sub, err = p.SubscribeBounded(context.Background(), streamID, cfg.Subscriptions.Capacity)
	} else {
		sub, err = p.Subscribe(context.Background(), streamID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe failed: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigCh
		cancel()
	}()

	for {
		event, err := sub.Next(ctx)
		if err != nil {
			return
		}
		fmt.Printf("%s #%d %s %s\n", event.Position.StreamID, event.Position.EventNumber, event.Type, string(event.Data))
	}
}

func dialClientTransport(logger *slog.Logger, cfg *config.Config) transport.Transport {
	switch cfg.Transport.Kind {
	case "websocket":
		t, err := wstransport.Dial(context.Background(), cfg.Transport.WebSocket.URL, logger)
		if err != nil {
			logger.Error("failed to dial websocket transport", "error", err)
			os.Exit(1)
		}
		return t
	case "mqtt":
		instanceID := cfg.Transport.MQTT.InstanceID
		if instanceID == "" {
			id, err := mqtttransport.NewInstanceID()
			if err != nil {
				logger.Error("failed to generate mqtt instance id", "error", err)
				os.Exit(1)
			}
			instanceID = id
		}
		t, err := mqtttransport.Dial(context.Background(), cfg.Transport.MQTT.BrokerURL, cfg.Transport.MQTT.TopicPrefix, instanceID, logger)
		if err != nil {
			logger.Error("failed to dial mqtt transport", "error", err)
			os.Exit(1)
		}
		return t
	default:
		logger.Error("transport.kind \"memory\" has no standalone listener to dial; send/subscribe need websocket or mqtt", "kind", cfg.Transport.Kind)
		os.Exit(1)
		return nil
	}
}

