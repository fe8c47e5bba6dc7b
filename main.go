package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ballancemmo/relay/internal/config"
	"ballancemmo/relay/internal/logging"
	"ballancemmo/relay/internal/moderation"
	"ballancemmo/relay/internal/recorder"
	"ballancemmo/relay/internal/transport"
)

func main() {
	configPath := flag.String("config", "relay.yml", "path to the relay configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging setup error:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.ReplaceGlobals(logger)

	//1.- Fatal setup errors abort before any serving state exists.
	mod, err := moderation.Open(cfg.ModerationDBPath)
	if err != nil {
		logger.Fatal("open moderation store", logging.Error(err))
	}
	defer mod.Close()

	var rec FlightRecorder
	archiveCtx, stopArchiver := context.WithCancel(context.Background())
	defer stopArchiver()
	if cfg.Recorder.Enabled {
		flight, err := recorder.New(recorder.Options{
			Dir:    cfg.Recorder.Dir,
			Snappy: cfg.Recorder.Snappy,
		}, 0)
		if err != nil {
			logger.Fatal("open flight recorder", logging.Error(err))
		}
		rec = flight
		archiver := recorder.NewArchiver(cfg.Recorder.Dir, recorder.RetentionPolicy{
			MaxFiles: cfg.Recorder.MaxArchives,
			MaxAge:   time.Duration(cfg.Recorder.MaxAgeDays) * 24 * time.Hour,
		}, logger)
		go archiver.Run(archiveCtx, cfg.Recorder.SweepInterval)
	}

	server := transport.NewServer(transport.Options{
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval,
		MaxClients:      cfg.MaxClients,
		Logger:          logger,
	})

	broker := NewBroker(cfg, server, mod, rec, logger)
	go broker.Serve(server.Events())

	go func() {
		logger.Info("relay listening",
			logging.String("url", listenerURL(cfg.Address)),
			logging.String("server", cfg.ServerName))
		if err := server.ListenAndServe(cfg.Address); err != nil {
			logger.Fatal("listen failed", logging.Error(err))
		}
	}()

	//2.- The console runs on its own goroutine; a stop command or signal wins.
	done := make(chan struct{})
	go runConsole(broker, done)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-signals:
		logger.Info("signal received", logging.String("signal", sig.String()))
	case <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	broker.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("transport shutdown", logging.Error(err))
	}
}

// runConsole reads operator commands from stdin until EOF or "stop".
func runConsole(broker *Broker, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		reply, err := broker.Execute(scanner.Text())
		if errors.Is(err, ErrStop) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if reply != "" {
			fmt.Println(reply)
		}
	}
}
