// Command relayd lets one operator control this machine through a chat relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sipeed/relayd/pkg/config"
	"github.com/sipeed/relayd/pkg/device"
	"github.com/sipeed/relayd/pkg/logger"
	"github.com/sipeed/relayd/pkg/relay"
	"github.com/sipeed/relayd/pkg/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	host := device.NewHost(device.HostOptions{
		AppsDirs:       cfg.Device.AppsDirs,
		StoragePath:    cfg.Device.StoragePath,
		PowerSupplyDir: cfg.Device.PowerSupply,
		ActionTimeout:  cfg.Device.ActionTimeout,
	})

	// Console sessions end when stdin closes.
	var consoleDone <-chan struct{}
	relays := func(token string) (relay.Relay, error) {
		r, err := relay.New(cfg, token)
		if err != nil {
			return nil, err
		}
		if c, ok := r.(*relay.ConsoleRelay); ok {
			consoleDone = c.Done()
		}
		return r, nil
	}

	manager := service.NewManager(service.Options{
		Config: cfg,
		Relays: relays,
		Device: host,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := manager.Start(ctx, cfg.Token, cfg.OperatorID); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-consoleDone:
			running = false
		case <-manager.Done():
			running = false
		case <-hup:
			logger.Info("Restarting session")
			if _, err := manager.Restart(ctx); err != nil {
				logger.ErrorCF("main", "Restart failed", map[string]any{"error": err.Error()})
				running = false
			}
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return manager.Stop(stopCtx)
}
