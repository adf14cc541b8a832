package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/application"
)

const keepaliveTimeout = 10 * time.Second

// keepalive periodically pings the service so hosting platforms that idle
// unused instances keep it warm.
type keepalive struct {
	cron *cron.Cron
}

// Stop halts the schedule and waits for a running ping to finish.
func (k *keepalive) Stop() {
	if k.cron == nil {
		return
	}
	<-k.cron.Stop().Done()
}

// startKeepalive schedules the self-ping. An empty schedule returns an
// inert keepalive.
func startKeepalive(cfg application.ServerConfig, logger *zap.Logger) (*keepalive, error) {
	if strings.TrimSpace(cfg.KeepaliveSchedule) == "" {
		return &keepalive{}, nil
	}

	target := keepaliveTarget(cfg)
	client := &http.Client{Timeout: keepaliveTimeout}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.KeepaliveSchedule, func() {
		if err := ping(context.Background(), client, target); err != nil {
			logger.Warn("keepalive ping failed", zap.String("url", target), zap.Error(err))
			return
		}
		logger.Debug("keepalive ping", zap.String("url", target))
	}); err != nil {
		return nil, fmt.Errorf("keepalive schedule %q: %w", cfg.KeepaliveSchedule, err)
	}
	c.Start()
	logger.Info("keepalive scheduled", zap.String("schedule", cfg.KeepaliveSchedule), zap.String("url", target))
	return &keepalive{cron: c}, nil
}

// keepaliveTarget returns the configured URL or the local /ping route.
func keepaliveTarget(cfg application.ServerConfig) string {
	if cfg.KeepaliveURL != "" {
		return cfg.KeepaliveURL
	}
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return "http://localhost" + cfg.Addr + "/ping"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/ping"
}

func ping(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
