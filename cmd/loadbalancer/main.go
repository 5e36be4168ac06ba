package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"mc-loadbalancer/internal/config"
	"mc-loadbalancer/internal/conn"
	"mc-loadbalancer/internal/metrics"
	"mc-loadbalancer/internal/resolve"
	"mc-loadbalancer/internal/selector"
	"mc-loadbalancer/internal/status"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	logrus.SetLevel(level)

	metrics.Register()
	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress)
	}

	resolver := resolve.New()
	finder, err := selector.New(cfg, resolver)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build server selector")
	}
	cache := status.NewCache(finder)

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logrus.WithError(err).WithField("address", cfg.ListenAddress).Fatal("Failed to listen")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.WithFields(logrus.Fields{
		"address": cfg.ListenAddress,
		"mode":    cfg.Mode,
	}).Info("Load balancer listening")

	server := conn.NewServer(finder, cache, resolver, cfg.MOTD, cfg.ConnectionRate)
	if err := server.Serve(ctx, ln); err != nil {
		logrus.WithError(err).Fatal("Serve failed")
	}
	logrus.Info("Shutdown complete")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logrus.WithField("address", addr).Info("Metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Error("Metrics listener failed")
	}
}
