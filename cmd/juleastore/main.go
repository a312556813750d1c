/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/juleastore/juleastore/backend"
	_ "github.com/juleastore/juleastore/backend/buntdb"
	_ "github.com/juleastore/juleastore/backend/ec"
	_ "github.com/juleastore/juleastore/backend/posix"
	_ "github.com/juleastore/juleastore/backend/s3"
	"github.com/juleastore/juleastore/config"
	"github.com/juleastore/juleastore/daemon"
	"github.com/juleastore/juleastore/stats"
)

func main() {
	var (
		daemonize   bool
		port        int
		configPath  string
		metricsAddr string
	)
	pflag.BoolVar(&daemonize, "daemon", false, "detach and run in the background")
	pflag.IntVar(&port, "port", 0, "listen port (overrides config)")
	pflag.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	pflag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (overrides config)")
	pflag.Parse()

	if daemonize {
		if err := daemon.Daemonize(); err != nil {
			fmt.Fprintf(os.Stderr, "juleastore: daemonize: %v\n", err)
			os.Exit(1)
		}
	}

	os.Exit(run(daemonize, port, configPath, metricsAddr))
}

func run(daemonize bool, portFlag int, configPath, metricsAddrFlag string) int {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "juleastore: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if portFlag != 0 {
		cfg.ListenPort = portFlag
	}
	if metricsAddrFlag != "" {
		cfg.MetricsAddr = metricsAddrFlag
	}

	log, err := newLogger(daemonize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "juleastore: build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	data, err := backend.NewData(cfg.StorageBackend)
	if err != nil {
		log.Error("unknown storage backend", zap.String("backend", cfg.StorageBackend), zap.Error(err))
		return 1
	}
	if err := data.Init(cfg.StoragePath); err != nil {
		log.Error("storage backend init failed", zap.String("backend", cfg.StorageBackend), zap.Error(err))
		return 1
	}

	reg := prometheus.NewRegistry()
	global := stats.NewGlobal(reg)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, log)
	}

	ln := daemon.NewListener(data, global, log)
	log.Info("juleastore starting",
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Int("port", cfg.ListenPort))

	if err := ln.Serve(context.Background(), cfg.ListenPort); err != nil {
		log.Error("listener stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

// newLogger builds a production zap logger for a daemonized process and
// a development logger otherwise. A daemonized process has redirected
// stdio to /dev/null by the time this runs, so its log output is
// discarded; Configuration has no setting that sends it elsewhere.
func newLogger(daemonized bool) (*zap.Logger, error) {
	if daemonized {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
