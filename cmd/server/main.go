package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"walkroutes/pkg/api"
	"walkroutes/pkg/config"
	"walkroutes/pkg/history"
	"walkroutes/pkg/logging"
	"walkroutes/pkg/metrics"
	"walkroutes/pkg/osm"
	"walkroutes/pkg/store"
	"walkroutes/pkg/surface"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (yaml/json/toml); env WALKROUTES_* overrides")
	addr := flag.String("addr", "", "Listen address, overrides server.addr")
	seed := flag.Bool("seed", true, "Load the demo routes on startup (combined with the seed setting)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	start := time.Now()

	source, geodata, err := openSource(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open geodata source", zap.Error(err))
	}

	classifier := surface.NewClassifier(source, surface.WithLogger(logger))
	engine := metrics.NewEngine(classifier,
		metrics.WithWorkers(cfg.Metrics.ClassifyWorkers),
		metrics.WithLogger(logger),
	)
	routes := store.New(history.New())

	if cfg.Seed && *seed {
		n := seedRoutes(routes)
		logger.Info("seeded demo routes", zap.Int("routes", n))
	}

	logger.Info("ready",
		zap.String("geodata", geodata),
		zap.Duration("startup", time.Since(start).Round(time.Millisecond)),
	)

	srvCfg := api.DefaultConfig(cfg.Server.Addr)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.RequestTimeout = cfg.Server.RequestTimeout
	if cfg.Server.MaxConcurrent > 0 {
		srvCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	}
	srvCfg.CORSOrigin = cfg.Server.CORSOrigin

	handlers := api.NewHandlers(routes, engine, geodata, logger)
	srv := api.NewServer(srvCfg, handlers, logger)

	if err := api.ListenAndServe(srv, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// openSource prefers a local PBF extract and falls back to Overpass.
// The returned label is reported by /api/v1/stats.
func openSource(cfg config.Config, logger *zap.Logger) (osm.Source, string, error) {
	if cfg.Geodata.PBFPath == "" {
		logger.Info("using overpass", zap.String("url", cfg.Overpass.URL))
		return osm.NewOverpass(cfg.Overpass.URL, cfg.Overpass.Timeout), "overpass", nil
	}

	logger.Info("loading OSM extract", zap.String("path", cfg.Geodata.PBFPath))
	f, err := os.Open(cfg.Geodata.PBFPath)
	if err != nil {
		return nil, "", fmt.Errorf("open extract: %w", err)
	}
	defer f.Close()

	ext, err := osm.LoadExtract(context.Background(), f, osm.ExtractOptions{Logger: logger})
	if err != nil {
		return nil, "", fmt.Errorf("load extract: %w", err)
	}
	logger.Info("extract loaded", zap.Int("features", ext.Len()))
	return ext, "extract", nil
}
