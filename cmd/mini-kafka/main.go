// Command mini-kafka runs the broker: bind the listener, serve connections,
// and shut down cleanly on SIGINT/SIGTERM.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mini-kafka/broker"
	"mini-kafka/config"
	"mini-kafka/logging"
	"mini-kafka/middleware"
	"mini-kafka/registry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			bootLogger := logging.New("mini-kafka", "info")
			bootLogger.Fatal().Err(err).Msg("failed to load config")
		}
	}

	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = cfg.ListenAddr
	}

	logger := logging.New("mini-kafka", cfg.LogLevel)

	var reg registry.Registry
	if len(cfg.EtcdEndpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect registry")
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	svr := broker.NewServer(logger)
	svr.SetCluster(cfg.Cluster)
	svr.SetNodeID(cfg.NodeID)

	if cfg.RateLimit > 0 {
		svr.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if d, _ := cfg.Timeout(); d > 0 {
		svr.Use(middleware.Timeout(d))
	}
	svr.Use(middleware.Logging(logger))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := svr.Shutdown(shutdownTimeout); err != nil {
			logger.Error().Err(err).Msg("shutdown incomplete")
			os.Exit(1)
		}
	}()

	if err := svr.Serve("tcp", cfg.ListenAddr, cfg.AdvertiseAddr, reg); err != nil {
		logger.Fatal().Err(err).Msg("broker failed")
	}
}
