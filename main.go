package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"aggticker/config"
	"aggticker/internal/metrics"
	"aggticker/internal/provider"
	"aggticker/internal/publisher"
	"aggticker/internal/refresher"
	"aggticker/internal/server"
	"aggticker/internal/service"
	"aggticker/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Service.Name,
		"version":     cfg.Service.Version,
		"environment": config.AppEnvironment(),
		"venues":      cfg.Provider.Venues,
	}).Info("starting aggticker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if logger.ReportEnabled(cfg.Logging.Level) {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	if err := metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch); err != nil {
		log.WithError(err).Warn("CloudWatch metrics disabled")
	}
	defer metrics.ShutdownCloudWatch()

	prov, err := provider.New(cfg.Provider)
	if err != nil {
		log.WithError(err).Error("failed to create ticker provider")
		os.Exit(1)
	}

	bus, err := publisher.NewKafka(cfg.Bus)
	if err != nil {
		log.WithError(err).Error("failed to create kafka publisher")
		os.Exit(1)
	}

	svc := service.New(cfg, prov, bus)

	httpServer, err := server.NewServer(cfg.Server, svc, log)
	if err != nil {
		log.WithError(err).Error("failed to create http server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.Run(ctx, cfg.Service.Name); err != nil {
				log.WithError(err).Error("http server stopped")
				cancel()
			}
		}()
	} else {
		log.WithComponent("main").Info("http server disabled")
	}

	var ref *refresher.Refresher
	if cfg.Refresh.Enabled {
		ref = refresher.New(cfg.Refresh, svc)
		if err := ref.Start(ctx); err != nil {
			log.WithError(err).Error("refresher failed to start")
			os.Exit(1)
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	cancel()

	if ref != nil {
		log.Info("stopping refresher")
		ref.Stop()
	}

	wg.Wait()

	log.Info("closing kafka publisher")
	if err := bus.Close(); err != nil {
		log.WithError(err).Warn("failed to close kafka publisher")
	}

	log.Info("aggticker stopped")
}
