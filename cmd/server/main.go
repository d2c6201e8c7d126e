package main

import (
	"context"
	"flag"

	"github.com/mdepdi/be-fast-cablo/pkg/http"
	"github.com/mdepdi/be-fast-cablo/pkg/http/usecases"
	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/logger"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "path to the config file, defaults to ./data/config.yaml")
)

func main() {
	flag.Parse()
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := util.ReadConfig(*configPath)
	if err != nil {
		log.Fatal("read config", zap.Error(err))
	}
	batchCfg, err := lastmile.ConfigFrom(cfg)
	if err != nil {
		log.Fatal("invalid batch config", zap.Error(err))
	}

	resources, err := lastmile.LoadResources(cfg, log)
	if err != nil {
		log.Fatal("load resources", zap.Error(err))
	}

	jobs, err := store.New(cfg.Store.Path, log)
	if err != nil {
		log.Fatal("open job store", zap.Error(err))
	}
	defer jobs.Close()

	ctx, cleanup, err := NewContext()
	if err != nil {
		panic(err)
	}

	newRunner := usecases.NewProcessorFactory(batchCfg, resources.Engine, resources.Gateway, resources.Buffer, log)
	lastmileService := usecases.NewLastmileService(ctx, log, jobs, newRunner, cfg.Data.OutputDir)

	api := http.NewServer(log).Use(ctx, cfg.Server, lastmileService)
	log.Info("Last-mile routing server started", zap.String("pulau", cfg.Data.Pulau),
		zap.String("base_url", cfg.Server.BaseURL))

	signal := http.GracefulShutdown()
	log.Info("Last-mile routing server stopping", zap.String("signal", signal.String()))

	cleanup()
	if err := api.Wait(); err != nil && err != context.Canceled {
		log.Error("server stopped with error", zap.Error(err))
	}
	lastmileService.Wait()
	log.Info("Last-mile routing server stopped", zap.Any("routing_service", resources.Gateway.Stats()))
}

func NewContext() (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	cb := func() {
		cancel()
	}

	return ctx, cb, nil
}
