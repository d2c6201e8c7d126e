package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdepdi/be-fast-cablo/pkg/http/usecases"
	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/logger"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "path to the config file, defaults to ./data/config.yaml")
	inputPath  = flag.String("input", "", "CSV file with one FE/NE pair per row")
	outputDir  = flag.String("output", "", "output directory, defaults to data.output_dir")
	mode       = flag.String("mode", "", "hybrid or overlap, defaults to batch.mode")

	feNameCol = flag.String("fe_name_col", "Far End (FE)", "column holding the far end name")
	neNameCol = flag.String("ne_name_col", "Near End (NE)", "column holding the near end name")
	latFECol  = flag.String("lat_fe_col", "Lat_FE", "column holding the far end latitude")
	lonFECol  = flag.String("lon_fe_col", "Lon_FE", "column holding the far end longitude")
	latNECol  = flag.String("lat_ne_col", "Lat_NE", "column holding the near end latitude")
	lonNECol  = flag.String("lon_ne_col", "Lon_NE", "column holding the near end longitude")
)

func main() {
	flag.Parse()
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if *inputPath == "" {
		log.Fatal("-input is required")
	}

	cfg, err := util.ReadConfig(*configPath)
	if err != nil {
		log.Fatal("read config", zap.Error(err))
	}
	if *mode != "" {
		cfg.Batch.Mode = *mode
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newRunner := usecases.NewProcessorFactory(batchCfg, resources.Engine, resources.Gateway, resources.Buffer, log)
	svc := usecases.NewLastmileService(ctx, log, jobs, newRunner, cfg.Data.OutputDir)

	mapping := lastmile.ColumnMapping{
		FENameCol: *feNameCol,
		NENameCol: *neNameCol,
		LatFECol:  *latFECol,
		LonFECol:  *lonFECol,
		LatNECol:  *latNECol,
		LonNECol:  *lonNECol,
	}
	job, err := svc.CreateJob(ctx, *inputPath, *outputDir, batchCfg.Mode)
	if err != nil {
		log.Fatal("create job", zap.Error(err))
	}
	if err := svc.RunJob(ctx, job, mapping); err != nil {
		log.Error("batch failed", zap.String("job_id", job.ID), zap.Error(err))
		os.Exit(1)
	}

	done, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		log.Fatal("read job", zap.Error(err))
	}
	log.Info("batch completed", zap.String("job_id", done.ID), zap.String("output_dir", done.OutputDir),
		zap.ByteString("outputs", done.Outputs), zap.Any("routing_service", resources.Gateway.Stats()))
}
