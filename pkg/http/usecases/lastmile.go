package usecases

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/mdepdi/be-fast-cablo/pkg/engine"
	"github.com/mdepdi/be-fast-cablo/pkg/export"
	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/overlap"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
)

type BatchRunner interface {
	Run(ctx context.Context, requestID string, requests []lastmile.Request) (*lastmile.BatchResult, error)
}

type RunnerFactory func(mode lastmile.Mode) (BatchRunner, error)

// NewProcessorFactory builds a fresh lastmile.Processor per job from base with the job's mode.
// The engine, gateway and buffer are shared read-only.
func NewProcessorFactory(base lastmile.Config, eng *engine.Engine, gateway lastmile.Gateway,
	buffer *overlap.Buffer, log *zap.Logger) RunnerFactory {
	return func(mode lastmile.Mode) (BatchRunner, error) {
		cfg := base
		cfg.Mode = mode
		p, err := lastmile.NewProcessor(cfg, eng, gateway, buffer, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

type JobStore interface {
	CreateJob(ctx context.Context, mode, inputPath, outputDir string) (*store.Job, error)
	MarkProcessing(ctx context.Context, id string, totalRequests int) error
	MarkCompleted(ctx context.Context, id string, processedRequests int, summary, outputs any) error
	MarkFailed(ctx context.Context, id string, cause error) error
	GetJob(ctx context.Context, id string) (*store.Job, error)
	ListJobs(ctx context.Context, limit int) ([]store.Job, error)
}

// LastmileService runs batch jobs in the background and tracks them in the job store.
type LastmileService struct {
	log              *zap.Logger
	jobs             JobStore
	newRunner        RunnerFactory
	defaultOutputDir string

	// lifetime of background jobs, cancelled on server shutdown
	ctx context.Context
	wg  sync.WaitGroup
}

func NewLastmileService(ctx context.Context, log *zap.Logger, jobs JobStore, newRunner RunnerFactory,
	defaultOutputDir string) *LastmileService {
	return &LastmileService{
		log:              log,
		jobs:             jobs,
		newRunner:        newRunner,
		defaultOutputDir: defaultOutputDir,
		ctx:              ctx,
	}
}

// SubmitJob records a pending job and starts it in the background. The input file is checked
// up front so a bad path fails the request instead of the job.
func (s *LastmileService) SubmitJob(ctx context.Context, inputPath, outputDir string, mode lastmile.Mode,
	mapping lastmile.ColumnMapping) (*store.Job, error) {
	job, err := s.CreateJob(ctx, inputPath, outputDir, mode)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.RunJob(s.ctx, job, mapping); err != nil {
			s.log.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
	return job, nil
}

func (s *LastmileService) CreateJob(ctx context.Context, inputPath, outputDir string, mode lastmile.Mode) (*store.Job, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, util.WrapErrorf(err, util.ErrBadParamInput, "input file %s", inputPath)
	}
	if outputDir == "" {
		outputDir = s.defaultOutputDir
	}
	return s.jobs.CreateJob(ctx, string(mode), inputPath, outputDir)
}

// RunJob processes a pending job to completion. State changes are written even when ctx is
// cancelled so an interrupted job ends up failed rather than stuck in processing.
func (s *LastmileService) RunJob(ctx context.Context, job *store.Job, mapping lastmile.ColumnMapping) error {
	storeCtx := context.WithoutCancel(ctx)
	fail := func(cause error) error {
		if err := s.jobs.MarkFailed(storeCtx, job.ID, cause); err != nil {
			s.log.Error("mark job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return cause
	}

	requests, err := lastmile.ReadRequests(job.InputPath, mapping)
	if err != nil {
		return fail(err)
	}
	if err := s.jobs.MarkProcessing(storeCtx, job.ID, len(requests)); err != nil {
		return fail(err)
	}

	mode, err := lastmile.ParseMode(job.Mode)
	if err != nil {
		return fail(err)
	}
	runner, err := s.newRunner(mode)
	if err != nil {
		return fail(err)
	}

	s.log.Info("job started", zap.String("job_id", job.ID), zap.String("mode", job.Mode),
		zap.Int("requests", len(requests)))
	res, err := runner.Run(ctx, job.ID, requests)
	if err != nil {
		if res != nil && errors.Is(err, lastmile.ErrNoSuccessfulRequests) && len(res.Failures) > 0 {
			err = errors.Join(err, res.Failures[0].Err)
		}
		return fail(err)
	}

	outputs, err := export.WriteBatch(job.OutputDir, res)
	if err != nil {
		return fail(err)
	}
	if err := s.jobs.MarkCompleted(storeCtx, job.ID, res.Summary.ProcessedRequests, res.Summary, outputs); err != nil {
		return fail(err)
	}
	s.log.Info("job completed", zap.String("job_id", job.ID), zap.Int("processed", res.Summary.ProcessedRequests),
		zap.Int("failed", len(res.Failures)), zap.Duration("elapsed", res.Elapsed))
	return nil
}

func (s *LastmileService) GetJob(ctx context.Context, id string) (*store.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

func (s *LastmileService) ListJobs(ctx context.Context, limit int) ([]store.Job, error) {
	return s.jobs.ListJobs(ctx, limit)
}

// Wait blocks until every background job has returned.
func (s *LastmileService) Wait() {
	s.wg.Wait()
}
