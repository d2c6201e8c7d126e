package controllers

import (
	"context"

	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
)

type LastmileService interface {
	SubmitJob(ctx context.Context, inputPath, outputDir string, mode lastmile.Mode,
		mapping lastmile.ColumnMapping) (*store.Job, error)
	GetJob(ctx context.Context, id string) (*store.Job, error)
	ListJobs(ctx context.Context, limit int) ([]store.Job, error)
}
