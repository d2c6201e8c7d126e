package controllers

import (
	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
)

type submitJobRequest struct {
	InputPath     string                  `json:"input_path" validate:"required"`
	ColumnMapping *lastmile.ColumnMapping `json:"column_mapping" validate:"required"`
	OutputDir     string                  `json:"output_dir"`
	Mode          string                  `json:"mode" validate:"omitempty,oneof=hybrid overlap"`
}

type submitJobResponse struct {
	JobID  string          `json:"job_id"`
	Status store.JobStatus `json:"status"`
}

func NewSubmitJobResponse(job *store.Job) submitJobResponse {
	return submitJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	}
}

type listJobsResponse struct {
	Jobs  []store.Job `json:"jobs"`
	Count int         `json:"count"`
}

func NewListJobsResponse(jobs []store.Job) listJobsResponse {
	return listJobsResponse{Jobs: jobs, Count: len(jobs)}
}
