package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/julienschmidt/httprouter"
	helper "github.com/mdepdi/be-fast-cablo/pkg/http/router/routerhelper"
	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

type lastmileAPI struct {
	service  LastmileService
	log      *zap.Logger
	validate *validator.Validate
	trans    ut.Translator
}

func New(service LastmileService, log *zap.Logger) *lastmileAPI {
	validate := validator.New()
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	return &lastmileAPI{
		service:  service,
		log:      log,
		validate: validate,
		trans:    trans,
	}
}

func (api *lastmileAPI) Routes(group *helper.RouteGroup) {
	group.POST("/lastmile/jobs", api.submitJob)
	group.GET("/lastmile/jobs", api.listJobs)
	group.GET("/lastmile/jobs/:id", api.getJob)
}

func (api *lastmileAPI) validationError(err error) error {
	vv := translateError(err, api.trans)
	vvString := []string{}
	for _, v := range vv {
		vvString = append(vvString, v.Error())
	}
	return fmt.Errorf("validation error: %v", vvString)
}

func (api *lastmileAPI) submitJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var request submitJobRequest

	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		api.BadRequestResponse(w, r, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := r.Body.Close(); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}

	if err := api.validate.Struct(request); err != nil {
		api.BadRequestResponse(w, r, api.validationError(err))
		return
	}

	mode, err := lastmile.ParseMode(request.Mode)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	job, err := api.service.SubmitJob(r.Context(), request.InputPath, request.OutputDir, mode, *request.ColumnMapping)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", "/api/v1/lastmile/jobs/"+job.ID)

	if err := api.writeJSON(w, http.StatusAccepted, envelope{"data": NewSubmitJobResponse(job)}, headers); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
}

func (api *lastmileAPI) getJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("id")
	if id == "" {
		api.BadRequestResponse(w, r, errors.New("job id is required"))
		return
	}

	job, err := api.service.GetJob(r.Context(), id)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	if err := api.writeJSON(w, http.StatusOK, envelope{"data": job}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
}

func (api *lastmileAPI) listJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.BadRequestResponse(w, r, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	jobs, err := api.service.ListJobs(r.Context(), limit)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	if err := api.writeJSON(w, http.StatusOK, envelope{"data": NewListJobsResponse(jobs)}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
}
