package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type emptyService struct{}

func (emptyService) SubmitJob(ctx context.Context, inputPath, outputDir string, mode lastmile.Mode,
	mapping lastmile.ColumnMapping) (*store.Job, error) {
	return &store.Job{ID: "j", Status: store.STATUS_PENDING}, nil
}

func (emptyService) GetJob(ctx context.Context, id string) (*store.Job, error) {
	return nil, util.WrapErrorf(store.ErrJobNotFound, util.ErrNotFound, "job %s", id)
}

func (emptyService) ListJobs(ctx context.Context, limit int) ([]store.Job, error) {
	return nil, nil
}

func TestHandlerMiddleware(t *testing.T) {
	handler := NewAPI(zap.NewNop()).Handler(emptyService{})

	testCases := []struct {
		name        string
		method      string
		path        string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "heartbeat", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "unknown job", method: http.MethodGet, path: "/api/v1/lastmile/jobs/x", wantStatus: http.StatusNotFound},
		{
			name:        "body must be json",
			method:      http.MethodPost,
			path:        "/api/v1/lastmile/jobs",
			body:        "input_path=a.csv",
			contentType: "application/x-www-form-urlencoded",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "json body accepted",
			method:      http.MethodPost,
			path:        "/api/v1/lastmile/jobs",
			body:        `{"input_path":"a.csv","column_mapping":{"fe_name_col":"a","ne_name_col":"b","lat_fe_col":"c","lon_fe_col":"d","lat_ne_col":"e","lon_ne_col":"f"}}`,
			contentType: "application/json; charset=utf-8",
			wantStatus:  http.StatusAccepted,
		},
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/nothing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRecoverPanic(t *testing.T) {
	api := NewAPI(zap.NewNop())
	h := api.recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}

func TestRealIP(t *testing.T) {
	var got string
	h := RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.RemoteAddr
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 172.16.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "10.1.2.3", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "192.0.2.1:1234", got)
}
