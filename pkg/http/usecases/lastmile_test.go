package usecases

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/aggregate"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/hybrid"
	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/store"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const inputCSV = `Far End (FE),Near End (NE),Lat_FE,Lon_FE,Lat_NE,Lon_NE
FE-1,NE-1,-6.20,106.80,-6.21,106.81
`

// stubRunner turns every request into one straight new-build segment.
type stubRunner struct {
	mode lastmile.Mode
	err  error
}

func (s *stubRunner) Run(ctx context.Context, requestID string, requests []lastmile.Request) (*lastmile.BatchResult, error) {
	if s.err != nil {
		return &lastmile.BatchResult{RequestID: requestID, Failures: []lastmile.RequestFailure{{Index: 0, Err: s.err}}},
			util.WrapErrorf(lastmile.ErrNoSuccessfulRequests, util.ErrBadParamInput, "none routed")
	}
	records := []aggregate.Record{}
	for _, r := range requests {
		line := geo.NewLine(orb.LineString{r.FE.Point(), r.NE.Point()}, geo.WGS84).To(geo.Mercator)
		records = append(records, aggregate.Record{
			RequestID: requestID, Index: r.Index, FEName: r.FEName, NEName: r.NEName, FE: r.FE, NE: r.NE,
			Segment: hybrid.Segment{Kind: pkg.EXTERNAL_ROUTED, Geometry: line, DistanceM: line.LengthM()},
		})
	}
	groups := aggregate.Dissolve(records)
	summary := aggregate.Summarize(groups, len(records), len(requests), len(requests))
	summary.RequestID = requestID
	summary.Mode = string(s.mode)
	return &lastmile.BatchResult{RequestID: requestID, Mode: s.mode, Records: records, Groups: groups, Summary: summary}, nil
}

func newTestService(t *testing.T, runErr error) (*LastmileService, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	jobs, err := store.New(filepath.Join(dir, "jobs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { jobs.Close() })

	input := filepath.Join(dir, "requests.csv")
	require.NoError(t, os.WriteFile(input, []byte(inputCSV), 0o644))

	factory := func(mode lastmile.Mode) (BatchRunner, error) {
		return &stubRunner{mode: mode, err: runErr}, nil
	}
	svc := NewLastmileService(context.Background(), zap.NewNop(), jobs, factory, filepath.Join(dir, "outputs"))
	return svc, jobs, input
}

// flakyStore fails the selected state transitions and delegates everything else.
type flakyStore struct {
	*store.Store
	failProcessing bool
	failCompleted  bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) MarkProcessing(ctx context.Context, id string, totalRequests int) error {
	if f.failProcessing {
		return errDiskFull
	}
	return f.Store.MarkProcessing(ctx, id, totalRequests)
}

func (f *flakyStore) MarkCompleted(ctx context.Context, id string, processedRequests int, summary, outputs any) error {
	if f.failCompleted {
		return errDiskFull
	}
	return f.Store.MarkCompleted(ctx, id, processedRequests, summary, outputs)
}

func TestRunJobStoreFailures(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name           string
		failProcessing bool
		failCompleted  bool
	}{
		{name: "mark processing", failProcessing: true},
		{name: "mark completed", failCompleted: true},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, jobs, input := newTestService(t, nil)
			flaky := &flakyStore{Store: jobs, failProcessing: tt.failProcessing, failCompleted: tt.failCompleted}
			factory := func(mode lastmile.Mode) (BatchRunner, error) {
				return &stubRunner{mode: mode}, nil
			}
			svc := NewLastmileService(ctx, zap.NewNop(), flaky, factory, filepath.Join(t.TempDir(), "outputs"))

			job, err := svc.CreateJob(ctx, input, "", lastmile.MODE_HYBRID)
			require.NoError(t, err)

			err = svc.RunJob(ctx, job, lastmile.DefaultColumnMapping())
			assert.True(t, errors.Is(err, errDiskFull))

			got, err := svc.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, store.STATUS_FAILED, got.Status)
			assert.Contains(t, got.Error, "disk full")
		})
	}
}

func TestSubmitJobCompletes(t *testing.T) {
	ctx := context.Background()
	svc, _, input := newTestService(t, nil)

	job, err := svc.SubmitJob(ctx, input, "", lastmile.MODE_HYBRID, lastmile.DefaultColumnMapping())
	require.NoError(t, err)
	assert.Equal(t, store.STATUS_PENDING, job.Status)
	svc.Wait()

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.STATUS_COMPLETED, got.Status)
	assert.Equal(t, 1, got.TotalRequests)
	assert.Equal(t, 1, got.ProcessedRequests)
	assert.Contains(t, string(got.Summary), `"mode":"hybrid"`)
	assert.Contains(t, string(got.Outputs), "kml")

	entries, err := os.ReadDir(got.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	jobs, err := svc.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRunJobFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no request routed", func(t *testing.T) {
		svc, _, input := newTestService(t, errors.New("routing service down"))
		job, err := svc.CreateJob(ctx, input, "", lastmile.MODE_HYBRID)
		require.NoError(t, err)

		err = svc.RunJob(ctx, job, lastmile.DefaultColumnMapping())
		require.Error(t, err)
		assert.True(t, errors.Is(err, lastmile.ErrNoSuccessfulRequests))

		got, err := svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, store.STATUS_FAILED, got.Status)
		assert.Contains(t, got.Error, "routing service down")
	})

	t.Run("missing column", func(t *testing.T) {
		svc, _, input := newTestService(t, nil)
		job, err := svc.CreateJob(ctx, input, "", lastmile.MODE_HYBRID)
		require.NoError(t, err)

		mapping := lastmile.DefaultColumnMapping()
		mapping.LatFECol = "latitude"
		err = svc.RunJob(ctx, job, mapping)
		assert.True(t, errors.Is(err, lastmile.ErrMissingColumn))

		got, err := svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, store.STATUS_FAILED, got.Status)
	})

	t.Run("missing input file", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil)
		_, err := svc.SubmitJob(ctx, filepath.Join(t.TempDir(), "nope.csv"), "", lastmile.MODE_HYBRID,
			lastmile.DefaultColumnMapping())
		assert.True(t, errors.Is(err, util.ErrBadParamInput))
	})
}
