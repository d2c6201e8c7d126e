package lastmile

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mdepdi/be-fast-cablo/pkg"
	da "github.com/mdepdi/be-fast-cablo/pkg/datastructure"
	"github.com/mdepdi/be-fast-cablo/pkg/engine"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/ors"
	"github.com/mdepdi/be-fast-cablo/pkg/overlap"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"
)

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// straightLine is what the fake routing service answers: the straight line between the
// requested points at polyline precision.
func straightLine(from, to [2]float64) orb.LineString {
	return orb.LineString{
		{round5(from[0]), round5(from[1])},
		{round5(to[0]), round5(to[1])},
	}
}

// fakeORS fails snapping and answers every directions request with a straight line whose
// reported distance is its EPSG:3857 length. Legs longer than 5 km are reported detour times
// longer when detour is set.
type fakeORS struct {
	directions atomic.Int64
	fail       bool
	detour     float64
}

func (f *fakeORS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/snap/"):
		w.WriteHeader(http.StatusServiceUnavailable)
	case strings.HasPrefix(r.URL.Path, "/directions/"):
		f.directions.Add(1)
		if f.fail {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Coordinates [][2]float64 `json:"coordinates"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Coordinates) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ls := straightLine(body.Coordinates[0], body.Coordinates[1])
		distance := geo.NewLine(ls, geo.WGS84).LengthM()
		if f.detour > 0 && distance > 5000 {
			distance *= f.detour
		}
		coords := [][]float64{{ls[0][1], ls[0][0]}, {ls[1][1], ls[1][0]}}
		resp := map[string]any{
			"routes": []map[string]any{{
				"geometry": string(polyline.EncodeCoords(coords)),
				"summary": map[string]float64{
					"distance": distance,
					"duration": 60,
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeORS) *ors.Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	client, err := ors.NewClient(ors.Config{BaseURL: server.URL, Timeout: 5 * time.Second, MaxInFlight: 4, CacheSize: 64}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func mercator(lon, lat float64) orb.Point {
	return geo.NewLonLat(lon, lat).To(geo.Mercator).Point()
}

func chainGraph(points ...orb.Point) *da.Graph {
	ids := []string{"n1", "n2", "n3", "n4"}
	edges := []da.EdgeInput{}
	for i := 1; i < len(points); i++ {
		edges = append(edges, da.EdgeInput{
			From:     ids[i-1],
			To:       ids[i],
			Geometry: orb.LineString{points[i-1], points[i]},
		})
	}
	return da.NewGraph(ids, edges)
}

func newTestProcessor(t *testing.T, cfg Config, graph *da.Graph, gw Gateway, buf *overlap.Buffer) *Processor {
	t.Helper()
	eng, err := engine.NewEngineFromGraph(graph, zap.NewNop())
	require.NoError(t, err)
	p, err := NewProcessor(cfg, eng, gw, buf, zap.NewNop())
	require.NoError(t, err)
	return p
}

const twoRowCSV = `Far End (FE),Near End (NE),Lat_FE,Lon_FE,Lat_NE,Lon_NE
FE-1,NE-1,-6.20,106.80,-6.21,106.81
FE-2,NE-2,-6.22,106.82,-6.23,106.83
`

func TestRunEndToEnd(t *testing.T) {
	requests, err := DecodeRequests(strings.NewReader(twoRowCSV), DefaultColumnMapping())
	require.NoError(t, err)
	require.Len(t, requests, 2)

	// four nodes well outside the candidate radius of every request
	graph := chainGraph(mercator(110.00, -7.00), mercator(110.01, -7.00), mercator(110.02, -7.00), mercator(110.03, -7.00))
	fake := &fakeORS{}
	p := newTestProcessor(t, DefaultConfig(), graph, newTestClient(t, fake), nil)

	res, err := p.Run(context.Background(), "batch-1", requests)
	require.NoError(t, err)

	assert.Equal(t, "batch-1", res.RequestID)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "FE-1", res.Groups[0].FEName)
	assert.Equal(t, "FE-2", res.Groups[1].FEName)

	want := 0.0
	for _, rq := range [][2][2]float64{
		{{106.80, -6.20}, {106.81, -6.21}},
		{{106.82, -6.22}, {106.83, -6.23}},
	} {
		want += geo.NewLine(straightLine(rq[0], rq[1]), geo.WGS84).LengthM()
	}

	s := res.Summary
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 2, s.ProcessedRequests)
	assert.Equal(t, 2, s.TotalGroupsAfterDissolve)
	assert.InDelta(t, want, s.TotalDistanceM, 0.01)
	assert.InDelta(t, 100, s.OverlappedPercentage+s.NewBuildPercentage, 0.02)
	assert.Equal(t, 100.0, s.NewBuildPercentage)
	assert.Equal(t, "hybrid", s.Mode)
	assert.Equal(t, int64(2), fake.directions.Load(), "one direct route per request, nothing else")
}

func TestRunRoutesThroughGraph(t *testing.T) {
	n1, n2 := mercator(106.801, -6.20), mercator(106.899, -6.20)
	graph := chainGraph(n1, n2, mercator(106.899, -6.30), mercator(106.95, -6.30))
	p := newTestProcessor(t, DefaultConfig(), graph, newTestClient(t, &fakeORS{}), nil)

	requests := []Request{{Index: 0, FEName: "FE", NEName: "NE", FE: geo.NewLonLat(106.80, -6.20), NE: geo.NewLonLat(106.90, -6.20)}}
	res, err := p.Run(context.Background(), "", requests)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RequestID)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, pkg.GRAPH_ROUTED, res.Groups[0].Type)
	assert.Equal(t, pkg.EXTERNAL_ROUTED, res.Groups[1].Type)
	assert.InDelta(t, planarLength(n1, n2), res.Groups[0].TotalDistanceM, 1e-6)
	assert.Less(t, res.Groups[1].TotalDistanceM, 300.0)

	s := res.Summary
	assert.InDelta(t, 100, s.OverlappedPercentage+s.NewBuildPercentage, 0.02)
	assert.Greater(t, s.OverlappedPercentage, 95.0)
}

func TestRunLongDirectRouteUsesFiber(t *testing.T) {
	// FE -- n1 \ n2 / n3 -- NE, the fiber dips south while the road detours three times over
	n1, n2, n3 := mercator(106.801, -6.30), mercator(106.85, -6.33), mercator(106.899, -6.30)
	graph := chainGraph(n1, n2, n3)
	fake := &fakeORS{detour: 3}
	p := newTestProcessor(t, DefaultConfig(), graph, newTestClient(t, fake), nil)

	requests := []Request{{Index: 0, FEName: "FE-9", NEName: "NE-9", FE: geo.NewLonLat(106.80, -6.30), NE: geo.NewLonLat(106.90, -6.30)}}
	res, err := p.Run(context.Background(), "fiber-batch", requests)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)

	kinds := []pkg.SegmentType{}
	for _, r := range res.Records {
		if !r.Segment.Connector {
			kinds = append(kinds, r.Segment.Kind)
		}
	}
	assert.Equal(t, []pkg.SegmentType{pkg.EXTERNAL_ROUTED, pkg.GRAPH_ROUTED, pkg.EXTERNAL_ROUTED}, kinds)

	require.Len(t, res.Groups, 2)
	fiber := res.Groups[0]
	assert.Equal(t, pkg.GRAPH_ROUTED, fiber.Type)
	assert.Equal(t, pkg.LABEL_OVERLAPPED, fiber.Label)
	assert.Equal(t, "FE-9", fiber.FEName)
	assert.InDelta(t, planarLength(n1, n2)+planarLength(n2, n3), fiber.TotalDistanceM, 1e-6)

	newBuild := res.Groups[1]
	assert.Equal(t, pkg.EXTERNAL_ROUTED, newBuild.Type)
	assert.Less(t, newBuild.TotalDistanceM, 300.0)

	s := res.Summary
	assert.Equal(t, 1, s.ProcessedRequests)
	assert.InDelta(t, fiber.TotalDistanceM+newBuild.TotalDistanceM, s.TotalDistanceM, 0.01)
	assert.Greater(t, s.OverlappedPercentage, 95.0)
	assert.Greater(t, fake.directions.Load(), int64(1), "entry and exit legs are priced besides the direct route")
}

func planarLength(a, b orb.Point) float64 {
	return math.Hypot(b[0]-a[0], b[1]-a[1])
}

func TestRunOverlapMode(t *testing.T) {
	n1, n2 := mercator(106.801, -6.20), mercator(106.899, -6.20)
	graph := chainGraph(n1, n2, mercator(106.899, -6.30), mercator(106.95, -6.30))

	buf, err := overlap.NewBuffer([]overlap.Feature{{
		Name:     "cable",
		Geometry: orb.LineString{{106.801, -6.20}, {106.899, -6.20}},
	}}, geo.WGS84, pkg.DEFAULT_BUFFER_HALF_WIDTH_M)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Mode = MODE_OVERLAP
	p := newTestProcessor(t, cfg, graph, newTestClient(t, &fakeORS{}), buf)

	requests := []Request{{Index: 0, FEName: "FE", NEName: "NE", FE: geo.NewLonLat(106.80, -6.20), NE: geo.NewLonLat(106.90, -6.20)}}
	res, err := p.Run(context.Background(), "overlap-batch", requests)
	require.NoError(t, err)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, pkg.GRAPH_ROUTED, res.Groups[0].Type)
	assert.InDelta(t, planarLength(n1, n2), res.Groups[0].TotalDistanceM, 1e-6)
	assert.Equal(t, pkg.EXTERNAL_ROUTED, res.Groups[1].Type)
	assert.Equal(t, "overlap", res.Summary.Mode)

	// pieces come back in route order: new build, overlapped, new build
	kinds := []pkg.SegmentType{}
	for _, r := range res.Records {
		if !r.Segment.Connector {
			kinds = append(kinds, r.Segment.Kind)
		}
	}
	assert.Equal(t, []pkg.SegmentType{pkg.EXTERNAL_ROUTED, pkg.GRAPH_ROUTED, pkg.EXTERNAL_ROUTED}, kinds)
}

func TestRunNoSuccessfulRequests(t *testing.T) {
	requests, err := DecodeRequests(strings.NewReader(twoRowCSV), DefaultColumnMapping())
	require.NoError(t, err)

	graph := chainGraph(mercator(110.00, -7.00), mercator(110.01, -7.00))
	p := newTestProcessor(t, DefaultConfig(), graph, newTestClient(t, &fakeORS{fail: true}), nil)

	res, err := p.Run(context.Background(), "batch-2", requests)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuccessfulRequests))
	require.NotNil(t, res)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.Equal(t, 1, res.Failures[1].Index)
	assert.NotEmpty(t, res.Failures[0].Reason())
}

func TestRunSkipsCoincidentEndpoints(t *testing.T) {
	graph := chainGraph(mercator(110.00, -7.00), mercator(110.01, -7.00))
	fake := &fakeORS{}
	p := newTestProcessor(t, DefaultConfig(), graph, newTestClient(t, fake), nil)

	requests := []Request{
		{Index: 0, FEName: "FE-1", NEName: "NE-1", FE: geo.NewLonLat(106.80, -6.20), NE: geo.NewLonLat(106.80, -6.200001)},
		{Index: 1, FEName: "FE-2", NEName: "NE-2", FE: geo.NewLonLat(106.82, -6.22), NE: geo.NewLonLat(106.83, -6.23)},
	}
	res, err := p.Run(context.Background(), "same-site", requests)
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.True(t, errors.Is(res.Failures[0].Err, ErrCoincidentEndpoints))
	assert.Contains(t, res.Failures[0].Reason(), "same location")
	assert.Equal(t, 1, res.Summary.ProcessedRequests)
	assert.Equal(t, int64(1), fake.directions.Load())
}

func TestNewProcessorOverlapNeedsBuffer(t *testing.T) {
	eng, err := engine.NewEngineFromGraph(chainGraph(mercator(110, -7), mercator(110.01, -7)), zap.NewNop())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Mode = MODE_OVERLAP
	_, err = NewProcessor(cfg, eng, nil, nil, zap.NewNop())
	assert.True(t, errors.Is(err, ErrInfrastructure))

	cfg = DefaultConfig()
	cfg.Workers = 0
	_, err = NewProcessor(cfg, eng, nil, nil, zap.NewNop())
	assert.Error(t, err)
}
