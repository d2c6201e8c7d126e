package routing

import (
	"errors"
	"sync"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
	da "github.com/mdepdi/be-fast-cablo/pkg/datastructure"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// a --100-- b --100-- c --50-- d      e --10-- f
//  \________250______/
func testGraph() *da.Graph {
	return da.NewGraph(nil, []da.EdgeInput{
		{From: "a", To: "b", Length: 100, Geometry: orb.LineString{{0, 0}, {100, 0}}},
		{From: "b", To: "c", Length: 100, Geometry: orb.LineString{{100, 0}, {200, 0}}},
		{From: "a", To: "c", Length: 250, Geometry: orb.LineString{{0, 0}, {100, 100}, {200, 0}}},
		{From: "c", To: "d", Length: 50, Geometry: orb.LineString{{200, 0}, {250, 0}}},
		{From: "e", To: "f", Length: 10, Geometry: orb.LineString{{1000, 0}, {1010, 0}}},
	})
}

func newTestEngine(t *testing.T) *RoutingEngine {
	t.Helper()
	cache, err := lru.New[PathCacheKey, PathResult](16)
	require.NoError(t, err)
	return NewRoutingEngine(testGraph(), zap.NewNop(), cache)
}

func TestShortestPath(t *testing.T) {
	re := newTestEngine(t)

	testCases := []struct {
		name       string
		from, to   string
		wantNodes  []string
		wantWeight float64
	}{
		{name: "prefers two short edges", from: "a", to: "c", wantNodes: []string{"a", "b", "c"}, wantWeight: 200},
		{name: "reverse direction", from: "d", to: "a", wantNodes: []string{"d", "c", "b", "a"}, wantWeight: 250},
		{name: "same node", from: "b", to: "b", wantNodes: []string{"b"}, wantWeight: 0},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			res, err := re.ShortestPath(tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, res.Found)
			assert.Equal(t, tt.wantNodes, res.Nodes)
			assert.InDelta(t, tt.wantWeight, res.TotalWeight, 1e-9)
			assert.Equal(t, len(tt.wantNodes) == 1, res.Geometry.IsEmpty())
		})
	}
}

func TestShortestPathGeometryIsMerged(t *testing.T) {
	re := newTestEngine(t)
	res, err := re.ShortestPath("a", "d")
	require.NoError(t, err)
	assert.Equal(t, geo.SingleLine, res.Geometry.Kind())
	assert.Equal(t, geo.Mercator, res.Geometry.CRS())
	assert.InDelta(t, 250.0, res.Geometry.LengthM(), 1e-9)

	// cached result is identical
	again, err := re.ShortestPath("a", "d")
	require.NoError(t, err)
	assert.Equal(t, res.Nodes, again.Nodes)
}

func TestShortestPathErrors(t *testing.T) {
	re := newTestEngine(t)

	_, err := re.ShortestPath("a", "f")
	assert.True(t, errors.Is(err, ErrNoPath))

	_, err = re.ShortestPath("a", "zzz")
	assert.True(t, errors.Is(err, ErrUnknownNode))
	_, err = re.ShortestPath("zzz", "a")
	assert.True(t, errors.Is(err, ErrUnknownNode))
}

func TestShortestPathsMatchesSingleQueries(t *testing.T) {
	re := newTestEngine(t)
	targets := []string{"b", "c", "d", "f", "missing"}

	many, err := re.ShortestPaths("a", targets)
	require.NoError(t, err)
	assert.Len(t, many, 3)
	assert.NotContains(t, many, "f")

	for _, target := range []string{"b", "c", "d"} {
		single, err := re.ShortestPath("a", target)
		require.NoError(t, err)
		assert.Equal(t, single.Nodes, many[target].Nodes)
		assert.InDelta(t, single.TotalWeight, many[target].TotalWeight, 1e-9)
	}
}

func TestReachableWithin(t *testing.T) {
	re := newTestEngine(t)

	testCases := []struct {
		name   string
		cutoff float64
		want   map[string]float64
	}{
		{name: "only source", cutoff: 50, want: map[string]float64{"a": 0}},
		{name: "cutoff inclusive", cutoff: 200, want: map[string]float64{"a": 0, "b": 100, "c": 200}},
		{name: "whole component", cutoff: 50000, want: map[string]float64{"a": 0, "b": 100, "c": 200, "d": 250}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := re.ReachableWithin("a", tt.cutoff)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConcurrentQueries(t *testing.T) {
	re := NewRoutingEngine(testGraph(), zap.NewNop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := re.ShortestPath("d", "a")
			assert.NoError(t, err)
			assert.InDelta(t, 250.0, res.TotalWeight, 1e-9)
			reached, err := re.ReachableWithin("e", 100)
			assert.NoError(t, err)
			assert.Len(t, reached, 2)
		}()
	}
	wg.Wait()
}
