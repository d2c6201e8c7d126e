package ors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, url string, maxInFlight int64) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:     url,
		Timeout:     2 * time.Second,
		MaxInFlight: maxInFlight,
		CacheSize:   64,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func encodedRoute(lonlats ...[2]float64) string {
	coords := make([][]float64, len(lonlats))
	for i, ll := range lonlats {
		coords[i] = []float64{ll[1], ll[0]}
	}
	return string(polyline.EncodeCoords(coords))
}

func writeRoutes(w http.ResponseWriter, n int, distance float64) {
	routes := make([]map[string]any, n)
	for i := range routes {
		routes[i] = map[string]any{
			"geometry": encodedRoute([2]float64{106.8, -6.2}, [2]float64{106.81, -6.21}),
			"summary":  map[string]float64{"distance": distance + float64(i), "duration": 60},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"routes": routes})
}

func TestSnap(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
		want    geo.Coordinate
	}{
		{
			name: "snapped",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/snap/driving-car/geojson", r.URL.Path)
				var body snapRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, 8000.0, body.Radius)
				_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"snapped_distance":12.5},"geometry":{"type":"Point","coordinates":[106.8001,-6.2001]}}]}`))
			},
			want: geo.NewLonLat(106.8001, -6.2001),
		},
		{
			name: "empty features keeps original",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
			},
			want: geo.NewLonLat(106.8, -6.2),
		},
		{
			name: "server error keeps original",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: geo.NewLonLat(106.8, -6.2),
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := newTestClient(t, server.URL, 2)
			got := c.Snap(context.Background(), geo.NewLonLat(106.8, -6.2), 8000)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.Equal(t, geo.WGS84, got.CRS)
		})
	}
}

func TestSnapUnreachableService(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, url, 1)
	in := geo.NewLonLat(119.42, -5.14).To(geo.Mercator)
	got := c.Snap(context.Background(), in, 8000)
	assert.Equal(t, in, got)
}

func TestShortestPath(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/directions/driving-car", r.URL.Path)
		var body directionsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Geometry)
		assert.False(t, body.Instructions)
		assert.Nil(t, body.AlternativeRoutes)
		assert.Equal(t, [2]float64{106.8, -6.2}, body.Coordinates[0])
		writeRoutes(w, 1, 1520.5)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	from := geo.NewLonLat(106.8, -6.2)
	to := geo.NewLonLat(106.81, -6.21)

	route, err := c.ShortestPath(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 1520.5, route.DistanceM)
	assert.Equal(t, geo.Mercator, route.Geometry.CRS())
	start, ok := route.Geometry.Start()
	require.True(t, ok)
	assert.InDelta(t, from.To(geo.Mercator).X, start.X, 1e-6)

	// second identical request is served from the cache
	_, err = c.ShortestPath(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats().CacheHits)

	// same point never reaches the service
	zero, err := c.ShortestPath(context.Background(), from, from.To(geo.Mercator))
	require.NoError(t, err)
	assert.Zero(t, zero.DistanceM)
	assert.Equal(t, geo.SingleLine, zero.Geometry.Kind())
	assert.Zero(t, zero.Geometry.LengthM())

	near, err := c.ShortestPath(context.Background(), from, geo.NewLonLat(106.8, -6.200002))
	require.NoError(t, err)
	assert.InDelta(t, 0.22, near.DistanceM, 0.01)
	end, ok := near.Geometry.End()
	require.True(t, ok)
	assert.InDelta(t, -6.200002, end.To(geo.WGS84).GetLat(), 1e-9)
	assert.Equal(t, int32(1), calls.Load())
}

func TestShortestPathErrors(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "no routes",
			handler: func(w http.ResponseWriter, r *http.Request) { writeRoutes(w, 0, 0) },
			want:    ErrNoRouteFound,
		},
		{
			name: "route not found status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"code":2009,"message":"Route could not be found"}}`))
			},
			want: ErrNoRouteFound,
		},
		{
			name:    "overloaded",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:    ErrServiceUnavailable,
		},
		{
			name:    "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			want:    ErrServiceUnavailable,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := newTestClient(t, server.URL, 1)
			_, err := c.ShortestPath(context.Background(), geo.NewLonLat(106.8, -6.2), geo.NewLonLat(106.81, -6.21))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}
}

func TestShortestPathConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, url, 1)
	_, err := c.ShortestPath(context.Background(), geo.NewLonLat(106.8, -6.2), geo.NewLonLat(106.81, -6.21))
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
}

func TestAlternativeRoutesSkipsFailedSweeps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body directionsRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) || !assert.NotNil(t, body.AlternativeRoutes) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, 3, body.AlternativeRoutes.TargetCount)
		if body.AlternativeRoutes.WeightFactor == 2.0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeRoutes(w, 2, body.AlternativeRoutes.WeightFactor*1000)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 4)
	routes := c.AlternativeRoutes(context.Background(), geo.NewLonLat(106.8, -6.2), geo.NewLonLat(106.81, -6.21), DefaultSweep, 3)
	require.Len(t, routes, 6)

	got := []float64{}
	for _, r := range routes {
		got = append(got, r.DistanceM)
	}
	assert.InDeltaSlice(t, []float64{1400, 1401, 1100, 1101, 1800, 1801}, got, 1e-6)
}

func TestInFlightRequestsAreCapped(t *testing.T) {
	var current, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		writeRoutes(w, 1, 100)
	}))
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL, MaxInFlight: 2}, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := geo.NewLonLat(106.81+float64(i)*0.01, -6.21)
			_, err := c.ShortestPath(context.Background(), geo.NewLonLat(106.8, -6.2), to)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(10), c.Stats().Requests)
}
