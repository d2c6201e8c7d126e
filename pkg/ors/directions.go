package ors

import (
	"context"
	"errors"
	"math"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepParam is one alternative route generation setting.
type SweepParam struct {
	WeightFactor float64 `json:"weight_factor"`
	ShareFactor  float64 `json:"share_factor"`
}

// DefaultSweep goes from moderately diverse to aggressive alternatives.
var DefaultSweep = []SweepParam{
	{WeightFactor: 1.4, ShareFactor: 0.6},
	{WeightFactor: 2.0, ShareFactor: 0.3},
	{WeightFactor: 1.1, ShareFactor: 0.8},
	{WeightFactor: 1.8, ShareFactor: 0.4},
}

// Route is a normalized directions result. Geometry is in EPSG:3857, DistanceM is the
// distance reported by the service.
type Route struct {
	Geometry  geo.Polyline
	DistanceM float64
	DurationS float64
}

type alternativeRoutes struct {
	TargetCount  int     `json:"target_count"`
	WeightFactor float64 `json:"weight_factor"`
	ShareFactor  float64 `json:"share_factor"`
}

type directionsRequest struct {
	Coordinates       [][2]float64       `json:"coordinates"`
	AlternativeRoutes *alternativeRoutes `json:"alternative_routes,omitempty"`
	Geometry          bool               `json:"geometry"`
	Instructions      bool               `json:"instructions"`
	Elevation         bool               `json:"elevation"`
}

type directionsResponse struct {
	Routes []struct {
		Geometry string `json:"geometry"`
		Summary  struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
	} `json:"routes"`
}

type snapRequest struct {
	Locations [][2]float64 `json:"locations"`
	Radius    float64      `json:"radius"`
}

type directionsKey struct {
	fromLon, fromLat, toLon, toLat int64
}

func newDirectionsKey(from, to geo.Coordinate) directionsKey {
	r := func(v float64) int64 { return int64(math.Round(v * 1e6)) }
	return directionsKey{fromLon: r(from.X), fromLat: r(from.Y), toLon: r(to.X), toLat: r(to.Y)}
}

func lonLat(c geo.Coordinate) [2]float64 {
	w := c.To(geo.WGS84)
	return [2]float64{w.X, w.Y}
}

// Snap moves c onto the nearest routable road within radiusM. Any failure, including an
// empty answer, returns c unchanged and logs a warning.
func (c *Client) Snap(ctx context.Context, point geo.Coordinate, radiusM float64) geo.Coordinate {
	body := snapRequest{Locations: [][2]float64{lonLat(point)}, Radius: radiusM}

	fc := geojson.NewFeatureCollection()
	if err := c.post(ctx, "/snap/"+PROFILE+"/geojson", body, fc); err != nil {
		c.logger.Warn("snap failed, using original coordinate",
			zap.String("point", point.String()), zap.Error(err))
		return point
	}
	if len(fc.Features) == 0 || fc.Features[0].Geometry == nil {
		c.logger.Warn("snap returned no location, using original coordinate",
			zap.String("point", point.String()))
		return point
	}
	p, ok := fc.Features[0].Geometry.(orb.Point)
	if !ok {
		c.logger.Warn("snap returned non point geometry, using original coordinate",
			zap.String("point", point.String()), zap.String("type", fc.Features[0].Geometry.GeoJSONType()))
		return point
	}

	snapped := geo.NewLonLat(p[0], p[1]).To(point.CRS)
	c.logger.Debug("snapped", zap.String("point", point.String()),
		zap.Float64("displacement_m", geo.GeodesicDistance(point, snapped)))
	return snapped
}

// ShortestPath requests a single driving route between from and to. Points closer than
// pkg.SAME_POINT_TOLERANCE_M get a straight two-point route without a request.
func (c *Client) ShortestPath(ctx context.Context, from, to geo.Coordinate) (*Route, error) {
	if d := geo.GeodesicDistance(from, to); d < pkg.SAME_POINT_TOLERANCE_M {
		line := orb.LineString{from.To(geo.Mercator).Point(), to.To(geo.Mercator).Point()}
		return &Route{Geometry: geo.NewLine(line, geo.Mercator), DistanceM: d}, nil
	}

	key := newDirectionsKey(from.To(geo.WGS84), to.To(geo.WGS84))
	if c.cache != nil {
		if r, ok := c.cache.Get(key); ok {
			c.cacheHits.Add(1)
			return &r, nil
		}
	}

	routes, err := c.directions(ctx, from, to, nil)
	if err != nil {
		return nil, err
	}
	route := routes[0]
	if c.cache != nil {
		c.cache.Add(key, route)
	}
	return &route, nil
}

// AlternativeRoutes sends one alternative-routes request per sweep entry and pools every
// returned route, in sweep order. Failed requests are skipped.
func (c *Client) AlternativeRoutes(ctx context.Context, from, to geo.Coordinate, sweep []SweepParam, targetCount int) []Route {
	perParam := make([][]Route, len(sweep))

	g, gctx := errgroup.WithContext(ctx)
	for i, param := range sweep {
		g.Go(func() error {
			alt := &alternativeRoutes{
				TargetCount:  targetCount,
				WeightFactor: param.WeightFactor,
				ShareFactor:  param.ShareFactor,
			}
			routes, err := c.directions(gctx, from, to, alt)
			if err != nil {
				c.logger.Warn("alternative routes request failed",
					zap.Float64("weight_factor", param.WeightFactor),
					zap.Float64("share_factor", param.ShareFactor), zap.Error(err))
				return nil
			}
			perParam[i] = routes
			return nil
		})
	}
	_ = g.Wait()

	pool := []Route{}
	for _, routes := range perParam {
		pool = append(pool, routes...)
	}
	return pool
}

func (c *Client) directions(ctx context.Context, from, to geo.Coordinate, alt *alternativeRoutes) ([]Route, error) {
	body := directionsRequest{
		Coordinates:       [][2]float64{lonLat(from), lonLat(to)},
		AlternativeRoutes: alt,
		Geometry:          true,
		Instructions:      false,
		Elevation:         false,
	}

	var resp directionsResponse
	if err := c.post(ctx, "/directions/"+PROFILE, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, util.WrapErrorf(nil, ErrNoRouteFound, "%s -> %s", from, to)
	}

	routes := make([]Route, 0, len(resp.Routes))
	for _, r := range resp.Routes {
		ls, err := decodePolyline(r.Geometry)
		if err != nil {
			c.logger.Warn("skipping route with undecodable geometry", zap.Error(err))
			continue
		}
		routes = append(routes, Route{
			Geometry:  geo.NewLine(ls, geo.WGS84).To(geo.Mercator),
			DistanceM: r.Summary.Distance,
			DurationS: r.Summary.Duration,
		})
	}
	if len(routes) == 0 {
		return nil, util.WrapErrorf(nil, ErrNoRouteFound, "%s -> %s: no decodable route", from, to)
	}
	return routes, nil
}

// decodePolyline decodes a precision 5 encoded polyline into a lon/lat line.
func decodePolyline(encoded string) (orb.LineString, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	if len(coords) < 2 {
		return nil, errors.New("polyline has fewer than two points")
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c[1], c[0]}
	}
	return ls, nil
}
