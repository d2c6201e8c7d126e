package geo

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// CRS tags every coordinate and polyline. Only the two systems the pipeline works in exist:
// geographic lon/lat for the routing service and web mercator for lengths and overlays.
type CRS uint8

const (
	WGS84    CRS = iota // EPSG:4326, X = lon, Y = lat
	Mercator            // EPSG:3857, metres
)

func (c CRS) String() string {
	switch c {
	case WGS84:
		return "EPSG:4326"
	case Mercator:
		return "EPSG:3857"
	default:
		return fmt.Sprintf("CRS(%d)", uint8(c))
	}
}

func ParseCRS(s string) (CRS, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EPSG:4326", "4326", "WGS84":
		return WGS84, nil
	case "EPSG:3857", "3857", "MERCATOR":
		return Mercator, nil
	default:
		return WGS84, fmt.Errorf("unsupported crs %q", s)
	}
}

type Coordinate struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	CRS CRS     `json:"crs"`
}

func NewLonLat(lon, lat float64) Coordinate {
	return Coordinate{X: lon, Y: lat, CRS: WGS84}
}

func NewMercator(x, y float64) Coordinate {
	return Coordinate{X: x, Y: y, CRS: Mercator}
}

func FromPoint(p orb.Point, crs CRS) Coordinate {
	return Coordinate{X: p[0], Y: p[1], CRS: crs}
}

func (c Coordinate) Point() orb.Point {
	return orb.Point{c.X, c.Y}
}

func (c Coordinate) GetLon() float64 {
	return c.To(WGS84).X
}

func (c Coordinate) GetLat() float64 {
	return c.To(WGS84).Y
}

// To converts c into crs. Converting to the crs c already has is a no-op.
func (c Coordinate) To(crs CRS) Coordinate {
	if c.CRS == crs {
		return c
	}
	return FromPoint(projection(c.CRS, crs)(c.Point()), crs)
}

// DistanceTo is the planar distance in the mercator plane.
func (c Coordinate) DistanceTo(o Coordinate) float64 {
	return planar.Distance(c.To(Mercator).Point(), o.To(Mercator).Point())
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%f,%f %s)", c.X, c.Y, c.CRS)
}

func projection(from, to CRS) orb.Projection {
	if from == WGS84 && to == Mercator {
		return project.WGS84.ToMercator
	}
	if from == Mercator && to == WGS84 {
		return project.Mercator.ToWGS84
	}
	return func(p orb.Point) orb.Point { return p }
}

// ProjectGeometry returns a reprojected copy of g, g itself is never modified.
func ProjectGeometry(g orb.Geometry, from, to CRS) orb.Geometry {
	if g == nil || from == to {
		return g
	}
	return project.Geometry(orb.Clone(g), projection(from, to))
}
