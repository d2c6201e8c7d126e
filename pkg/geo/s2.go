package geo

import (
	"github.com/golang/geo/s2"
)

const (
	earthRadiusM = 6371008.8
)

// GeodesicDistance returns the great-circle distance between a and b in metres.
func GeodesicDistance(a, b Coordinate) float64 {
	a = a.To(WGS84)
	b = b.To(WGS84)
	la := s2.LatLngFromDegrees(a.Y, a.X)
	lb := s2.LatLngFromDegrees(b.Y, b.X)
	return la.Distance(lb).Radians() * earthRadiusM
}

// MeasureAlong is the geodesic distance in metres from the start of line to the point of line
// closest to p. Parts of a multi-part line are walked in order as one path.
func MeasureAlong(line Polyline, p Coordinate) float64 {
	wgs := line.To(WGS84)
	lls := []s2.LatLng{}
	for _, part := range wgs.Parts() {
		for _, pt := range part {
			lls = append(lls, s2.LatLngFromDegrees(pt[1], pt[0]))
		}
	}
	if len(lls) == 0 {
		return 0
	}

	pl := s2.PolylineFromLatLngs(lls)
	p = p.To(WGS84)
	proj, next := pl.Project(s2.PointFromLatLng(s2.LatLngFromDegrees(p.Y, p.X)))

	vertices := *pl
	measure := 0.0
	for i := 1; i < next && i < len(vertices); i++ {
		measure += vertices[i-1].Distance(vertices[i]).Radians()
	}
	if next >= 1 {
		measure += vertices[next-1].Distance(proj).Radians()
	}
	return measure * earthRadiusM
}
