package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
)

// ToGEOS converts an orb geometry through its GeoJSON encoding.
func ToGEOS(g orb.Geometry) (*geos.Geom, error) {
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	gg, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("geos parse geometry: %w", err)
	}
	return gg, nil
}

// FromGEOS returns nil for an empty geometry.
func FromGEOS(g *geos.Geom) (orb.Geometry, error) {
	if g == nil || g.IsEmpty() {
		return nil, nil
	}
	gj, err := geojson.UnmarshalGeometry([]byte(g.ToGeoJSON(-1)))
	if err != nil {
		return nil, fmt.Errorf("decode geos geometry: %w", err)
	}
	return gj.Geometry(), nil
}

// PolylineFromGEOS keeps only the lineal components of g.
func PolylineFromGEOS(g *geos.Geom, crs CRS) (Polyline, error) {
	og, err := FromGEOS(g)
	if err != nil {
		return Polyline{crs: crs}, err
	}
	return FromGeometry(og, crs), nil
}

// LineMerge sews parts sharing endpoints into as few lines as possible.
// Pieces that do not touch stay separate, so the result may still be a MultiLine.
func LineMerge(p Polyline) (Polyline, error) {
	if p.kind == EmptyLine {
		return p, nil
	}
	gg, err := ToGEOS(orb.MultiLineString(p.parts))
	if err != nil {
		return p, err
	}
	return PolylineFromGEOS(gg.LineMerge(), p.crs)
}
