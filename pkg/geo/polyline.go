package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type PolylineKind uint8

const (
	EmptyLine PolylineKind = iota
	SingleLine
	MultiLine
)

func (k PolylineKind) String() string {
	switch k {
	case SingleLine:
		return "LineString"
	case MultiLine:
		return "MultiLineString"
	default:
		return "Empty"
	}
}

// Polyline is a route geometry: empty, one line, or several disjoint lines, tagged with its CRS.
// Parts with fewer than two points are dropped on construction.
type Polyline struct {
	kind  PolylineKind
	parts []orb.LineString
	crs   CRS
}

func NewLine(ls orb.LineString, crs CRS) Polyline {
	return NewMultiLine([]orb.LineString{ls}, crs)
}

func NewMultiLine(parts []orb.LineString, crs CRS) Polyline {
	kept := make([]orb.LineString, 0, len(parts))
	for _, p := range parts {
		if len(p) >= 2 {
			kept = append(kept, p)
		}
	}
	p := Polyline{parts: kept, crs: crs}
	switch len(kept) {
	case 0:
		p.kind = EmptyLine
		p.parts = nil
	case 1:
		p.kind = SingleLine
	default:
		p.kind = MultiLine
	}
	return p
}

// FromGeometry accepts LineString and MultiLineString, anything else yields an empty polyline.
func FromGeometry(g orb.Geometry, crs CRS) Polyline {
	switch gg := g.(type) {
	case orb.LineString:
		return NewLine(gg, crs)
	case orb.MultiLineString:
		return NewMultiLine(gg, crs)
	case orb.Collection:
		parts := []orb.LineString{}
		for _, c := range gg {
			sub := FromGeometry(c, crs)
			parts = append(parts, sub.parts...)
		}
		return NewMultiLine(parts, crs)
	default:
		return Polyline{crs: crs}
	}
}

func (p Polyline) Kind() PolylineKind {
	return p.kind
}

func (p Polyline) CRS() CRS {
	return p.crs
}

func (p Polyline) IsEmpty() bool {
	return p.kind == EmptyLine
}

func (p Polyline) NumParts() int {
	return len(p.parts)
}

// Line returns the single line of a SingleLine polyline.
func (p Polyline) Line() (orb.LineString, bool) {
	if p.kind != SingleLine {
		return nil, false
	}
	return p.parts[0], true
}

func (p Polyline) Parts() []orb.LineString {
	return p.parts
}

// Geometry returns an orb.LineString, an orb.MultiLineString, or nil for an empty polyline.
func (p Polyline) Geometry() orb.Geometry {
	switch p.kind {
	case SingleLine:
		return p.parts[0]
	case MultiLine:
		return orb.MultiLineString(p.parts)
	default:
		return nil
	}
}

func (p Polyline) To(crs CRS) Polyline {
	if p.crs == crs || p.kind == EmptyLine {
		return Polyline{kind: p.kind, parts: p.parts, crs: crs}
	}
	proj := projection(p.crs, crs)
	parts := make([]orb.LineString, len(p.parts))
	for i, part := range p.parts {
		out := make(orb.LineString, len(part))
		for j, pt := range part {
			out[j] = proj(pt)
		}
		parts[i] = out
	}
	return Polyline{kind: p.kind, parts: parts, crs: crs}
}

// LengthM is the planar length in EPSG:3857, reprojecting first when needed.
func (p Polyline) LengthM() float64 {
	m := p.To(Mercator)
	total := 0.0
	for _, part := range m.parts {
		total += planar.Length(part)
	}
	return total
}

// Start is the first point of the first part.
func (p Polyline) Start() (Coordinate, bool) {
	if p.kind == EmptyLine {
		return Coordinate{}, false
	}
	return FromPoint(p.parts[0][0], p.crs), true
}

// End is the last point of the last part.
func (p Polyline) End() (Coordinate, bool) {
	if p.kind == EmptyLine {
		return Coordinate{}, false
	}
	last := p.parts[len(p.parts)-1]
	return FromPoint(last[len(last)-1], p.crs), true
}

// Concat joins the parts of several polylines into one, reprojected into crs. No merging happens here.
func Concat(crs CRS, lines ...Polyline) Polyline {
	parts := []orb.LineString{}
	for _, l := range lines {
		parts = append(parts, l.To(crs).parts...)
	}
	return NewMultiLine(parts, crs)
}
