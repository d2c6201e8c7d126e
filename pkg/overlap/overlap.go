package overlap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

var (
	ErrEmptyInfrastructure = errors.New("infrastructure layer has no usable geometry")
	ErrGeometry            = errors.New("geometry operation failed")
)

const quadSegs = 8

// Feature is one existing infrastructure element, e.g. a fiber cable route.
type Feature struct {
	Name     string
	Geometry orb.Geometry
}

// Buffer is the dissolved flat-cap buffer around all infrastructure features, EPSG:3857.
type Buffer struct {
	geom       *geos.Geom
	halfWidthM float64
	features   int
}

// NewBuffer reprojects features from crs into EPSG:3857, buffers each by halfWidthM with a
// flat cap and unions the result into one polygonal geometry.
func NewBuffer(features []Feature, crs geo.CRS, halfWidthM float64) (*Buffer, error) {
	col := make(orb.Collection, 0, len(features))
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		col = append(col, geo.ProjectGeometry(f.Geometry, crs, geo.Mercator))
	}
	if len(col) == 0 {
		return nil, ErrEmptyInfrastructure
	}

	g, err := geo.ToGEOS(col)
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "convert infrastructure layer")
	}
	buffered, err := safe(func() *geos.Geom { return flatBuffer(g, halfWidthM).UnaryUnion() })
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "buffer infrastructure layer")
	}
	if buffered.IsEmpty() {
		return nil, ErrEmptyInfrastructure
	}
	return &Buffer{geom: buffered, halfWidthM: halfWidthM, features: len(col)}, nil
}

func (b *Buffer) HalfWidthM() float64 {
	return b.halfWidthM
}

func (b *Buffer) NumFeatures() int {
	return b.features
}

func (b *Buffer) AreaM2() float64 {
	return b.geom.Area()
}

func flatBuffer(g *geos.Geom, width float64) *geos.Geom {
	return g.BufferWithStyle(width, quadSegs, geos.BufCapStyleFlat, geos.BufJoinStyleRound, 5.0)
}

// safe turns a panic raised by the GEOS binding into an error.
func safe(op func() *geos.Geom) (g *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geos: %v", r)
		}
	}()
	g = op()
	if g == nil {
		return nil, errors.New("geos returned no geometry")
	}
	return g, nil
}

// Part is one connected piece of a classified route. LIDs are sequential from 0 in the
// order the dissolved geometry lists its parts.
type Part struct {
	LID      int
	Geometry geo.Polyline
	LengthM  float64
}

func routeGEOS(route geo.Polyline) (*geos.Geom, error) {
	if route.IsEmpty() {
		return nil, nil
	}
	g, err := geo.ToGEOS(route.To(geo.Mercator).Geometry())
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "convert route")
	}
	return g, nil
}

// Overlapped returns the parts of route lying inside the infrastructure buffer.
func Overlapped(route geo.Polyline, buf *Buffer) ([]Part, error) {
	rg, err := routeGEOS(route)
	if err != nil || rg == nil {
		return nil, err
	}
	inter, err := safe(func() *geos.Geom { return rg.Intersection(buf.geom) })
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "intersect route with buffer")
	}
	return explode(inter)
}

// NonOverlapped returns the parts of route outside a flat halfWidthM re-buffer of the
// overlapped parts. Re-buffering avoids slivers where the route leaves the infrastructure.
func NonOverlapped(route geo.Polyline, overlapped []Part, halfWidthM float64) ([]Part, error) {
	rg, err := routeGEOS(route)
	if err != nil || rg == nil {
		return nil, err
	}
	if len(overlapped) == 0 {
		return explode(rg)
	}

	lines := make(orb.MultiLineString, 0, len(overlapped))
	for _, p := range overlapped {
		lines = append(lines, p.Geometry.To(geo.Mercator).Parts()...)
	}
	og, err := geo.ToGEOS(lines)
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "convert overlapped parts")
	}

	diff, err := safe(func() *geos.Geom { return rg.Difference(flatBuffer(og, halfWidthM)) })
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "difference route with overlapped buffer")
	}
	return explode(diff)
}

// explode dissolves the lineal content of g into merged lines, one Part per connected line.
func explode(g *geos.Geom) ([]Part, error) {
	lines, err := geo.PolylineFromGEOS(g, geo.Mercator)
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "read geos result")
	}
	merged, err := geo.LineMerge(lines)
	if err != nil {
		return nil, util.WrapErrorf(err, ErrGeometry, "merge parts")
	}

	parts := make([]Part, 0, merged.NumParts())
	for i, ls := range merged.Parts() {
		line := geo.NewLine(ls, geo.Mercator)
		parts = append(parts, Part{LID: i, Geometry: line, LengthM: line.LengthM()})
	}
	return parts, nil
}

type Score struct {
	OverlappedM float64
	NewM        float64
}

// RouteScore measures how much of route lies inside the buffer; the rest counts as new build.
func RouteScore(route geo.Polyline, buf *Buffer) (Score, error) {
	total := route.LengthM()
	rg, err := routeGEOS(route)
	if err != nil || rg == nil {
		return Score{NewM: total}, err
	}
	inter, err := safe(func() *geos.Geom { return rg.Intersection(buf.geom) })
	if err != nil {
		return Score{}, util.WrapErrorf(err, ErrGeometry, "intersect route with buffer")
	}
	overlapped := inter.Length()
	return Score{OverlappedM: overlapped, NewM: total - overlapped}, nil
}

// SelectBest returns the index of the score with the most overlap, the least new build
// breaking ties, and the earliest index after that. -1 for no scores.
func SelectBest(scores []Score) int {
	if len(scores) == 0 {
		return -1
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa.OverlappedM != sb.OverlappedM {
			return sa.OverlappedM > sb.OverlappedM
		}
		return sa.NewM < sb.NewM
	})
	return order[0]
}

// BestAlternative scores every candidate route and picks one with SelectBest.
// Candidates that cannot be scored are left out.
func BestAlternative(routes []geo.Polyline, buf *Buffer) (int, Score, error) {
	scores := make([]Score, 0, len(routes))
	index := make([]int, 0, len(routes))
	for i, r := range routes {
		s, err := RouteScore(r, buf)
		if err != nil {
			continue
		}
		scores = append(scores, s)
		index = append(index, i)
	}
	best := SelectBest(scores)
	if best < 0 {
		return -1, Score{}, util.WrapErrorf(nil, util.ErrNotFound, "no alternative route could be scored")
	}
	return index[best], scores[best], nil
}
