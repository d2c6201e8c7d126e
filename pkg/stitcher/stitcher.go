package stitcher

import (
	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/hybrid"
	"github.com/mdepdi/be-fast-cablo/pkg/spatialindex"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
)

type Options struct {
	ExcludeFirst bool    // never match the start point of the first segment
	Threshold    float64 // max gap closed by a connector, EPSG:3857 units
	Epsilon      float64 // gaps at or below this are duplicates, not gaps
}

func DefaultOptions() Options {
	return Options{
		ExcludeFirst: true,
		Threshold:    pkg.DEFAULT_CONNECT_THRESHOLD,
		Epsilon:      pkg.DEFAULT_CONNECT_EPSILON,
	}
}

func OptionsFrom(cfg util.StitcherConfig) Options {
	return Options{
		ExcludeFirst: cfg.ExcludeFirst,
		Threshold:    cfg.Threshold,
		Epsilon:      cfg.Epsilon,
	}
}

type position uint8

const (
	startPos position = iota
	endPos
)

type endpoint struct {
	segment int
	pos     position
	point   orb.Point
	kind    pkg.SegmentType
}

// Connect closes small gaps between route pieces. Segments with no length are dropped, every
// remaining endpoint is greedily paired with its nearest unvisited endpoint of another segment,
// and a straight connector is added for each pair whose gap lies in (Epsilon, Threshold].
// The result holds the kept segments followed by the connectors, all measured in EPSG:3857.
func Connect(segments []hybrid.Segment, opts Options) []hybrid.Segment {
	kept := make([]hybrid.Segment, 0, len(segments))
	for _, s := range segments {
		if s.Geometry.LengthM() > 0 {
			s.Geometry = s.Geometry.To(geo.Mercator)
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return kept
	}

	endpoints := make([]endpoint, 0, 2*len(kept))
	for i, s := range kept {
		start, _ := s.Geometry.Start()
		end, _ := s.Geometry.End()
		endpoints = append(endpoints,
			endpoint{segment: i, pos: startPos, point: start.Point(), kind: s.Kind},
			endpoint{segment: i, pos: endPos, point: end.Point(), kind: s.Kind},
		)
	}

	ids := make([]int, len(endpoints))
	points := make([]orb.Point, len(endpoints))
	for i, e := range endpoints {
		ids[i] = i
		points[i] = e.point
	}
	index, err := spatialindex.NewPointIndex(ids, points)
	if err != nil {
		return remeasure(kept)
	}

	excluded := make([]bool, len(endpoints))
	if opts.ExcludeFirst {
		excluded[0] = true
	}
	visited := make([]bool, len(endpoints))

	out := kept
	for i, e := range endpoints {
		if visited[i] || excluded[i] {
			continue
		}
		nn := index.NearestWhere(e.point, 1, func(j int) bool {
			return j != i && !visited[j] && !excluded[j] && endpoints[j].segment != e.segment
		})
		if len(nn) == 0 {
			continue
		}
		j, d := nn[0].Item, nn[0].Distance
		if d <= opts.Epsilon || d > opts.Threshold {
			continue
		}

		visited[i] = true
		visited[j] = true
		out = append(out, hybrid.Segment{
			Kind:      e.kind,
			Geometry:  geo.NewLine(orb.LineString{e.point, endpoints[j].point}, geo.Mercator),
			Connector: true,
		})
	}

	return remeasure(out)
}

func remeasure(segments []hybrid.Segment) []hybrid.Segment {
	for i := range segments {
		segments[i].DistanceM = segments[i].Geometry.LengthM()
	}
	return segments
}
