package aggregate

import (
	"sort"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/hybrid"
)

// Record is one routed segment together with the request it belongs to.
type Record struct {
	RequestID string
	Index     int
	FEName    string
	NEName    string
	FE        geo.Coordinate
	NE        geo.Coordinate
	Segment   hybrid.Segment
}

type DissolvedGroup struct {
	Type           pkg.SegmentType
	Label          string
	FEName         string
	NEName         string
	RequestID      string
	Geometry       geo.Polyline // EPSG:3857
	TotalDistanceM float64
	SegmentCount   int
	FE             geo.Coordinate
	NE             geo.Coordinate
}

type groupKey struct {
	kind   pkg.SegmentType
	feName string
	neName string
}

// Dissolve groups records by (type, FE name, NE name) and merges each group's geometry into
// as few lines as possible. Groups come back sorted by key.
func Dissolve(records []Record) []DissolvedGroup {
	members := make(map[groupKey][]Record)
	keys := []groupKey{}
	for _, r := range records {
		k := groupKey{kind: r.Segment.Kind, feName: r.FEName, neName: r.NEName}
		if _, ok := members[k]; !ok {
			keys = append(keys, k)
		}
		members[k] = append(members[k], r)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.feName != b.feName {
			return a.feName < b.feName
		}
		return a.neName < b.neName
	})

	groups := make([]DissolvedGroup, 0, len(keys))
	for _, k := range keys {
		rs := members[k]
		lines := make([]geo.Polyline, len(rs))
		for i, r := range rs {
			lines[i] = r.Segment.Geometry
		}

		geom := mergeLines(lines)
		first := rs[0]
		groups = append(groups, DissolvedGroup{
			Type:           k.kind,
			Label:          pkg.GetSegmentLabel(k.kind),
			FEName:         k.feName,
			NEName:         k.neName,
			RequestID:      first.RequestID,
			Geometry:       geom,
			TotalDistanceM: geom.LengthM(),
			SegmentCount:   len(rs),
			FE:             first.FE,
			NE:             first.NE,
		})
	}
	return groups
}

// mergeLines line-merges in EPSG:3857, keeping the unmerged parts when GEOS fails.
func mergeLines(lines []geo.Polyline) geo.Polyline {
	joined := geo.Concat(geo.Mercator, lines...)
	if joined.NumParts() <= 1 {
		return joined
	}
	merged, err := geo.LineMerge(joined)
	if err != nil || merged.IsEmpty() {
		return joined
	}
	return merged
}

// GroupRecords turns dissolved groups back into records, one per group.
func GroupRecords(groups []DissolvedGroup) []Record {
	out := make([]Record, len(groups))
	for i, g := range groups {
		out[i] = Record{
			RequestID: g.RequestID,
			FEName:    g.FEName,
			NEName:    g.NEName,
			FE:        g.FE,
			NE:        g.NE,
			Segment:   hybrid.Segment{Kind: g.Type, Geometry: g.Geometry, DistanceM: g.TotalDistanceM},
		}
	}
	return out
}
