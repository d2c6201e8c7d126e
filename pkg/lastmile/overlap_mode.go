package lastmile

import (
	"context"
	"sort"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/hybrid"
	"github.com/mdepdi/be-fast-cablo/pkg/ors"
	"github.com/mdepdi/be-fast-cablo/pkg/overlap"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
)

// piece is one overlapped or new-build stretch of the chosen route, oriented along it.
type piece struct {
	kind     pkg.SegmentType
	lid      int
	from, to geo.Coordinate
	measure  float64
}

// overlapSegments picks the alternative route that follows the infrastructure most, splits it
// into overlapped and new-build pieces and routes each piece: overlapped ones over the graph,
// the rest through the routing service.
func (p *Processor) overlapSegments(ctx context.Context, fe, ne geo.Coordinate) ([]hybrid.Segment, error) {
	routes := p.gateway.AlternativeRoutes(ctx, fe, ne, p.cfg.Sweep, p.cfg.AlternativeTargetCount)
	if len(routes) == 0 {
		return nil, util.WrapErrorf(ors.ErrNoRouteFound, util.ErrNotFound, "no alternative route")
	}

	geoms := make([]geo.Polyline, len(routes))
	for i, r := range routes {
		geoms[i] = r.Geometry
	}
	best, score, err := overlap.BestAlternative(geoms, p.buffer)
	if err != nil {
		return nil, err
	}
	route := geoms[best]
	p.logger.Debug("best alternative", zap.Int("alternative", best), zap.Int("of", len(routes)),
		zap.Float64("overlapped_m", score.OverlappedM), zap.Float64("new_m", score.NewM))

	overlapped, err := overlap.Overlapped(route, p.buffer)
	if err != nil {
		return nil, err
	}
	newBuild, err := overlap.NonOverlapped(route, overlapped, p.buffer.HalfWidthM())
	if err != nil {
		return nil, err
	}

	pieces := make([]piece, 0, len(overlapped)+len(newBuild))
	pieces = appendPieces(pieces, route, newBuild, pkg.EXTERNAL_ROUTED)
	pieces = appendPieces(pieces, route, overlapped, pkg.GRAPH_ROUTED)
	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].measure < pieces[j].measure
	})

	segments := make([]hybrid.Segment, 0, len(pieces))
	for _, pc := range pieces {
		var (
			seg hybrid.Segment
			ok  bool
		)
		switch pc.kind {
		case pkg.GRAPH_ROUTED:
			seg, ok = p.graphPiece(pc)
		default:
			seg, ok = p.externalPiece(ctx, pc)
		}
		if ok {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil, util.WrapErrorf(hybrid.ErrNoRoute, util.ErrNotFound, "no piece of the best route could be routed")
	}
	return segments, nil
}

func appendPieces(pieces []piece, route geo.Polyline, parts []overlap.Part, kind pkg.SegmentType) []piece {
	for _, part := range parts {
		from, ok := part.Geometry.Start()
		if !ok {
			continue
		}
		to, _ := part.Geometry.End()
		mFrom, mTo := geo.MeasureAlong(route, from), geo.MeasureAlong(route, to)
		if mTo < mFrom {
			from, to = to, from
			mFrom = mTo
		}
		pieces = append(pieces, piece{kind: kind, lid: part.LID, from: from, to: to, measure: mFrom})
	}
	return pieces
}

func (p *Processor) externalPiece(ctx context.Context, pc piece) (hybrid.Segment, bool) {
	r, err := p.gateway.ShortestPath(ctx, pc.from, pc.to)
	if err != nil {
		p.logger.Debug("new-build piece not routed", zap.Int("lid", pc.lid), zap.Error(err))
		return hybrid.Segment{}, false
	}
	return hybrid.Segment{
		Kind:      pkg.EXTERNAL_ROUTED,
		Geometry:  r.Geometry,
		DistanceM: r.DistanceM,
	}, true
}

func (p *Processor) graphPiece(pc piece) (hybrid.Segment, bool) {
	index := p.engine.GetNodeIndex()
	a := index.Nearest(pc.from.To(geo.Mercator).Point(), 1)
	b := index.Nearest(pc.to.To(geo.Mercator).Point(), 1)
	if len(a) == 0 || len(b) == 0 || a[0].Item == b[0].Item {
		return hybrid.Segment{}, false
	}

	path, err := p.engine.GetRoutingEngine().ShortestPath(a[0].Item, b[0].Item)
	if err != nil || path.Geometry.IsEmpty() {
		p.logger.Debug("overlapped piece not routed", zap.Int("lid", pc.lid),
			zap.String("from", a[0].Item), zap.String("to", b[0].Item), zap.Error(err))
		return hybrid.Segment{}, false
	}
	return hybrid.Segment{
		Kind:      pkg.GRAPH_ROUTED,
		Geometry:  path.Geometry,
		DistanceM: path.TotalWeight,
		FromNode:  a[0].Item,
		ToNode:    b[0].Item,
	}, true
}
