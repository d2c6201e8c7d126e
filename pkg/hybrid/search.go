package hybrid

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/engine/routing"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/ors"
	"github.com/mdepdi/be-fast-cablo/pkg/spatialindex"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type RoutingGateway interface {
	ShortestPath(ctx context.Context, from, to geo.Coordinate) (*ors.Route, error)
}

type GraphRouter interface {
	ShortestPath(from, to string) (routing.PathResult, error)
	ShortestPaths(from string, targets []string) (map[string]routing.PathResult, error)
	ReachableWithin(from string, cutoff float64) (map[string]float64, error)
}

type NodeIndex interface {
	Nearest(p orb.Point, k int) []spatialindex.Neighbor[string]
}

// Searcher runs the hybrid route search for one FE/NE pair at a time. It holds no per-request
// state and is safe for concurrent use.
type Searcher struct {
	index     NodeIndex
	nodeCoord map[string]orb.Point
	router    GraphRouter
	gateway   RoutingGateway
	params    Params
	logger    *zap.Logger
}

func NewSearcher(index NodeIndex, nodeCoord map[string]orb.Point, router GraphRouter, gateway RoutingGateway,
	params Params, logger *zap.Logger) *Searcher {
	if params.Fanout <= 0 {
		params.Fanout = 1
	}
	return &Searcher{
		index:     index,
		nodeCoord: nodeCoord,
		router:    router,
		gateway:   gateway,
		params:    params,
		logger:    logger,
	}
}

func (s *Searcher) Params() Params {
	return s.params
}

// Search runs both strategies and keeps the one with less new build.
func (s *Searcher) Search(ctx context.Context, fe, ne geo.Coordinate) (*Result, error) {
	var (
		std, prog       *Result
		stdErr, progErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		std, stdErr = s.Standard(gctx, fe, ne)
		return nil
	})
	g.Go(func() error {
		prog, progErr = s.Progressive(gctx, fe, ne)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stdErr != nil {
		s.logger.Debug("standard strategy failed", zap.Error(stdErr))
	}
	if progErr != nil {
		s.logger.Debug("progressive strategy failed", zap.Error(progErr))
	}
	return SelectResult(std, prog)
}

// SelectResult keeps the result with the lower new-build distance. Ties keep standard.
func SelectResult(standard, progressive *Result) (*Result, error) {
	switch {
	case standard == nil && progressive == nil:
		return nil, util.WrapErrorf(ErrNoRoute, util.ErrNotFound, "both strategies failed")
	case standard == nil:
		return progressive, nil
	case progressive == nil:
		return standard, nil
	case progressive.TotalNewBuildM < standard.TotalNewBuildM:
		return progressive, nil
	default:
		return standard, nil
	}
}

type candidate struct {
	id    string
	point orb.Point
}

func (s *Searcher) candidates(c geo.Coordinate, k int) []candidate {
	p := c.To(geo.Mercator).Point()
	out := []candidate{}
	for _, n := range s.index.Nearest(p, k) {
		if n.Distance <= s.params.CandidateRadiusM {
			out = append(out, candidate{id: n.Item, point: n.Point})
		}
	}
	return out
}

type leg struct {
	route *ors.Route
	err   error
}

func externalSegment(r *ors.Route, from, to string) Segment {
	return Segment{
		Kind:      pkg.EXTERNAL_ROUTED,
		Geometry:  r.Geometry,
		DistanceM: r.DistanceM,
		FromNode:  from,
		ToNode:    to,
	}
}

func graphSegment(p routing.PathResult) Segment {
	return Segment{
		Kind:      pkg.GRAPH_ROUTED,
		Geometry:  p.Geometry,
		DistanceM: p.TotalWeight,
		FromNode:  p.Nodes[0],
		ToNode:    p.Nodes[len(p.Nodes)-1],
	}
}

// Standard is the exhaustive candidate-pair strategy. Every FE candidate / NE candidate pair
// within the candidate radius and joined by a graph path is priced as FE->fc + nc->NE. The
// cheapest pair wins if it beats the direct route by the improvement factor, otherwise the
// direct route is returned.
func (s *Searcher) Standard(ctx context.Context, fe, ne geo.Coordinate) (*Result, error) {
	directDist := math.Inf(1)
	var direct *ors.Route
	if r, err := s.gateway.ShortestPath(ctx, fe, ne); err == nil {
		direct = r
		directDist = r.DistanceM
	} else {
		s.logger.Debug("direct route failed", zap.Error(err))
	}
	fallback := func() (*Result, error) {
		if direct == nil {
			return nil, util.WrapErrorf(ErrNoRoute, util.ErrNotFound, "standard: no hybrid pair and no direct route")
		}
		return newDirectResult(externalSegment(direct, "", "")), nil
	}

	feCands := s.candidates(fe, s.params.KStandard)
	neCands := s.candidates(ne, s.params.KStandard)
	if len(feCands) == 0 || len(neCands) == 0 {
		return fallback()
	}

	neIDs := make([]string, len(neCands))
	for i, c := range neCands {
		neIDs[i] = c.id
	}

	// graph phase: one one-to-many search per FE candidate
	paths := make([]map[string]routing.PathResult, len(feCands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.Fanout)
	for i, fc := range feCands {
		g.Go(func() error {
			if util.StopConcurrentOperation(gctx) {
				return gctx.Err()
			}
			res, err := s.router.ShortestPaths(fc.id, neIDs)
			if err != nil {
				s.logger.Debug("graph search failed", zap.String("node", fc.id), zap.Error(err))
				return nil
			}
			paths[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// external phase: price only legs some connected pair needs
	needFE := make([]bool, len(feCands))
	needNE := make([]bool, len(neCands))
	for i, fc := range feCands {
		for j, nc := range neCands {
			if fc.id == nc.id {
				continue
			}
			if _, ok := paths[i][nc.id]; ok {
				needFE[i] = true
				needNE[j] = true
			}
		}
	}

	entryLegs := make([]leg, len(feCands))
	exitLegs := make([]leg, len(neCands))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.params.Fanout)
	for i, fc := range feCands {
		if !needFE[i] {
			continue
		}
		g.Go(func() error {
			r, err := s.gateway.ShortestPath(gctx, fe, geo.FromPoint(fc.point, geo.Mercator))
			entryLegs[i] = leg{route: r, err: err}
			return nil
		})
	}
	for j, nc := range neCands {
		if !needNE[j] {
			continue
		}
		g.Go(func() error {
			r, err := s.gateway.ShortestPath(gctx, geo.FromPoint(nc.point, geo.Mercator), ne)
			exitLegs[j] = leg{route: r, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threshold := directDist * s.params.ImprovementFactor
	bestTotal := math.Inf(1)
	bestI, bestJ := -1, -1
	for i, fc := range feCands {
		if entryLegs[i].route == nil {
			continue
		}
		for j, nc := range neCands {
			if fc.id == nc.id || exitLegs[j].route == nil {
				continue
			}
			if _, ok := paths[i][nc.id]; !ok {
				continue
			}
			total := entryLegs[i].route.DistanceM + exitLegs[j].route.DistanceM
			if total < bestTotal && total < threshold {
				bestTotal = total
				bestI, bestJ = i, j
			}
		}
	}

	if bestI < 0 {
		s.logger.Debug("no candidate pair beats direct route",
			zap.Float64("direct_m", directDist), zap.Int("fe_candidates", len(feCands)),
			zap.Int("ne_candidates", len(neCands)))
		return fallback()
	}

	fc, nc := feCands[bestI], neCands[bestJ]
	return newTripleResult(STANDARD,
		externalSegment(entryLegs[bestI].route, "", fc.id),
		graphSegment(paths[bestI][nc.id]),
		externalSegment(exitLegs[bestJ].route, nc.id, ""),
	), nil
}

// Progressive is the frontier strategy. From each FE candidate a bounded search explores the
// graph, and the reached node nearest to NE in a straight line becomes the exit. No direct
// route gating applies.
func (s *Searcher) Progressive(ctx context.Context, fe, ne geo.Coordinate) (*Result, error) {
	feCands := s.candidates(fe, s.params.KProgressive)
	if len(feCands) == 0 {
		return nil, util.WrapErrorf(ErrNoRoute, util.ErrNotFound, "progressive: no graph node within %.0f m of FE",
			s.params.CandidateRadiusM)
	}
	nePoint := ne.To(geo.Mercator).Point()

	results := make([]*Result, len(feCands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.Fanout)
	for i, fc := range feCands {
		g.Go(func() error {
			if util.StopConcurrentOperation(gctx) {
				return gctx.Err()
			}
			res, err := s.progressiveFrom(gctx, fc, fe, ne, nePoint)
			if err != nil {
				s.logger.Debug("progressive candidate failed", zap.String("node", fc.id), zap.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *Result
	for _, r := range results {
		if r != nil && (best == nil || r.TotalNewBuildM < best.TotalNewBuildM) {
			best = r
		}
	}
	if best == nil {
		return nil, util.WrapErrorf(ErrNoRoute, util.ErrNotFound, "progressive: no candidate completed")
	}
	return best, nil
}

func (s *Searcher) progressiveFrom(ctx context.Context, fc candidate, fe, ne geo.Coordinate, nePoint orb.Point) (*Result, error) {
	reached, err := s.router.ReachableWithin(fc.id, s.params.ReachCutoffM)
	if err != nil {
		return nil, err
	}

	exitID, exitPoint, ok := s.closestReached(reached, nePoint)
	if !ok {
		return nil, errors.New("no reached node has coordinates")
	}

	path, err := s.router.ShortestPath(fc.id, exitID)
	if err != nil {
		return nil, err
	}
	entry, err := s.gateway.ShortestPath(ctx, fe, geo.FromPoint(fc.point, geo.Mercator))
	if err != nil {
		return nil, err
	}
	exit, err := s.gateway.ShortestPath(ctx, geo.FromPoint(exitPoint, geo.Mercator), ne)
	if err != nil {
		return nil, err
	}

	return newTripleResult(PROGRESSIVE,
		externalSegment(entry, "", fc.id),
		graphSegment(path),
		externalSegment(exit, exitID, ""),
	), nil
}

// closestReached picks the reached node closest to target, ties by id. The search source is
// part of reached, so an isolated entry becomes its own exit with a zero-length graph leg.
func (s *Searcher) closestReached(reached map[string]float64, target orb.Point) (string, orb.Point, bool) {
	ids := make([]string, 0, len(reached))
	for id := range reached {
		if _, ok := s.nodeCoord[id]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", orb.Point{}, false
	}
	sort.Strings(ids)

	bestID := ids[0]
	bestDist := math.Inf(1)
	for _, id := range ids {
		p := s.nodeCoord[id]
		d := math.Hypot(p[0]-target[0], p[1]-target[1])
		if d < bestDist {
			bestDist = d
			bestID = id
		}
	}
	return bestID, s.nodeCoord[bestID], true
}
