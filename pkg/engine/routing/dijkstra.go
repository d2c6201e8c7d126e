package routing

import (
	"errors"

	"github.com/mdepdi/be-fast-cablo/pkg"
	da "github.com/mdepdi/be-fast-cablo/pkg/datastructure"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

var (
	ErrNoPath      = errors.New("no path between nodes")
	ErrUnknownNode = errors.New("node not in graph")
)

// PathResult is a graph shortest path. Geometry is the line merge of the traversed edge
// geometries in EPSG:3857, it is a MultiLine when consecutive edge geometries do not touch.
type PathResult struct {
	Found       bool
	Nodes       []string
	TotalWeight float64
	Geometry    geo.Polyline
}

// ShortestPath runs Dijkstra over edge length from one node id to another.
func (re *RoutingEngine) ShortestPath(from, to string) (PathResult, error) {
	s, ok := re.graph.GetVertexIndex(from)
	if !ok {
		return PathResult{}, util.WrapErrorf(ErrUnknownNode, util.ErrBadParamInput, "source %s", from)
	}
	t, ok := re.graph.GetVertexIndex(to)
	if !ok {
		return PathResult{}, util.WrapErrorf(ErrUnknownNode, util.ErrBadParamInput, "target %s", to)
	}

	key := PathCacheKey{From: s, To: t}
	if re.pathCache != nil {
		if res, ok := re.pathCache.Get(key); ok {
			return res, nil
		}
	}

	sb := re.getBuffer()
	defer re.putBuffer(sb)

	re.search(sb, s, pkg.INF_WEIGHT, func(v da.Index) bool { return v == t })
	if !sb.info[t].scanned {
		return PathResult{}, util.WrapErrorf(ErrNoPath, util.ErrNotFound, "%s -> %s", from, to)
	}

	res := re.buildPath(sb, s, t)
	if re.pathCache != nil {
		re.pathCache.Add(key, res)
	}
	return res, nil
}

// ShortestPaths is the one-to-many variant: one search from `from`, stopping once every
// known target is settled. Targets without a path are absent from the result.
func (re *RoutingEngine) ShortestPaths(from string, targets []string) (map[string]PathResult, error) {
	s, ok := re.graph.GetVertexIndex(from)
	if !ok {
		return nil, util.WrapErrorf(ErrUnknownNode, util.ErrBadParamInput, "source %s", from)
	}

	pending := make(map[da.Index]struct{}, len(targets))
	for _, id := range targets {
		if t, ok := re.graph.GetVertexIndex(id); ok {
			pending[t] = struct{}{}
		}
	}

	sb := re.getBuffer()
	defer re.putBuffer(sb)

	remaining := len(pending)
	if remaining > 0 {
		re.search(sb, s, pkg.INF_WEIGHT, func(v da.Index) bool {
			if _, ok := pending[v]; ok {
				remaining--
			}
			return remaining == 0
		})
	}

	results := make(map[string]PathResult, len(pending))
	for t := range pending {
		if !sb.info[t].scanned {
			continue
		}
		results[re.graph.GetVertexID(t)] = re.buildPath(sb, s, t)
	}
	return results, nil
}

// ReachableWithin returns every node whose shortest distance from `from` is at most cutoff.
// Edges leading past cutoff are never relaxed.
func (re *RoutingEngine) ReachableWithin(from string, cutoff float64) (map[string]float64, error) {
	s, ok := re.graph.GetVertexIndex(from)
	if !ok {
		return nil, util.WrapErrorf(ErrUnknownNode, util.ErrBadParamInput, "source %s", from)
	}

	sb := re.getBuffer()
	defer re.putBuffer(sb)

	reached := make(map[string]float64)
	re.search(sb, s, cutoff, func(v da.Index) bool {
		reached[re.graph.GetVertexID(v)] = sb.info[v].dist
		return false
	})

	re.logger.Debug("bounded search done", zap.String("source", from),
		zap.Float64("cutoff", cutoff), zap.Int("reached", len(reached)))
	return reached, nil
}

// search settles vertices in ascending distance until the queue empties, the next
// distance exceeds cutoff, or onSettle returns true.
func (re *RoutingEngine) search(sb *searchBuffer, s da.Index, cutoff float64, onSettle func(v da.Index) bool) {
	sb.label(s, 0, newVertexEdgePair(da.INVALID_VERTEX_ID, da.INVALID_EDGE_ID))
	sNode := da.NewPriorityQueueNode(0, s)
	sb.info[s].heapNode = sNode
	sb.pq.Insert(sNode)

	for !sb.pq.IsEmpty() {
		if da.Gt(sb.pq.GetMinrank(), cutoff) {
			return
		}
		node, _ := sb.pq.ExtractMin()
		u := node.GetItem()
		uInfo := &sb.info[u]
		uInfo.scanned = true
		uInfo.heapNode = nil

		if onSettle(u) {
			return
		}

		re.graph.ForOutEdgesOf(u, func(e *da.OutEdge) {
			v := e.GetHead()
			vInfo := &sb.info[v]
			if vInfo.scanned {
				return
			}

			newDist := uInfo.dist + e.GetLength()
			if da.Gt(newDist, cutoff) || newDist >= pkg.INF_WEIGHT {
				return
			}
			if da.Ge(newDist, vInfo.dist) {
				return
			}

			sb.label(v, newDist, newVertexEdgePair(u, e.GetEdgeId()))
			if vInfo.heapNode != nil {
				_ = sb.pq.DecreaseKey(vInfo.heapNode, newDist)
				return
			}
			vNode := da.NewPriorityQueueNode(newDist, v)
			vInfo.heapNode = vNode
			sb.pq.Insert(vNode)
		})
	}
}

func (re *RoutingEngine) buildPath(sb *searchBuffer, s, t da.Index) PathResult {
	vertices := []da.Index{t}
	edges := []da.Index{}
	for cur := t; cur != s; {
		parent := sb.info[cur].GetParent()
		edges = append(edges, parent.getEdge())
		cur = parent.getVertex()
		vertices = append(vertices, cur)
	}

	nodes := make([]string, len(vertices))
	for i := range vertices {
		nodes[i] = re.graph.GetVertexID(vertices[len(vertices)-1-i])
	}

	parts := make([]orb.LineString, 0, len(edges))
	for i := len(edges) - 1; i >= 0; i-- {
		e := re.graph.GetEdge(edges[i])
		if e.HasGeometry() {
			parts = append(parts, e.GetGeometry())
		}
	}

	geom := geo.NewMultiLine(parts, geo.Mercator)
	merged := geom
	if geom.NumParts() > 1 {
		var err error
		merged, err = geo.LineMerge(geom)
		if err != nil {
			re.logger.Warn("line merge of path geometry failed, keeping parts",
				zap.String("source", nodes[0]), zap.Error(err))
			merged = geom
		}
	}

	return PathResult{
		Found:       true,
		Nodes:       nodes,
		TotalWeight: sb.info[t].dist,
		Geometry:    merged,
	}
}
