package routing

import (
	"github.com/mdepdi/be-fast-cablo/pkg"
	da "github.com/mdepdi/be-fast-cablo/pkg/datastructure"
)

type vertexEdgePair struct {
	vertex da.Index
	edge   da.Index
}

func newVertexEdgePair(vertex, edge da.Index) vertexEdgePair {
	return vertexEdgePair{vertex: vertex, edge: edge}
}

func (ve vertexEdgePair) getVertex() da.Index {
	return ve.vertex
}

func (ve vertexEdgePair) getEdge() da.Index {
	return ve.edge
}

type VertexInfo struct {
	dist     float64
	parent   vertexEdgePair
	scanned  bool // dist is final, vertex is in the shortest path tree
	touched  bool
	heapNode *da.PriorityQueueNode[da.Index]
}

func (vi *VertexInfo) GetParent() vertexEdgePair {
	return vi.parent
}

func (vi *VertexInfo) reset() {
	vi.dist = pkg.INF_WEIGHT
	vi.parent = newVertexEdgePair(da.INVALID_VERTEX_ID, da.INVALID_EDGE_ID)
	vi.scanned = false
	vi.touched = false
	vi.heapNode = nil
}

// searchBuffer holds per-vertex labels of one search. Only touched labels are reset,
// so a pooled buffer costs O(visited) per query instead of O(V).
type searchBuffer struct {
	info    []VertexInfo
	touched []da.Index
	pq      *da.MinHeap[da.Index]
}

func newSearchBuffer(numVertices int) *searchBuffer {
	sb := &searchBuffer{
		info:    make([]VertexInfo, numVertices),
		touched: make([]da.Index, 0, 64),
		pq:      da.NewFourAryHeap[da.Index](),
	}
	for i := range sb.info {
		sb.info[i].reset()
	}
	return sb
}

func (sb *searchBuffer) label(v da.Index, dist float64, parent vertexEdgePair) {
	if !sb.info[v].touched {
		sb.info[v].touched = true
		sb.touched = append(sb.touched, v)
	}
	sb.info[v].dist = dist
	sb.info[v].parent = parent
}

func (sb *searchBuffer) clear() {
	for _, v := range sb.touched {
		sb.info[v].reset()
	}
	sb.touched = sb.touched[:0]
	sb.pq.Clear()
}
