package datastructure

import (
	"math"

	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type Index uint32

const (
	INVALID_VERTEX_ID Index = math.MaxUint32
	INVALID_EDGE_ID   Index = math.MaxUint32
)

// Vertex is a junction of the fiber network. Its coordinate comes from the endpoints of
// the edge geometries touching it, vertices without any geometry edge have no coordinate.
type Vertex struct {
	id       string
	coord    orb.Point
	hasCoord bool
	firstOut Index // index of the first outEdge of this vertex in the flattened graph.outEdges array
}

func (v *Vertex) GetID() string {
	return v.id
}

func (v *Vertex) GetCoordinate() (orb.Point, bool) {
	return v.coord, v.hasCoord
}

// Edge is one undirected network edge, geometry in EPSG:3857.
type Edge struct {
	edgeId   Index
	u, v     Index
	length   float64
	geometry orb.LineString
}

func (e *Edge) GetEdgeId() Index {
	return e.edgeId
}

func (e *Edge) GetLength() float64 {
	return e.length
}

func (e *Edge) GetGeometry() orb.LineString {
	return e.geometry
}

func (e *Edge) GetEndpoints() (Index, Index) {
	return e.u, e.v
}

func (e *Edge) HasGeometry() bool {
	return len(e.geometry) >= 2
}

// OutEdge is the directed half of an undirected edge as seen from its tail.
type OutEdge struct {
	edgeId Index
	head   Index
	length float64
}

func (e *OutEdge) GetEdgeId() Index {
	return e.edgeId
}

func (e *OutEdge) GetHead() Index {
	return e.head
}

func (e *OutEdge) GetLength() float64 {
	return e.length
}

// Graph is an undirected weighted graph stored as a compressed adjacency array.
// It is read-only after NewGraph returns.
type Graph struct {
	vertices []Vertex
	edges    []Edge
	outEdges []OutEdge
	idMap    map[string]Index
}

// EdgeInput describes an edge for NewGraph. A missing length (<= 0 with geometry present)
// is filled with the planar length of the geometry.
type EdgeInput struct {
	From, To string
	Length   float64
	Geometry orb.LineString
}

// NewGraph builds a graph from node ids and edges. Edges whose endpoints are not in nodeIDs
// add those nodes implicitly. Node coordinates follow edge order: the first geometry point
// belongs to From, the last one to To, later edges overwrite earlier ones.
func NewGraph(nodeIDs []string, edgeInputs []EdgeInput) *Graph {
	g := &Graph{
		vertices: make([]Vertex, 0, len(nodeIDs)),
		idMap:    make(map[string]Index, len(nodeIDs)),
	}
	for _, id := range nodeIDs {
		g.addVertex(id)
	}

	g.edges = make([]Edge, 0, len(edgeInputs))
	for _, in := range edgeInputs {
		u := g.addVertex(in.From)
		v := g.addVertex(in.To)
		length := in.Length
		if length <= 0 && len(in.Geometry) >= 2 {
			length = planar.Length(in.Geometry)
		}
		e := Edge{
			edgeId:   Index(len(g.edges)),
			u:        u,
			v:        v,
			length:   length,
			geometry: in.Geometry,
		}
		g.edges = append(g.edges, e)

		if e.HasGeometry() {
			g.vertices[u].coord = in.Geometry[0]
			g.vertices[u].hasCoord = true
			g.vertices[v].coord = in.Geometry[len(in.Geometry)-1]
			g.vertices[v].hasCoord = true
		}
	}

	g.buildAdjacency()
	return g
}

func (g *Graph) addVertex(id string) Index {
	if idx, ok := g.idMap[id]; ok {
		return idx
	}
	idx := Index(len(g.vertices))
	g.vertices = append(g.vertices, Vertex{id: id})
	g.idMap[id] = idx
	return idx
}

func (g *Graph) buildAdjacency() {
	degree := make([]Index, len(g.vertices)+1)
	for _, e := range g.edges {
		degree[e.u]++
		if e.u != e.v {
			degree[e.v]++
		}
	}

	offset := Index(0)
	for i := range g.vertices {
		g.vertices[i].firstOut = offset
		offset += degree[i]
	}

	g.outEdges = make([]OutEdge, offset)
	next := make([]Index, len(g.vertices))
	for i := range g.vertices {
		next[i] = g.vertices[i].firstOut
	}
	for _, e := range g.edges {
		g.outEdges[next[e.u]] = OutEdge{edgeId: e.edgeId, head: e.v, length: e.length}
		next[e.u]++
		if e.u != e.v {
			g.outEdges[next[e.v]] = OutEdge{edgeId: e.edgeId, head: e.u, length: e.length}
			next[e.v]++
		}
	}
}

func (g *Graph) NumberOfVertices() int {
	return len(g.vertices)
}

func (g *Graph) NumberOfEdges() int {
	return len(g.edges)
}

func (g *Graph) GetVertex(v Index) *Vertex {
	return &g.vertices[v]
}

func (g *Graph) GetVertexIndex(id string) (Index, bool) {
	idx, ok := g.idMap[id]
	return idx, ok
}

func (g *Graph) GetVertexID(v Index) string {
	return g.vertices[v].id
}

func (g *Graph) GetVertexCoordinate(v Index) (orb.Point, bool) {
	return g.vertices[v].GetCoordinate()
}

func (g *Graph) GetEdge(e Index) *Edge {
	return &g.edges[e]
}

func (g *Graph) GetOutDegree(v Index) int {
	end := Index(len(g.outEdges))
	if int(v)+1 < len(g.vertices) {
		end = g.vertices[v+1].firstOut
	}
	return int(end - g.vertices[v].firstOut)
}

func (g *Graph) ForOutEdgesOf(v Index, handle func(e *OutEdge)) {
	first := g.vertices[v].firstOut
	for i := 0; i < g.GetOutDegree(v); i++ {
		handle(&g.outEdges[first+Index(i)])
	}
}

// NodeCoordinates maps vertex ids to their EPSG:3857 coordinate.
func (g *Graph) NodeCoordinates() map[string]orb.Point {
	coords := make(map[string]orb.Point, len(g.vertices))
	for _, v := range g.vertices {
		if v.hasCoord {
			coords[v.id] = v.coord
		}
	}
	return coords
}

// CRS of every edge geometry and vertex coordinate.
func (g *Graph) CRS() geo.CRS {
	return geo.Mercator
}
