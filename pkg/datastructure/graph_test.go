package datastructure

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareGraph() *Graph {
	return NewGraph([]string{"a", "b", "c", "d", "isolated"}, []EdgeInput{
		{From: "a", To: "b", Length: 100, Geometry: orb.LineString{{0, 0}, {100, 0}}},
		{From: "b", To: "c", Length: 100, Geometry: orb.LineString{{100, 0}, {100, 100}}},
		{From: "c", To: "d", Geometry: orb.LineString{{100, 100}, {0, 100}}},
		{From: "d", To: "a", Length: 250},
	})
}

func TestNewGraph(t *testing.T) {
	g := squareGraph()

	assert.Equal(t, 5, g.NumberOfVertices())
	assert.Equal(t, 4, g.NumberOfEdges())

	a, ok := g.GetVertexIndex("a")
	require.True(t, ok)
	assert.Equal(t, 2, g.GetOutDegree(a))

	iso, ok := g.GetVertexIndex("isolated")
	require.True(t, ok)
	assert.Equal(t, 0, g.GetOutDegree(iso))
	_, hasCoord := g.GetVertexCoordinate(iso)
	assert.False(t, hasCoord)

	heads := []string{}
	g.ForOutEdgesOf(a, func(e *OutEdge) {
		heads = append(heads, g.GetVertexID(e.GetHead()))
	})
	assert.ElementsMatch(t, []string{"b", "d"}, heads)

	// length derived from geometry when missing
	c, _ := g.GetVertexIndex("c")
	d, _ := g.GetVertexIndex("d")
	cd := g.GetEdge(2)
	require.True(t, cd.HasGeometry())
	assert.Equal(t, orb.Point{0, 100}, cd.GetGeometry()[len(cd.GetGeometry())-1])
	g.ForOutEdgesOf(c, func(e *OutEdge) {
		if e.GetHead() == d {
			assert.InDelta(t, 100.0, e.GetLength(), 1e-9)
		}
	})

	coords := g.NodeCoordinates()
	assert.Len(t, coords, 4)
	assert.Equal(t, orb.Point{100, 0}, coords["b"])
}

func TestReadGraph(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
	}{
		{name: "plain graphml", filename: "graph.graphml"},
		{name: "bzip2 graphml", filename: "graph.graphml.bz2"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, squareGraph().WriteGraph(path))

			g, err := ReadGraph(path)
			require.NoError(t, err)
			assert.Equal(t, 5, g.NumberOfVertices())
			assert.Equal(t, 4, g.NumberOfEdges())

			assert.False(t, g.GetEdge(3).HasGeometry())
			assert.InDelta(t, 250.0, g.GetEdge(3).GetLength(), 1e-9)
		})
	}
}

func TestDecodeGraphOsmnxStyle(t *testing.T) {
	doc := `<?xml version='1.0' encoding='utf-8'?>
<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <key id="d7" for="edge" attr.name="geometry" attr.type="string" />
  <key id="d5" for="edge" attr.name="length" attr.type="double" />
  <key id="d1" for="node" attr.name="x" attr.type="double" />
  <graph edgedefault="undirected">
    <node id="101"><data key="d1">1</data></node>
    <node id="102" />
    <edge source="101" target="102">
      <data key="d7">LINESTRING (11890000 -690000, 11890050 -690000)</data>
      <data key="d5">50.5</data>
    </edge>
  </graph>
</graphml>`

	g, err := DecodeGraph(strings.NewReader(doc))
	require.NoError(t, err)
	assert.InDelta(t, 50.5, g.GetEdge(0).GetLength(), 1e-9)

	v, _ := g.GetVertexIndex("102")
	p, ok := g.GetVertexCoordinate(v)
	require.True(t, ok)
	assert.Equal(t, orb.Point{11890050, -690000}, p)
}

func TestDecodeGraphErrors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{name: "not xml", doc: "LINESTRING"},
		{name: "no graph", doc: `<graphml></graphml>`},
		{name: "bad geometry", doc: `<graphml><key id="g" for="edge" attr.name="geometry"/><graph><edge source="a" target="b"><data key="g">POINT (1 2</data></edge></graph></graphml>`},
		{name: "bad length", doc: `<graphml><key id="l" for="edge" attr.name="length"/><graph><edge source="a" target="b"><data key="l">far</data></edge></graph></graphml>`},
		{name: "missing target", doc: `<graphml><graph><edge source="a"/></graph></graphml>`},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGraph(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrGraphFormat))
		})
	}
}

func TestReadGraphMissingFile(t *testing.T) {
	_, err := ReadGraph(filepath.Join(t.TempDir(), "nope.graphml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGraphFormat))
}
