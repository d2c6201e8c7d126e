package datastructure

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb/encoding/wkt"
)

var (
	ErrGraphFormat = errors.New("invalid graph file")
)

const (
	graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

	GEOMETRY_KEY = "geometry"
	LENGTH_KEY   = "length"
)

type graphML struct {
	XMLName xml.Name       `xml:"graphml"`
	Xmlns   string         `xml:"xmlns,attr,omitempty"`
	Keys    []graphMLKey   `xml:"key"`
	Graphs  []graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID string `xml:"id,attr"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// ReadGraph loads a GraphML network graph. Files ending in .bz2 are decompressed on the fly.
// Edges carry a WKT LineString "geometry" (EPSG:3857) and a numeric "length" attribute.
func ReadGraph(filename string) (*Graph, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrNotFound, "open graph file %s", filename)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(filename, ".bz2") {
		bz, err := bzip2.NewReader(r, &bzip2.ReaderConfig{})
		if err != nil {
			return nil, util.WrapErrorf(err, ErrGraphFormat, "open bzip2 stream %s", filename)
		}
		defer bz.Close()
		r = bz
	}

	return DecodeGraph(r)
}

func DecodeGraph(r io.Reader) (*Graph, error) {
	var doc graphML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, util.WrapErrorf(err, ErrGraphFormat, "decode graphml")
	}
	if len(doc.Graphs) == 0 {
		return nil, util.WrapErrorf(nil, ErrGraphFormat, "graphml has no graph element")
	}

	var geometryKey, lengthKey string
	for _, k := range doc.Keys {
		if k.For != "edge" && k.For != "all" {
			continue
		}
		switch k.Name {
		case GEOMETRY_KEY:
			geometryKey = k.ID
		case LENGTH_KEY:
			lengthKey = k.ID
		}
	}

	gm := doc.Graphs[0]
	nodeIDs := make([]string, 0, len(gm.Nodes))
	for _, n := range gm.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	edges := make([]EdgeInput, 0, len(gm.Edges))
	for i, e := range gm.Edges {
		if e.Source == "" || e.Target == "" {
			return nil, util.WrapErrorf(nil, ErrGraphFormat, "edge %d has no source or target", i)
		}
		in := EdgeInput{From: e.Source, To: e.Target}
		for _, d := range e.Data {
			value := strings.TrimSpace(d.Value)
			switch {
			case d.Key == geometryKey && geometryKey != "" && value != "":
				ls, err := wkt.UnmarshalLineString(value)
				if err != nil {
					return nil, util.WrapErrorf(err, ErrGraphFormat, "edge %d (%s-%s) geometry", i, e.Source, e.Target)
				}
				in.Geometry = ls
			case d.Key == lengthKey && lengthKey != "" && value != "":
				length, err := util.StringToFloat64(value)
				if err != nil {
					return nil, util.WrapErrorf(err, ErrGraphFormat, "edge %d (%s-%s) length", i, e.Source, e.Target)
				}
				in.Length = length
			}
		}
		edges = append(edges, in)
	}

	return NewGraph(nodeIDs, edges), nil
}

// WriteGraph writes g as GraphML, bzip2 compressed when filename ends in .bz2.
func (g *Graph) WriteGraph(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(filename, ".bz2") {
		bz, err := bzip2.NewWriter(f, &bzip2.WriterConfig{})
		if err != nil {
			return err
		}
		defer bz.Close()
		w = bz
	}

	bw := bufio.NewWriter(w)
	if err := g.EncodeGraph(bw); err != nil {
		return err
	}
	return bw.Flush()
}

func (g *Graph) EncodeGraph(w io.Writer) error {
	doc := graphML{
		Xmlns: graphMLNamespace,
		Keys: []graphMLKey{
			{ID: "d0", For: "edge", Name: GEOMETRY_KEY, Type: "string"},
			{ID: "d1", For: "edge", Name: LENGTH_KEY, Type: "double"},
		},
	}

	gm := graphMLGraph{EdgeDefault: "undirected"}
	for _, v := range g.vertices {
		gm.Nodes = append(gm.Nodes, graphMLNode{ID: v.id})
	}
	for _, e := range g.edges {
		out := graphMLEdge{Source: g.vertices[e.u].id, Target: g.vertices[e.v].id}
		if e.HasGeometry() {
			out.Data = append(out.Data, graphMLData{Key: "d0", Value: wkt.MarshalString(e.geometry)})
		}
		out.Data = append(out.Data, graphMLData{Key: "d1", Value: strconv.FormatFloat(e.length, 'f', -1, 64)})
		gm.Edges = append(gm.Edges, out)
	}
	doc.Graphs = []graphMLGraph{gm}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode graphml: %w", err)
	}
	return nil
}
