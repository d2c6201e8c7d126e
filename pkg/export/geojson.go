package export

import (
	"encoding/json"
	"os"

	"github.com/mdepdi/be-fast-cablo/pkg/aggregate"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"
)

// EncodePolyline encodes a single line as a precision 5 polyline. Multi-part and empty
// geometries have no encoding and return "".
func EncodePolyline(p geo.Polyline) string {
	ls, ok := p.To(geo.WGS84).Line()
	if !ok {
		return ""
	}
	coords := make([][]float64, len(ls))
	for i, pt := range ls {
		coords[i] = []float64{pt[1], pt[0]}
	}
	return string(polyline.EncodeCoords(coords))
}

func wgs84Geometry(p geo.Polyline) orb.Geometry {
	return p.To(geo.WGS84).Geometry()
}

// DissolvedFeatures converts groups to WGS84 features.
func DissolvedFeatures(groups []aggregate.DissolvedGroup) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range groups {
		geom := wgs84Geometry(g.Geometry)
		if geom == nil {
			continue
		}
		f := geojson.NewFeature(geom)
		f.Properties["type"] = string(g.Type)
		f.Properties["label"] = g.Label
		f.Properties["fe_name"] = g.FEName
		f.Properties["ne_name"] = g.NEName
		f.Properties["request_id"] = g.RequestID
		f.Properties["total_distance_m"] = util.RoundFloat(g.TotalDistanceM, 2)
		f.Properties["segment_count"] = g.SegmentCount
		f.Properties["geometry_kind"] = g.Geometry.Kind().String()
		if enc := EncodePolyline(g.Geometry); enc != "" {
			f.Properties["polyline"] = enc
		}
		fc.Append(f)
	}
	return fc
}

// DetailedFeatures converts every stitched segment, connectors included, to WGS84 features.
func DetailedFeatures(records []aggregate.Record) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, r := range records {
		geom := wgs84Geometry(r.Segment.Geometry)
		if geom == nil {
			continue
		}
		f := geojson.NewFeature(geom)
		f.Properties["segment_id"] = i
		f.Properties["request_id"] = r.RequestID
		f.Properties["request_index"] = r.Index
		f.Properties["type"] = string(r.Segment.Kind)
		f.Properties["label"] = r.Segment.Label()
		f.Properties["fe_name"] = r.FEName
		f.Properties["ne_name"] = r.NEName
		f.Properties["total_distance"] = r.Segment.DistanceM
		f.Properties["connector"] = r.Segment.Connector
		if r.Segment.FromNode != "" {
			f.Properties["from_node"] = r.Segment.FromNode
		}
		if r.Segment.ToNode != "" {
			f.Properties["to_node"] = r.Segment.ToNode
		}
		fc.Append(f)
	}
	return fc
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func WriteFeatureCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func WriteSummaryJSON(path string, s aggregate.Summary) error {
	return writeJSONFile(path, s)
}
