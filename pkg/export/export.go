package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mdepdi/be-fast-cablo/pkg/lastmile"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
)

// Outputs are the files written for one batch.
type Outputs struct {
	DetailedGeoJSON  string `json:"detailed_geojson"`
	DissolvedGeoJSON string `json:"dissolved_geojson"`
	SummaryCSV       string `json:"summary_csv"`
	SummaryJSON      string `json:"summary_json"`
	KML              string `json:"kml"`
}

func outputsFor(dir, requestID string) Outputs {
	name := func(prefix, ext string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, requestID, ext))
	}
	return Outputs{
		DetailedGeoJSON:  name("lastmile_detailed", "geojson"),
		DissolvedGeoJSON: name("lastmile_dissolved", "geojson"),
		SummaryCSV:       name("lastmile_dissolved_summary", "csv"),
		SummaryJSON:      name("analysis_summary", "json"),
		KML:              name("lastmile", "kml"),
	}
}

// WriteBatch writes every export of a finished batch into dir, creating it when missing.
func WriteBatch(dir string, res *lastmile.BatchResult) (Outputs, error) {
	if res == nil {
		return Outputs{}, util.WrapErrorf(nil, util.ErrBadParamInput, "nothing to export")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outputs{}, util.WrapErrorf(err, util.ErrInternalServerError, "create output dir %s", dir)
	}

	out := outputsFor(dir, res.RequestID)
	steps := []struct {
		path  string
		write func(string) error
	}{
		{out.DetailedGeoJSON, func(p string) error { return WriteFeatureCollection(p, DetailedFeatures(res.Records)) }},
		{out.DissolvedGeoJSON, func(p string) error { return WriteFeatureCollection(p, DissolvedFeatures(res.Groups)) }},
		{out.SummaryCSV, func(p string) error { return WriteSummaryCSV(p, res.Groups) }},
		{out.SummaryJSON, func(p string) error { return WriteSummaryJSON(p, res.Summary) }},
		{out.KML, func(p string) error { return WriteKML(p, "lastmile "+res.RequestID, res.Groups) }},
	}
	for _, s := range steps {
		if err := s.write(s.path); err != nil {
			return Outputs{}, util.WrapErrorf(err, util.ErrInternalServerError, "write %s", filepath.Base(s.path))
		}
	}
	return out, nil
}
