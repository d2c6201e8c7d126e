package export

import (
	"bufio"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/mdepdi/be-fast-cablo/pkg/aggregate"
)

var summaryHeader = []string{
	"type", "label", "fe_name", "ne_name", "request_id", "total_distance_m", "segment_count",
	"lon_fe", "lat_fe", "lon_ne", "lat_ne",
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// WriteSummaryCSV writes one row per dissolved group, geometry left out.
func WriteSummaryCSV(path string, groups []aggregate.DissolvedGroup) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, g := range groups {
		row := []string{
			string(g.Type),
			g.Label,
			g.FEName,
			g.NEName,
			g.RequestID,
			formatFloat(g.TotalDistanceM, 2),
			strconv.Itoa(g.SegmentCount),
			formatFloat(g.FE.GetLon(), 6),
			formatFloat(g.FE.GetLat(), 6),
			formatFloat(g.NE.GetLon(), 6),
			formatFloat(g.NE.GetLat(), 6),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
