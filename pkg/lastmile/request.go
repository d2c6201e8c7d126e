package lastmile

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
)

var (
	ErrMissingColumn = errors.New("input is missing a mapped column")
	ErrBadRow        = errors.New("input row is invalid")
)

// ColumnMapping names the input columns holding each request field.
type ColumnMapping struct {
	FENameCol string `json:"fe_name_col" validate:"required"`
	NENameCol string `json:"ne_name_col" validate:"required"`
	LatFECol  string `json:"lat_fe_col" validate:"required"`
	LonFECol  string `json:"lon_fe_col" validate:"required"`
	LatNECol  string `json:"lat_ne_col" validate:"required"`
	LonNECol  string `json:"lon_ne_col" validate:"required"`
}

func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		FENameCol: "Far End (FE)",
		NENameCol: "Near End (NE)",
		LatFECol:  "Lat_FE",
		LonFECol:  "Lon_FE",
		LatNECol:  "Lat_NE",
		LonNECol:  "Lon_NE",
	}
}

func (m ColumnMapping) columns() []string {
	return []string{m.FENameCol, m.NENameCol, m.LatFECol, m.LonFECol, m.LatNECol, m.LonNECol}
}

// Request is one FE/NE pair to route. Coordinates are WGS84 as read from the input.
type Request struct {
	Index  int
	FEName string
	NEName string
	FE     geo.Coordinate
	NE     geo.Coordinate
}

func ReadRequests(path string, mapping ColumnMapping) ([]Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrNotFound, "open input %s", path)
	}
	defer f.Close()
	return DecodeRequests(f, mapping)
}

// DecodeRequests reads a CSV with a header row. Every mapped column must be present and
// every row must carry numeric coordinates.
func DecodeRequests(r io.Reader, mapping ColumnMapping) ([]Request, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrBadParamInput, "read header")
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	idx := make([]int, 0, 6)
	for _, col := range mapping.columns() {
		i, ok := pos[col]
		if !ok {
			return nil, util.WrapErrorf(ErrMissingColumn, util.ErrBadParamInput, "column %q", col)
		}
		idx = append(idx, i)
	}

	requests := []Request{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, util.WrapErrorf(err, util.ErrBadParamInput, "read line %d", line)
		}

		field := func(k int) string {
			if idx[k] >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx[k]])
		}

		coords := [4]float64{}
		for k := 0; k < 4; k++ {
			v, err := util.StringToFloat64(field(k + 2))
			if err != nil {
				return nil, util.WrapErrorf(ErrBadRow, util.ErrBadParamInput, "line %d column %q: %v",
					line, mapping.columns()[k+2], err)
			}
			coords[k] = v
		}

		requests = append(requests, Request{
			Index:  len(requests),
			FEName: field(0),
			NEName: field(1),
			FE:     geo.NewLonLat(coords[1], coords[0]),
			NE:     geo.NewLonLat(coords[3], coords[2]),
		})
	}
	return requests, nil
}
