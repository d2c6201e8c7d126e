package lastmile

import (
	"errors"
	"fmt"
	"os"

	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/overlap"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrInfrastructure = errors.New("infrastructure layer unusable")
)

const nameProperty = "NAME"

// LoadInfrastructure reads the existing fiber layer as a GeoJSON FeatureCollection.
// Features without geometry are skipped.
func LoadInfrastructure(path string) ([]overlap.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.WrapErrorf(errors.Join(ErrInfrastructure, err), util.ErrNotFound, "read %s", path)
	}
	return DecodeInfrastructure(data)
}

func DecodeInfrastructure(data []byte) ([]overlap.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, util.WrapErrorf(errors.Join(ErrInfrastructure, err), util.ErrBadParamInput, "decode feature collection")
	}

	features := make([]overlap.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		name := f.Properties.MustString(nameProperty, "")
		if name == "" {
			name = fmt.Sprintf("feature-%d", i)
		}
		features = append(features, overlap.Feature{Name: name, Geometry: f.Geometry})
	}
	if len(features) == 0 {
		return nil, util.WrapErrorf(ErrInfrastructure, util.ErrBadParamInput, "no feature has a geometry")
	}
	return features, nil
}

// BuildInfrastructureBuffer loads the layer and buffers it, crsName is the layer's CRS.
func BuildInfrastructureBuffer(path, crsName string, halfWidthM float64) (*overlap.Buffer, error) {
	crs, err := geo.ParseCRS(crsName)
	if err != nil {
		return nil, util.WrapErrorf(errors.Join(ErrInfrastructure, err), util.ErrBadParamInput, "infrastructure crs")
	}
	features, err := LoadInfrastructure(path)
	if err != nil {
		return nil, err
	}
	buf, err := overlap.NewBuffer(features, crs, halfWidthM)
	if err != nil {
		return nil, util.WrapErrorf(errors.Join(ErrInfrastructure, err), util.ErrInternalServerError, "buffer infrastructure")
	}
	return buf, nil
}
