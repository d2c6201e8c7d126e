package lastmile

import (
	"errors"

	"github.com/mdepdi/be-fast-cablo/pkg/engine"
	"github.com/mdepdi/be-fast-cablo/pkg/ors"
	"github.com/mdepdi/be-fast-cablo/pkg/overlap"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
)

// Resources are the read-only pieces shared by every batch: the network graph, the routing
// service client and the buffered infrastructure layer.
type Resources struct {
	Engine  *engine.Engine
	Gateway *ors.Client
	Buffer  *overlap.Buffer
}

// LoadResources builds the shared resources from cfg. A missing infrastructure layer only
// disables overlap mode.
func LoadResources(cfg *util.Config, log *zap.Logger) (*Resources, error) {
	log.Info("loading base data", zap.String("pulau", cfg.Data.Pulau),
		zap.String("graph", cfg.Data.GraphPath), zap.String("infrastructure", cfg.Data.InfrastructurePath))
	eng, err := engine.NewEngine(cfg.Data.GraphPath, log)
	if err != nil {
		return nil, err
	}
	gateway, err := ors.NewClient(ors.ConfigFrom(cfg.ORS), log)
	if err != nil {
		return nil, err
	}

	res := &Resources{Engine: eng, Gateway: gateway}
	if cfg.Data.InfrastructurePath == "" {
		log.Warn("no infrastructure layer configured, overlap mode disabled")
		return res, nil
	}
	buf, err := BuildInfrastructureBuffer(cfg.Data.InfrastructurePath, cfg.Data.InfrastructureCRS,
		cfg.Overlap.BufferHalfWidthM)
	switch {
	case err == nil:
		log.Info("infrastructure layer buffered", zap.String("path", cfg.Data.InfrastructurePath),
			zap.Int("features", buf.NumFeatures()), zap.Float64("area_m2", buf.AreaM2()))
		res.Buffer = buf
	case errors.Is(err, util.ErrNotFound):
		log.Warn("infrastructure layer not found, overlap mode disabled",
			zap.String("path", cfg.Data.InfrastructurePath), zap.Error(err))
	default:
		return nil, err
	}
	return res, nil
}
