package lastmile

import (
	"fmt"
	"strings"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/hybrid"
	"github.com/mdepdi/be-fast-cablo/pkg/ors"
	"github.com/mdepdi/be-fast-cablo/pkg/stitcher"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
)

type Mode string

const (
	MODE_HYBRID  Mode = "hybrid"
	MODE_OVERLAP Mode = "overlap"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MODE_HYBRID:
		return MODE_HYBRID, nil
	case MODE_OVERLAP:
		return MODE_OVERLAP, nil
	default:
		return "", util.WrapErrorf(nil, util.ErrBadParamInput, "unknown mode %q", s)
	}
}

// Config is fixed for the lifetime of a Processor.
type Config struct {
	Mode                   Mode
	Hybrid                 hybrid.Params
	Stitcher               stitcher.Options
	SnapRadiusM            float64
	BufferHalfWidthM       float64
	Sweep                  []ors.SweepParam
	AlternativeTargetCount int
	Workers                int
}

func DefaultConfig() Config {
	return Config{
		Mode:                   MODE_HYBRID,
		Hybrid:                 hybrid.DefaultParams(),
		Stitcher:               stitcher.DefaultOptions(),
		SnapRadiusM:            pkg.DEFAULT_SNAP_RADIUS_M,
		BufferHalfWidthM:       pkg.DEFAULT_BUFFER_HALF_WIDTH_M,
		Sweep:                  ors.DefaultSweep,
		AlternativeTargetCount: pkg.DEFAULT_ALTERNATIVE_TARGET_CNT,
		Workers:                4,
	}
}

func ConfigFrom(cfg *util.Config) (Config, error) {
	mode, err := ParseMode(cfg.Batch.Mode)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		Mode:                   mode,
		Hybrid:                 hybrid.ParamsFrom(cfg.Hybrid),
		Stitcher:               stitcher.OptionsFrom(cfg.Stitcher),
		SnapRadiusM:            cfg.ORS.SnapRadiusM,
		BufferHalfWidthM:       cfg.Overlap.BufferHalfWidthM,
		Sweep:                  ors.DefaultSweep,
		AlternativeTargetCount: cfg.ORS.AlternativeCnt,
		Workers:                cfg.Batch.Workers,
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return util.WrapErrorf(nil, util.ErrBadParamInput, "workers must be positive, got %d", c.Workers)
	case c.Hybrid.KStandard < 1 || c.Hybrid.KProgressive < 1:
		return util.WrapErrorf(nil, util.ErrBadParamInput, "candidate counts must be positive")
	case c.Hybrid.ImprovementFactor <= 0:
		return util.WrapErrorf(nil, util.ErrBadParamInput, "improvement factor must be positive")
	case c.BufferHalfWidthM <= 0:
		return util.WrapErrorf(nil, util.ErrBadParamInput, "buffer half width must be positive")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("mode=%s workers=%d k=%d/%d radius=%.0fm factor=%.2f cutoff=%.0fm",
		c.Mode, c.Workers, c.Hybrid.KStandard, c.Hybrid.KProgressive, c.Hybrid.CandidateRadiusM,
		c.Hybrid.ImprovementFactor, c.Hybrid.ReachCutoffM)
}
