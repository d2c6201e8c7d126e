package lastmile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/aggregate"
	"github.com/mdepdi/be-fast-cablo/pkg/concurrent"
	"github.com/mdepdi/be-fast-cablo/pkg/engine"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/hybrid"
	"github.com/mdepdi/be-fast-cablo/pkg/ors"
	"github.com/mdepdi/be-fast-cablo/pkg/overlap"
	"github.com/mdepdi/be-fast-cablo/pkg/stitcher"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
)

var (
	ErrNoSuccessfulRequests = errors.New("no request in the batch was routed")
	ErrCoincidentEndpoints  = errors.New("FE and NE are the same location")
)

type Gateway interface {
	hybrid.RoutingGateway
	Snap(ctx context.Context, point geo.Coordinate, radiusM float64) geo.Coordinate
	AlternativeRoutes(ctx context.Context, from, to geo.Coordinate, sweep []ors.SweepParam, targetCount int) []ors.Route
}

// RequestFailure records why one request produced no route.
type RequestFailure struct {
	Index     int
	RequestID string
	FEName    string
	NEName    string
	Err       error
}

func (f RequestFailure) Reason() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

type BatchResult struct {
	RequestID string
	Mode      Mode
	Records   []aggregate.Record
	Groups    []aggregate.DissolvedGroup
	Summary   aggregate.Summary
	Failures  []RequestFailure
	Elapsed   time.Duration
}

// Processor routes a batch of requests against one network graph. It holds no mutable state,
// a new one is built for each batch or shared read-only between batches with the same Config.
type Processor struct {
	cfg      Config
	engine   *engine.Engine
	gateway  Gateway
	buffer   *overlap.Buffer
	searcher *hybrid.Searcher
	logger   *zap.Logger
}

// NewProcessor wires the components for cfg.Mode. buffer is required in overlap mode and
// ignored otherwise.
func NewProcessor(cfg Config, eng *engine.Engine, gateway Gateway, buffer *overlap.Buffer, logger *zap.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == MODE_OVERLAP && buffer == nil {
		return nil, util.WrapErrorf(ErrInfrastructure, util.ErrBadParamInput, "overlap mode needs an infrastructure buffer")
	}

	return &Processor{
		cfg:     cfg,
		engine:  eng,
		gateway: gateway,
		buffer:  buffer,
		searcher: hybrid.NewSearcher(eng.GetNodeIndex(), eng.GetGraph().NodeCoordinates(),
			eng.GetRoutingEngine(), gateway, cfg.Hybrid, logger),
		logger: logger,
	}, nil
}

func (p *Processor) Config() Config {
	return p.cfg
}

type outcome struct {
	records []aggregate.Record
	err     error
}

// Run processes every request, a failed request is recorded and skipped. The batch fails
// only when no request succeeds or ctx is cancelled.
func (p *Processor) Run(ctx context.Context, requestID string, requests []Request) (*BatchResult, error) {
	start := time.Now()
	if requestID == "" {
		requestID = uuid.NewString()
	}
	p.logger.Info("processing batch", zap.String("request_id", requestID), zap.Int("requests", len(requests)),
		zap.Stringer("config", p.cfg))

	outcomes := concurrent.Map(ctx, p.cfg.Workers, requests, func(ctx context.Context, job concurrent.Job[Request]) outcome {
		if util.StopConcurrentOperation(ctx) {
			return outcome{err: ctx.Err()}
		}
		records, err := p.ProcessRequest(ctx, requestID, job.Item)
		return outcome{records: records, err: err}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &BatchResult{RequestID: requestID, Mode: p.cfg.Mode}
	processed := 0
	for i, o := range outcomes {
		req := requests[i]
		if o.err != nil {
			p.logger.Warn("request failed", zap.Int("index", req.Index), zap.String("fe", req.FEName),
				zap.String("ne", req.NEName), zap.Error(o.err))
			res.Failures = append(res.Failures, RequestFailure{
				Index:     req.Index,
				RequestID: requestID,
				FEName:    req.FEName,
				NEName:    req.NEName,
				Err:       o.err,
			})
			continue
		}
		processed++
		res.Records = append(res.Records, o.records...)
	}

	if processed == 0 {
		return res, util.WrapErrorf(ErrNoSuccessfulRequests, util.ErrBadParamInput, "%d requests, none routed", len(requests))
	}

	res.Groups = aggregate.Dissolve(res.Records)
	res.Summary = aggregate.Summarize(res.Groups, len(res.Records), len(requests), processed)
	res.Summary.RequestID = requestID
	res.Summary.Mode = string(p.cfg.Mode)
	res.Summary.ProcessingTimestamp = time.Now().Format(time.RFC3339)
	for _, f := range res.Failures {
		res.Summary.Failures = append(res.Summary.Failures, aggregate.Failure{
			Index:     f.Index,
			RequestID: f.RequestID,
			Reason:    f.Reason(),
		})
	}
	res.Elapsed = time.Since(start)

	p.logger.Info("batch done", zap.String("request_id", requestID), zap.Int("processed", processed),
		zap.Int("failed", len(res.Failures)), zap.Int("groups", len(res.Groups)),
		zap.Float64("total_distance_m", res.Summary.TotalDistanceM), zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// ProcessRequest routes one FE/NE pair and returns its stitched segments.
func (p *Processor) ProcessRequest(ctx context.Context, requestID string, req Request) ([]aggregate.Record, error) {
	if d := geo.GeodesicDistance(req.FE, req.NE); d < pkg.SAME_POINT_TOLERANCE_M {
		return nil, util.WrapErrorf(ErrCoincidentEndpoints, util.ErrBadParamInput, "%s and %s are %.2f m apart",
			req.FEName, req.NEName, d)
	}

	fe := p.gateway.Snap(ctx, req.FE, p.cfg.SnapRadiusM)
	ne := p.gateway.Snap(ctx, req.NE, p.cfg.SnapRadiusM)
	p.logger.Debug("snapped endpoints", zap.Int("index", req.Index),
		zap.Float64("fe_shift_m", geo.GeodesicDistance(req.FE, fe)),
		zap.Float64("ne_shift_m", geo.GeodesicDistance(req.NE, ne)))

	var (
		segments []hybrid.Segment
		err      error
	)
	switch p.cfg.Mode {
	case MODE_OVERLAP:
		segments, err = p.overlapSegments(ctx, fe, ne)
	default:
		segments, err = p.hybridSegments(ctx, fe, ne)
	}
	if err != nil {
		return nil, err
	}

	segments = stitcher.Connect(segments, p.cfg.Stitcher)
	if len(segments) == 0 {
		return nil, util.WrapErrorf(hybrid.ErrNoRoute, util.ErrNotFound, "route has no length")
	}

	records := make([]aggregate.Record, len(segments))
	for i, s := range segments {
		records[i] = aggregate.Record{
			RequestID: requestID,
			Index:     req.Index,
			FEName:    req.FEName,
			NEName:    req.NEName,
			FE:        req.FE,
			NE:        req.NE,
			Segment:   s,
		}
	}
	return records, nil
}

func (p *Processor) hybridSegments(ctx context.Context, fe, ne geo.Coordinate) ([]hybrid.Segment, error) {
	res, err := p.searcher.Search(ctx, fe, ne)
	if err != nil {
		return nil, err
	}
	return res.Segments(), nil
}
