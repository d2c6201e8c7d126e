package hybrid

import (
	"errors"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
)

var (
	ErrNoRoute = errors.New("no hybrid route found")
)

type Strategy string

const (
	STANDARD    Strategy = "standard"
	PROGRESSIVE Strategy = "progressive"
)

// Segment is one piece of a last-mile route. Geometry is in EPSG:3857.
type Segment struct {
	Kind      pkg.SegmentType
	Geometry  geo.Polyline
	DistanceM float64
	FromNode  string
	ToNode    string
	Connector bool // synthesized to close a gap between two other segments
}

func (s Segment) Label() string {
	return pkg.GetSegmentLabel(s.Kind)
}

// Result is either a direct external route or an entry/graph/exit triple.
type Result struct {
	Strategy       Strategy
	IsDirect       bool
	Direct         *Segment
	Entry          *Segment
	Graph          *Segment
	Exit           *Segment
	TotalNewBuildM float64
	TotalGraphM    float64
}

// Segments lists the route pieces in travel order.
func (r *Result) Segments() []Segment {
	if r.IsDirect {
		return []Segment{*r.Direct}
	}
	return []Segment{*r.Entry, *r.Graph, *r.Exit}
}

func newDirectResult(direct Segment) *Result {
	return &Result{
		Strategy:       STANDARD,
		IsDirect:       true,
		Direct:         &direct,
		TotalNewBuildM: direct.DistanceM,
	}
}

func newTripleResult(strategy Strategy, entry, graph, exit Segment) *Result {
	return &Result{
		Strategy:       strategy,
		Entry:          &entry,
		Graph:          &graph,
		Exit:           &exit,
		TotalNewBuildM: entry.DistanceM + exit.DistanceM,
		TotalGraphM:    graph.DistanceM,
	}
}

// Params are the tunables of both strategies.
type Params struct {
	KStandard         int
	KProgressive      int
	CandidateRadiusM  float64
	ImprovementFactor float64 // a hybrid must cost less than direct * factor
	ReachCutoffM      float64
	Fanout            int // concurrent candidate evaluations per request
}

func DefaultParams() Params {
	return Params{
		KStandard:         pkg.DEFAULT_K_STANDARD,
		KProgressive:      pkg.DEFAULT_K_PROGRESSIVE,
		CandidateRadiusM:  pkg.DEFAULT_CANDIDATE_RADIUS_M,
		ImprovementFactor: pkg.DEFAULT_IMPROVEMENT_FACTOR,
		ReachCutoffM:      pkg.DEFAULT_REACH_CUTOFF_M,
		Fanout:            8,
	}
}

func ParamsFrom(cfg util.HybridConfig) Params {
	p := Params{
		KStandard:         cfg.KStandard,
		KProgressive:      cfg.KProgressive,
		CandidateRadiusM:  cfg.CandidateRadiusM,
		ImprovementFactor: cfg.ImprovementFactor,
		ReachCutoffM:      cfg.ReachCutoffM,
		Fanout:            cfg.Fanout,
	}
	if p.Fanout <= 0 {
		p.Fanout = 1
	}
	return p
}
