package aggregate

import (
	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
)

type GroupSummary struct {
	Label          string          `json:"label"`
	Type           pkg.SegmentType `json:"type"`
	FEName         string          `json:"fe_name"`
	NEName         string          `json:"ne_name"`
	TotalDistanceM float64         `json:"total_distance_m"`
	SegmentCount   int             `json:"segment_count"`
}

type Failure struct {
	Index     int    `json:"index"`
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

type Summary struct {
	RequestID                   string         `json:"request_id"`
	ProcessingTimestamp         string         `json:"processing_timestamp"`
	Mode                        string         `json:"mode"`
	TotalRequests               int            `json:"total_requests"`
	ProcessedRequests           int            `json:"processed_requests"`
	TotalSegmentsBeforeDissolve int            `json:"total_segments_before_dissolve"`
	TotalGroupsAfterDissolve    int            `json:"total_groups_after_dissolve"`
	TotalDistanceM              float64        `json:"total_distance_m"`
	OverlappedDistanceM         float64        `json:"overlapped_distance_m"`
	NewBuildDistanceM           float64        `json:"new_build_distance_m"`
	OverlappedPercentage        float64        `json:"overlapped_percentage"`
	NewBuildPercentage          float64        `json:"new_build_percentage"`
	DissolvedGroups             []GroupSummary `json:"dissolved_groups"`
	Failures                    []Failure      `json:"failures,omitempty"`
}

// Summarize totals the dissolved groups. Distances and percentages are rounded to 2 decimals,
// percentages are 0 when nothing was routed.
func Summarize(groups []DissolvedGroup, segmentsBefore, totalRequests, processedRequests int) Summary {
	var total, overlapped, newBuild float64
	dissolved := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		total += g.TotalDistanceM
		switch g.Type {
		case pkg.GRAPH_ROUTED:
			overlapped += g.TotalDistanceM
		case pkg.EXTERNAL_ROUTED:
			newBuild += g.TotalDistanceM
		}
		dissolved = append(dissolved, GroupSummary{
			Label:          g.Label,
			Type:           g.Type,
			FEName:         g.FEName,
			NEName:         g.NEName,
			TotalDistanceM: util.RoundFloat(g.TotalDistanceM, 2),
			SegmentCount:   g.SegmentCount,
		})
	}

	s := Summary{
		TotalRequests:               totalRequests,
		ProcessedRequests:           processedRequests,
		TotalSegmentsBeforeDissolve: segmentsBefore,
		TotalGroupsAfterDissolve:    len(groups),
		TotalDistanceM:              util.RoundFloat(total, 2),
		OverlappedDistanceM:         util.RoundFloat(overlapped, 2),
		NewBuildDistanceM:           util.RoundFloat(newBuild, 2),
		DissolvedGroups:             dissolved,
	}
	if total > 0 {
		s.OverlappedPercentage = util.RoundFloat(overlapped/total*100, 2)
		s.NewBuildPercentage = util.RoundFloat(newBuild/total*100, 2)
	}
	return s
}
