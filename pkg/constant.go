package pkg

// segment type, serialized with the names downstream consumers already know
type SegmentType string

const (
	GRAPH_ROUTED    SegmentType = "nx"  // traverses the existing fiber network graph
	EXTERNAL_ROUTED SegmentType = "ors" // routed by the road routing service, new-build
)

const (
	LABEL_OVERLAPPED = "overlapped"
	LABEL_NEW_BUILD  = "new-build"
)

func GetSegmentLabel(t SegmentType) string {
	switch t {
	case EXTERNAL_ROUTED:
		return LABEL_NEW_BUILD
	default:
		return LABEL_OVERLAPPED
	}
}

const (
	INF_WEIGHT float64 = 1e15

	DEFAULT_SNAP_RADIUS_M          = 8000.0
	DEFAULT_BUFFER_HALF_WIDTH_M    = 30.0
	DEFAULT_K_STANDARD             = 25
	DEFAULT_K_PROGRESSIVE          = 15
	DEFAULT_CANDIDATE_RADIUS_M     = 5000.0
	DEFAULT_IMPROVEMENT_FACTOR     = 0.95 // hybrid must be at least 5% shorter than direct
	DEFAULT_REACH_CUTOFF_M         = 50000.0
	DEFAULT_CONNECT_THRESHOLD      = 0.1
	DEFAULT_CONNECT_EPSILON        = 1e-6
	DEFAULT_ALTERNATIVE_TARGET_CNT = 3

	SAME_POINT_TOLERANCE_M = 0.5 // closer endpoints are treated as one location
)
