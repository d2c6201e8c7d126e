package routing

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	da "github.com/mdepdi/be-fast-cablo/pkg/datastructure"
	"go.uber.org/zap"
)

type PathCacheKey struct {
	From, To da.Index
}

// RoutingEngine runs shortest path queries over a read-only network graph.
// Queries may run concurrently, each borrows a search buffer from the pool.
type RoutingEngine struct {
	graph     *da.Graph
	logger    *zap.Logger
	pathCache *lru.Cache[PathCacheKey, PathResult]
	bufPool   sync.Pool
}

// NewRoutingEngine creates an engine. pathCache may be nil.
func NewRoutingEngine(graph *da.Graph, logger *zap.Logger, pathCache *lru.Cache[PathCacheKey, PathResult]) *RoutingEngine {
	e := &RoutingEngine{
		graph:     graph,
		logger:    logger,
		pathCache: pathCache,
	}
	e.BuildBufferPool()
	return e
}

func (re *RoutingEngine) GetGraph() *da.Graph {
	return re.graph
}

func (re *RoutingEngine) BuildBufferPool() {
	n := re.graph.NumberOfVertices()
	re.bufPool = sync.Pool{
		New: func() any {
			return newSearchBuffer(n)
		},
	}
}

func (re *RoutingEngine) getBuffer() *searchBuffer {
	return re.bufPool.Get().(*searchBuffer)
}

func (re *RoutingEngine) putBuffer(sb *searchBuffer) {
	sb.clear()
	re.bufPool.Put(sb)
}
