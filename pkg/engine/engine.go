package engine

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mdepdi/be-fast-cablo/pkg/datastructure"
	"github.com/mdepdi/be-fast-cablo/pkg/engine/routing"
	"github.com/mdepdi/be-fast-cablo/pkg/spatialindex"
	"go.uber.org/zap"
)

const (
	pathCacheSize = 1 << 16
)

// Engine bundles the network graph with the structures built on it once per batch:
// the node spatial index and the routing engine. All of it is read-only.
type Engine struct {
	graph         *datastructure.Graph
	nodeIndex     *spatialindex.PointIndex[string]
	routingEngine *routing.RoutingEngine
}

func (e *Engine) GetGraph() *datastructure.Graph {
	return e.graph
}

func (e *Engine) GetNodeIndex() *spatialindex.PointIndex[string] {
	return e.nodeIndex
}

func (e *Engine) GetRoutingEngine() *routing.RoutingEngine {
	return e.routingEngine
}

func NewEngine(graphFilePath string, logger *zap.Logger) (*Engine, error) {
	logger.Info("Reading network graph...", zap.String("graphFilePath", graphFilePath))
	graph, err := datastructure.ReadGraph(graphFilePath)
	if err != nil {
		return nil, err
	}
	return NewEngineFromGraph(graph, logger)
}

func NewEngineFromGraph(graph *datastructure.Graph, logger *zap.Logger) (*Engine, error) {
	logger.Info("Building node spatial index...",
		zap.Int("vertices", graph.NumberOfVertices()), zap.Int("edges", graph.NumberOfEdges()))
	nodeIndex, err := spatialindex.NewNodeIndex(graph.NodeCoordinates())
	if err != nil {
		return nil, err
	}
	logger.Info("Node spatial index built.", zap.Int("nodes", nodeIndex.Len()))

	pathCache, err := lru.New[routing.PathCacheKey, routing.PathResult](pathCacheSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		graph:         graph,
		nodeIndex:     nodeIndex,
		routingEngine: routing.NewRoutingEngine(graph, logger, pathCache),
	}, nil
}
