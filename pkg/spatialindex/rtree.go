package spatialindex

import (
	"errors"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

var (
	ErrEmptyIndex = errors.New("spatial index built from empty input")
)

type Neighbor[T any] struct {
	Item     T
	Point    orb.Point
	Distance float64
}

type entry[T any] struct {
	item  T
	point orb.Point
	seq   int
}

// PointIndex answers k-nearest queries over points in one planar CRS.
// It is never modified after construction, concurrent queries are safe.
type PointIndex[T any] struct {
	tr   *rtree.RTreeG[entry[T]]
	size int
}

// NewPointIndex indexes items[i] at points[i]. Ties in distance resolve by slice order.
func NewPointIndex[T any](items []T, points []orb.Point) (*PointIndex[T], error) {
	if len(items) == 0 || len(items) != len(points) {
		return nil, ErrEmptyIndex
	}
	var tr rtree.RTreeG[entry[T]]
	for i := range items {
		p := [2]float64{points[i][0], points[i][1]}
		tr.Insert(p, p, entry[T]{item: items[i], point: points[i], seq: i})
	}
	return &PointIndex[T]{tr: &tr, size: len(items)}, nil
}

// NewNodeIndex indexes graph node coordinates, inserted in ascending node id order.
func NewNodeIndex(coords map[string]orb.Point) (*PointIndex[string], error) {
	ids := make([]string, 0, len(coords))
	for id := range coords {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	points := make([]orb.Point, len(ids))
	for i, id := range ids {
		points[i] = coords[id]
	}
	return NewPointIndex(ids, points)
}

func (pi *PointIndex[T]) Len() int {
	return pi.size
}

// Nearest returns up to k items closest to p by euclidean distance, ascending.
func (pi *PointIndex[T]) Nearest(p orb.Point, k int) []Neighbor[T] {
	return pi.NearestWhere(p, k, nil)
}

// NearestWhere is Nearest restricted to items accepted by accept (nil accepts all).
func (pi *PointIndex[T]) NearestWhere(p orb.Point, k int, accept func(T) bool) []Neighbor[T] {
	if k <= 0 {
		return nil
	}

	found := make([]entry[T], 0, k)
	dists := make([]float64, 0, k)
	pi.tr.Nearby(
		func(min, max [2]float64, data entry[T], item bool) float64 {
			return boxDistance(p, min, max)
		},
		func(min, max [2]float64, data entry[T], dist float64) bool {
			// keep going past k while distances still tie with the k-th one
			if len(found) >= k && dist > dists[k-1] {
				return false
			}
			if accept != nil && !accept(data.item) {
				return true
			}
			found = append(found, data)
			dists = append(dists, dist)
			return true
		},
	)

	order := make([]int, len(found))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if dists[ia] != dists[ib] {
			return dists[ia] < dists[ib]
		}
		return found[ia].seq < found[ib].seq
	})

	if len(order) > k {
		order = order[:k]
	}
	out := make([]Neighbor[T], len(order))
	for i, idx := range order {
		out[i] = Neighbor[T]{Item: found[idx].item, Point: found[idx].point, Distance: dists[idx]}
	}
	return out
}

func boxDistance(p orb.Point, min, max [2]float64) float64 {
	dx := math.Max(0, math.Max(min[0]-p[0], p[0]-max[0]))
	dy := math.Max(0, math.Max(min[1]-p[1], p[1]-max[1]))
	return math.Hypot(dx, dy)
}
