package datastructure

import (
	"errors"

	"github.com/mdepdi/be-fast-cablo/pkg"
)

var (
	ErrHeapEmpty       = errors.New("heap is empty")
	ErrInvalidDecrease = errors.New("invalid heap position or rank")
)

type PriorityQueueNode[T comparable] struct {
	rank    float64
	seq     uint64 // insertion sequence, breaks rank ties so pop order is deterministic
	item    T
	itemPos int
}

func NewPriorityQueueNode[T comparable](rank float64, item T) *PriorityQueueNode[T] {
	return &PriorityQueueNode[T]{rank: rank, item: item, itemPos: -1}
}

func (p *PriorityQueueNode[T]) GetItem() T {
	return p.item
}

func (p *PriorityQueueNode[T]) GetRank() float64 {
	return p.rank
}

func (p *PriorityQueueNode[T]) GetPos() int {
	return p.itemPos
}

// InHeap is false once the node has been extracted.
func (p *PriorityQueueNode[T]) InHeap() bool {
	return p.itemPos >= 0
}

// MinHeap is a d-ary min priority queue with position tracking for DecreaseKey.
type MinHeap[T comparable] struct {
	heap    []*PriorityQueueNode[T]
	d       int
	nextSeq uint64
}

func NewFourAryHeap[T comparable]() *MinHeap[T] {
	return NewdAryHeap[T](4)
}

func NewdAryHeap[T comparable](d int) *MinHeap[T] {
	if d < 2 {
		d = 2
	}
	return &MinHeap[T]{
		heap: make([]*PriorityQueueNode[T], 0),
		d:    d,
	}
}

func (h *MinHeap[T]) less(i, j int) bool {
	a, b := h.heap[i], h.heap[j]
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.seq < b.seq
}

func (h *MinHeap[T]) parent(index int) int {
	return (index - 1) / h.d
}

func (h *MinHeap[T]) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.heap[i].itemPos = i
	h.heap[j].itemPos = j
}

// heapifyUp restores the heap property upwards from index. O(log_d N).
func (h *MinHeap[T]) heapifyUp(index int) {
	for index != 0 && h.less(index, h.parent(index)) {
		p := h.parent(index)
		h.swap(index, p)
		index = p
	}
}

// heapifyDown swaps index with its smallest child until the heap property holds. O(d log_d N).
func (h *MinHeap[T]) heapifyDown(index int) {
	for {
		first := index*h.d + 1
		if first >= len(h.heap) {
			return
		}
		last := first + h.d
		if last > len(h.heap) {
			last = len(h.heap)
		}

		smallest := first
		for i := first + 1; i < last; i++ {
			if h.less(i, smallest) {
				smallest = i
			}
		}
		if !h.less(smallest, index) {
			return
		}
		h.swap(index, smallest)
		index = smallest
	}
}

func (h *MinHeap[T]) IsEmpty() bool {
	return len(h.heap) == 0
}

func (h *MinHeap[T]) Size() int {
	return len(h.heap)
}

func (h *MinHeap[T]) Clear() {
	for _, n := range h.heap {
		n.itemPos = -1
	}
	h.heap = h.heap[:0]
	h.nextSeq = 0
}

// GetMin returns the root without removing it.
func (h *MinHeap[T]) GetMin() (*PriorityQueueNode[T], error) {
	if h.IsEmpty() {
		return nil, ErrHeapEmpty
	}
	return h.heap[0], nil
}

func (h *MinHeap[T]) GetMinrank() float64 {
	if h.IsEmpty() {
		return 2 * pkg.INF_WEIGHT
	}
	return h.heap[0].rank
}

func (h *MinHeap[T]) Insert(node *PriorityQueueNode[T]) {
	node.seq = h.nextSeq
	h.nextSeq++
	h.heap = append(h.heap, node)
	node.itemPos = len(h.heap) - 1
	h.heapifyUp(node.itemPos)
}

// ExtractMin pops the root.
func (h *MinHeap[T]) ExtractMin() (*PriorityQueueNode[T], error) {
	if h.IsEmpty() {
		return nil, ErrHeapEmpty
	}
	root := h.heap[0]
	last := len(h.heap) - 1
	h.swap(0, last)
	h.heap = h.heap[:last]
	root.itemPos = -1
	if len(h.heap) > 0 {
		h.heapifyDown(0)
	}
	return root, nil
}

// DecreaseKey lowers the rank of a node still in the heap.
func (h *MinHeap[T]) DecreaseKey(node *PriorityQueueNode[T], rank float64) error {
	pos := node.itemPos
	if pos < 0 || pos >= len(h.heap) || h.heap[pos] != node || node.rank < rank {
		return ErrInvalidDecrease
	}
	node.rank = rank
	h.heapifyUp(pos)
	return nil
}
