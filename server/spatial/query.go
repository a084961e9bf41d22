package spatial

import (
	"container/heap"

	"github.com/go-gl/mathgl/mgl32"
)

const overlapStackCap = 64

// Overlap performs a depth-first search with an explicit stack, yielding
// every element whose AABB intersects target. The stack starts with room for
// 64 entries (spec.md §4.5) and grows past that if a tree needs more; a BVH
// built with the documented leaf thresholds never approaches that depth in
// practice.
func (b *BVH[E]) Overlap(target AABB, yield func(E) bool) {
	if b.Root < 0 {
		return
	}
	stack := make([]int32, 0, overlapStackCap)
	stack = append(stack, b.Root)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := b.Nodes[idx]
		if !n.Bounds.Intersects(target) {
			continue
		}
		if n.IsLeaf() {
			start, count := n.LeafRange()
			for i := start; i < start+count; i++ {
				if b.bounds(b.Elems[i]).Intersects(target) {
					if !yield(b.Elems[i]) {
						return
					}
				}
			}
			continue
		}
		stack = append(stack, n.Left, n.Right)
	}
}

// heapItem is a candidate in a best-first search, ordered by Key (ascending).
type heapItem struct {
	key    float32
	isLeaf bool
	node   int32
	elem   int // valid only when isLeaf and this item represents a single element
}

type candidateHeap []heapItem

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Nearest performs a best-first search keyed on AABB distance² to target,
// returning the element whose AABB midpoint is closest to target and that
// squared distance (spec.md §8 invariant 4). When several elements are
// equally close, which of them is returned is not defined: Build reorders
// the elements, and the candidate heap does not order equal keys.
func (b *BVH[E]) Nearest(target mgl32.Vec3) (E, float32, bool) {
	var zero E
	if b.Root < 0 {
		return zero, 0, false
	}

	h := &candidateHeap{{key: b.Nodes[b.Root].Bounds.DistanceSquared(target), node: b.Root}}
	heap.Init(h)

	bestSet := false
	var best E
	bestDist := float32(0)

	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		if bestSet && item.key > bestDist {
			break
		}
		n := b.Nodes[item.node]
		if n.IsLeaf() {
			start, count := n.LeafRange()
			for i := start; i < start+count; i++ {
				d := sqDist(b.bounds(b.Elems[i]).Midpoint(), target)
				if !bestSet || d < bestDist {
					bestSet = true
					bestDist = d
					best = b.Elems[i]
				}
			}
			continue
		}
		left := b.Nodes[n.Left]
		right := b.Nodes[n.Right]
		heap.Push(h, heapItem{key: left.Bounds.DistanceSquared(target), node: n.Left})
		heap.Push(h, heapItem{key: right.Bounds.DistanceSquared(target), node: n.Right})
	}
	return best, bestDist, bestSet
}

func sqDist(a, b mgl32.Vec3) float32 {
	d := a.Sub(b)
	return d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
}

// RayHitResult describes the closest element a ray hits.
type RayHitResult[E any] struct {
	Elem  E
	Param float32
}

// NearestRay performs a best-first search keyed on the ray-entry parameter,
// using the slab method for node/element intersection tests, and returns
// the element with the smallest nonnegative ray parameter among those whose
// AABB the ray hits (spec.md §8 invariant 5).
func (b *BVH[E]) NearestRay(origin, dir mgl32.Vec3) (RayHitResult[E], bool) {
	var zero RayHitResult[E]
	if b.Root < 0 {
		return zero, false
	}
	inv := mgl32.Vec3{safeInv(dir[0]), safeInv(dir[1]), safeInv(dir[2])}

	// nodeKey is a node's ray-entry parameter, 0 when origin lies inside the
	// node (IntersectRay reports the exit parameter in that case).
	nodeKey := func(bb AABB) (float32, bool) {
		t, ok := bb.IntersectRay(origin, inv)
		if ok && bb.Contains(origin) {
			t = 0
		}
		return t, ok
	}

	rootParam, ok := nodeKey(b.Nodes[b.Root].Bounds)
	if !ok {
		return zero, false
	}
	h := &candidateHeap{{key: rootParam, node: b.Root}}
	heap.Init(h)

	found := false
	var best RayHitResult[E]

	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		if found && item.key > best.Param {
			break
		}
		n := b.Nodes[item.node]
		if n.IsLeaf() {
			start, count := n.LeafRange()
			for i := start; i < start+count; i++ {
				if param, ok := b.bounds(b.Elems[i]).IntersectRay(origin, inv); ok {
					if !found || param < best.Param {
						found = true
						best = RayHitResult[E]{Elem: b.Elems[i], Param: param}
					}
				}
			}
			continue
		}
		if param, ok := nodeKey(b.Nodes[n.Left].Bounds); ok {
			heap.Push(h, heapItem{key: param, node: n.Left})
		}
		if param, ok := nodeKey(b.Nodes[n.Right].Bounds); ok {
			heap.Push(h, heapItem{key: param, node: n.Right})
		}
	}
	return best, found
}

func safeInv(v float32) float32 {
	if v == 0 {
		v = 1e-20
	}
	return 1 / v
}
