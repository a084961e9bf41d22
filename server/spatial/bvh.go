package spatial

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Node is one entry of the BVH's flat node vector. Left/Right encode either
// two child node indices (internal node, both >= 0) or a leaf's element run:
// a leaf stores Left = -(start+1) into the element vector and Right as the
// run length. The sign bit on Left disambiguates leaf vs internal in O(1),
// branchless (spec.md §3 "BVH").
type Node struct {
	Bounds AABB
	Left   int32
	Right  int32
}

// IsLeaf reports whether n is a leaf node.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// LeafRange returns the [start, start+count) range into the BVH's element
// vector that this leaf covers. Only valid when IsLeaf is true.
func (n Node) LeafRange() (start, count int) {
	return int(-(n.Left + 1)), int(n.Right)
}

// BVH is a flat-array bounding volume hierarchy over elements of type E,
// indexed via a user-supplied Bounds function. Build reorders Elems in
// place; callers must treat the element slice as owned by the BVH afterward
// (spec.md §4.5 invariants).
type BVH[E any] struct {
	Nodes  []Node
	Elems  []E
	Root   int32
	bounds func(E) AABB
}

// leafMaxElements and leafMaxVolume are the leaf-condition thresholds from
// spec.md §4.5: a node becomes a leaf once it holds <= 16 elements or its
// union AABB's volume collapses to <= 5.0.
const (
	leafMaxElements = 16
	leafMaxVolume   = 5.0
)

type buildCtx[E any] struct {
	bounds    func(E) AABB
	nodes     []Node
	nodeCount atomic.Int32
}

func (c *buildCtx[E]) allocNode() int32 {
	idx := c.nodeCount.Add(1) - 1
	return idx
}

// Build constructs a BVH over elems, using up to maxThreads goroutines for
// the top levels of the recursive split (spec.md §4.5 "Build (parallel)").
// maxThreads is rounded down to a power of two; a value <= 1 builds
// sequentially. Build is deterministic given identical input ordering.
func Build[E any](elems []E, bounds func(E) AABB, maxThreads int) *BVH[E] {
	n := len(elems)
	if n == 0 {
		return &BVH[E]{bounds: bounds, Root: -1}
	}

	cap := 8*(n/16+1) + 8
	ctx := &buildCtx[E]{bounds: bounds, nodes: make([]Node, cap)}

	threads := floorPow2(maxThreads)
	root := buildRange(ctx, elems, 0, n, threads)

	return &BVH[E]{
		Nodes:  ctx.nodes[:ctx.nodeCount.Load()],
		Elems:  elems,
		Root:   root,
		bounds: bounds,
	}
}

func floorPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func buildRange[E any](ctx *buildCtx[E], elems []E, lo, hi, threads int) int32 {
	union := Empty
	for i := lo; i < hi; i++ {
		union = union.Union(ctx.bounds(elems[i]))
	}
	count := hi - lo

	if count <= leafMaxElements || union.Volume() <= leafMaxVolume {
		idx := ctx.allocNode()
		ctx.nodes[idx] = Node{Bounds: union, Left: -(int32(lo) + 1), Right: int32(count)}
		return idx
	}

	axis := longestAxis(union)
	mid := lo + count/2
	nthElement(elems, lo, hi, mid, axis, ctx.bounds)

	var leftIdx, rightIdx int32
	if threads > 1 {
		half := threads / 2
		var g errgroup.Group
		g.Go(func() error {
			leftIdx = buildRange(ctx, elems, lo, mid, half)
			return nil
		})
		rightIdx = buildRange(ctx, elems, mid, hi, threads-half)
		_ = g.Wait()
	} else {
		leftIdx = buildRange(ctx, elems, lo, mid, 1)
		rightIdx = buildRange(ctx, elems, mid, hi, 1)
	}

	idx := ctx.allocNode()
	ctx.nodes[idx] = Node{Bounds: union, Left: leftIdx, Right: rightIdx}
	return idx
}

func longestAxis(b AABB) int {
	d := b.Max.Sub(b.Min)
	axis := 0
	best := d[0]
	if d[1] > best {
		axis, best = 1, d[1]
	}
	if d[2] > best {
		axis = 2
	}
	return axis
}

// nthElement partitions elems[lo:hi] in place so that the element at index
// nth is in its sorted position (by the midpoint of its AABB on the given
// axis), every element before it compares <=, and every element after it
// compares >=. This is the O(N) median-of-the-range partition spec.md §4.5
// calls for ("nth-element, O(N)"), implemented as a standard quickselect.
func nthElement[E any](elems []E, lo, hi, nth, axis int, bounds func(E) AABB) {
	key := func(e E) float32 { return bounds(e).Midpoint()[axis] }
	for {
		if hi-lo <= 1 {
			return
		}
		pivot := key(elems[lo+(hi-lo)/2])
		i, j := lo, hi-1
		for i <= j {
			for key(elems[i]) < pivot {
				i++
			}
			for key(elems[j]) > pivot {
				j--
			}
			if i <= j {
				elems[i], elems[j] = elems[j], elems[i]
				i++
				j--
			}
		}
		if nth <= j {
			hi = j + 1
		} else if nth >= i {
			lo = i
		} else {
			return
		}
	}
}
