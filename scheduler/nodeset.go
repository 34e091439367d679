package scheduler

import (
	"github.com/RoaringBitmap/roaring/v2"

	"gridsql/cluster"
)

// nodeSet is an order-preserving set of cluster nodes. Membership is a
// bitmap over registration ordinals, so iteration always yields nodes in
// cluster registration order regardless of insertion order. That ordering
// is part of the scheduler's observable contract.
type nodeSet struct {
	nodes  []*cluster.Node // the full registration-ordered node list
	bitmap *roaring.Bitmap
}

func newNodeSet(nodes []*cluster.Node) *nodeSet {
	return &nodeSet{nodes: nodes, bitmap: roaring.New()}
}

func newSingletonNodeSet(nodes []*cluster.Node, ordinal uint32) *nodeSet {
	set := newNodeSet(nodes)
	set.bitmap.Add(ordinal)
	return set
}

func newFullNodeSet(nodes []*cluster.Node) *nodeSet {
	set := newNodeSet(nodes)
	if len(nodes) > 0 {
		set.bitmap.AddRange(0, uint64(len(nodes)))
	}
	return set
}

func (s *nodeSet) contains(ordinal uint32) bool {
	return s.bitmap.Contains(ordinal)
}

func (s *nodeSet) cardinality() int {
	return int(s.bitmap.GetCardinality())
}

// names materializes the member node names in registration order.
func (s *nodeSet) names() []string {
	names := make([]string, 0, s.cardinality())
	it := s.bitmap.Iterator()
	for it.HasNext() {
		names = append(names, s.nodes[it.Next()].Name)
	}
	return names
}
