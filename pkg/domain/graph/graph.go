package graph

import (
	"fmt"

	"github.com/flowbaker/autoflow/pkg/domain"
)

// NodeSet is an unordered set of node ids.
type NodeSet map[string]struct{}

func NewNodeSet(ids ...string) NodeSet {
	set := make(NodeSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}

	return set
}

func (s NodeSet) Add(id string) {
	s[id] = struct{}{}
}

func (s NodeSet) Has(id string) bool {
	_, ok := s[id]

	return ok
}

func (s NodeSet) Merge(other NodeSet) {
	for id := range other {
		s.Add(id)
	}
}

func (s NodeSet) Subtract(other NodeSet) NodeSet {
	result := make(NodeSet, len(s))
	for id := range s {
		if !other.Has(id) {
			result.Add(id)
		}
	}

	return result
}

const (
	unvisited = iota
	visiting
	visited
)

// TopologicalSort orders nodes so that every node comes after all of its
// ancestors. It is a DFS postorder reversal over the edge adjacency; roots are
// visited in declaration order. A cycle yields domain.ErrCycleDetected.
func TopologicalSort(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, error) {
	byID := make(map[string]domain.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	adjacency := make(map[string][]string, len(nodes))
	for _, edge := range edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	state := make(map[string]int, len(nodes))
	postorder := make([]string, 0, len(nodes))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w: %v", domain.ErrCycleDetected, append(path, id))
		}

		state[id] = visiting
		path = append(path, id)

		for _, next := range adjacency[id] {
			if err := visit(next, path); err != nil {
				return err
			}
		}

		state[id] = visited
		postorder = append(postorder, id)

		return nil
	}

	for _, node := range nodes {
		if err := visit(node.ID, nil); err != nil {
			return nil, err
		}
	}

	sorted := make([]domain.Node, 0, len(nodes))
	for i := len(postorder) - 1; i >= 0; i-- {
		if node, ok := byID[postorder[i]]; ok {
			sorted = append(sorted, node)
		}
	}

	return sorted, nil
}

// Downstream returns every node reachable from start. When handle is not
// empty only the first hop is restricted to edges leaving through that
// handle; later hops follow every edge.
func Downstream(edges []domain.Edge, start string, handle string) NodeSet {
	reachable := NodeSet{}
	var queue []string

	for _, edge := range edges {
		if edge.Source != start {
			continue
		}

		if handle != "" && edge.SourceHandle != handle {
			continue
		}

		if !reachable.Has(edge.Target) {
			reachable.Add(edge.Target)
			queue = append(queue, edge.Target)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range edges {
			if edge.Source != current || reachable.Has(edge.Target) {
				continue
			}

			reachable.Add(edge.Target)
			queue = append(queue, edge.Target)
		}
	}

	return reachable
}

// DownstreamFromAll is the union of Downstream over several start nodes,
// including the start nodes themselves.
func DownstreamFromAll(edges []domain.Edge, starts []string) NodeSet {
	reachable := NewNodeSet(starts...)

	for _, start := range starts {
		reachable.Merge(Downstream(edges, start, ""))
	}

	return reachable
}
