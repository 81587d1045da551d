package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFirstNode is returned when a non-empty cadence has no node flagged first.
	ErrNoFirstNode = errors.New("cadence has no first node")
	// ErrMultipleFirstNodes is returned when more than one node is flagged first.
	ErrMultipleFirstNodes = errors.New("cadence has more than one first node")
	// ErrBrokenChain is returned when the next_node_id chain has a cycle, a dangling
	// pointer, or leaves nodes unreachable.
	ErrBrokenChain = errors.New("cadence node chain is broken")
)

// Sequence orders nodes by following NextNodeID from the node flagged first.
// Every node must be visited exactly once.
func Sequence(nodes []*Node) ([]*Node, error) {
	if len(nodes) == 0 {
		return []*Node{}, nil
	}

	index := make(map[string]*Node, len(nodes))

	var first *Node

	for _, node := range nodes {
		index[node.ID] = node

		if node.IsFirst {
			if first != nil {
				return nil, ErrMultipleFirstNodes
			}

			first = node
		}
	}

	if first == nil {
		return nil, ErrNoFirstNode
	}

	ordered := make([]*Node, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))

	for current := first; current != nil; {
		if visited[current.ID] {
			return nil, fmt.Errorf("%w: cycle at node %s", ErrBrokenChain, current.ID)
		}

		visited[current.ID] = true
		ordered = append(ordered, current)

		if current.NextNodeID == nil {
			break
		}

		next, ok := index[*current.NextNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: node %s points to unknown node %s", ErrBrokenChain, current.ID, *current.NextNodeID)
		}

		current = next
	}

	if len(ordered) != len(nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes reachable from first", ErrBrokenChain, len(ordered), len(nodes))
	}

	return ordered, nil
}

// Renumber sets StepNumber to the 1-based position of each node in an ordered sequence.
// It returns the nodes whose step number changed.
func Renumber(ordered []*Node) []*Node {
	changed := make([]*Node, 0)

	for i, node := range ordered {
		if node.StepNumber != i+1 {
			node.StepNumber = i + 1
			changed = append(changed, node)
		}
	}

	return changed
}
