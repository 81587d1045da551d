package file

import (
	"context"
	"sort"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type nodeRepository struct {
	p *Persistence
}

func (r *nodeRepository) GetByID(_ context.Context, id string) (*models.Node, error) {
	var node *models.Node

	err := r.p.read(func(s *state) error {
		stored, ok := s.Nodes[id]
		if !ok {
			return persistence.ErrNodeNotFound
		}

		node = clone(stored)

		return nil
	})

	return node, err
}

func (r *nodeRepository) ListByCadence(_ context.Context, cadenceID string) ([]*models.Node, error) {
	return r.filter(func(n *models.Node) bool { return n.CadenceID == cadenceID })
}

func (r *nodeRepository) ListRepliesTo(_ context.Context, nodeID string) ([]*models.Node, error) {
	return r.filter(func(n *models.Node) bool { return n.RepliedNodeID != nil && *n.RepliedNodeID == nodeID })
}

func (r *nodeRepository) filter(match func(*models.Node) bool) ([]*models.Node, error) {
	nodes := make([]*models.Node, 0)

	err := r.p.read(func(s *state) error {
		for _, n := range s.Nodes {
			if match(n) {
				nodes = append(nodes, clone(n))
			}
		}

		return nil
	})

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].StepNumber == nodes[j].StepNumber {
			return nodes[i].ID < nodes[j].ID
		}

		return nodes[i].StepNumber < nodes[j].StepNumber
	})

	return nodes, err
}

func (r *nodeRepository) Save(_ context.Context, node *models.Node) error {
	return r.p.write(func(s *state) error {
		s.Nodes[node.ID] = clone(node)

		return nil
	})
}

func (r *nodeRepository) Delete(_ context.Context, id string) error {
	return r.p.write(func(s *state) error {
		if _, ok := s.Nodes[id]; !ok {
			return persistence.ErrNodeNotFound
		}

		delete(s.Nodes, id)

		return nil
	})
}
