// Package services implements the cadence execution engine: the cadence state
// machine, the node sequencer, lead progression, bulk launch and the daily
// task queue.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/go-playground/validator/v10"
)

// CreateNodeRequest represents the request to insert a node into a cadence.
type CreateNodeRequest struct {
	Name           string          `json:"name"             validate:"required,min=1"`
	Type           models.NodeType `json:"type"             validate:"required"`
	WaitTime       int             `json:"wait_time"        validate:"min=0"`
	IsUrgent       bool            `json:"is_urgent"`
	RepliedNodeID  *string         `json:"replied_node_id"`
	Data           map[string]any  `json:"data"`
	PreviousNodeID *string         `json:"previous_node_id"` // Nil inserts at the head
}

// UpdateNodeRequest represents the request to update an existing node.
// The type and the position of a node never change.
type UpdateNodeRequest struct {
	Name          string         `json:"name"            validate:"required,min=1"`
	WaitTime      int            `json:"wait_time"       validate:"min=0"`
	IsUrgent      bool           `json:"is_urgent"`
	RepliedNodeID *string        `json:"replied_node_id"`
	Data          map[string]any `json:"data"`
}

// NodeSequencer edits and reads the node chain of a cadence.
type NodeSequencer struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	access      protocol.AccessChecker
	progression *Progression
	dispatch    *dispatcher
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// Get returns a node.
func (s *NodeSequencer) Get(ctx context.Context, nodeID string) (*models.Node, error) {
	return s.persistence.NodeRepository().GetByID(ctx, nodeID)
}

// Sequence returns the nodes of the cadence in chain order.
func (s *NodeSequencer) Sequence(ctx context.Context, cadenceID string) ([]*models.Node, error) {
	if _, err := s.persistence.CadenceRepository().GetByID(ctx, cadenceID); err != nil {
		return nil, err
	}

	return sequenceOf(ctx, s.persistence, cadenceID)
}

func sequenceOf(ctx context.Context, p persistence.Persistence, cadenceID string) ([]*models.Node, error) {
	nodes, err := p.NodeRepository().ListByCadence(ctx, cadenceID)
	if err != nil {
		return nil, err
	}

	ordered, err := models.Sequence(nodes)
	if err != nil {
		return nil, persistence.NewCadenceError("Sequence", cadenceID, err)
	}

	return ordered, nil
}

// MailNodesBefore returns the mail nodes placed before nodeID, which are the
// nodes a reply at that position can reply to.
func (s *NodeSequencer) MailNodesBefore(ctx context.Context, nodeID string) ([]*models.Node, error) {
	node, err := s.persistence.NodeRepository().GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	ordered, err := sequenceOf(ctx, s.persistence, node.CadenceID)
	if err != nil {
		return nil, err
	}

	index := slices.IndexFunc(ordered, func(n *models.Node) bool { return n.ID == nodeID })

	return mailNodes(ordered[:index]), nil
}

func mailNodes(nodes []*models.Node) []*models.Node {
	mail := make([]*models.Node, 0)

	for _, node := range nodes {
		if node.IsMail() {
			mail = append(mail, node)
		}
	}

	return mail
}

// InsertAfter inserts a node after req.PreviousNodeID, or at the head of the
// chain when it is nil, repairing the neighbour pointers in one transaction.
func (s *NodeSequencer) InsertAfter(ctx context.Context, actor protocol.Actor, cadenceID string, req *CreateNodeRequest) (*models.Node, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("insert_node", "invalid_node", err.Error(), ErrInvalidRequest)
	}

	if err := s.registry.Validate(req.Type, req.Data); err != nil {
		return nil, err
	}

	now := s.now()
	node := &models.Node{
		ID:            newID(),
		CadenceID:     cadenceID,
		Name:          req.Name,
		Type:          req.Type,
		WaitTime:      req.WaitTime,
		IsUrgent:      req.IsUrgent,
		RepliedNodeID: req.RepliedNodeID,
		Data:          req.Data,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if node.Data == nil {
		node.Data = map[string]any{}
	}

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		if _, err := s.editableCadence(ctx, tx, actor, cadenceID, "insert_node"); err != nil {
			return err
		}

		ordered, err := sequenceOf(ctx, tx, cadenceID)
		if err != nil {
			return err
		}

		position := 0

		if req.PreviousNodeID != nil {
			index := slices.IndexFunc(ordered, func(n *models.Node) bool { return n.ID == *req.PreviousNodeID })
			if index < 0 {
				return NewValidationError("insert_node", "previous_outside_cadence", "", ErrNodeOutsideCadence)
			}

			position = index + 1
		}

		if err := checkReplyTarget(node, ordered[:position]); err != nil {
			return err
		}

		dirty := make([]*models.Node, 0, 3)

		if position == 0 {
			node.IsFirst = true

			if len(ordered) > 0 {
				head := ordered[0]
				head.IsFirst = false
				node.NextNodeID = &head.ID
				// The old head loses its flag before the new one is stored.
				dirty = append(dirty, head, node)
			} else {
				dirty = append(dirty, node)
			}
		} else {
			previous := ordered[position-1]
			node.NextNodeID = previous.NextNodeID
			previous.NextNodeID = &node.ID
			dirty = append(dirty, node, previous)
		}

		ordered = slices.Insert(ordered, position, node)

		return saveNodes(ctx, tx, now, dirty, models.Renumber(ordered))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "node inserted", "cadence_id", cadenceID, "node_id", node.ID, "step_number", node.StepNumber)

	return node, nil
}

// Update changes a node's payload and timing. Existing tasks keep their start time.
func (s *NodeSequencer) Update(ctx context.Context, actor protocol.Actor, nodeID string, req *UpdateNodeRequest) (*models.Node, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("update_node", "invalid_node", err.Error(), ErrInvalidRequest)
	}

	var node *models.Node

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		var err error

		node, err = tx.NodeRepository().GetByID(ctx, nodeID)
		if err != nil {
			return err
		}

		if err := s.registry.Validate(node.Type, req.Data); err != nil {
			return err
		}

		if _, err := s.editableCadence(ctx, tx, actor, node.CadenceID, "update_node"); err != nil {
			return err
		}

		ordered, err := sequenceOf(ctx, tx, node.CadenceID)
		if err != nil {
			return err
		}

		index := slices.IndexFunc(ordered, func(n *models.Node) bool { return n.ID == nodeID })

		node.Name = req.Name
		node.WaitTime = req.WaitTime
		node.IsUrgent = req.IsUrgent
		node.RepliedNodeID = req.RepliedNodeID
		node.Data = req.Data

		if node.Data == nil {
			node.Data = map[string]any{}
		}

		if err := checkReplyTarget(node, ordered[:index]); err != nil {
			return err
		}

		node.UpdatedAt = s.now()

		return tx.NodeRepository().Save(ctx, node)
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// Delete splices a node out of its chain and drops its outstanding tasks.
// Leads standing on it move to its successor, or complete when it was last.
// A node other nodes reply to cannot be deleted.
func (s *NodeSequencer) Delete(ctx context.Context, actor protocol.Actor, nodeID string) error {
	fx := newEffects()

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		node, err := tx.NodeRepository().GetByID(ctx, nodeID)
		if err != nil {
			return err
		}

		if _, err := s.editableCadence(ctx, tx, actor, node.CadenceID, "delete_node"); err != nil {
			return err
		}

		replies, err := tx.NodeRepository().ListRepliesTo(ctx, nodeID)
		if err != nil {
			return err
		}

		if len(replies) > 0 {
			return &ServiceError{
				Op:      "delete_node",
				Code:    "reply_dependency",
				Message: fmt.Sprintf("node %s is the reply target of node %s, delete it first", nodeID, replies[0].ID),
				Err:     ErrReplyDependency,
			}
		}

		ordered, err := sequenceOf(ctx, tx, node.CadenceID)
		if err != nil {
			return err
		}

		index := slices.IndexFunc(ordered, func(n *models.Node) bool { return n.ID == nodeID })
		now := s.now()

		if index > 0 {
			previous := ordered[index-1]
			previous.NextNodeID = node.NextNodeID
			previous.UpdatedAt = now

			if err := tx.NodeRepository().Save(ctx, previous); err != nil {
				return err
			}
		}

		deleted, err := tx.TaskRepository().DeleteOutstandingByNode(ctx, nodeID)
		if err != nil {
			return err
		}

		if err := tx.NodeRepository().Delete(ctx, nodeID); err != nil {
			return err
		}

		ordered = slices.Delete(ordered, index, index+1)

		var successor *models.Node
		if index < len(ordered) {
			successor = ordered[index]
		}

		dirty := make([]*models.Node, 0, 1)
		if node.IsFirst && successor != nil {
			successor.IsFirst = true
			dirty = append(dirty, successor)
		}

		if err := saveNodes(ctx, tx, now, dirty, models.Renumber(ordered)); err != nil {
			return err
		}

		if err := s.relocateLinks(ctx, tx, node, successor, fx); err != nil {
			return err
		}

		collectDeletedTasks(node, deleted, fx)

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "node deleted", "node_id", nodeID)
	s.dispatch.apply(ctx, fx)

	return nil
}

// relocateLinks moves the links standing on a deleted node to its successor.
func (s *NodeSequencer) relocateLinks(ctx context.Context, tx persistence.Persistence, deleted, successor *models.Node, fx *effects) error {
	links, err := tx.LeadCadenceRepository().ListByCadence(ctx, deleted.CadenceID,
		models.LeadCadenceStatusInProgress, models.LeadCadenceStatusPaused)
	if err != nil {
		return err
	}

	now := s.now()

	for _, listed := range links {
		if listed.CurrentNodeID == nil || *listed.CurrentNodeID != deleted.ID {
			continue
		}

		link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, listed.LeadID, listed.CadenceID)
		if err != nil {
			return err
		}

		if link.CurrentNodeID == nil || *link.CurrentNodeID != deleted.ID ||
			(link.Status != models.LeadCadenceStatusInProgress && link.Status != models.LeadCadenceStatusPaused) {
			continue
		}

		switch {
		case successor == nil:
			link.Status = models.LeadCadenceStatusCompleted
			link.CurrentNodeID = nil
			link.UpdatedAt = now

			if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
				return err
			}

			fx.trigger(protocol.TriggerCadenceEnded, link.CadenceID, link.LeadID)
			fx.mirror(link)
		case link.Status == models.LeadCadenceStatusInProgress:
			if _, err := s.progression.enterNode(ctx, tx, link, successor, now); err != nil {
				return err
			}
		default:
			// Paused links get their task when they resume.
			link.CurrentNodeID = &successor.ID
			link.UpdatedAt = now

			if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
				return err
			}
		}

		fx.recalculate(link.UserID)
	}

	return nil
}

func collectDeletedTasks(node *models.Node, deleted []*models.Task, fx *effects) {
	byUser := make(map[string][]string)
	users := make([]string, 0)

	for _, task := range deleted {
		if _, ok := byUser[task.UserID]; !ok {
			users = append(users, task.UserID)
		}

		byUser[task.UserID] = append(byUser[task.UserID], task.ID)
	}

	for _, userID := range users {
		fx.tasksDeleted(events.TasksDeleted{
			BaseEvent: events.NewBaseEvent(events.TasksDeletedEvent),
			UserID:    userID,
			CadenceID: node.CadenceID,
			NodeID:    node.ID,
			TaskIDs:   byUser[userID],
		})
		fx.recalculate(userID)
	}
}

// editableCadence loads and locks the cadence for a structural edit.
func (s *NodeSequencer) editableCadence(ctx context.Context, tx persistence.Persistence, actor protocol.Actor, cadenceID, op string) (*models.Cadence, error) {
	cadence, err := tx.CadenceRepository().GetByID(ctx, cadenceID)
	if err != nil {
		return nil, err
	}

	if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
		return nil, err
	}

	if cadence.Status == models.CadenceStatusProcessing {
		return nil, NewConflictError(op, ErrCadenceProcessing)
	}

	if err := tx.CadenceRepository().Lock(ctx, cadenceID); err != nil {
		return nil, err
	}

	return cadence, nil
}

// checkReplyTarget verifies a reply node replies to a mail node among before.
func checkReplyTarget(node *models.Node, before []*models.Node) error {
	if !node.IsReply() {
		if node.RepliedNodeID != nil {
			return NewValidationError("node_reply", "reply_on_non_reply", "only reply nodes can reply to another node", ErrInvalidReplyTarget)
		}

		return nil
	}

	if node.RepliedNodeID == nil {
		return NewValidationError("node_reply", "reply_target_required", "", ErrInvalidReplyTarget)
	}

	for _, candidate := range mailNodes(before) {
		if candidate.ID == *node.RepliedNodeID {
			return nil
		}
	}

	return NewValidationError("node_reply", "invalid_reply_target", "", ErrInvalidReplyTarget)
}

// saveNodes stores first in order, then every renumbered node not stored yet.
func saveNodes(ctx context.Context, tx persistence.Persistence, now time.Time, first, renumbered []*models.Node) error {
	saved := make(map[string]bool, len(first)+len(renumbered))

	for _, node := range append(first, renumbered...) {
		if saved[node.ID] {
			continue
		}

		saved[node.ID] = true
		node.UpdatedAt = now

		if err := tx.NodeRepository().Save(ctx, node); err != nil {
			return err
		}
	}

	return nil
}
