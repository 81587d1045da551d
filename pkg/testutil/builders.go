// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Clock is a settable time source for services that take a now func.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// CreateTestCadence creates a not started personal cadence owned by user-1.
func CreateTestCadence(overrides ...func(*models.Cadence)) *models.Cadence {
	now := time.Now().UTC()
	cadence := &models.Cadence{
		ID:              uuid.NewString(),
		Name:            "Test Cadence",
		Status:          models.CadenceStatusNotStarted,
		Priority:        models.CadencePriorityStandard,
		Type:            models.CadenceTypePersonal,
		UserID:          "user-1",
		SubDepartmentID: "sd-1",
		CompanyID:       "company-1",
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, override := range overrides {
		override(cadence)
	}

	return cadence
}

// CreateTestNode creates a call node of the cadence with no wait time.
func CreateTestNode(cadenceID, name string, overrides ...func(*models.Node)) *models.Node {
	now := time.Now().UTC()
	node := &models.Node{
		ID:        uuid.NewString(),
		CadenceID: cadenceID,
		Name:      name,
		Type:      models.NodeTypeCall,
		Data:      map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithType sets the node type and a payload valid for it.
func WithType(nodeType models.NodeType) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType

		switch nodeType {
		case models.NodeTypeMail, models.NodeTypeAutomatedMail:
			n.Data = map[string]any{"subject": "Hello", "body": "Hi there"}
		case models.NodeTypeReplyTo, models.NodeTypeAutomatedReplyTo:
			n.Data = map[string]any{"body": "Following up"}
		}
	}
}

// WithWait sets the node wait time in minutes.
func WithWait(minutes int) func(*models.Node) {
	return func(n *models.Node) {
		n.WaitTime = minutes
	}
}

// WithReplyTo makes the node reply to target.
func WithReplyTo(target *models.Node) func(*models.Node) {
	return func(n *models.Node) {
		n.RepliedNodeID = &target.ID
	}
}

// Chain links the nodes in the given order and numbers them.
func Chain(nodes ...*models.Node) []*models.Node {
	for i, node := range nodes {
		node.IsFirst = i == 0
		node.StepNumber = i + 1
		node.NextNodeID = nil

		if i+1 < len(nodes) {
			node.NextNodeID = &nodes[i+1].ID
		}
	}

	return nodes
}

// CreateTestLead creates a new lead owned by userID.
func CreateTestLead(userID string, overrides ...func(*models.Lead)) *models.Lead {
	now := time.Now().UTC()
	lead := &models.Lead{
		ID:        uuid.NewString(),
		UserID:    userID,
		FullName:  "Ada Lovelace",
		Status:    models.LeadStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(lead)
	}

	return lead
}

// CreateTestLink enrolls lead into cadence as not started.
func CreateTestLink(lead *models.Lead, cadence *models.Cadence, order int, overrides ...func(*models.LeadCadence)) *models.LeadCadence {
	now := time.Now().UTC()
	link := &models.LeadCadence{
		LeadID:           lead.ID,
		CadenceID:        cadence.ID,
		UserID:           lead.UserID,
		Status:           models.LeadCadenceStatusNotStarted,
		LeadCadenceOrder: order,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, override := range overrides {
		override(link)
	}

	return link
}

// Fixture is a cadence with its chain and enrolled leads.
type Fixture struct {
	Cadence *models.Cadence
	Nodes   []*models.Node
	Leads   []*models.Lead
	Links   []*models.LeadCadence
}

// SaveFixture stores every record of the fixture.
func SaveFixture(t *testing.T, p persistence.Persistence, fixture *Fixture) {
	t.Helper()

	ctx := context.Background()

	err := p.Transaction(ctx, func(tx persistence.Persistence) error {
		if err := tx.CadenceRepository().Save(ctx, fixture.Cadence); err != nil {
			return err
		}

		for _, node := range fixture.Nodes {
			if err := tx.NodeRepository().Save(ctx, node); err != nil {
				return err
			}
		}

		for _, lead := range fixture.Leads {
			if err := tx.LeadRepository().Save(ctx, lead); err != nil {
				return err
			}
		}

		for _, link := range fixture.Links {
			if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)
}

// NewFixture builds a cadence with a chain of call nodes named after names and
// one not started lead per entry of owners.
func NewFixture(names []string, owners ...string) *Fixture {
	cadence := CreateTestCadence()
	nodes := make([]*models.Node, 0, len(names))

	for _, name := range names {
		nodes = append(nodes, CreateTestNode(cadence.ID, name))
	}

	fixture := &Fixture{Cadence: cadence, Nodes: Chain(nodes...)}

	for i, owner := range owners {
		lead := CreateTestLead(owner)
		fixture.Leads = append(fixture.Leads, lead)
		fixture.Links = append(fixture.Links, CreateTestLink(lead, cadence, i+1))
	}

	return fixture
}
