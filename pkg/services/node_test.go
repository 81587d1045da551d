package services

import (
	"testing"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/dukex/cadence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(nodes []*models.Node) []string {
	result := make([]string, 0, len(nodes))
	for _, node := range nodes {
		result = append(result, node.Name)
	}

	return result
}

func requireChain(t *testing.T, h *harness, cadenceID string, want ...string) []*models.Node {
	t.Helper()

	ordered, err := h.engine.Nodes.Sequence(h.ctx, cadenceID)
	require.NoError(t, err)

	if len(want) == 0 {
		require.Empty(t, ordered)

		return ordered
	}

	require.Equal(t, want, names(ordered))

	for i, node := range ordered {
		assert.Equal(t, i == 0, node.IsFirst, "node %s", node.Name)
		assert.Equal(t, i+1, node.StepNumber, "node %s", node.Name)
	}

	if len(ordered) > 0 {
		assert.Nil(t, ordered[len(ordered)-1].NextNodeID)
	}

	return ordered
}

func insert(t *testing.T, h *harness, cadenceID, name string, previous *models.Node) *models.Node {
	t.Helper()

	req := &CreateNodeRequest{Name: name, Type: models.NodeTypeCall}
	if previous != nil {
		req.PreviousNodeID = &previous.ID
	}

	node, err := h.engine.Nodes.InsertAfter(h.ctx, owner, cadenceID, req)
	require.NoError(t, err)

	return node
}

func TestNodeSequencer_InsertKeepsChainIntact(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture(nil))

	b := insert(t, h, f.Cadence.ID, "B", nil)
	requireChain(t, h, f.Cadence.ID, "B")

	a := insert(t, h, f.Cadence.ID, "A", nil)
	requireChain(t, h, f.Cadence.ID, "A", "B")
	assert.True(t, a.IsFirst)

	insert(t, h, f.Cadence.ID, "D", b)
	requireChain(t, h, f.Cadence.ID, "A", "B", "D")

	insert(t, h, f.Cadence.ID, "C", b)
	requireChain(t, h, f.Cadence.ID, "A", "B", "C", "D")
}

func TestNodeSequencer_InsertValidation(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}))
	other := h.seed(testutil.NewFixture([]string{"X"}))

	tests := []struct {
		name string
		req  *CreateNodeRequest
		want error
	}{
		{
			name: "unknown type",
			req:  &CreateNodeRequest{Name: "Fax", Type: "fax"},
			want: registry.ErrUnknownNodeType,
		},
		{
			name: "previous node of another cadence",
			req:  &CreateNodeRequest{Name: "Call", Type: models.NodeTypeCall, PreviousNodeID: &other.Nodes[0].ID},
			want: ErrNodeOutsideCadence,
		},
		{
			name: "reply without target",
			req: &CreateNodeRequest{
				Name: "Reply", Type: models.NodeTypeReplyTo, PreviousNodeID: &f.Nodes[0].ID,
				Data: map[string]any{"body": "Any news?"},
			},
			want: ErrInvalidReplyTarget,
		},
		{
			name: "reply to a call",
			req: &CreateNodeRequest{
				Name: "Reply", Type: models.NodeTypeReplyTo, PreviousNodeID: &f.Nodes[0].ID,
				RepliedNodeID: &f.Nodes[0].ID, Data: map[string]any{"body": "Any news?"},
			},
			want: ErrInvalidReplyTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Nodes.InsertAfter(h.ctx, owner, f.Cadence.ID, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}

	t.Run("invalid payload", func(t *testing.T) {
		_, err := h.engine.Nodes.InsertAfter(h.ctx, owner, f.Cadence.ID, &CreateNodeRequest{
			Name: "Mail", Type: models.NodeTypeMail, Data: map[string]any{"body": "no subject"},
		})

		var payloadErr *registry.PayloadError
		require.ErrorAs(t, err, &payloadErr)
		assert.True(t, IsValidationError(err))
	})

	requireChain(t, h, f.Cadence.ID, "A")
}

func TestNodeSequencer_ReplyToEarlierMail(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture(nil))

	mail, err := h.engine.Nodes.InsertAfter(h.ctx, owner, f.Cadence.ID, &CreateNodeRequest{
		Name: "Mail", Type: models.NodeTypeMail, Data: map[string]any{"subject": "Hi", "body": "Hello"},
	})
	require.NoError(t, err)

	call := insert(t, h, f.Cadence.ID, "Call", mail)

	reply, err := h.engine.Nodes.InsertAfter(h.ctx, owner, f.Cadence.ID, &CreateNodeRequest{
		Name: "Reply", Type: models.NodeTypeReplyTo, PreviousNodeID: &call.ID,
		RepliedNodeID: &mail.ID, Data: map[string]any{"body": "Bumping this"},
	})
	require.NoError(t, err)

	before, err := h.engine.Nodes.MailNodesBefore(h.ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mail"}, names(before))

	before, err = h.engine.Nodes.MailNodesBefore(h.ctx, mail.ID)
	require.NoError(t, err)
	assert.Empty(t, before)
}

func TestNodeSequencer_DeleteRejectsReplyDependency(t *testing.T) {
	h := newHarness(t)
	cadence := testutil.CreateTestCadence()
	mail := testutil.CreateTestNode(cadence.ID, "Mail", testutil.WithType(models.NodeTypeMail))
	reply := testutil.CreateTestNode(cadence.ID, "Reply", testutil.WithType(models.NodeTypeReplyTo), testutil.WithReplyTo(mail))
	h.seed(&testutil.Fixture{Cadence: cadence, Nodes: testutil.Chain(mail, reply)})

	err := h.engine.Nodes.Delete(h.ctx, owner, mail.ID)
	require.ErrorIs(t, err, ErrReplyDependency)
	assert.True(t, IsConflictError(err))

	requireChain(t, h, cadence.ID, "Mail", "Reply")

	require.NoError(t, h.engine.Nodes.Delete(h.ctx, owner, reply.ID))
	require.NoError(t, h.engine.Nodes.Delete(h.ctx, owner, mail.ID))
	requireChain(t, h, cadence.ID)
}

func TestNodeSequencer_DeleteMovesLeadsToSuccessor(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B", "C"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	doomed := h.outstanding(lead.ID, f.Nodes[0].ID)
	h.jobs.Reset()

	require.NoError(t, h.engine.Nodes.Delete(h.ctx, owner, f.Nodes[0].ID))

	ordered := requireChain(t, h, f.Cadence.ID, "B", "C")
	assert.Equal(t, f.Nodes[1].ID, ordered[0].ID)

	link := h.link(lead.ID, f.Cadence.ID)
	require.NotNil(t, link.CurrentNodeID)
	assert.Equal(t, f.Nodes[1].ID, *link.CurrentNodeID)
	h.outstanding(lead.ID, f.Nodes[1].ID)

	_, err := h.store.TaskRepository().GetByID(h.ctx, doomed.ID)
	assert.True(t, IsNotFoundError(err))

	deleted := h.jobs.Events(events.TasksDeletedEvent)
	require.Len(t, deleted, 1)
	assert.Equal(t, []string{doomed.ID}, deleted[0].Event.(events.TasksDeleted).TaskIDs)
}

func TestNodeSequencer_DeleteLastNodeCompletesLeads(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	require.NoError(t, h.engine.Nodes.Delete(h.ctx, owner, f.Nodes[0].ID))

	link := h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusCompleted, link.Status)
	assert.Nil(t, link.CurrentNodeID)
	requireChain(t, h, f.Cadence.ID)
}

func TestNodeSequencer_DeleteMiddleKeepsPausedLeadWithoutTask(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B", "C"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	_, err := h.engine.Progression.Complete(h.ctx, owner, h.outstanding(lead.ID, f.Nodes[0].ID).ID)
	require.NoError(t, err)
	require.NoError(t, h.engine.Progression.PauseLeads(h.ctx, owner, lead.ID, []string{f.Cadence.ID}, nil))

	require.NoError(t, h.engine.Nodes.Delete(h.ctx, owner, f.Nodes[1].ID))
	requireChain(t, h, f.Cadence.ID, "A", "C")

	link := h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusPaused, link.Status)
	assert.Equal(t, f.Nodes[2].ID, *link.CurrentNodeID)
	h.noOutstanding(lead.ID, f.Nodes[2].ID)

	require.NoError(t, h.engine.Progression.ResumeLeads(h.ctx, owner, lead.ID, []string{f.Cadence.ID}))
	h.outstanding(lead.ID, f.Nodes[2].ID)
}

func TestNodeSequencer_Update(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))

	updated, err := h.engine.Nodes.Update(h.ctx, owner, f.Nodes[0].ID, &UpdateNodeRequest{
		Name: "Discovery call", WaitTime: 30, IsUrgent: true, Data: map[string]any{"script": "Ask about budget"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Discovery call", updated.Name)
	assert.Equal(t, 30, updated.WaitTime)

	stored, err := h.engine.Nodes.Get(h.ctx, f.Nodes[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.IsUrgent)
	assert.True(t, stored.IsFirst)

	require.NoError(t, h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID))

	_, err = h.engine.Nodes.Update(h.ctx, owner, f.Nodes[0].ID, &UpdateNodeRequest{Name: "Too late"})
	require.ErrorIs(t, err, ErrCadenceProcessing)
}
