package services

import (
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgression_CompleteWalksTheChain(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B", "C"}, "user-1"))
	lead := f.Leads[0]
	a, b, c := f.Nodes[0], f.Nodes[1], f.Nodes[2]
	h.launch(f.Cadence.ID)

	taskA := h.outstanding(lead.ID, a.ID)

	result, err := h.engine.Progression.Complete(h.ctx, owner, taskA.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Next)
	assert.Equal(t, b.ID, *result.Next.NodeID)
	assert.Equal(t, models.LeadCadenceStatusInProgress, result.LinkStatus)

	doneA, err := h.store.TaskRepository().GetByID(h.ctx, taskA.ID)
	require.NoError(t, err)
	assert.True(t, doneA.Completed)

	stored, err := h.store.LeadRepository().GetByID(h.ctx, lead.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.FirstContactTime, "the first node stamps the first contact")
	assert.Equal(t, models.LeadStatusNew, stored.Status)
	assert.Contains(t, h.triggers(), protocol.TriggerFirstTouch)
	assert.True(t, h.outstanding(lead.ID, b.ID).IsToday)

	_, err = h.engine.Progression.Complete(h.ctx, owner, h.outstanding(lead.ID, b.ID).ID)
	require.NoError(t, err)

	stored, err = h.store.LeadRepository().GetByID(h.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusOngoing, stored.Status)

	result, err = h.engine.Progression.Complete(h.ctx, owner, h.outstanding(lead.ID, c.ID).ID)
	require.NoError(t, err)
	assert.Nil(t, result.Next)
	assert.Equal(t, models.LeadCadenceStatusCompleted, result.LinkStatus)

	link := h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusCompleted, link.Status)
	assert.Nil(t, link.CurrentNodeID)

	tasks, err := h.store.TaskRepository().ListOutstanding(h.ctx, lead.ID, f.Cadence.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.Contains(t, h.activities(lead.ID), models.ActivityNameCadenceCompleted)
	assert.Contains(t, h.triggers(), protocol.TriggerCadenceEnded)

	mirrors := h.jobs.Events(events.CRMMirrorRequestedEvent)
	require.NotEmpty(t, mirrors)
	last := mirrors[len(mirrors)-1].Event.(events.CRMMirrorRequested)
	assert.Equal(t, models.LeadCadenceStatusCompleted, last.Status)
	assert.Equal(t, 1, last.Attempt)
}

func TestProgression_CompleteTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	h.launch(f.Cadence.ID)

	task := h.outstanding(f.Leads[0].ID, f.Nodes[0].ID)

	_, err := h.engine.Progression.Complete(h.ctx, owner, task.ID)
	require.NoError(t, err)

	_, err = h.engine.Progression.Complete(h.ctx, owner, task.ID)
	require.ErrorIs(t, err, ErrTaskNotOutstanding)
	assert.True(t, IsConflictError(err))
}

func TestProgression_DelayedSuccessorStartsLater(t *testing.T) {
	h := newHarness(t)
	f := testutil.NewFixture([]string{"A", "B"}, "user-1")
	f.Nodes[1].WaitTime = 90
	h.seed(f)
	h.launch(f.Cadence.ID)

	_, err := h.engine.Progression.Complete(h.ctx, owner, h.outstanding(f.Leads[0].ID, f.Nodes[0].ID).ID)
	require.NoError(t, err)

	next := h.outstanding(f.Leads[0].ID, f.Nodes[1].ID)
	assert.True(t, next.StartTime.Equal(testNow.Add(90*time.Minute)))
}

func TestProgression_KeepsSingleOutstandingTaskPerNode(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	existing := &models.Task{
		ID:        "pre-existing",
		LeadID:    lead.ID,
		NodeID:    &f.Nodes[1].ID,
		CadenceID: f.Cadence.ID,
		UserID:    lead.UserID,
		Name:      "B",
		StartTime: testNow,
	}
	require.NoError(t, h.store.TaskRepository().Create(h.ctx, existing))

	result, err := h.engine.Progression.Complete(h.ctx, owner, h.outstanding(lead.ID, f.Nodes[0].ID).ID)
	require.NoError(t, err)
	assert.Nil(t, result.Next)

	assert.Equal(t, "pre-existing", h.outstanding(lead.ID, f.Nodes[1].ID).ID)
	assert.Equal(t, f.Nodes[1].ID, *h.link(lead.ID, f.Cadence.ID).CurrentNodeID)

	// Replaying the launch leaves the started lead alone.
	report, err := h.engine.Launcher.Run(h.ctx, &events.LaunchRequested{CadenceID: f.Cadence.ID})
	require.NoError(t, err)
	assert.Nil(t, report)

	tasks, err := h.store.TaskRepository().ListOutstanding(h.ctx, lead.ID, f.Cadence.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestProgression_Skip(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	task := h.outstanding(lead.ID, f.Nodes[0].ID)

	result, err := h.engine.Progression.Skip(h.ctx, owner, lead.ID, f.Nodes[0].ID, "no answer")
	require.NoError(t, err)
	require.NotNil(t, result.Next)
	assert.Equal(t, f.Nodes[1].ID, *result.Next.NodeID)

	skipped, err := h.store.TaskRepository().GetByID(h.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, skipped.IsSkipped)
	assert.False(t, skipped.Completed)
	assert.Equal(t, "no answer", skipped.SkipReason)

	_, err = h.engine.Progression.Skip(h.ctx, owner, lead.ID, f.Nodes[0].ID, "again")
	assert.Error(t, err)
}

func mailFixture() *testutil.Fixture {
	cadence := testutil.CreateTestCadence()
	nodes := testutil.Chain(
		testutil.CreateTestNode(cadence.ID, "Intro", testutil.WithType(models.NodeTypeAutomatedMail)),
		testutil.CreateTestNode(cadence.ID, "Personal mail", testutil.WithType(models.NodeTypeMail)),
		testutil.CreateTestNode(cadence.ID, "Call"),
	)
	lead := testutil.CreateTestLead("user-1")

	return &testutil.Fixture{
		Cadence: cadence,
		Nodes:   nodes,
		Leads:   []*models.Lead{lead},
		Links:   []*models.LeadCadence{testutil.CreateTestLink(lead, cadence, 1)},
	}
}

func TestProgression_UnsubscribeFollowsTriggerPolicy(t *testing.T) {
	h := newHarness(t)
	f := h.seed(mailFixture())
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	intro := h.outstanding(lead.ID, f.Nodes[0].ID)

	result, err := h.engine.Progression.Unsubscribe(h.ctx, owner, lead.ID, f.Cadence.ID, &f.Nodes[0].ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyUnsubscribed)
	assert.Equal(t, []string{intro.ID}, result.Skipped)
	require.Len(t, result.Created, 1)

	// The automated policy does not cover manual mails, so the walk stops there.
	mail := h.outstanding(lead.ID, f.Nodes[1].ID)
	assert.Equal(t, result.Created[0], mail.ID)

	link := h.link(lead.ID, f.Cadence.ID)
	assert.True(t, link.Unsubscribed)
	require.NotNil(t, link.UnsubscribeNodeID)
	assert.Equal(t, f.Nodes[0].ID, *link.UnsubscribeNodeID)
	assert.Contains(t, h.triggers(), protocol.TriggerUnsubscribed)
	assert.Contains(t, h.activities(lead.ID), models.ActivityNameUnsubscribed)

	h.jobs.Reset()

	again, err := h.engine.Progression.Unsubscribe(h.ctx, owner, lead.ID, f.Cadence.ID, &f.Nodes[0].ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyUnsubscribed)
	assert.Empty(t, again.Skipped)
	assert.Empty(t, h.triggers())
	assert.Equal(t, mail.ID, h.outstanding(lead.ID, f.Nodes[1].ID).ID)
}

func TestProgression_UnsubscribeWithoutNodeUsesEveryPolicy(t *testing.T) {
	h := newHarness(t)
	f := h.seed(mailFixture())
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	result, err := h.engine.Progression.Unsubscribe(h.ctx, owner, lead.ID, f.Cadence.ID, nil)
	require.NoError(t, err)
	assert.Len(t, result.Skipped, 2)

	h.noOutstanding(lead.ID, f.Nodes[0].ID)
	h.noOutstanding(lead.ID, f.Nodes[1].ID)
	call := h.outstanding(lead.ID, f.Nodes[2].ID)
	assert.Contains(t, result.Created, call.ID)
}

func TestProgression_UnsubscribeRejectsForeignNode(t *testing.T) {
	h := newHarness(t)
	f := h.seed(mailFixture())
	other := h.seed(testutil.NewFixture([]string{"X"}))

	_, err := h.engine.Progression.Unsubscribe(h.ctx, owner, f.Leads[0].ID, f.Cadence.ID, &other.Nodes[0].ID)
	require.ErrorIs(t, err, ErrNodeOutsideCadence)
}

func TestProgression_PauseAndResumeLeads(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]
	cadences := []string{f.Cadence.ID}
	h.launch(f.Cadence.ID)

	until := testNow.Add(time.Hour)
	require.NoError(t, h.engine.Progression.PauseLeads(h.ctx, owner, lead.ID, cadences, &until))

	link := h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusPaused, link.Status)
	require.NotNil(t, link.PausedUntil)
	assert.True(t, link.PausedUntil.Equal(until))
	assert.Contains(t, h.triggers(), protocol.TriggerPaused)
	assert.NotEmpty(t, h.jobs.Events(events.RecalculateRequestedEvent))

	err := h.engine.Progression.PauseLeads(h.ctx, owner, lead.ID, cadences, nil)
	require.ErrorIs(t, err, ErrLeadNotActive)

	// The task of the current node is gone, resuming recreates it.
	_, err = h.store.TaskRepository().DeleteOutstandingByNode(h.ctx, f.Nodes[0].ID)
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	require.NoError(t, h.engine.Progression.ResumeLeads(h.ctx, owner, lead.ID, cadences))

	link = h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusInProgress, link.Status)
	assert.Nil(t, link.PausedUntil)

	recreated := h.outstanding(lead.ID, f.Nodes[0].ID)
	assert.True(t, recreated.StartTime.Equal(testNow.Add(10*time.Minute)))
	assert.Contains(t, h.activities(lead.ID), models.ActivityNameCadenceResumed)

	err = h.engine.Progression.ResumeLeads(h.ctx, owner, lead.ID, cadences)
	require.ErrorIs(t, err, ErrLeadNotPaused)
}

func TestProgression_PauseLeadsValidation(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))

	err := h.engine.Progression.PauseLeads(h.ctx, owner, f.Leads[0].ID, nil, nil)
	require.ErrorIs(t, err, ErrNoCadencesRequested)

	past := testNow.Add(-time.Hour)
	err = h.engine.Progression.PauseLeads(h.ctx, owner, f.Leads[0].ID, []string{f.Cadence.ID}, &past)
	require.ErrorIs(t, err, ErrPauseInPast)
}

func TestProgression_ResumeDue(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	until := testNow.Add(time.Hour)
	require.NoError(t, h.engine.Progression.PauseLeads(h.ctx, owner, lead.ID, []string{f.Cadence.ID}, &until))

	resumed, err := h.engine.Progression.ResumeDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)

	h.clock.Advance(time.Hour)

	resumed, err = h.engine.Progression.ResumeDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Equal(t, models.LeadCadenceStatusInProgress, h.link(lead.ID, f.Cadence.ID).Status)
}

func TestProgression_StopLeads(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1", "user-1"))
	h.launch(f.Cadence.ID)
	cadences := []string{f.Cadence.ID}

	err := h.engine.Progression.StopLeads(h.ctx, owner, f.Leads[0].ID, cadences, models.LeadCadenceStatusPaused, "")
	require.ErrorIs(t, err, ErrInvalidStopStatus)

	require.NoError(t, h.engine.Progression.StopLeads(h.ctx, owner, f.Leads[0].ID, cadences, models.LeadCadenceStatusStopped, "not interested"))

	err = h.engine.Progression.StopLeads(h.ctx, owner, f.Leads[0].ID, cadences, models.LeadCadenceStatusStopped, "")
	require.ErrorIs(t, err, ErrAlreadyStopped)

	require.NoError(t, h.engine.Progression.StopLeads(h.ctx, owner, f.Leads[1].ID, cadences, models.LeadCadenceStatusCompleted, "converted"))

	assert.Equal(t, models.LeadCadenceStatusStopped, h.link(f.Leads[0].ID, f.Cadence.ID).Status)
	assert.Equal(t, models.LeadCadenceStatusCompleted, h.link(f.Leads[1].ID, f.Cadence.ID).Status)
	h.noOutstanding(f.Leads[0].ID, f.Nodes[0].ID)
	h.noOutstanding(f.Leads[1].ID, f.Nodes[0].ID)
	assert.Len(t, h.jobs.Events(events.AutomationCancelRequestedEvent), 2)
}

func TestProgression_LeadAccess(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	h.launch(f.Cadence.ID)

	stranger := protocol.Actor{UserID: "user-2", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "company-1"}
	manager := protocol.Actor{UserID: "manager-1", Role: protocol.RoleManager, SubDepartmentID: "sd-1", CompanyID: "company-1"}

	_, err := h.engine.Progression.Skip(h.ctx, stranger, f.Leads[0].ID, f.Nodes[0].ID, "")
	assert.True(t, IsForbiddenError(err))

	_, err = h.engine.Progression.Skip(h.ctx, manager, f.Leads[0].ID, f.Nodes[0].ID, "")
	assert.NoError(t, err)
}

func TestTaskStart(t *testing.T) {
	friday := time.Date(2024, time.March, 8, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		wait         time.Duration
		skipWeekends bool
		want         time.Time
	}{
		{"weekday stays", time.Hour, true, friday.Add(time.Hour)},
		{"saturday moves to monday", 24 * time.Hour, true, time.Date(2024, time.March, 11, 15, 0, 0, 0, time.UTC)},
		{"sunday moves to monday", 48 * time.Hour, true, time.Date(2024, time.March, 11, 15, 0, 0, 0, time.UTC)},
		{"weekend kept without policy", 24 * time.Hour, false, time.Date(2024, time.March, 9, 15, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, taskStart(friday, tt.wait, tt.skipWeekends))
		})
	}
}

func TestProgression_TaskReads(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1", "user-2"))
	h.launch(f.Cadence.ID)

	task := h.outstanding(f.Leads[0].ID, f.Nodes[0].ID)

	got, err := h.engine.Progression.Task(h.ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	foreign := h.outstanding(f.Leads[1].ID, f.Nodes[0].ID)
	_, err = h.engine.Progression.Task(h.ctx, owner, foreign.ID)
	assert.True(t, IsForbiddenError(err))

	tasks, err := h.engine.Progression.Tasks(h.ctx, owner, "user-1", true)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	_, err = h.engine.Progression.Tasks(h.ctx, owner, "user-2", false)
	assert.True(t, IsForbiddenError(err))
}

func TestProgression_CustomTaskLeavesTheChainAlone(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	task, err := h.engine.Progression.CreateCustomTask(h.ctx, owner, lead.ID, &CustomTaskRequest{
		CadenceID: f.Cadence.ID, Name: "Send the pricing deck", Urgent: true,
	})
	require.NoError(t, err)
	assert.Nil(t, task.NodeID)
	assert.Equal(t, "user-1", task.UserID)

	today, err := h.store.TaskRepository().ListByUser(h.ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, today, 2)

	result, err := h.engine.Progression.Complete(h.ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Next)

	link := h.link(lead.ID, f.Cadence.ID)
	require.NotNil(t, link.CurrentNodeID)
	assert.Equal(t, f.Nodes[0].ID, *link.CurrentNodeID)
	h.outstanding(lead.ID, f.Nodes[0].ID)

	_, err = h.engine.Progression.Complete(h.ctx, owner, task.ID)
	assert.True(t, IsConflictError(err))
}

func TestProgression_CustomTaskNeedsAnActiveLink(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	later := testNow.Add(48 * time.Hour)
	req := &CustomTaskRequest{CadenceID: f.Cadence.ID, Name: "Check in", StartTime: &later}

	task, err := h.engine.Progression.CreateCustomTask(h.ctx, owner, lead.ID, req)
	require.NoError(t, err)
	assert.False(t, task.IsToday)

	intruder := protocol.Actor{UserID: "user-9", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "company-1"}
	_, err = h.engine.Progression.CreateCustomTask(h.ctx, intruder, lead.ID, req)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, h.engine.Progression.StopLeads(h.ctx, owner, lead.ID, []string{f.Cadence.ID}, models.LeadCadenceStatusStopped, ""))

	_, err = h.engine.Progression.CreateCustomTask(h.ctx, owner, lead.ID, req)
	require.ErrorIs(t, err, ErrLeadNotActive)
	assert.True(t, IsConflictError(err))
}
