package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCadenceService_Create(t *testing.T) {
	h := newHarness(t)

	cadence, err := h.engine.Cadences.Create(h.ctx, owner, &CreateCadenceRequest{Name: "Outbound Q2"})
	require.NoError(t, err)

	assert.Equal(t, models.CadenceStatusNotStarted, cadence.Status)
	assert.Equal(t, models.CadencePriorityStandard, cadence.Priority)
	assert.Equal(t, models.CadenceTypePersonal, cadence.Type)
	assert.Equal(t, "user-1", cadence.UserID)
	assert.Equal(t, "sd-1", cadence.SubDepartmentID)

	_, err = h.store.ScheduleRepository().GetByCadence(h.ctx, cadence.ID)
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}

func TestCadenceService_CreateValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Cadences.Create(h.ctx, owner, &CreateCadenceRequest{Name: "ab"})
	assert.True(t, IsValidationError(err))

	_, err = h.engine.Cadences.Create(h.ctx, owner, &CreateCadenceRequest{Name: "Bad cron", LaunchCron: "every day"})
	assert.True(t, IsValidationError(err))
}

func TestCadenceService_UpdateSchedule(t *testing.T) {
	h := newHarness(t)

	cadence, err := h.engine.Cadences.Create(h.ctx, owner, &CreateCadenceRequest{Name: "Nightly", LaunchCron: "0 9 * * 1"})
	require.NoError(t, err)

	schedule, err := h.store.ScheduleRepository().GetByCadence(h.ctx, cadence.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1", schedule.CronExpression)

	cron := "30 8 * * *"
	_, err = h.engine.Cadences.Update(h.ctx, owner, cadence.ID, &UpdateCadenceRequest{LaunchCron: &cron})
	require.NoError(t, err)

	schedule, err = h.store.ScheduleRepository().GetByCadence(h.ctx, cadence.ID)
	require.NoError(t, err)
	assert.Equal(t, cron, schedule.CronExpression)

	_, err = h.engine.Cadences.Update(h.ctx, owner, cadence.ID, &UpdateCadenceRequest{ClearSchedule: true})
	require.NoError(t, err)

	_, err = h.store.ScheduleRepository().GetByCadence(h.ctx, cadence.ID)
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}

func TestCadenceService_UpdatePriorityRequestsRecalculation(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1", "user-2"))

	high := models.CadencePriorityHigh
	updated, err := h.engine.Cadences.Update(h.ctx, owner, f.Cadence.ID, &UpdateCadenceRequest{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, high, updated.Priority)

	requested := h.jobs.Events(events.RecalculateRequestedEvent)
	require.Len(t, requested, 2)
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, []string{requested[0].Key, requested[1].Key})
}

func TestCadenceService_UpdateForbidden(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}))

	stranger := protocol.Actor{UserID: "user-9", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "company-1"}
	name := "Renamed"

	_, err := h.engine.Cadences.Update(h.ctx, stranger, f.Cadence.ID, &UpdateCadenceRequest{Name: &name})
	assert.True(t, IsForbiddenError(err))
}

func TestCadenceService_LaunchStartsLeadsOnFirstNode(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B", "C"}, "user-1"))
	lead := f.Leads[0]

	require.NoError(t, h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID))
	assert.Equal(t, models.CadenceStatusProcessing, h.cadence(f.Cadence.ID).Status)
	assert.InDelta(t, 1, promtest.ToFloat64(h.metrics.LaunchesStarted), 0)

	report := h.runLaunch()
	assert.Equal(t, 1, report.Started)
	assert.Empty(t, report.Failures)

	assert.Equal(t, models.CadenceStatusInProgress, h.cadence(f.Cadence.ID).Status)

	task := h.outstanding(lead.ID, f.Nodes[0].ID)
	assert.True(t, task.StartTime.Equal(testNow))
	assert.True(t, task.IsToday, "a first node without wait is queued for today right away")
	h.noOutstanding(lead.ID, f.Nodes[1].ID)

	link := h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusInProgress, link.Status)
	require.NotNil(t, link.CurrentNodeID)
	assert.Equal(t, f.Nodes[0].ID, *link.CurrentNodeID)

	assert.Contains(t, h.activities(lead.ID), models.ActivityNameCadenceLaunched)

	finished := h.jobs.Events(events.LaunchFinishedEvent)
	require.Len(t, finished, 1)
	assert.Equal(t, "user-1", finished[0].Key)
	assert.Equal(t, models.CadenceStatusInProgress, finished[0].Event.(events.LaunchFinished).Status)
}

func TestCadenceService_LaunchRejections(t *testing.T) {
	t.Run("empty cadence", func(t *testing.T) {
		h := newHarness(t)
		f := h.seed(testutil.NewFixture(nil, "user-1"))

		err := h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID)
		require.ErrorIs(t, err, ErrEmptyCadence)
		assert.True(t, IsValidationError(err))
		assert.Equal(t, models.CadenceStatusNotStarted, h.cadence(f.Cadence.ID).Status)
	})

	t.Run("product tour", func(t *testing.T) {
		h := newHarness(t)
		f := testutil.NewFixture([]string{"A"})
		f.Cadence.IsProductTour = true
		h.seed(f)

		err := h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID)
		require.ErrorIs(t, err, ErrProductTourCadence)
	})

	t.Run("already running", func(t *testing.T) {
		h := newHarness(t)
		f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
		h.launch(f.Cadence.ID)

		err := h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID)
		require.ErrorIs(t, err, ErrCadenceRunning)
		assert.True(t, IsConflictError(err))
	})

	t.Run("processing", func(t *testing.T) {
		h := newHarness(t)
		f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
		require.NoError(t, h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID))

		err := h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID)
		require.ErrorIs(t, err, ErrCadenceProcessing)
	})
}

func TestCadenceService_LaunchRevertsWhenQueueUnavailable(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	h.jobs.Err = errors.New("broker unavailable")

	err := h.engine.Cadences.Launch(h.ctx, owner, f.Cadence.ID)
	require.Error(t, err)

	assert.Equal(t, models.CadenceStatusNotStarted, h.cadence(f.Cadence.ID).Status)
	assert.InDelta(t, 0, promtest.ToFloat64(h.metrics.LaunchesStarted), 0)
}

func TestCadenceService_PauseForDuration(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1", "user-1"))
	h.launch(f.Cadence.ID)

	pauseFor := testNow.Add(48 * time.Hour)
	require.NoError(t, h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, &pauseFor))
	assert.Equal(t, models.CadenceStatusProcessing, h.cadence(f.Cadence.ID).Status)

	queued := h.jobs.Events(events.PauseRequestedEvent)
	require.Len(t, queued, 1)

	job := queued[0].Event.(events.PauseRequested)
	assert.Equal(t, models.CadenceStatusInProgress, job.PreviousStatus)

	h.jobs.Reset()
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))

	cadence := h.cadence(f.Cadence.ID)
	assert.Equal(t, models.CadenceStatusPaused, cadence.Status)
	require.NotNil(t, cadence.ResumeAt)
	assert.True(t, cadence.ResumeAt.Equal(pauseFor))

	for _, lead := range f.Leads {
		assert.Contains(t, h.activities(lead.ID), models.ActivityNameCadencePaused)
		assert.False(t, h.outstanding(lead.ID, f.Nodes[0].ID).IsToday, "tasks of paused cadences leave the daily queue")
	}

	assert.Len(t, h.jobs.Events(events.AutomationCancelRequestedEvent), 1)

	summaries := h.jobs.Events(events.TaskSummaryChangedEvent)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Event.(events.TaskSummaryChanged).TodayCount)

	// A replayed pause job leaves the paused cadence alone.
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))
	assert.Equal(t, models.CadenceStatusPaused, h.cadence(f.Cadence.ID).Status)
}

func TestCadenceService_PauseRejections(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	h.launch(f.Cadence.ID)

	past := testNow.Add(-time.Minute)
	err := h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, &past)
	require.ErrorIs(t, err, ErrPauseInPast)

	require.NoError(t, h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, nil))

	err = h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, nil)
	require.ErrorIs(t, err, ErrCadenceProcessing)

	job := h.jobs.Events(events.PauseRequestedEvent)[0].Event.(events.PauseRequested)
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))

	err = h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, nil)
	require.ErrorIs(t, err, ErrCadencePaused)
}

func TestCadenceService_ResumeRelaunchesWithoutDuplicates(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]

	err := h.engine.Cadences.Resume(h.ctx, owner, f.Cadence.ID)
	require.ErrorIs(t, err, ErrCadenceNotPaused)

	h.launch(f.Cadence.ID)

	pauseFor := testNow.Add(time.Hour)
	require.NoError(t, h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, &pauseFor))
	job := h.jobs.Events(events.PauseRequestedEvent)[0].Event.(events.PauseRequested)
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))

	require.NoError(t, h.engine.Cadences.Resume(h.ctx, owner, f.Cadence.ID))

	queued := h.jobs.Events(events.LaunchRequestedEvent)
	assert.Equal(t, models.CadenceStatusPaused, queued[len(queued)-1].Event.(events.LaunchRequested).PreviousStatus)

	report := h.runLaunch()
	assert.Equal(t, 0, report.Started, "leads already on a node are not restarted")

	cadence := h.cadence(f.Cadence.ID)
	assert.Equal(t, models.CadenceStatusInProgress, cadence.Status)
	assert.Nil(t, cadence.ResumeAt)

	tasks, err := h.store.TaskRepository().ListOutstanding(h.ctx, lead.ID, f.Cadence.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCadenceService_ResumeRestoresTodayQueue(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]

	h.launch(f.Cadence.ID)
	require.True(t, h.outstanding(lead.ID, f.Nodes[0].ID).IsToday)

	pauseFor := testNow.Add(time.Hour)
	require.NoError(t, h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, &pauseFor))
	job := h.jobs.Events(events.PauseRequestedEvent)[0].Event.(events.PauseRequested)
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))
	require.False(t, h.outstanding(lead.ID, f.Nodes[0].ID).IsToday)

	require.NoError(t, h.engine.Cadences.Resume(h.ctx, owner, f.Cadence.ID))
	h.runLaunch()

	assert.Equal(t, models.CadenceStatusInProgress, h.cadence(f.Cadence.ID).Status)
	assert.True(t, h.outstanding(lead.ID, f.Nodes[0].ID).IsToday)

	today, err := h.store.TaskRepository().ListByUser(h.ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, today, 1)
}

func TestCadenceService_ResumeDue(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	h.launch(f.Cadence.ID)

	pauseFor := testNow.Add(time.Hour)
	require.NoError(t, h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, &pauseFor))
	job := h.jobs.Events(events.PauseRequestedEvent)[0].Event.(events.PauseRequested)
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))

	resumed, err := h.engine.Cadences.ResumeDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)

	h.clock.Advance(2 * time.Hour)

	resumed, err = h.engine.Cadences.ResumeDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Equal(t, models.CadenceStatusProcessing, h.cadence(f.Cadence.ID).Status)
}

func TestCadenceService_TimedPauseOfUnlaunchedCadenceLaunchesOnResume(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	lead := f.Leads[0]

	pauseFor := testNow.Add(time.Hour)
	require.NoError(t, h.engine.Cadences.PauseForDuration(h.ctx, owner, f.Cadence.ID, &pauseFor))
	job := h.jobs.Events(events.PauseRequestedEvent)[0].Event.(events.PauseRequested)
	assert.Equal(t, models.CadenceStatusNotStarted, job.PreviousStatus)
	require.NoError(t, h.engine.Cadences.RunPause(h.ctx, &job))
	assert.Equal(t, models.CadenceStatusPaused, h.cadence(f.Cadence.ID).Status)

	h.clock.Advance(2 * time.Hour)

	resumed, err := h.engine.Cadences.ResumeDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	report := h.runLaunch()
	assert.Equal(t, 1, report.Started)
	assert.Equal(t, models.LeadCadenceStatusInProgress, h.link(lead.ID, f.Cadence.ID).Status)
	h.outstanding(lead.ID, f.Nodes[0].ID)
}

func TestCadenceService_Stop(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	lead := f.Leads[0]
	h.launch(f.Cadence.ID)

	task := h.outstanding(lead.ID, f.Nodes[0].ID)

	require.NoError(t, h.engine.Cadences.Stop(h.ctx, owner, f.Cadence.ID, "campaign cancelled"))

	assert.Equal(t, models.CadenceStatusCompleted, h.cadence(f.Cadence.ID).Status)

	link := h.link(lead.ID, f.Cadence.ID)
	assert.Equal(t, models.LeadCadenceStatusStopped, link.Status)
	assert.Equal(t, "campaign cancelled", link.StatusReason)

	skipped, err := h.store.TaskRepository().GetByID(h.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, skipped.IsSkipped)
	assert.Equal(t, SkipReasonStopped, skipped.SkipReason)

	assert.Contains(t, h.triggers(), protocol.TriggerStopped)
	assert.Contains(t, h.activities(lead.ID), models.ActivityNameCadenceStopped)
	assert.NotEmpty(t, h.jobs.Events(events.CRMMirrorRequestedEvent))
}

func TestCadenceService_Delete(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	h.launch(f.Cadence.ID)

	err := h.engine.Cadences.Delete(h.ctx, owner, f.Cadence.ID)
	require.ErrorIs(t, err, ErrCadenceInProgress)

	require.NoError(t, h.engine.Cadences.Stop(h.ctx, owner, f.Cadence.ID, ""))
	require.NoError(t, h.engine.Cadences.Delete(h.ctx, owner, f.Cadence.ID))

	_, err = h.store.CadenceRepository().GetByID(h.ctx, f.Cadence.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestCadenceService_Enroll(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}))

	leads := []*models.Lead{testutil.CreateTestLead("user-1"), testutil.CreateTestLead("user-1")}
	for _, lead := range leads {
		require.NoError(t, h.store.LeadRepository().Save(h.ctx, lead))
	}

	result, err := h.engine.Cadences.Enroll(h.ctx, owner, f.Cadence.ID, []string{leads[0].ID, leads[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{leads[0].ID, leads[1].ID}, result.Enrolled)
	assert.Empty(t, result.Skipped)

	assert.Equal(t, 1, h.link(leads[0].ID, f.Cadence.ID).LeadCadenceOrder)
	assert.Equal(t, 2, h.link(leads[1].ID, f.Cadence.ID).LeadCadenceOrder)
	h.noOutstanding(leads[0].ID, f.Nodes[0].ID)

	result, err = h.engine.Cadences.Enroll(h.ctx, owner, f.Cadence.ID, []string{leads[0].ID})
	require.NoError(t, err)
	assert.Empty(t, result.Enrolled)
	assert.Equal(t, []string{leads[0].ID}, result.Skipped)
}

func TestCadenceService_EnrollIntoRunningCadenceStartsLead(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1"))
	h.launch(f.Cadence.ID)

	late := testutil.CreateTestLead("user-1")
	require.NoError(t, h.store.LeadRepository().Save(h.ctx, late))

	_, err := h.engine.Cadences.Enroll(h.ctx, owner, f.Cadence.ID, []string{late.ID})
	require.NoError(t, err)

	assert.Equal(t, models.LeadCadenceStatusInProgress, h.link(late.ID, f.Cadence.ID).Status)
	assert.True(t, h.outstanding(late.ID, f.Nodes[0].ID).IsToday)
}

func TestCadenceService_EnrollRenumbersPastOrderMax(t *testing.T) {
	h := newHarness(t)
	f := testutil.NewFixture([]string{"A"}, "user-1", "user-1")
	f.Links[0].LeadCadenceOrder = 4
	f.Links[1].LeadCadenceOrder = 10
	h.seed(f)

	settings := models.DefaultSettings()
	settings.UserID = "user-1"
	settings.LeadCadenceOrderMax = 10
	require.NoError(t, h.engine.Settings.Update(h.ctx, &settings))

	late := testutil.CreateTestLead("user-1")
	require.NoError(t, h.store.LeadRepository().Save(h.ctx, late))

	_, err := h.engine.Cadences.Enroll(h.ctx, owner, f.Cadence.ID, []string{late.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, h.link(f.Leads[0].ID, f.Cadence.ID).LeadCadenceOrder)
	assert.Equal(t, 2, h.link(f.Leads[1].ID, f.Cadence.ID).LeadCadenceOrder)
	assert.Equal(t, 3, h.link(late.ID, f.Cadence.ID).LeadCadenceOrder)
}

func TestCadenceService_Statistics(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1", "user-1"))
	h.launch(f.Cadence.ID)

	task := h.outstanding(f.Leads[0].ID, f.Nodes[0].ID)
	_, err := h.engine.Progression.Complete(h.ctx, owner, task.ID)
	require.NoError(t, err)

	stats, err := h.engine.Cadences.Statistics(h.ctx, owner, f.Cadence.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Leads[models.LeadCadenceStatusInProgress])
	require.Len(t, stats.Nodes, 2)
	assert.Equal(t, 1, stats.Nodes[0].Completed)
	assert.Equal(t, 1, stats.Nodes[0].Outstanding)
	assert.Equal(t, 1, stats.Nodes[1].Outstanding)
}

func TestCadenceService_FireDueSchedules(t *testing.T) {
	h := newHarness(t)

	launchAt := testNow.Add(-time.Minute)
	cadence, err := h.engine.Cadences.Create(h.ctx, owner, &CreateCadenceRequest{Name: "Scheduled", LaunchAt: &launchAt})
	require.NoError(t, err)

	_, err = h.engine.Nodes.InsertAfter(h.ctx, owner, cadence.ID, &CreateNodeRequest{Name: "Call", Type: models.NodeTypeCall})
	require.NoError(t, err)

	fired, err := h.engine.Cadences.FireDueSchedules(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, models.CadenceStatusProcessing, h.cadence(cadence.ID).Status)

	schedule, err := h.store.ScheduleRepository().GetByCadence(h.ctx, cadence.ID)
	require.NoError(t, err)
	assert.False(t, schedule.Active)

	fired, err = h.engine.Cadences.FireDueSchedules(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}
