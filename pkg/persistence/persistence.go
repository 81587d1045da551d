// Package persistence provides the data storage abstraction layer for cadences,
// their node chains, lead enrollments and tasks.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/cadence/pkg/models"
)

// Persistence is the root storage handle. Every repository obtained from a
// transactional Persistence (the one passed to Transaction's callback) reads and
// writes inside that transaction.
type Persistence interface {
	CadenceRepository() CadenceRepository
	NodeRepository() NodeRepository
	LeadRepository() LeadRepository
	LeadCadenceRepository() LeadCadenceRepository
	TaskRepository() TaskRepository
	ActivityRepository() ActivityRepository
	SettingsRepository() SettingsRepository
	ScheduleRepository() ScheduleRepository

	// Transaction runs fn atomically. fn's error rolls every write back.
	// Calling Transaction on a transactional Persistence joins the outer transaction.
	Transaction(ctx context.Context, fn func(tx Persistence) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// CadenceStatusTransition is a conditional status write: it only applies when the
// stored status is one of From.
type CadenceStatusTransition struct {
	CadenceID string
	From      []models.CadenceStatus
	To        models.CadenceStatus
	ResumeAt  *time.Time // Written as-is, nil clears it
}

// CadenceFilter narrows cadence listings. Empty fields match everything.
type CadenceFilter struct {
	UserID          string
	SubDepartmentID string
	CompanyID       string
	Status          models.CadenceStatus
}

// CadenceRepository defines cadence persistence operations.
type CadenceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Cadence, error)
	List(ctx context.Context, filter CadenceFilter) ([]*models.Cadence, error)
	Save(ctx context.Context, cadence *models.Cadence) error
	// Delete removes the cadence with its nodes, links, tasks and schedules.
	Delete(ctx context.Context, id string) error
	// Lock serializes structural edits on one cadence for the current transaction.
	Lock(ctx context.Context, id string) error
	// TransitionStatus reports whether the conditional write matched.
	TransitionStatus(ctx context.Context, transition CadenceStatusTransition) (bool, error)
	// DueForResume lists paused cadences whose resume_at is at or before the given time.
	DueForResume(ctx context.Context, before time.Time) ([]*models.Cadence, error)
}

// NodeRepository defines node persistence operations.
type NodeRepository interface {
	GetByID(ctx context.Context, id string) (*models.Node, error)
	ListByCadence(ctx context.Context, cadenceID string) ([]*models.Node, error)
	Save(ctx context.Context, node *models.Node) error
	Delete(ctx context.Context, id string) error
	// ListRepliesTo returns nodes that reference nodeID as their reply-to target.
	ListRepliesTo(ctx context.Context, nodeID string) ([]*models.Node, error)
}

// LeadRepository defines lead persistence operations.
type LeadRepository interface {
	GetByID(ctx context.Context, id string) (*models.Lead, error)
	Save(ctx context.Context, lead *models.Lead) error
}

// LinkStatusTransition is a conditional lead-cadence status write.
type LinkStatusTransition struct {
	LeadID      string
	CadenceID   string
	From        []models.LeadCadenceStatus
	To          models.LeadCadenceStatus
	Reason      string
	PausedUntil *time.Time
}

// LeadCadenceRepository defines lead-cadence link persistence operations.
type LeadCadenceRepository interface {
	Get(ctx context.Context, leadID, cadenceID string) (*models.LeadCadence, error)
	// GetForUpdate is Get holding a row lock until the surrounding transaction
	// ends. Reads that are later written back with Save must use it.
	GetForUpdate(ctx context.Context, leadID, cadenceID string) (*models.LeadCadence, error)
	ListByCadence(ctx context.Context, cadenceID string, statuses ...models.LeadCadenceStatus) ([]*models.LeadCadence, error)
	ListByLead(ctx context.Context, leadID string) ([]*models.LeadCadence, error)
	Save(ctx context.Context, link *models.LeadCadence) error
	TransitionStatus(ctx context.Context, transition LinkStatusTransition) (bool, error)
	// MaxOrder is the highest lead_cadence_order among the user's links in the cadence.
	MaxOrder(ctx context.Context, cadenceID, userID string) (int, error)
	// DueForResume lists paused links whose paused_until is at or before the given time.
	DueForResume(ctx context.Context, before time.Time) ([]*models.LeadCadence, error)
	// UserIDsByCadence lists the distinct owners of leads enrolled in the cadence.
	UserIDsByCadence(ctx context.Context, cadenceID string) ([]string, error)
}

// TaskRepository defines task persistence operations.
type TaskRepository interface {
	// Create fails with ErrOutstandingTaskExists when the (lead, node) pair
	// already has an outstanding task.
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	// Outstanding returns the outstanding task for (lead, node) or ErrTaskNotFound.
	Outstanding(ctx context.Context, leadID, nodeID string) (*models.Task, error)
	ListOutstanding(ctx context.Context, leadID, cadenceID string) ([]*models.Task, error)
	ListByUser(ctx context.Context, userID string, todayOnly bool) ([]*models.Task, error)
	// Complete and Skip only apply to outstanding tasks and report whether they did.
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
	Skip(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	// DeleteOutstandingByNode removes the outstanding tasks of a node and returns them.
	DeleteOutstandingByNode(ctx context.Context, nodeID string) ([]*models.Task, error)
	// QueueCandidates lists the user's outstanding tasks that start before until and
	// belong to in-progress links of in-progress cadences.
	QueueCandidates(ctx context.Context, userID string, until time.Time) ([]*models.QueueCandidate, error)
	// MarkToday sets is_today on exactly the given outstanding tasks of the user.
	MarkToday(ctx context.Context, userID string, taskIDs []string) error
	// UsersWithTasksStarting lists users owning outstanding tasks with start_time in (from, to].
	UsersWithTasksStarting(ctx context.Context, from, to time.Time) ([]string, error)
	// UsersWithOutstandingTasks lists every user owning at least one outstanding task.
	UsersWithOutstandingTasks(ctx context.Context) ([]string, error)
	CountByNode(ctx context.Context, cadenceID string) ([]*models.NodeTaskCount, error)
}

// ActivityRepository defines the append-only activity log.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByLead(ctx context.Context, leadID string) ([]*models.Activity, error)
}

// SettingsRepository defines per-user settings persistence.
type SettingsRepository interface {
	// Get returns ErrSettingsNotFound when the user has no stored settings.
	Get(ctx context.Context, userID string) (*models.Settings, error)
	Save(ctx context.Context, settings *models.Settings) error
	ListBySubDepartment(ctx context.Context, subDepartmentID string) ([]*models.Settings, error)
}

// ScheduleRepository defines launch schedule persistence.
type ScheduleRepository interface {
	GetByCadence(ctx context.Context, cadenceID string) (*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
	// Due lists active schedules whose next_due_at is at or before the given time.
	Due(ctx context.Context, before time.Time) ([]*models.Schedule, error)
}
