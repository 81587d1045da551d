package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is the companion launch schedule of a cadence. It carries either a
// recurring cron expression or a one-shot launch time, plus the precomputed
// next due time so the scheduler can poll with a single indexed query.
type Schedule struct {
	ID        string `json:"id"         validate:"required"`
	CadenceID string `json:"cadence_id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday).
	CronExpression string     `json:"cron_expression,omitempty"`
	LaunchAt       *time.Time `json:"launch_at,omitempty"`

	NextDueAt time.Time `json:"next_due_at"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSchedule creates an active schedule with its next due time computed from now.
func NewSchedule(id, cadenceID, cronExpression string, launchAt *time.Time) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:             id,
		CadenceID:      cadenceID,
		CronExpression: cronExpression,
		LaunchAt:       launchAt,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Reschedule replaces the schedule definition and recomputes the next due time.
func (s *Schedule) Reschedule(cronExpression string, launchAt *time.Time) error {
	s.CronExpression = cronExpression
	s.LaunchAt = launchAt
	s.Active = true

	if err := s.Validate(); err != nil {
		return err
	}

	return s.calculateNextDueAt(time.Now().UTC())
}

// Advance moves the schedule past a firing. One-shot schedules deactivate.
func (s *Schedule) Advance(now time.Time) error {
	if s.CronExpression == "" {
		s.Active = false
		s.UpdatedAt = now

		return nil
	}

	return s.calculateNextDueAt(now)
}

func (s *Schedule) calculateNextDueAt(referenceTime time.Time) error {
	s.UpdatedAt = time.Now().UTC()

	if s.CronExpression == "" {
		s.NextDueAt = s.LaunchAt.UTC()

		return nil
	}

	cronSchedule, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.CadenceID == "" {
		return ErrInvalidSchedule
	}

	if s.CronExpression == "" && s.LaunchAt == nil {
		return ErrInvalidSchedule
	}

	if s.CronExpression == "" {
		return nil
	}

	_, err := cronParser.Parse(s.CronExpression)

	return err
}

// ValidateCron reports whether expr is a valid 5-field cron expression.
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)

	return err
}

var (
	// ErrInvalidSchedule is returned when schedule validation fails
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)
