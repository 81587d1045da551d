package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule_Cron(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "cad-1", "0 9 * * 1", nil)
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC()))
	assert.Equal(t, 9, schedule.NextDueAt.Hour())
	assert.Equal(t, time.Monday, schedule.NextDueAt.Weekday())
}

func TestNewSchedule_OneShotDeactivatesAfterFiring(t *testing.T) {
	launchAt := time.Now().UTC().Add(-time.Minute)

	schedule, err := NewSchedule("sched-1", "cad-1", "", &launchAt)
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.True(t, schedule.IsDue(now))

	require.NoError(t, schedule.Advance(now))
	assert.False(t, schedule.Active)
	assert.False(t, schedule.IsDue(now))
}

func TestNewSchedule_Invalid(t *testing.T) {
	_, err := NewSchedule("sched-1", "cad-1", "", nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewSchedule("sched-1", "cad-1", "not a cron", nil)
	assert.Error(t, err)

	_, err = NewSchedule("", "cad-1", "* * * * *", nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestSchedule_AdvanceCron(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "cad-1", "*/5 * * * *", nil)
	require.NoError(t, err)

	ref := time.Date(2026, 1, 1, 10, 2, 0, 0, time.UTC)
	require.NoError(t, schedule.Advance(ref))

	assert.Equal(t, time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC), schedule.NextDueAt)
	assert.True(t, schedule.Active)
}
