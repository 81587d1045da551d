package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("cadence error unwraps", func(t *testing.T) {
		err := persistence.NewCadenceError("GetByID", "cad-123", persistence.ErrCadenceNotFound)

		assert.True(t, persistence.IsCadenceNotFound(err))
		assert.True(t, persistence.IsNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrCadenceNotFound))
		assert.Contains(t, err.Error(), "GetByID")
		assert.Contains(t, err.Error(), "cad-123")
	})

	t.Run("task error carries the pair", func(t *testing.T) {
		err := persistence.NewTaskError("Create", "lead-1", "node-1", persistence.ErrOutstandingTaskExists)

		assert.True(t, persistence.IsOutstandingTaskExists(err))
		assert.False(t, persistence.IsNotFound(err))
		assert.Contains(t, err.Error(), "lead-1")
		assert.Contains(t, err.Error(), "node-1")
	})

	t.Run("wrapped not found", func(t *testing.T) {
		err := fmt.Errorf("failed to load: %w", persistence.ErrNodeNotFound)

		assert.True(t, persistence.IsNodeNotFound(err))
		assert.True(t, persistence.IsNotFound(err))
	})
}
