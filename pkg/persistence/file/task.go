package file

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type taskRepository struct {
	p *Persistence
}

func (r *taskRepository) Create(_ context.Context, task *models.Task) error {
	return r.p.write(func(s *state) error {
		if task.NodeID != nil {
			if existing := findOutstanding(s, task.LeadID, *task.NodeID); existing != nil {
				return persistence.NewTaskError("Create", task.LeadID, *task.NodeID, persistence.ErrOutstandingTaskExists)
			}
		}

		s.Tasks[task.ID] = clone(task)

		return nil
	})
}

func findOutstanding(s *state, leadID, nodeID string) *models.Task {
	for _, t := range s.Tasks {
		if t.LeadID == leadID && t.NodeID != nil && *t.NodeID == nodeID && t.IsOutstanding() {
			return t
		}
	}

	return nil
}

func (r *taskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	var task *models.Task

	err := r.p.read(func(s *state) error {
		stored, ok := s.Tasks[id]
		if !ok {
			return persistence.ErrTaskNotFound
		}

		task = clone(stored)

		return nil
	})

	return task, err
}

func (r *taskRepository) Outstanding(_ context.Context, leadID, nodeID string) (*models.Task, error) {
	var task *models.Task

	err := r.p.read(func(s *state) error {
		stored := findOutstanding(s, leadID, nodeID)
		if stored == nil {
			return persistence.ErrTaskNotFound
		}

		task = clone(stored)

		return nil
	})

	return task, err
}

func (r *taskRepository) ListOutstanding(_ context.Context, leadID, cadenceID string) ([]*models.Task, error) {
	return r.filter(func(t *models.Task) bool {
		return t.LeadID == leadID && t.CadenceID == cadenceID && t.IsOutstanding()
	})
}

func (r *taskRepository) ListByUser(_ context.Context, userID string, todayOnly bool) ([]*models.Task, error) {
	return r.filter(func(t *models.Task) bool {
		return t.UserID == userID && t.IsOutstanding() && (!todayOnly || t.IsToday)
	})
}

func (r *taskRepository) filter(match func(*models.Task) bool) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0)

	err := r.p.read(func(s *state) error {
		for _, t := range s.Tasks {
			if match(t) {
				tasks = append(tasks, clone(t))
			}
		}

		return nil
	})

	sortTasks(tasks)

	return tasks, err
}

func sortTasks(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StartTime.Equal(tasks[j].StartTime) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].StartTime.Before(tasks[j].StartTime)
	})
}

func (r *taskRepository) Complete(_ context.Context, id string, at time.Time) (bool, error) {
	return r.finish(id, func(t *models.Task) {
		t.Completed = true
		t.CompleteTime = &at
		t.IsToday = false
	})
}

func (r *taskRepository) Skip(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	return r.finish(id, func(t *models.Task) {
		t.IsSkipped = true
		t.SkipTime = &at
		t.SkipReason = reason
		t.IsToday = false
	})
}

func (r *taskRepository) finish(id string, apply func(*models.Task)) (bool, error) {
	applied := false

	err := r.p.write(func(s *state) error {
		task, ok := s.Tasks[id]
		if !ok {
			return persistence.ErrTaskNotFound
		}

		if !task.IsOutstanding() {
			return nil
		}

		apply(task)

		applied = true

		return nil
	})

	return applied, err
}

func (r *taskRepository) DeleteOutstandingByNode(_ context.Context, nodeID string) ([]*models.Task, error) {
	deleted := make([]*models.Task, 0)

	err := r.p.write(func(s *state) error {
		for id, t := range s.Tasks {
			if t.NodeID != nil && *t.NodeID == nodeID && t.IsOutstanding() {
				deleted = append(deleted, clone(t))
				delete(s.Tasks, id)
			}
		}

		return nil
	})

	sortTasks(deleted)

	return deleted, err
}

func (r *taskRepository) QueueCandidates(_ context.Context, userID string, until time.Time) ([]*models.QueueCandidate, error) {
	candidates := make([]*models.QueueCandidate, 0)

	err := r.p.read(func(s *state) error {
		for _, t := range s.Tasks {
			if t.UserID != userID || !t.IsOutstanding() || t.StartTime.After(until) {
				continue
			}

			cadence, ok := s.Cadences[t.CadenceID]
			if !ok || cadence.Status != models.CadenceStatusInProgress {
				continue
			}

			link, ok := s.Links[linkKey(t.LeadID, t.CadenceID)]
			if !ok || link.Status != models.LeadCadenceStatusInProgress {
				continue
			}

			candidates = append(candidates, &models.QueueCandidate{
				Task:             clone(t),
				CadencePriority:  cadence.Priority,
				LeadCadenceOrder: link.LeadCadenceOrder,
			})
		}

		return nil
	})

	return candidates, err
}

func (r *taskRepository) MarkToday(_ context.Context, userID string, taskIDs []string) error {
	return r.p.write(func(s *state) error {
		for _, t := range s.Tasks {
			if t.UserID == userID && t.IsOutstanding() {
				t.IsToday = slices.Contains(taskIDs, t.ID)
			}
		}

		return nil
	})
}

func (r *taskRepository) UsersWithTasksStarting(_ context.Context, from, to time.Time) ([]string, error) {
	return r.users(func(t *models.Task) bool {
		return t.StartTime.After(from) && !t.StartTime.After(to)
	})
}

func (r *taskRepository) UsersWithOutstandingTasks(_ context.Context) ([]string, error) {
	return r.users(func(*models.Task) bool { return true })
}

func (r *taskRepository) users(match func(*models.Task) bool) ([]string, error) {
	users := make([]string, 0)

	err := r.p.read(func(s *state) error {
		for _, t := range s.Tasks {
			if t.IsOutstanding() && match(t) && !slices.Contains(users, t.UserID) {
				users = append(users, t.UserID)
			}
		}

		return nil
	})

	sort.Strings(users)

	return users, err
}

func (r *taskRepository) CountByNode(_ context.Context, cadenceID string) ([]*models.NodeTaskCount, error) {
	counts := make(map[string]*models.NodeTaskCount)

	err := r.p.read(func(s *state) error {
		for _, t := range s.Tasks {
			if t.CadenceID != cadenceID || t.NodeID == nil {
				continue
			}

			count, ok := counts[*t.NodeID]
			if !ok {
				count = &models.NodeTaskCount{NodeID: *t.NodeID}
				counts[*t.NodeID] = count
			}

			switch {
			case t.Completed:
				count.Completed++
			case t.IsSkipped:
				count.Skipped++
			default:
				count.Outstanding++
			}
		}

		return nil
	})

	result := make([]*models.NodeTaskCount, 0, len(counts))
	for _, count := range counts {
		result = append(result, count)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].NodeID < result[j].NodeID })

	return result, err
}
