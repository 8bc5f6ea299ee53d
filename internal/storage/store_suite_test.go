package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newJob(createdAt time.Time) *domain.Job {
	return &domain.Job{
		ID:              uuid.NewString(),
		CandidateID:     "CAND-001",
		TargetUniprotID: "P00533",
		DiseaseName:     "lung cancer",
		SMILES:          "CCO",
		DockingParams:   &domain.DockingParams{Exhaustiveness: 8, NumModes: 9, EnergyRange: 3},
		Status:          domain.JobStatusQueued,
		CreatedAt:       createdAt,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(v float64) *float64 { return &v }

// runStoreSuite exercises the behaviour every Store implementation must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		job := newJob(baseTime)
		job.GridParams = &domain.GridParams{CenterX: 1, CenterY: 2, CenterZ: 3, SizeX: 20, SizeY: 20, SizeZ: 20}
		require.NoError(t, s.Create(ctx, job))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, domain.JobStatusQueued, got.Status)
		assert.Equal(t, "CCO", got.SMILES)
		require.NotNil(t, got.GridParams)
		assert.Equal(t, 20.0, got.GridParams.SizeX)
		require.NotNil(t, got.DockingParams)
		assert.Equal(t, 9, got.DockingParams.NumModes)
		assert.True(t, baseTime.Equal(got.CreatedAt))
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.BestAffinity)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		s := newStore(t)
		job := newJob(baseTime)
		require.NoError(t, s.Create(ctx, job))

		err := s.Create(ctx, job)
		assert.ErrorIs(t, err, domain.ErrDuplicateID)
	})

	t.Run("get unknown job", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("full lifecycle with poses", func(t *testing.T) {
		s := newStore(t)
		job := newJob(baseTime)
		require.NoError(t, s.Create(ctx, job))

		started := baseTime.Add(time.Second)
		running, err := s.Update(ctx, job.ID, storage.Update{
			Condition: storage.Expect(domain.JobStatusQueued),
			Status:    domain.JobStatusRunning,
			StartedAt: &started,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, running.Status)

		poses := []domain.Pose{
			{PoseNumber: 1, BindingAffinity: -9.2, RMSDLowerBound: 0, RMSDUpperBound: 0},
			{PoseNumber: 2, BindingAffinity: -8.1, RMSDLowerBound: 1.2, RMSDUpperBound: 2.3, StructureData: "MODEL 2"},
		}
		completed := baseTime.Add(time.Minute)
		done, err := s.Update(ctx, job.ID, storage.Update{
			Condition:    storage.Expect(domain.JobStatusRunning),
			Status:       domain.JobStatusCompleted,
			CompletedAt:  &completed,
			Poses:        poses,
			BestAffinity: floatPtr(-9.2),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, done.Status)

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		require.Len(t, got.Poses, 2)
		assert.Equal(t, 1, got.Poses[0].PoseNumber)
		assert.Equal(t, "MODEL 2", got.Poses[1].StructureData)
		require.NotNil(t, got.BestAffinity)
		assert.Equal(t, -9.2, *got.BestAffinity)
		require.NotNil(t, got.StartedAt)
		require.NotNil(t, got.CompletedAt)
		assert.False(t, got.CompletedAt.Before(*got.StartedAt))
	})

	t.Run("terminal job rejects every update", func(t *testing.T) {
		s := newStore(t)
		job := newJob(baseTime)
		require.NoError(t, s.Create(ctx, job))

		_, err := s.Update(ctx, job.ID, storage.Update{
			Condition:   storage.Expect(domain.JobStatusQueued),
			Status:      domain.JobStatusCancelled,
			CompletedAt: timePtr(baseTime.Add(time.Second)),
		})
		require.NoError(t, err)

		_, err = s.Update(ctx, job.ID, storage.Update{
			Status:       domain.JobStatusFailed,
			ErrorCode:    domain.CodeEngineUnavailable,
			ErrorMessage: "late failure",
		})
		require.ErrorIs(t, err, domain.ErrInvalidState)

		var stateErr *domain.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, domain.JobStatusCancelled, stateErr.Actual)

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, got.Status)
		assert.Empty(t, got.ErrorCode)
	})

	t.Run("unexpected status rejected", func(t *testing.T) {
		s := newStore(t)
		job := newJob(baseTime)
		require.NoError(t, s.Create(ctx, job))

		_, err := s.Update(ctx, job.ID, storage.Update{
			Condition: storage.Expect(domain.JobStatusRunning),
			Status:    domain.JobStatusCompleted,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("pagination", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 25; i++ {
			require.NoError(t, s.Create(ctx, newJob(baseTime.Add(time.Duration(i)*time.Second))))
		}

		page1, total, err := s.List(ctx, storage.Filter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 25, total)
		require.Len(t, page1, 10)
		assert.True(t, baseTime.Add(24*time.Second).Equal(page1[0].CreatedAt), "newest first")

		page3, _, err := s.List(ctx, storage.Filter{Page: 3, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, page3, 5)
		assert.True(t, baseTime.Equal(page3[4].CreatedAt), "oldest last")

		page4, total, err := s.List(ctx, storage.Filter{Page: 4, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 25, total)
		assert.NotNil(t, page4)
		assert.Empty(t, page4)
	})

	t.Run("filters", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 6; i++ {
			job := newJob(baseTime.Add(time.Duration(i) * time.Hour))
			job.CandidateID = fmt.Sprintf("CAND-%d", i%2)
			if i%3 == 0 {
				job.TargetUniprotID = "Q9Y6K9"
			}
			require.NoError(t, s.Create(ctx, job))
		}

		jobs, total, err := s.List(ctx, storage.Filter{CandidateID: "CAND-0"})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, jobs, 3)

		_, total, err = s.List(ctx, storage.Filter{TargetID: "Q9Y6K9"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)

		_, total, err = s.List(ctx, storage.Filter{
			CreatedFrom: baseTime.Add(time.Hour),
			CreatedTo:   baseTime.Add(3 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total, "from is inclusive, to is exclusive")

		_, total, err = s.List(ctx, storage.Filter{Status: domain.JobStatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("list by status oldest first", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for i := 0; i < 3; i++ {
			job := newJob(baseTime.Add(time.Duration(i) * time.Second))
			ids = append(ids, job.ID)
			require.NoError(t, s.Create(ctx, job))
		}
		_, err := s.Update(ctx, ids[1], storage.Update{
			Condition: storage.Expect(domain.JobStatusQueued),
			Status:    domain.JobStatusRunning,
			StartedAt: timePtr(baseTime.Add(time.Minute)),
		})
		require.NoError(t, err)

		queued, err := s.ListByStatus(ctx, domain.JobStatusQueued)
		require.NoError(t, err)
		require.Len(t, queued, 2)
		assert.Equal(t, ids[0], queued[0].ID)
		assert.Equal(t, ids[2], queued[1].ID)

		running, err := s.ListByStatus(ctx, domain.JobStatusRunning)
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, ids[1], running[0].ID)
	})

	t.Run("equal timestamps keep insertion order", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for i := 0; i < 6; i++ {
			job := newJob(baseTime)
			ids = append(ids, job.ID)
			require.NoError(t, s.Create(ctx, job))
		}

		queued, err := s.ListByStatus(ctx, domain.JobStatusQueued)
		require.NoError(t, err)
		require.Len(t, queued, len(ids))
		for i, job := range queued {
			assert.Equal(t, ids[i], job.ID)
		}

		history, _, err := s.List(ctx, storage.Filter{})
		require.NoError(t, err)
		require.Len(t, history, len(ids))
		for i, job := range history {
			assert.Equal(t, ids[len(ids)-1-i], job.ID)
		}
	})
}
