package storage_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) storage.Store {
		return storage.NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	job := newJob(baseTime)
	require.NoError(t, s.Create(ctx, job))

	job.Status = domain.JobStatusFailed
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)

	got.SMILES = "mutated"
	again, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "CCO", again.SMILES)
}

func TestMemoryStore_ConcurrentTransitionHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	job := newJob(baseTime)
	require.NoError(t, s.Create(ctx, job))

	const writers = 16
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := domain.JobStatusRunning
			if i%2 == 0 {
				status = domain.JobStatusCancelled
			}
			_, err := s.Update(ctx, job.ID, storage.Update{
				Condition: storage.Expect(domain.JobStatusQueued),
				Status:    status,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
	assert.Equal(t, 1, wins)
}

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       storage.Filter
		page     int
		pageSize int
	}{
		{name: "defaults", in: storage.Filter{}, page: 1, pageSize: storage.DefaultPageSize},
		{name: "negative page", in: storage.Filter{Page: -2, PageSize: 5}, page: 1, pageSize: 5},
		{name: "page size capped", in: storage.Filter{Page: 2, PageSize: 1000}, page: 2, pageSize: storage.MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.page, got.Page)
			assert.Equal(t, tt.pageSize, got.PageSize)
		})
	}

	assert.Equal(t, 20, storage.Filter{Page: 3, PageSize: 10}.Offset())
}
