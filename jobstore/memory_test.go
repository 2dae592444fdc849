package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3dp/web3dpd/pipeline"
)

func TestMemoryCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	job := &pipeline.Job{Filename: "a.stl", Status: pipeline.StatusPending}
	require.NoError(t, m.Create(ctx, job))
	assert.Equal(t, int64(1), job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.stl", got.Filename)

	got.Status = pipeline.StatusSlicing
	require.NoError(t, m.Update(ctx, got))
	again, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSlicing, again.Status)

	require.NoError(t, m.Delete(ctx, job.ID))
	_, err = m.Get(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGetHandsOutCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, &pipeline.Job{Filename: "a.stl"}))

	got, err := m.Get(ctx, 1)
	require.NoError(t, err)
	got.Filename = "mutated.stl"

	fresh, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a.stl", fresh.Filename)
}

func TestMemoryListNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		job := &pipeline.Job{Filename: "a.stl", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, m.Create(ctx, job))
	}

	jobs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, int64(3), jobs[0].ID)
	assert.Equal(t, int64(1), jobs[2].ID)
}

func TestMemoryUpdateMissing(t *testing.T) {
	m := NewMemory()
	err := m.Update(context.Background(), &pipeline.Job{ID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
}
