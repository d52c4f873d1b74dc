package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "nested", "healthmon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStatsHistory(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	empty, err := store.StatsHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 0; i < 5; i++ {
		stats := types.MonitoringStats{
			SamplesCollected: int64(10 * (i + 1)),
			AlertsTriggered:  int64(i),
			SamplingErrors:   1,
			LastUpdateTime:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.SaveStats(ctx, stats, base.Add(time.Duration(i)*time.Minute)))
	}

	t.Run("newest first with limit", func(t *testing.T) {
		snaps, err := store.StatsHistory(ctx, 2)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, int64(50), snaps[0].Stats.SamplesCollected)
		assert.Equal(t, int64(40), snaps[1].Stats.SamplesCollected)
		assert.Equal(t, base.Add(4*time.Minute), snaps[0].RecordedAt)
		assert.Equal(t, base.Add(4*time.Minute), snaps[0].Stats.LastUpdateTime)
		assert.Equal(t, int64(1), snaps[0].Stats.SamplingErrors)
	})

	t.Run("no limit returns all", func(t *testing.T) {
		snaps, err := store.StatsHistory(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, snaps, 5)
	})
}

func TestStatsWithoutUpdateTime(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	require.NoError(t, store.SaveStats(ctx, types.MonitoringStats{}, time.Now()))

	snaps, err := store.StatsHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Stats.LastUpdateTime.IsZero())
}

func TestAdaptationSnapshots(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	_, ok, err := store.LatestAdaptation(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh database has no snapshot")

	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveAdaptation(ctx, types.AdaptationSnapshot{RecordedAt: base, Level: 0.4, SuccessRate: 0.25, Outcomes: 4}))
	require.NoError(t, store.SaveAdaptation(ctx, types.AdaptationSnapshot{RecordedAt: base.Add(time.Minute), Level: 0.7, SuccessRate: 0.6, Outcomes: 5}))

	snap, ok, err := store.LatestAdaptation(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.7, snap.Level)
	assert.Equal(t, 0.6, snap.SuccessRate)
	assert.Equal(t, 5, snap.Outcomes)
	assert.Equal(t, base.Add(time.Minute), snap.RecordedAt)

	assert.Error(t, store.SaveAdaptation(ctx, types.AdaptationSnapshot{Level: 1.5}))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "healthmon.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveAdaptation(ctx, types.AdaptationSnapshot{Level: 0.9}))
	require.NoError(t, store.Close())

	store, err = New(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	snap, ok, err := store.LatestAdaptation(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, snap.Level)
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveStats(ctx, types.MonitoringStats{SamplesCollected: 3}, time.Now()))
	snaps, err := store.StatsHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(3), snaps[0].Stats.SamplesCollected)
}
