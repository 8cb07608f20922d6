package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booklibrary/internal/reconcile"
)

type fakeSyncer struct {
	genres  atomic.Int32
	refresh atomic.Int32
	release chan struct{}
	result  reconcile.Result
}

func (f *fakeSyncer) RefreshGenres(context.Context) error {
	f.genres.Add(1)
	return nil
}

func (f *fakeSyncer) RefreshAll(context.Context) reconcile.Result {
	f.refresh.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.result
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"0 */6 * * *", true},
		{"*/15 * * * *", true},
		{"0 0 * * 1-5", true},
		{"* * * *", false},
		{"0 0 0 * * *", false},
		{"hourly", false},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNextRunTime(t *testing.T) {
	from := time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)

	next, err := NextRunTime("0 */6 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), next)
}

func TestCatalogSyncScheduler_RunNow(t *testing.T) {
	syncer := &fakeSyncer{result: reconcile.Result{Merged: 3, Stopped: reconcile.StopShortPage}}
	s := NewCatalogSyncScheduler(syncer, "0 */6 * * *")

	assert.Nil(t, s.LastResult())
	s.RunNow()
	s.Wait()

	assert.Equal(t, int32(1), syncer.genres.Load())
	assert.Equal(t, int32(1), syncer.refresh.Load())
	require.NotNil(t, s.LastResult())
	assert.Equal(t, 3, s.LastResult().Merged)
	assert.False(t, s.IsSyncing())
}

func TestCatalogSyncScheduler_SkipsOverlappingRuns(t *testing.T) {
	syncer := &fakeSyncer{release: make(chan struct{}), result: reconcile.Result{Err: errors.New("offline")}}
	s := NewCatalogSyncScheduler(syncer, "0 */6 * * *")

	s.RunNow()
	require.Eventually(t, s.IsSyncing, time.Second, 5*time.Millisecond)

	s.RunNow()
	time.Sleep(20 * time.Millisecond)
	close(syncer.release)
	s.Wait()

	assert.Equal(t, int32(1), syncer.refresh.Load())
	assert.Error(t, s.LastResult().Err)
}

func TestCatalogSyncScheduler_StartStop(t *testing.T) {
	s := NewCatalogSyncScheduler(&fakeSyncer{}, "0 */6 * * *")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	next := s.GetNextRunTime()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())
}

func TestCatalogSyncScheduler_StopsWithContext(t *testing.T) {
	s := NewCatalogSyncScheduler(&fakeSyncer{}, "0 */6 * * *")
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestCatalogSyncScheduler_InvalidSchedule(t *testing.T) {
	s := NewCatalogSyncScheduler(&fakeSyncer{}, "whenever")

	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}
