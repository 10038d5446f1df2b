package connector

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediately(t *testing.T) {
	s := NewScheduler(testLogger())

	var runs atomic.Int32
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("sync", "@every 1h", func(context.Context) error {
		runs.Add(1)
		ran <- struct{}{}
		return nil
	}))

	stop := s.Start(context.Background())
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	stop()
	stop()

	assert.EqualValues(t, 1, runs.Load())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(testLogger())
	assert.Error(t, s.Add("sync", "every five minutes", func(context.Context) error { return nil }))
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	s := NewScheduler(testLogger())

	var runs atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Add("poll", "@every 1h", func(context.Context) error {
		if runs.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	}))

	stop := s.Start(context.Background())
	<-entered

	s.runOnce(s.jobs[0])
	assert.EqualValues(t, 1, runs.Load())

	close(release)
	stop()

	s.runOnce(s.jobs[0])
	assert.EqualValues(t, 2, runs.Load())
}

func TestScheduler_StopsWithParent(t *testing.T) {
	s := NewScheduler(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	require.NoError(t, s.Add("sync", "@every 1h", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return ctx.Err()
	}))

	s.Start(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not observe parent cancellation")
	}
}
