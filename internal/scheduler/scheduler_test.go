package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"anoa.com/lostfound/pkg/apperror"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRunByName(t *testing.T) {
	s := New(context.Background())
	var runs int32

	require.NoError(t, s.Register(NewJob("sweep", "@every 1h", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})))
	require.NoError(t, s.Register(NewJob("manual", "", func(ctx context.Context) error {
		return errors.New("boom")
	})))

	require.Equal(t, []string{"sweep", "manual"}, s.JobNames())
	require.NoError(t, s.RunByName(context.Background(), "sweep"))
	require.EqualValues(t, 1, atomic.LoadInt32(&runs))
	require.EqualError(t, s.RunByName(context.Background(), "manual"), "boom")
	require.ErrorIs(t, s.RunByName(context.Background(), "missing"), apperror.ErrNotFound)
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	s := New(context.Background())
	err := s.Register(NewJob("broken", "every now and then", func(ctx context.Context) error { return nil }))
	require.Error(t, err)
	require.Empty(t, s.JobNames())
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(context.Background())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Register(NewJob("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})))

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}

func TestRunByNameRefusesOverlap(t *testing.T) {
	s := New(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	require.NoError(t, s.Register(NewJob("sweep", "@every 1h", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			close(started)
			<-release
		}
		return nil
	})))

	done := make(chan error, 1)
	go func() { done <- s.RunByName(context.Background(), "sweep") }()
	<-started

	require.ErrorIs(t, s.RunByName(context.Background(), "sweep"), apperror.ErrInvalidOperation)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.RunByName(context.Background(), "sweep"))
	require.EqualValues(t, 2, atomic.LoadInt32(&runs))
}

func TestScheduledTickSkipsWhileRunningOnDemand(t *testing.T) {
	s := New(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	require.NoError(t, s.Register(NewJob("tick", "@every 1s", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			close(started)
			<-release
		}
		return nil
	})))

	done := make(chan error, 1)
	go func() { done <- s.RunByName(context.Background(), "tick") }()
	<-started

	s.Start()
	time.Sleep(2500 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&runs))

	close(release)
	require.NoError(t, <-done)
	s.Stop()
}
