package ticker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunOnce_SkipsWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var runs atomic.Int32

	task := New("test", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		close(entered)
		<-unblock
		return nil
	})

	done := make(chan bool)
	go func() { done <- task.RunOnce(context.Background()) }()
	<-entered

	assert.False(t, task.RunOnce(context.Background()))

	close(unblock)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
}

func TestRunOnce_ErrorStillCountsAsRun(t *testing.T) {
	task := New("failing", time.Hour, func(ctx context.Context) error {
		return errors.New("boom")
	})

	assert.True(t, task.RunOnce(context.Background()))
	assert.True(t, task.RunOnce(context.Background()))
}

func TestStart_TicksUntilCanceled(t *testing.T) {
	var runs atomic.Int32
	task := New("tick", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		task.Start(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("task did not stop after cancel")
	}
}
