package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisett-go/irisett/internal/activemonitor"
	"github.com/irisett-go/irisett/internal/store"
)

func newTestInstance(id int64, interval time.Duration) *activemonitor.Instance {
	inst := &activemonitor.Instance{
		Row: store.MonitorInstanceRow{ID: id, ChecksEnabled: true},
	}
	inst.SetInterval(interval)
	return inst
}

func TestScheduler_RunsDueInstance(t *testing.T) {
	reg := activemonitor.New(nil)
	inst := newTestInstance(1, time.Hour)
	reg.Put(inst)

	var ran atomic.Int32
	done := make(chan struct{}, 1)
	sched := New(reg, func(ctx context.Context, id int64) {
		ran.Add(1)
		done <- struct{}{}
	}, Config{TickInterval: 10 * time.Millisecond, MaxConcurrentJobs: 4}, nil)

	sched.Schedule(1, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("instance was never run")
	}
	assert.Equal(t, int32(1), ran.Load())
}

func TestScheduler_PreventsConcurrentRunsOfSameInstance(t *testing.T) {
	reg := activemonitor.New(nil)
	inst := newTestInstance(1, time.Hour)
	reg.Put(inst)

	var concurrent atomic.Int32
	var maxSeen atomic.Int32
	release := make(chan struct{})

	sched := New(reg, func(ctx context.Context, id int64) {
		n := concurrent.Add(1)
		for {
			old := maxSeen.Load()
			if n <= old || maxSeen.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		concurrent.Add(-1)
	}, Config{TickInterval: 5 * time.Millisecond, MaxConcurrentJobs: 4}, nil)

	sched.Schedule(1, time.Now())
	sched.Schedule(1, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	defer cancel()

	time.Sleep(100 * time.Millisecond)
	close(release)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestScheduler_ChecksDisabledSkipsRun(t *testing.T) {
	reg := activemonitor.New(nil)
	inst := newTestInstance(1, time.Hour)
	inst.Row.ChecksEnabled = false
	reg.Put(inst)

	var ran atomic.Bool
	sched := New(reg, func(ctx context.Context, id int64) {
		ran.Store(true)
	}, Config{TickInterval: 5 * time.Millisecond, MaxConcurrentJobs: 4}, nil)

	sched.Schedule(1, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	defer cancel()

	time.Sleep(100 * time.Millisecond)
	require.False(t, ran.Load())
}

func TestScheduler_RescanRequeuesMissingInstance(t *testing.T) {
	reg := activemonitor.New(nil)
	inst := newTestInstance(1, time.Hour)
	reg.Put(inst)

	sched := New(reg, func(ctx context.Context, id int64) {}, Config{}, nil)
	sched.rescan()

	sched.mu.Lock()
	_, tracked := sched.pos[1]
	sched.mu.Unlock()
	assert.True(t, tracked)
}
