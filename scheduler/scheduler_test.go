package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNop() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}

func TestAddTicker_Fires(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddTicker_Immediately(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	ran := make(chan struct{}, 1)
	s.AddTicker("boot", time.Hour, func(context.Context) {
		ran <- struct{}{}
	}, Immediately())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate run did not happen")
	}
}

func TestAddTicker_RunsNeverOverlap(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var inFlight, maxInFlight int32
	s.AddTicker("slow", 5*time.Millisecond, func(context.Context) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(25 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}, Immediately(), WithTimeout(time.Second))

	for i := 0; i < 5; i++ {
		s.Trigger("slow")
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestAddTicker_TimeoutCancelsRun(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	errCh := make(chan error, 1)
	s.AddTicker("bounded", time.Hour, func(ctx context.Context) {
		<-ctx.Done()
		errCh <- ctx.Err()
	}, Immediately(), WithTimeout(20*time.Millisecond))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("run was not bounded by its timeout")
	}
}

func TestAddTicker_Replaces(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count1, count2 int32
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) { atomic.AddInt32(&count1, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) { atomic.AddInt32(&count2, 1) })
	time.Sleep(80 * time.Millisecond)

	// Old ticker should have stopped, new one should be running
	snap1 := atomic.LoadInt32(&count1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&count1), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&count2))
}

func TestTrigger(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	ran := make(chan struct{}, 4)
	s.AddTicker("manual", time.Hour, func(context.Context) { ran <- struct{}{} })

	assert.True(t, s.Trigger("manual"))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("trigger did not run the task")
	}
	assert.False(t, s.Trigger("missing"))
}

func TestRemove_Ticker(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) { atomic.AddInt32(&count, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Remove("task")
	time.Sleep(30 * time.Millisecond)
	snap := atomic.LoadInt32(&count)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&count), "ticker must stop after Remove")
}

func TestRemove_NonExistent(t *testing.T) {
	s := New(newNop())
	defer s.Stop()
	// Must not panic
	s.Remove("nope")
}

func TestStop_StopsAllTickers(t *testing.T) {
	s := New(newNop())

	var c1, c2 int32
	s.AddTicker("a", 20*time.Millisecond, func(context.Context) { atomic.AddInt32(&c1, 1) })
	s.AddTicker("b", 20*time.Millisecond, func(context.Context) { atomic.AddInt32(&c2, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	time.Sleep(30 * time.Millisecond)
	snap1, snap2 := atomic.LoadInt32(&c1), atomic.LoadInt32(&c2)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&c1))
	assert.Equal(t, snap2, atomic.LoadInt32(&c2))
}

func TestStop_Idempotent(t *testing.T) {
	s := New(newNop())
	s.Stop()
	s.Stop()
}

func TestListTickers(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	require.Empty(t, s.ListTickers())
	s.AddTicker("beta", time.Hour, func(context.Context) {})
	s.AddTicker("alpha", time.Hour, func(context.Context) {})
	assert.Equal(t, []string{"alpha", "beta"}, s.ListTickers())

	s.Remove("alpha")
	assert.Equal(t, []string{"beta"}, s.ListTickers())
}

func TestTasks_RecordsRuns(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	s.AddTicker("counted", time.Hour, func(context.Context) {}, Immediately())
	require.Eventually(t, func() bool {
		tasks := s.Tasks()
		return len(tasks) == 1 && tasks[0].Runs == 1
	}, time.Second, 10*time.Millisecond)

	info := s.Tasks()[0]
	assert.Equal(t, "counted", info.Name)
	assert.Equal(t, time.Hour, info.Interval)
	assert.False(t, info.LastRun.IsZero())
}

func TestTicker_PanicRecovery(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var runs int32
	s.AddTicker("panic", 20*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&runs, 1)
		panic("oops")
	})
	// After the panic the ticker goroutine keeps running.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 },
		time.Second, 10*time.Millisecond)
}
