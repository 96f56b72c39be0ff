package completions

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelRunsCallbacksExactlyOnce(t *testing.T) {
	m := NewCancelManager()
	var calls int32
	m.OnCancel(func() { atomic.AddInt32(&calls, 1) })
	m.OnCancel(func() { atomic.AddInt32(&calls, 1) })

	m.Cancel()
	m.Cancel()
	m.Cancel()

	assert.True(t, m.Cancelled())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOnCancelAfterCancelRunsImmediately(t *testing.T) {
	m := NewCancelManager()
	m.Cancel()

	ran := false
	m.OnCancel(func() { ran = true })
	assert.True(t, ran)
}

func TestCancelSurvivesPanickingCallback(t *testing.T) {
	m := NewCancelManager()
	var after int32
	m.OnCancel(func() { panic("callback exploded") })
	m.OnCancel(func() { atomic.AddInt32(&after, 1) })

	require.NotPanics(t, m.Cancel)
	assert.Equal(t, int32(1), atomic.LoadInt32(&after), "callbacks after the panicking one still run")
}

func TestCancelConcurrent(t *testing.T) {
	m := NewCancelManager()
	var calls int32
	m.OnCancel(func() { atomic.AddInt32(&calls, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMonitorCancelsWhenPredicateFires(t *testing.T) {
	m := NewCancelManager()
	var flagged atomic.Bool
	m.StartMonitor(time.Millisecond, flagged.Load)

	flagged.Store(true)
	require.Eventually(t, m.Cancelled, time.Second, time.Millisecond)
	m.StopMonitor()
}

func TestStopMonitorWakesSleepingPoller(t *testing.T) {
	m := NewCancelManager()
	m.StartMonitor(time.Hour, func() bool { return false })

	start := time.Now()
	m.StopMonitor()
	assert.Less(t, time.Since(start), time.Second, "stop must wake the poller, not wait out the interval")
	assert.False(t, m.Cancelled())
}

func TestStopMonitorWithoutMonitorIsNoop(t *testing.T) {
	m := NewCancelManager()
	m.StopMonitor()
	assert.False(t, m.Cancelled())
}
