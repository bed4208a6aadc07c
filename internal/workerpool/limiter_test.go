package workerpool_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kshitiz1403/dicom-transfer/internal/workerpool"
)

func TestLimiter_BoundsConcurrency(t *testing.T) {
	const width = 3
	l := workerpool.NewLimiter(width)

	var running, peak atomic.Int64
	var mu sync.Mutex

	for i := 0; i < 20; i++ {
		l.Go(func() {
			now := running.Add(1)
			mu.Lock()
			if now > peak.Load() {
				peak.Store(now)
			}
			mu.Unlock()
			running.Add(-1)
		})
	}
	l.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(width))
	assert.Equal(t, int64(0), running.Load())
}

func TestLimiter_WaitWaitsForAll(t *testing.T) {
	l := workerpool.NewLimiter(4)

	var done atomic.Int64
	const n = 32
	for i := 0; i < n; i++ {
		l.Go(func() { done.Add(1) })
	}
	l.Wait()

	require.Equal(t, int64(n), done.Load())
}

func TestLimiter_PanicDoesNotKillRun(t *testing.T) {
	l := workerpool.NewLimiter(1)

	var ran atomic.Int64
	l.Go(func() { panic("bad call") })
	l.Go(func() { ran.Add(1) })
	l.Wait()

	// The panicking call released its slot and later calls still ran.
	assert.Equal(t, int64(1), ran.Load())
	assert.Equal(t, 0, l.Stats().Running)
	assert.Equal(t, 1, l.Stats().Available)
}

func TestLimiter_WidthFloor(t *testing.T) {
	l := workerpool.NewLimiter(0)
	assert.Equal(t, 1, l.Stats().Width)

	var ran bool
	l.Go(func() { ran = true })
	l.Wait()
	assert.True(t, ran)
}

func TestLimiter_Stats(t *testing.T) {
	l := workerpool.NewLimiter(2)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		l.Go(func() {
			started <- struct{}{}
			<-release
		})
	}
	<-started
	<-started

	stats := l.Stats()
	assert.Equal(t, 2, stats.Width)
	assert.Equal(t, 2, stats.Running)
	assert.Equal(t, 0, stats.Available)

	close(release)
	l.Wait()

	stats = l.Stats()
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 2, stats.Available)
}
