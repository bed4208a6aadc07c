package workerpool_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kshitiz1403/dicom-transfer/internal/workerpool"
)

const waitTimeout = 2 * time.Second

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		opts    []workerpool.Option
		wantErr string
	}{
		{
			name:    "zero workers",
			workers: 0,
			wantErr: "workers must be >= 1",
		},
		{
			name:    "negative workers",
			workers: -3,
			wantErr: "workers must be >= 1",
		},
		{
			name:    "zero queue limit",
			workers: 1,
			opts:    []workerpool.Option{workerpool.WithQueueLimit(0)},
			wantErr: "queue limit must be >= 1",
		},
		{
			name:    "valid",
			workers: 2,
			opts:    []workerpool.Option{workerpool.WithQueueLimit(8)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := workerpool.New(tt.workers, tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.workers, p.Workers())
			p.Shutdown()
		})
	}
}

func TestPool_ExecutesSubmittedTasks(t *testing.T) {
	p, err := workerpool.New(4)
	require.NoError(t, err)
	defer p.Shutdown()

	var ran atomic.Int64
	handles := make([]*workerpool.Handle, 0, 20)
	for i := 0; i < 20; i++ {
		h, err := p.Submit(func() error {
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		assert.NoError(t, h.Wait())
	}
	assert.Equal(t, int64(20), ran.Load())
}

func TestPool_TaskFailureResolvesHandleAndPoolSurvives(t *testing.T) {
	p, err := workerpool.New(1)
	require.NoError(t, err)
	defer p.Shutdown()

	errBoom := errors.New("boom")
	failing, err := p.Submit(func() error { return errBoom })
	require.NoError(t, err)
	succeeding, err := p.Submit(func() error { return nil })
	require.NoError(t, err)

	assert.ErrorIs(t, failing.Wait(), errBoom)
	assert.NoError(t, succeeding.Wait())
}

func TestPool_TaskPanicDoesNotKillWorker(t *testing.T) {
	p, err := workerpool.New(1)
	require.NoError(t, err)
	defer p.Shutdown()

	panicking, err := p.Submit(func() error { panic("bad task") })
	require.NoError(t, err)
	after, err := p.Submit(func() error { return nil })
	require.NoError(t, err)

	werr := panicking.Wait()
	require.Error(t, werr)
	assert.Contains(t, werr.Error(), "task panic")
	assert.Contains(t, werr.Error(), "bad task")

	assert.NoError(t, after.Wait())
}

func TestPool_DequeuesFIFO(t *testing.T) {
	p, err := workerpool.New(1)
	require.NoError(t, err)
	defer p.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	gate, err := p.Submit(func() error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	var order []int
	handles := make([]*workerpool.Handle, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		h, err := p.Submit(func() error {
			order = append(order, i)
			return nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	close(release)
	require.NoError(t, gate.Wait())
	for _, h := range handles {
		require.NoError(t, h.Wait())
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_SubmitBlocksWhenQueueFull(t *testing.T) {
	p, err := workerpool.New(1, workerpool.WithQueueLimit(2))
	require.NoError(t, err)
	defer p.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	_, err = p.Submit(func() error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	// One task running, two queued: capacity+queueLimit in flight, none of
	// these submissions may block.
	for i := 0; i < 2; i++ {
		_, err := p.Submit(func() error { return nil })
		require.NoError(t, err)
	}

	submitted := make(chan error, 1)
	go func() {
		_, err := p.Submit(func() error { return nil })
		submitted <- err
	}()

	select {
	case <-submitted:
		t.Fatal("submit beyond capacity+queueLimit returned before space freed")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-submitted:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("blocked submit never unblocked after a task completed")
	}
}

func TestPool_ShutdownDrainsQueuedWork(t *testing.T) {
	p, err := workerpool.New(1, workerpool.WithQueueLimit(16))
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err = p.Submit(func() error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	const queued = 10
	var completed atomic.Int64
	handles := make([]*workerpool.Handle, 0, queued)
	for i := 0; i < queued; i++ {
		h, err := p.Submit(func() error {
			completed.Add(1)
			return nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	// Shutdown must not return while the queue still holds work.
	select {
	case <-done:
		t.Fatal("shutdown returned before queued tasks drained")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("shutdown never completed")
	}

	assert.Equal(t, int64(queued), completed.Load())
	for _, h := range handles {
		assert.NoError(t, h.Wait())
	}
}

func TestPool_SubmitAfterShutdownReturnsPoolClosed(t *testing.T) {
	p, err := workerpool.New(2)
	require.NoError(t, err)
	p.Shutdown()

	h, err := p.Submit(func() error { return nil })
	assert.Nil(t, h)
	assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
}

func TestPool_ShutdownWakesBlockedSubmitter(t *testing.T) {
	p, err := workerpool.New(1, workerpool.WithQueueLimit(1))
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err = p.Submit(func() error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	_, err = p.Submit(func() error { return nil })
	require.NoError(t, err)

	blocked := make(chan error, 1)
	go func() {
		_, err := p.Submit(func() error { return nil })
		blocked <- err
	}()

	// Let the submitter reach the full queue before shutting down.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
	case <-time.After(waitTimeout):
		t.Fatal("blocked submitter was not woken by shutdown")
	}

	close(release)
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("shutdown never completed")
	}
}

func TestPool_ShutdownIdempotent(t *testing.T) {
	p, err := workerpool.New(2)
	require.NoError(t, err)

	h, err := p.Submit(func() error { return nil })
	require.NoError(t, err)

	p.Shutdown()
	p.Shutdown()

	assert.NoError(t, h.Wait())
}

func TestPool_Stats(t *testing.T) {
	p, err := workerpool.New(2, workerpool.WithQueueLimit(4))
	require.NoError(t, err)
	defer p.Shutdown()

	assert.Equal(t, 2, p.Workers())
	assert.Equal(t, int64(0), p.Active())
	assert.Equal(t, 0, p.Queued())

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		_, err := p.Submit(func() error {
			started <- struct{}{}
			<-release
			return nil
		})
		require.NoError(t, err)
	}
	<-started
	<-started

	queuedHandle, err := p.Submit(func() error { return nil })
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, 1, stats.Queued)

	close(release)
	require.NoError(t, queuedHandle.Wait())
}

func TestHandle_WaitIsRepeatable(t *testing.T) {
	p, err := workerpool.New(1)
	require.NoError(t, err)
	defer p.Shutdown()

	errTask := errors.New("task error")
	h, err := p.Submit(func() error { return errTask })
	require.NoError(t, err)

	assert.ErrorIs(t, h.Wait(), errTask)

	// A resolved handle answers immediately, as often as asked.
	doneBy := time.Now().Add(100 * time.Millisecond)
	assert.ErrorIs(t, h.Wait(), errTask)
	assert.True(t, time.Now().Before(doneBy), "second Wait should return immediately")

	select {
	case <-h.Done():
	default:
		t.Fatal("Done channel of a resolved handle should be closed")
	}
}
