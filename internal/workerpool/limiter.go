package workerpool

import "sync"

// Limiter bounds how many functions run at once without dedicating a worker
// set to them. It serves flat fan-out inside an already-pooled task, where a
// second pool per task would multiply idle workers.
type Limiter struct {
	width     int
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewLimiter creates a limiter allowing up to width concurrent calls.
// A width below one is raised to one.
func NewLimiter(width int) *Limiter {
	if width < 1 {
		width = 1
	}
	return &Limiter{
		width:     width,
		semaphore: make(chan struct{}, width),
	}
}

// Go runs fn on its own goroutine. It blocks until a slot is free, so at most
// width functions run concurrently and goroutine creation is bounded too.
// A panic in fn is captured, like a pool task's: one bad call releases its
// slot and cannot take the process down.
func (l *Limiter) Go(fn func()) {
	l.semaphore <- struct{}{}
	l.wg.Add(1)
	go func() {
		defer func() {
			<-l.semaphore
			l.wg.Done()
		}()
		defer func() {
			_ = recover()
		}()
		fn()
	}()
}

// Wait blocks until every function started with Go has returned.
func (l *Limiter) Wait() {
	l.wg.Wait()
}

// LimiterStats is a point-in-time snapshot of limiter occupancy.
type LimiterStats struct {
	Width     int
	Running   int
	Available int
}

// Stats returns the limiter's occupancy at this instant.
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		Width:     l.width,
		Running:   len(l.semaphore),
		Available: cap(l.semaphore) - len(l.semaphore),
	}
}
