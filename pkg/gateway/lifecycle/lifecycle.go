// Package lifecycle holds the process lifecycle state shared across
// handlers: a draining flag for graceful shutdown and a count of live calls
// so shutdown can wait for them to finish.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
)

type Lifecycle struct {
	draining atomic.Bool

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// SessionStarted registers one live call and returns the matching release
// func. Release is safe to call exactly once.
func (l *Lifecycle) SessionStarted() func() {
	if l == nil {
		return func() {}
	}
	l.mu.Lock()
	l.active++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			if l.active == 0 && l.idle != nil {
				close(l.idle)
				l.idle = nil
			}
			l.mu.Unlock()
		})
	}
}

func (l *Lifecycle) ActiveSessions() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitIdle blocks until every registered call has released or ctx expires.
// It reports whether the count reached zero.
func (l *Lifecycle) WaitIdle(ctx context.Context) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	if l.active == 0 {
		l.mu.Unlock()
		return true
	}
	if l.idle == nil {
		l.idle = make(chan struct{})
	}
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}
