// Package poller waits for tour target elements to appear.
//
// Tour steps often point at UI produced by asynchronous renders, so the
// elements a step references may not exist yet when the step mounts.
// [Await] re-checks the document on a fixed interval until every element is
// present, resolves exactly once, and then stops checking for good. It does
// not track later removal.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tourguide/internal/geometry"
)

// DefaultInterval is the re-check period between availability checks.
const DefaultInterval = 500 * time.Millisecond

// Availability is the handle returned by [Await].
//
// It starts in the "not yet available" state; [Availability.Available]
// turns true and [Availability.Ready] is closed once every element exists.
// Call [Availability.Stop] on teardown; it is safe to call more than once
// and after resolution.
type Availability struct {
	ready     chan struct{}
	done      chan struct{}
	available atomic.Bool
	checks    atomic.Int64

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Await starts watching ids in dom.
//
// The first check runs synchronously, so an already-satisfied id set
// resolves before Await returns and no timer is ever started. Otherwise a
// goroutine re-checks every interval until all elements are present, ctx is
// cancelled, or [Availability.Stop] is called.
//
// The goroutine calls dom concurrently with the caller, so dom must be safe
// for concurrent reads. A non-positive interval uses [DefaultInterval].
func Await(ctx context.Context, dom geometry.DOM, ids []string, interval time.Duration) *Availability {
	if interval <= 0 {
		interval = DefaultInterval
	}

	a := &Availability{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	if a.check(dom, ids) {
		a.cancel = func() {}
		close(a.done)
		return a
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.poll(ctx, dom, ids, interval)
	return a
}

func (a *Availability) poll(ctx context.Context, dom geometry.DOM, ids []string, interval time.Duration) {
	defer close(a.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may race with a tick that was already delivered.
			if ctx.Err() != nil {
				return
			}
			if a.check(dom, ids) {
				return
			}
		}
	}
}

func (a *Availability) check(dom geometry.DOM, ids []string) bool {
	a.checks.Add(1)
	if !geometry.Available(dom, ids) {
		return false
	}
	a.available.Store(true)
	close(a.ready)
	return true
}

// Ready returns a channel closed once all elements are present.
func (a *Availability) Ready() <-chan struct{} {
	return a.ready
}

// Available reports whether all elements were found.
func (a *Availability) Available() bool {
	return a.available.Load()
}

// checkCount returns how many availability checks have run.
func (a *Availability) checkCount() int {
	return int(a.checks.Load())
}

// Stop cancels polling and waits for the polling goroutine to exit. After
// Stop returns no further checks run.
func (a *Availability) Stop() {
	a.stopOnce.Do(a.cancel)
	<-a.done
}

// Done returns a channel closed when polling has ended, either through
// resolution or cancellation.
func (a *Availability) Done() <-chan struct{} {
	return a.done
}
