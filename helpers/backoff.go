package helpers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Backoff is bounded exponential retry delay, safe for concurrent use.
// Zero state has no delay, each Failure multiplies delay by K within [Min, Max].
// Max=0 means unbounded.
//
//	for b.Wait(ctx, stopch) {
//		if err := dial(); err != nil {
//			b.Failure()
//			continue
//		}
//		b.Reset()
//	}
type Backoff struct {
	next     int64 // atomic time.Duration
	attempts uint32
	last     atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
}

// DelayBefore returns remaining part of current delay since last Failure or Reset.
func (b *Backoff) DelayBefore() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		return 0
	}
	remain := b.clamp(next) - atomic_clock.Since(&b.last)
	if remain <= 0 {
		return 0
	}
	return remain.Truncate(time.Millisecond)
}

// Attempts counts failures since last Reset.
func (b *Backoff) Attempts() int { return int(atomic.LoadUint32(&b.attempts)) }

func (b *Backoff) Failure() {
	next := time.Duration(float32(atomic.LoadInt64(&b.next)) * b.K)
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(b.clamp(next)))
	atomic.AddUint32(&b.attempts, 1)
}

// Reset makes next delay Min.
func (b *Backoff) Reset() {
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(b.Min))
	atomic.StoreUint32(&b.attempts, 0)
}

// Wait sleeps DelayBefore() unless ctx is done or stopch closed first.
func (b *Backoff) Wait(ctx context.Context, stopch <-chan struct{}) bool {
	d := b.DelayBefore()
	if d <= 0 {
		return true
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return true
	case <-ctx.Done():
		return false
	case <-stopch:
		return false
	}
}

func (b *Backoff) clamp(d time.Duration) time.Duration {
	if d < b.Min {
		return b.Min
	}
	if b.Max != 0 && d > b.Max {
		return b.Max
	}
	return d
}
