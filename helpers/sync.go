package helpers

// Random synchronisation util stash

import (
	"sync"

	"github.com/temoto/alive/v2"
)

// AliveSub stops leaf when root stops. Blocks until either stops.
func AliveSub(root, leaf *alive.Alive) {
	select {
	case <-root.StopChan():
		leaf.Stop()
	case <-leaf.StopChan():
	}
}

func WithLock(l sync.Locker, f func()) {
	l.Lock()
	defer l.Unlock()
	f()
}

// Notify is non-blocking send to signal channel of capacity 1.
func Notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
