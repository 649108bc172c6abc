// Based on https://github.com/256dpi/gomqtt/blob/e7823dfd0958f968b8e69eb1bf235456316c54fb/client/future/future.go
// with completed/cancelled channels exported
// which allows to wait on result in custom select statement.

package helpers

import (
	"context"
	"sync"
)

type Future struct {
	result    interface{}
	completed chan struct{}
	cancelled chan struct{}
	done      bool
	mutex     sync.Mutex
}

func NewFuture() *Future {
	return &Future{
		completed: make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (f *Future) Cancelled() <-chan struct{} { return f.cancelled }
func (f *Future) Completed() <-chan struct{} { return f.completed }

func (f *Future) Complete(result interface{}) bool { return f.finish(result, f.completed) }
func (f *Future) Cancel(result interface{}) bool   { return f.finish(result, f.cancelled) }

func (f *Future) Result() interface{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.result
}

// Wait blocks until Complete, Cancel or ctx done.
// ok=true only for Complete.
func (f *Future) Wait(ctx context.Context) (result interface{}, ok bool, err error) {
	select {
	case <-f.completed:
		return f.Result(), true, nil
	case <-f.cancelled:
		return f.Result(), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (f *Future) finish(result interface{}, ch chan struct{}) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.done {
		return false
	}

	f.result = result
	close(ch)
	f.done = true
	return true
}
