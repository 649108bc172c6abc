package link

import (
	"sync"

	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/mavlink"
)

// queue is unbounded FIFO, many producers, one consumer.
type queue struct {
	mu     sync.Mutex
	items  []*mavlink.Packet
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) Push(p *mavlink.Packet) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	helpers.Notify(q.signal)
}

// Pop blocks until item is available or stop is closed.
func (q *queue) Pop(stop <-chan struct{}) (*mavlink.Packet, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			p := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return p, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-stop:
			return nil, false
		}
	}
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) Reset() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
