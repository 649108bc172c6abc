package link

import (
	"sync"
	"time"

	"github.com/temoto/gclink/mavlink"
)

// Listener callbacks are invoked synchronously, packets in arrival order on read goroutine.
// Implementations must not block for long and must not call Conn.Close.
type Listener interface {
	OnConnect(t time.Time)
	OnDisconnect(t time.Time)
	OnCommError(msg string)
	OnPacket(p *mavlink.Packet)
}

// ListenerFuncs adapts optional funcs to Listener.
type ListenerFuncs struct {
	Connect    func(time.Time)
	Disconnect func(time.Time)
	CommError  func(string)
	Packet     func(*mavlink.Packet)
}

func (f ListenerFuncs) OnConnect(t time.Time) {
	if f.Connect != nil {
		f.Connect(t)
	}
}
func (f ListenerFuncs) OnDisconnect(t time.Time) {
	if f.Disconnect != nil {
		f.Disconnect(t)
	}
}
func (f ListenerFuncs) OnCommError(msg string) {
	if f.CommError != nil {
		f.CommError(msg)
	}
}
func (f ListenerFuncs) OnPacket(p *mavlink.Packet) {
	if f.Packet != nil {
		f.Packet(p)
	}
}

type registry struct {
	mu sync.RWMutex
	m  map[string]Listener
}

func (r *registry) put(tag string, l Listener) {
	if r.m == nil {
		r.m = make(map[string]Listener)
	}
	r.m[tag] = l
}

func (r *registry) remove(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[tag]
	delete(r.m, tag)
	return ok
}

func (r *registry) clear() {
	r.mu.Lock()
	r.m = nil
	r.mu.Unlock()
}

func (r *registry) has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[tag]
	return ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *registry) snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked_snapshot()
}

func (r *registry) locked_snapshot() []Listener {
	ls := make([]Listener, 0, len(r.m))
	for _, l := range r.m {
		ls = append(ls, l)
	}
	return ls
}
