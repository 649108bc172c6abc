package helpers

import (
	"sync"
	"time"
)

// Watchdog is rearmable one-shot timer.
// Each Reset starts new generation, fire callback receives generation
// it was armed with. Callback may run after Reset or Stop (timer race),
// so receiver must check Current(gen) under its own lock.
type Watchdog struct {
	mu    sync.Mutex
	d     time.Duration
	fire  func(gen uint64)
	timer *time.Timer
	gen   uint64
}

func NewWatchdog(d time.Duration, fire func(gen uint64)) *Watchdog {
	return &Watchdog{d: d, fire: fire}
}

func (w *Watchdog) Reset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.d, func() { w.fire(gen) })
	return gen
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Current reports whether gen is the latest armed generation.
func (w *Watchdog) Current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil && w.gen == gen
}

func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *Watchdog) Timeout() time.Duration { return w.d }
