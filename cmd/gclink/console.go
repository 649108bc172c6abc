package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/param"
	"github.com/temoto/gclink/vehicle"
)

const consoleSession = "console"

// console is broker session printing events, it also drives reconnect.
type console struct { //nolint:maligned
	manual  int32 // atomic bool, user disconnected
	verbose int32 // atomic bool, print every packet
	packets uint32

	log     *log2.Log
	backoff *helpers.Backoff
	kick    chan struct{}

	mu       sync.Mutex
	out      io.Writer
	good     func(a ...interface{}) string
	bad      func(a ...interface{}) string
	note     func(a ...interface{}) string
	received int
	count    int
}

func newConsole(out io.Writer, colored bool, log *log2.Log) *console {
	if !colored {
		color.NoColor = true
	}
	return &console{
		log:     log,
		out:     out,
		backoff: &helpers.Backoff{Min: time.Second, Max: 30 * time.Second, K: 2},
		kick:    make(chan struct{}, 1),
		good:    color.New(color.FgGreen).SprintFunc(),
		bad:     color.New(color.FgRed, color.Bold).SprintFunc(),
		note:    color.New(color.FgYellow).SprintFunc(),
	}
}

func (self *console) printf(paint func(a ...interface{}) string, format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	self.mu.Lock()
	defer self.mu.Unlock()
	if paint != nil {
		s = paint(s)
	}
	fmt.Fprintln(self.out, s)
}

func (self *console) setManual(b bool) {
	v := int32(0)
	if b {
		v = 1
	}
	atomic.StoreInt32(&self.manual, v)
}

func (self *console) reconnectWanted() bool { return atomic.LoadInt32(&self.manual) == 0 }

func (self *console) OnConnect(t time.Time) {
	self.backoff.Reset()
	self.printf(self.good, "link connected at %s", t.Format(time.RFC3339))
}

func (self *console) OnDisconnect(t time.Time) {
	self.printf(self.bad, "link disconnected at %s", t.Format(time.RFC3339))
	if self.reconnectWanted() {
		helpers.Notify(self.kick)
	}
}

func (self *console) OnCommError(msg string) {
	self.printf(self.bad, "link error: %s", msg)
	if self.reconnectWanted() {
		helpers.Notify(self.kick)
	}
}

func (self *console) OnPacketReceived(p *mavlink.Packet) {
	atomic.AddUint32(&self.packets, 1)
	if atomic.LoadInt32(&self.verbose) != 0 {
		self.printf(nil, "< %s", p)
	}
}

func (self *console) OnVehicleEvent(e vehicle.Event) {
	paint := self.note
	switch e {
	case vehicle.EventConnected, vehicle.EventHeartbeatRestored:
		paint = self.good
	case vehicle.EventDisconnected, vehicle.EventHeartbeatTimeout:
		paint = self.bad
	}
	self.printf(paint, "vehicle %s", e)
}

func (self *console) OnParametersBegin() {
	self.mu.Lock()
	self.received, self.count = 0, 0
	self.mu.Unlock()
	self.printf(self.note, "parameters refresh")
}

func (self *console) OnParameterReceived(p param.Parameter, index, count int) {
	self.mu.Lock()
	self.received++
	self.count = count
	self.mu.Unlock()
	self.log.Debugf("param %d/%d %s", index+1, count, p)
}

func (self *console) OnParametersEnd() {
	self.mu.Lock()
	n, count := self.received, self.count
	self.mu.Unlock()
	self.printf(self.good, "parameters received %d/%d", n, count)
}

func (self *console) Packets() uint32 { return atomic.LoadUint32(&self.packets) }
