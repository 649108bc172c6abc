// Package command correlates COMMAND_LONG with COMMAND_ACK.
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
)

const (
	DefaultTimeout = 1500 * time.Millisecond
	DefaultRetries = 2
)

var ErrCancelled = errors.New("command cancelled")

type Sender interface {
	Send(p *mavlink.Packet) error
}

type Ack struct {
	Command uint16
	Result  mavlink.MavResult
	SysID   uint8
	CompID  uint8
}

func (a Ack) String() string {
	return fmt.Sprintf("ack(cmd=%d result=%s)", a.Command, a.Result)
}

// Err is nil only for accepted result.
func (a Ack) Err() error {
	if a.Result == mavlink.MAV_RESULT_ACCEPTED {
		return nil
	}
	return errors.Errorf("command=%d result=%s", a.Command, a.Result)
}

type Config struct {
	Timeout time.Duration // per attempt
	Retries int
}

// Tracker allows one outstanding command per command id.
type Tracker struct {
	mu      sync.Mutex
	log     *log2.Log
	sender  Sender
	c       Config
	pending map[uint16]*helpers.Future
}

func NewTracker(c Config, sender Sender, log *log2.Log) *Tracker {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	return &Tracker{
		log:     log,
		sender:  sender,
		c:       c,
		pending: make(map[uint16]*helpers.Future),
	}
}

// Send transmits command and waits for matching ack.
// Unanswered command is retransmitted with incremented confirmation.
func (self *Tracker) Send(ctx context.Context, cmd mavlink.CommandLong) (Ack, error) {
	f := helpers.NewFuture()
	self.mu.Lock()
	if _, ok := self.pending[cmd.Command]; ok {
		self.mu.Unlock()
		return Ack{}, errors.AlreadyExistsf("command=%d in flight", cmd.Command)
	}
	self.pending[cmd.Command] = f
	self.mu.Unlock()
	defer func() {
		self.mu.Lock()
		if self.pending[cmd.Command] == f {
			delete(self.pending, cmd.Command)
		}
		self.mu.Unlock()
	}()

	tmr := time.NewTimer(self.c.Timeout)
	defer tmr.Stop()
	for attempt := 0; attempt <= self.c.Retries; attempt++ {
		c := cmd
		c.Confirmation = cmd.Confirmation + uint8(attempt)
		if err := self.sender.Send(mavlink.NewPacket(&c)); err != nil {
			return Ack{}, errors.Annotatef(err, "command=%d send", cmd.Command)
		}
		if attempt > 0 {
			tmr.Reset(self.c.Timeout)
		}
		select {
		case <-f.Completed():
			return f.Result().(Ack), nil
		case <-f.Cancelled():
			return Ack{}, errors.Annotatef(ErrCancelled, "command=%d", cmd.Command)
		case <-ctx.Done():
			return Ack{}, errors.Annotatef(ctx.Err(), "command=%d", cmd.Command)
		case <-tmr.C:
			self.log.Debugf("command=%d attempt=%d no ack", cmd.Command, attempt+1)
		}
	}
	return Ack{}, errors.Timeoutf("command=%d ack after %d attempts", cmd.Command, self.c.Retries+1)
}

// HandlePacket consumes COMMAND_ACK, returns false for other packets.
func (self *Tracker) HandlePacket(p *mavlink.Packet) bool {
	if p.MsgID != mavlink.MSG_ID_COMMAND_ACK {
		return false
	}
	msg, err := mavlink.Decode(p)
	if err != nil {
		self.log.Errorf("command ack decode err=%v", err)
		return true
	}
	m := msg.(*mavlink.CommandAck)
	if m.Result == mavlink.MAV_RESULT_IN_PROGRESS {
		self.log.Debugf("command=%d in progress", m.Command)
		return true
	}
	self.mu.Lock()
	f := self.pending[m.Command]
	self.mu.Unlock()
	if f == nil {
		self.log.Debugf("command ack unexpected cmd=%d result=%s", m.Command, m.Result)
		return true
	}
	f.Complete(Ack{Command: m.Command, Result: m.Result, SysID: p.SysID, CompID: p.CompID})
	return true
}

// CancelAll fails every waiting Send, used on disconnect.
func (self *Tracker) CancelAll() {
	self.mu.Lock()
	fs := make([]*helpers.Future, 0, len(self.pending))
	for _, f := range self.pending {
		fs = append(fs, f)
	}
	self.mu.Unlock()
	for _, f := range fs {
		f.Cancel(nil)
	}
}

func (self *Tracker) Pending() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.pending)
}
