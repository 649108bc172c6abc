// Package sidecar maintains optional companion computer link
// with liveness independent from primary MAVLink channel.
package sidecar

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
)

const (
	DefaultAddr        = "10.1.1.10:5507"
	DefaultDialTimeout = 5 * time.Second
	DefaultRetryDelay  = 1 * time.Second
	DefaultReadLimit   = 64 << 10
)

var ErrNotConnected = errors.New("sidecar not connected")

// Listener callbacks run on client goroutine and must not call Stop.
type Listener interface {
	OnConnected()
	OnDisconnected()
	OnMessage(m Message)
}

type Config struct {
	Addr        string
	DialTimeout time.Duration
	RetryDelay  time.Duration
	ReadLimit   uint32
}

type Client struct { //nolint:maligned
	connected int32
	mu        sync.Mutex // protects alive, conn
	alive     *alive.Alive
	conn      net.Conn
	c         Config
	l         Listener
	log       *log2.Log
	backoff   *helpers.Backoff
}

func NewClient(c Config, l Listener, log *log2.Log) *Client {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	return &Client{c: c, l: l, log: log}
}

func (self *Client) Addr() string { return self.c.Addr }

// Start is no-op while running.
func (self *Client) Start() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.alive != nil && self.alive.IsRunning() {
		return
	}
	a := alive.NewAlive()
	a.Add(1)
	self.alive = a
	self.backoff = self.newBackoff()
	go self.run(a)
}

func (self *Client) Running() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.alive != nil && self.alive.IsRunning()
}

func (self *Client) Connected() bool { return atomic.LoadInt32(&self.connected) == 1 }

// Stop closes connection and waits for client goroutine.
// alive is stopped under mu, so serve either publishes conn before
// Stop reads it or sees stopped state and closes conn itself.
func (self *Client) Stop() {
	self.mu.Lock()
	a := self.alive
	if a != nil {
		a.Stop()
	}
	conn := self.conn
	self.mu.Unlock()
	if a == nil {
		return
	}
	if conn != nil {
		_ = conn.Close()
	}
	a.Wait()
}

func (self *Client) Send(m Message) error {
	self.mu.Lock()
	conn := self.conn
	self.mu.Unlock()
	if conn == nil || !self.Connected() {
		return ErrNotConnected
	}
	if err := conn.SetWriteDeadline(time.Now().Add(self.c.DialTimeout)); err != nil {
		return errors.Annotate(err, "sidecar SetWriteDeadline")
	}
	return errors.Annotate(helpers.WriteAll(conn, m.Marshal()), "sidecar send")
}

func (self *Client) newBackoff() *helpers.Backoff {
	return &helpers.Backoff{
		Min: self.c.RetryDelay,
		Max: 10 * self.c.RetryDelay,
		K:   2,
	}
}

func (self *Client) run(a *alive.Alive) {
	defer a.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-a.StopChan()
		cancel()
	}()

	for a.IsRunning() {
		if !self.backoff.Wait(ctx, a.StopChan()) {
			return
		}
		d := net.Dialer{Timeout: self.c.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", self.c.Addr)
		if err != nil {
			self.backoff.Failure()
			if a.IsRunning() {
				self.log.Debugf("sidecar connect addr=%s attempt=%d err=%v", self.c.Addr, self.backoff.Attempts(), err)
			}
			continue
		}
		self.backoff.Reset()
		self.serve(a, conn)
	}
}

func (self *Client) serve(a *alive.Alive, conn net.Conn) {
	self.mu.Lock()
	if !a.IsRunning() {
		self.mu.Unlock()
		_ = conn.Close()
		return
	}
	self.conn = conn
	self.mu.Unlock()
	atomic.StoreInt32(&self.connected, 1)
	self.log.Infof("sidecar connected addr=%s", self.c.Addr)
	self.l.OnConnected()

	dec := NewDecoder(conn, self.c.ReadLimit)
	for {
		m, err := dec.Read()
		if err != nil {
			if a.IsRunning() {
				self.log.Errorf("sidecar addr=%s read err=%v", self.c.Addr, err)
			}
			break
		}
		self.l.OnMessage(m)
	}

	self.mu.Lock()
	self.conn = nil
	self.mu.Unlock()
	_ = conn.Close()
	atomic.StoreInt32(&self.connected, 0)
	self.log.Infof("sidecar disconnected addr=%s", self.c.Addr)
	self.l.OnDisconnected()
}
