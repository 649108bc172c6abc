// Package link implements packet transport over one MAVLink channel:
// connection state machine, read and send tasks, listener fan-out.
package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
)

var ErrNotConnected = errors.New("link not connected")

type Stat struct {
	Received   uint32
	Sent       uint32
	BytesIn    uint32
	BytesOut   uint32
	CommErrors uint32
	Dropped    uint32
	Parser     mavlink.ParserStat
}

type Conn struct { //nolint:maligned
	connectedAt int64 // atomic unix nanoseconds, 0 unless connected
	state       int32 // atomic State
	seq         uint32
	lastVersion uint32 // atomic mavlink.Version of last received frame

	cfg     Config
	log     *log2.Log
	factory ChannelFactory

	mu     sync.Mutex // protects state transitions and fields below
	alive  *alive.Alive
	cancel context.CancelFunc
	ch     Channel
	parser *mavlink.Parser
	// connection whose OnConnect fan-out is running, its disconnect is delivered after
	announcing *alive.Alive
	deferred   *alive.Alive

	listeners registry
	queue     *queue
	stat      Stat
}

// NewConn validates config. Nil factory selects channel by config kind.
func NewConn(cfg Config, log *log2.Log, factory ChannelFactory) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "link config")
	}
	if factory == nil {
		if cfg.Kind == KindMock {
			return nil, errors.NotValidf("link kind=mock requires factory")
		}
		factory = NewChannel
	}
	c := &Conn{
		cfg:     cfg.withDefaults(),
		log:     log,
		factory: factory,
		queue:   newQueue(),
	}
	return c, nil
}

func (c *Conn) Config() Config { return c.cfg }

func (c *Conn) State() State { return State(atomic.LoadInt32(&c.state)) }

// ConnectedAt returns zero time unless connected.
func (c *Conn) ConnectedAt() time.Time {
	n := atomic.LoadInt64(&c.connectedAt)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Connect is no-op unless disconnected. Result is reported to listeners.
func (c *Conn) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&c.state, int32(StateDisconnected), int32(StateConnecting)) {
		return
	}
	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(context.Background())
	c.alive = a
	c.cancel = cancel
	c.queue.Reset()
	c.log.Debugf("link %s connecting", c.cfg)
	go c.connectTask(ctx, a)
}

// Disconnect is idempotent and safe to call from listener callbacks.
func (c *Conn) Disconnect() { c.disconnect(nil) }

// Close disconnects and waits for read and send tasks to finish.
// Must not be called from listener callbacks.
func (c *Conn) Close() error {
	c.mu.Lock()
	a := c.alive
	c.mu.Unlock()
	c.disconnect(nil)
	if a != nil {
		a.Wait()
	}
	return nil
}

// Send enqueues packet copy. Sequence, system and component ids are stamped by send task.
func (c *Conn) Send(p *mavlink.Packet) error {
	if c.State() == StateDisconnected {
		atomic.AddUint32(&c.stat.Dropped, 1)
		return ErrNotConnected
	}
	c.queue.Push(p.Copy())
	return nil
}

func (c *Conn) QueueLen() int { return c.queue.Len() }

// AddListener replaces registration under tag.
// New listener receives OnConnect immediately if link is already connected.
func (c *Conn) AddListener(tag string, l Listener) {
	c.listeners.mu.Lock()
	c.listeners.put(tag, l)
	connected := c.State() == StateConnected
	t := c.ConnectedAt()
	c.listeners.mu.Unlock()
	if connected {
		l.OnConnect(t)
	}
}

func (c *Conn) RemoveListener(tag string) bool { return c.listeners.remove(tag) }
func (c *Conn) ClearListeners()                { c.listeners.clear() }
func (c *Conn) HasListener(tag string) bool    { return c.listeners.has(tag) }
func (c *Conn) ListenerCount() int             { return c.listeners.len() }

func (c *Conn) Stat() Stat {
	s := Stat{
		Received:   atomic.LoadUint32(&c.stat.Received),
		Sent:       atomic.LoadUint32(&c.stat.Sent),
		BytesIn:    atomic.LoadUint32(&c.stat.BytesIn),
		BytesOut:   atomic.LoadUint32(&c.stat.BytesOut),
		CommErrors: atomic.LoadUint32(&c.stat.CommErrors),
		Dropped:    atomic.LoadUint32(&c.stat.Dropped),
	}
	c.mu.Lock()
	if c.parser != nil {
		s.Parser = c.parser.Stat()
	}
	c.mu.Unlock()
	return s
}

func (c *Conn) connectTask(ctx context.Context, a *alive.Alive) {
	ch, err := c.factory(c.cfg)
	if err == nil {
		err = ch.Open(ctx)
	}
	if err != nil {
		c.mu.Lock()
		current := c.alive == a
		if current {
			c.locked_reset()
		}
		c.mu.Unlock()
		a.Stop()
		if current {
			err = errors.Annotatef(err, "link %s open", c.cfg)
			c.log.Error(err)
			c.commError(err.Error())
		}
		return
	}

	c.mu.Lock()
	if c.alive != a {
		// disconnect during open
		c.mu.Unlock()
		_ = ch.Close()
		return
	}
	parser := mavlink.NewParser()
	c.ch = ch
	c.parser = parser
	t := time.Now().Round(0)
	atomic.StoreInt64(&c.connectedAt, t.UnixNano())
	// listener registry lock orders connected transition against AddListener replay
	c.listeners.mu.Lock()
	atomic.StoreInt32(&c.state, int32(StateConnected))
	ls := c.listeners.locked_snapshot()
	c.listeners.mu.Unlock()
	c.announcing = a
	c.mu.Unlock()

	c.log.Infof("link %s connected", c.cfg)
	for _, l := range ls {
		l.OnConnect(t)
	}

	c.mu.Lock()
	late := c.deferred == a
	if late {
		c.deferred = nil
	}
	if c.announcing == a {
		c.announcing = nil
	}
	c.mu.Unlock()
	if late {
		c.notifyDisconnect()
		return
	}

	if a.Add(2) {
		go c.sendLoop(a, ch)
		c.readLoop(a, ch, parser)
	}
}

func (c *Conn) readLoop(a *alive.Alive, ch Channel, parser *mavlink.Parser) {
	defer a.Done()
	buf := make([]byte, c.cfg.ReadBuffer)
	for a.IsRunning() {
		n, err := ch.Read(buf)
		if n > 0 {
			atomic.AddUint32(&c.stat.BytesIn, uint32(n))
			for _, p := range parser.Feed(buf[:n]) {
				atomic.AddUint32(&c.stat.Received, 1)
				atomic.StoreUint32(&c.lastVersion, uint32(p.Version))
				for _, l := range c.listeners.snapshot() {
					l.OnPacket(p)
				}
			}
		}
		if err != nil {
			if !a.IsRunning() {
				return // intentional disconnect
			}
			err = errors.Annotatef(err, "link %s read", c.cfg)
			c.log.Error(err)
			c.commError(err.Error())
			c.disconnect(a)
			return
		}
	}
}

func (c *Conn) sendLoop(a *alive.Alive, ch Channel) {
	defer a.Done()
	for {
		p, ok := c.queue.Pop(a.StopChan())
		if !ok || !a.IsRunning() {
			return
		}
		c.stamp(p)
		b, err := p.Bytes()
		if err != nil {
			atomic.AddUint32(&c.stat.Dropped, 1)
			c.log.Errorf("link encode p=%s err=%v", p, err)
			continue
		}
		if err = helpers.WriteAll(ch, b); err != nil {
			if !a.IsRunning() {
				return
			}
			err = errors.Annotatef(err, "link %s write", c.cfg)
			c.log.Error(err)
			c.commError(err.Error())
			continue
		}
		atomic.AddUint32(&c.stat.Sent, 1)
		atomic.AddUint32(&c.stat.BytesOut, uint32(len(b)))
	}
}

func (c *Conn) stamp(p *mavlink.Packet) {
	p.Seq = uint8(atomic.AddUint32(&c.seq, 1) - 1)
	if p.SysID == 0 {
		p.SysID = c.cfg.SysID
	}
	if p.CompID == 0 {
		p.CompID = c.cfg.CompID
	}
	if p.Version == mavlink.VersionAuto {
		p.Version = c.cfg.Protocol
		if p.Version == mavlink.VersionAuto {
			p.Version = mavlink.Version(atomic.LoadUint32(&c.lastVersion))
		}
	}
}

// disconnect only if a is current connection, nil means any.
func (c *Conn) disconnect(a *alive.Alive) {
	c.mu.Lock()
	prev := c.State()
	if prev == StateDisconnected || (a != nil && c.alive != a) {
		c.mu.Unlock()
		return
	}
	cur, cancel, ch := c.alive, c.cancel, c.ch
	c.locked_reset()
	c.mu.Unlock()

	cur.Stop()
	cancel()
	if ch != nil {
		if err := ch.Close(); err != nil {
			err = errors.Annotatef(err, "link %s close", c.cfg)
			c.log.Error(err)
			c.commError(err.Error())
		}
	}
	c.log.Infof("link %s disconnected", c.cfg)
	c.mu.Lock()
	if cur != nil && c.announcing == cur {
		c.deferred = cur
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.notifyDisconnect()
}

func (c *Conn) notifyDisconnect() {
	t := time.Now()
	for _, l := range c.listeners.snapshot() {
		l.OnDisconnect(t)
	}
}

func (c *Conn) locked_reset() {
	atomic.StoreInt32(&c.state, int32(StateDisconnected))
	atomic.StoreInt64(&c.connectedAt, 0)
	atomic.StoreUint32(&c.lastVersion, uint32(mavlink.VersionAuto))
	c.alive = nil
	c.cancel = nil
	c.ch = nil
}

func (c *Conn) commError(msg string) {
	atomic.AddUint32(&c.stat.CommErrors, 1)
	for _, l := range c.listeners.snapshot() {
		l.OnCommError(msg)
	}
}
