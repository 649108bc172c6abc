package link

// Public API to easy create link stubs to test your code.
import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gclink/mavlink"
)

// MockChannel is in-memory Channel.
// Inject() feeds bytes to reader side, Written() yields every Write.
type MockChannel struct {
	mu       sync.Mutex
	openErr  error
	writeErr error
	closeErr error

	in        chan []byte
	readErr   chan error
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	pending   []byte
	opened    int32
	timeout   time.Duration
}

func NewMockChannel() *MockChannel {
	return &MockChannel{
		in:      make(chan []byte, 256),
		readErr: make(chan error, 1),
		out:     make(chan []byte, 1024),
		closed:  make(chan struct{}),
		timeout: 5 * time.Second,
	}
}

// Factory returns ChannelFactory yielding this instance.
func (self *MockChannel) Factory() ChannelFactory {
	return func(Config) (Channel, error) { return self, nil }
}

func (self *MockChannel) SetOpenError(e error)  { self.mu.Lock(); self.openErr = e; self.mu.Unlock() }
func (self *MockChannel) SetWriteError(e error) { self.mu.Lock(); self.writeErr = e; self.mu.Unlock() }
func (self *MockChannel) SetCloseError(e error) { self.mu.Lock(); self.closeErr = e; self.mu.Unlock() }

func (self *MockChannel) String() string { return "mock" }

func (self *MockChannel) Open(ctx context.Context) error {
	self.mu.Lock()
	err := self.openErr
	self.mu.Unlock()
	if err != nil {
		return err
	}
	atomic.AddInt32(&self.opened, 1)
	return ctx.Err()
}

func (self *MockChannel) Opened() int { return int(atomic.LoadInt32(&self.opened)) }

func (self *MockChannel) Read(p []byte) (int, error) {
	if len(self.pending) == 0 {
		select {
		case b := <-self.in:
			self.pending = b
		case err := <-self.readErr:
			return 0, err
		case <-self.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, self.pending)
	self.pending = self.pending[n:]
	return n, nil
}

func (self *MockChannel) Write(p []byte) (int, error) {
	self.mu.Lock()
	err := self.writeErr
	self.mu.Unlock()
	if err != nil {
		return 0, err
	}
	select {
	case <-self.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	b := append([]byte(nil), p...)
	select {
	case self.out <- b:
		return len(p), nil
	case <-time.After(self.timeout):
		panic("link mock Write timeout guard, nobody reads Written()")
	}
}

func (self *MockChannel) Close() error {
	self.closeOnce.Do(func() { close(self.closed) })
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closeErr
}

func (self *MockChannel) IsClosed() bool {
	select {
	case <-self.closed:
		return true
	default:
		return false
	}
}

// Inject makes bytes available to reader.
func (self *MockChannel) Inject(b []byte) {
	self.in <- append([]byte(nil), b...)
}

// InjectPacket encodes and injects packet, panics on encode error.
func (self *MockChannel) InjectPacket(p *mavlink.Packet) {
	b, err := p.Bytes()
	if err != nil {
		panic(errors.ErrorStack(err))
	}
	self.Inject(b)
}

// Fail makes pending or next Read return err.
func (self *MockChannel) Fail(err error) {
	self.readErr <- err
}

func (self *MockChannel) Written() <-chan []byte { return self.out }

// ExpectPacket decodes next written frame within timeout.
func (self *MockChannel) ExpectPacket(t testing.TB, timeout time.Duration) *mavlink.Packet {
	t.Helper()
	select {
	case b := <-self.out:
		ps := mavlink.NewParser().Feed(b)
		if len(ps) != 1 {
			t.Fatalf("link mock expected single frame written=%x", b)
			return nil
		}
		return ps[0]
	case <-time.After(timeout):
		t.Fatalf("link mock no packet written within %s", timeout)
		return nil
	}
}

// ExpectSilence fails if anything is written within d.
func (self *MockChannel) ExpectSilence(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case b := <-self.out:
		t.Errorf("link mock unexpected write=%x", b)
	case <-time.After(d):
	}
}
