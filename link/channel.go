package link

import (
	"context"
	"io"
	"net"
	"sync/atomic"

	"github.com/juju/errors"
)

// Channel is one physical or logical byte stream.
// Close must unblock concurrent Read.
type Channel interface {
	Open(ctx context.Context) error
	io.ReadWriteCloser
	String() string
}

type ChannelFactory func(Config) (Channel, error)

func NewChannel(c Config) (Channel, error) {
	switch c.Kind {
	case KindUDP:
		return &udpChannel{c: c}, nil
	case KindTCP:
		return &tcpChannel{c: c}, nil
	case KindSerial:
		return newSerialChannel(c), nil
	case KindMock:
		return nil, errors.NotSupportedf("link kind=mock without factory")
	}
	return nil, errors.NotValidf("link kind=%s", c.Kind)
}

type tcpChannel struct {
	c    Config
	conn net.Conn
}

func (self *tcpChannel) String() string { return self.c.String() }

func (self *tcpChannel) Open(ctx context.Context) error {
	d := net.Dialer{Timeout: self.c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", self.c.Endpoint)
	if err != nil {
		return errors.Annotatef(err, "tcp dial %s", self.c.Endpoint)
	}
	self.conn = conn
	return nil
}

func (self *tcpChannel) Read(p []byte) (int, error)  { return self.conn.Read(p) }
func (self *tcpChannel) Write(p []byte) (int, error) { return self.conn.Write(p) }
func (self *tcpChannel) Close() error {
	if self.conn == nil {
		return nil
	}
	return self.conn.Close()
}

// udpChannel replies to last datagram source.
// Writes are silently dropped until peer is known.
type udpChannel struct {
	c    Config
	conn net.PacketConn
	peer atomic.Value // net.Addr
}

func (self *udpChannel) String() string { return self.c.String() }

func (self *udpChannel) Open(ctx context.Context) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", self.c.Endpoint)
	if err != nil {
		return errors.Annotatef(err, "udp listen %s", self.c.Endpoint)
	}
	if self.c.Remote != "" {
		addr, err := net.ResolveUDPAddr("udp", self.c.Remote)
		if err != nil {
			conn.Close()
			return errors.Annotatef(err, "udp remote %s", self.c.Remote)
		}
		self.peer.Store(net.Addr(addr))
	}
	self.conn = conn
	return nil
}

func (self *udpChannel) Read(p []byte) (int, error) {
	n, addr, err := self.conn.ReadFrom(p)
	if addr != nil {
		self.peer.Store(addr)
	}
	return n, err
}

func (self *udpChannel) Write(p []byte) (int, error) {
	addr, _ := self.peer.Load().(net.Addr)
	if addr == nil {
		return len(p), nil
	}
	return self.conn.WriteTo(p, addr)
}

func (self *udpChannel) Close() error {
	if self.conn == nil {
		return nil
	}
	return self.conn.Close()
}

func (self *udpChannel) LocalAddr() net.Addr {
	if self.conn == nil {
		return nil
	}
	return self.conn.LocalAddr()
}
