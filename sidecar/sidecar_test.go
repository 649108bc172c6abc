package sidecar

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
)

const testTimeout = 3 * time.Second

type recorder struct {
	ch chan string
	ms chan Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16), ms: make(chan Message, 16)}
}
func (r *recorder) OnConnected()        { r.ch <- "connected" }
func (r *recorder) OnDisconnected()     { r.ch <- "disconnected" }
func (r *recorder) OnMessage(m Message) { r.ms <- m }

func (r *recorder) expect(t testing.TB, e string) {
	t.Helper()
	select {
	case got := <-r.ch:
		require.Equal(t, e, got)
	case <-time.After(testTimeout):
		t.Fatalf("event=%s timeout", e)
	}
}

func TestDecoder(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		input  string
		expect []Message
		err    error
	}
	cases := []Case{
		{"empty", "", nil, io.EOF},
		{"one", "01 00 00 00 02 00 00 00 aa bb", []Message{{1, []byte{0xaa, 0xbb}}}, io.EOF},
		{"two", "01 00 00 00 00 00 00 00 07 00 00 00 01 00 00 00 ff",
			[]Message{{1, []byte{}}, {7, []byte{0xff}}}, io.EOF},
		{"short-header", "01 00 00", nil, io.ErrUnexpectedEOF},
		{"short-value", "01 00 00 00 05 00 00 00 aa", nil, io.ErrUnexpectedEOF},
		{"too-large", "01 00 00 00 00 10 00 00", nil, ErrTooLarge},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			d := NewDecoder(bytes.NewReader(helpers.MustHex(c.input)), 1024)
			var got []Message
			for {
				m, err := d.Read()
				if err != nil {
					assert.Equal(t, c.err, errors.Cause(err), errors.ErrorStack(err))
					break
				}
				got = append(got, m)
			}
			assert.Equal(t, c.expect, got)
		})
	}

	m := Message{Type: 0x10, Value: []byte("hi")}
	assert.Equal(t, helpers.MustHex("10 00 00 00 02 00 00 00 68 69"), m.Marshal())
}

func TestClient(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	r := newRecorder()
	c := NewClient(Config{Addr: ln.Addr().String(), RetryDelay: 10 * time.Millisecond}, r, log2.NewTest(t, log2.LDebug))
	assert.False(t, c.Running())
	assert.Equal(t, ErrNotConnected, c.Send(Message{}))
	c.Start()
	c.Start()
	defer c.Stop()

	server, err := ln.Accept()
	require.NoError(t, err)
	r.expect(t, "connected")
	assert.True(t, c.Connected())
	assert.True(t, c.Running())

	_, err = server.Write(Message{Type: 5, Value: []byte("status")}.Marshal())
	require.NoError(t, err)
	select {
	case m := <-r.ms:
		assert.Equal(t, uint32(5), m.Type)
		assert.Equal(t, "status", string(m.Value))
	case <-time.After(testTimeout):
		t.Fatal("message timeout")
	}

	require.NoError(t, c.Send(Message{Type: 9, Value: []byte{1, 2}}))
	require.NoError(t, server.SetReadDeadline(time.Now().Add(testTimeout)))
	m, err := NewDecoder(server, 0).Read()
	require.NoError(t, err)
	assert.Equal(t, Message{Type: 9, Value: []byte{1, 2}}, m)

	// remote close, client reconnects
	server.Close()
	r.expect(t, "disconnected")
	server, err = ln.Accept()
	require.NoError(t, err)
	defer server.Close()
	r.expect(t, "connected")

	c.Stop()
	r.expect(t, "disconnected")
	assert.False(t, c.Running())
	assert.False(t, c.Connected())
}

func TestClientStopWhileDialing(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	r := newRecorder()
	c := NewClient(Config{Addr: addr, RetryDelay: 5 * time.Millisecond}, r, log2.NewTest(t, log2.LDebug))
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	assert.False(t, c.Running())
	select {
	case e := <-r.ch:
		t.Errorf("unexpected event=%s", e)
	default:
	}
}

type nopListener struct{}

func (nopListener) OnConnected()      {}
func (nopListener) OnDisconnected()   {}
func (nopListener) OnMessage(Message) {}

func TestClientStopDuringConnect(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	held := make(chan net.Conn, 1024)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held <- conn // peer never closes, only client side Close unblocks read
		}
	}()
	defer func() {
		ln.Close()
		for {
			select {
			case conn := <-held:
				conn.Close()
			default:
				return
			}
		}
	}()

	c := NewClient(Config{Addr: ln.Addr().String(), RetryDelay: time.Millisecond}, nopListener{}, log2.NewTest(t, log2.LError))
	rnd := helpers.RandUnix()
	for i := 0; i < 300; i++ {
		c.Start()
		time.Sleep(time.Duration(rnd.Intn(300)) * time.Microsecond)
		done := make(chan struct{})
		go func() {
			c.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(testTimeout):
			t.Fatalf("Stop blocked iteration=%d", i)
		}
		require.False(t, c.Running())
		require.False(t, c.Connected())
	}
}
