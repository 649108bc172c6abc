package link

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
)

func TestNewChannelKinds(t *testing.T) {
	t.Parallel()
	_, err := NewChannel(Config{Kind: KindMock})
	assert.True(t, errors.IsNotSupported(err))
	_, err = NewChannel(Config{Kind: "x"})
	assert.True(t, errors.IsNotValid(err))
	ch, err := NewChannel(Config{Kind: KindTCP, Endpoint: "127.0.0.1:1"})
	require.NoError(t, err)
	assert.NoError(t, ch.Close(), "close before open")
}

func TestUDPChannel(t *testing.T) {
	t.Parallel()
	ch := &udpChannel{c: Config{Kind: KindUDP, Endpoint: "127.0.0.1:0"}}
	require.NoError(t, ch.Open(context.Background()))
	defer ch.Close()

	// no peer yet, write is dropped
	n, err := ch.Write([]byte{1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()
	_, err = peer.WriteTo([]byte("ping"), ch.LocalAddr())
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err = ch.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_, err = ch.Write([]byte("pong"))
	require.NoError(t, err)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(testTimeout)))
	n, _, err = peer.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

func TestConnUDP(t *testing.T) {
	t.Parallel()
	vehicle, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer vehicle.Close()

	cfg := Config{Kind: KindUDP, Endpoint: "127.0.0.1:0", Remote: vehicle.LocalAddr().String()}
	c, err := NewConn(cfg, log2.NewTest(t, log2.LDebug), nil)
	require.NoError(t, err)
	defer c.Close()
	r := newRecorder()
	c.AddListener("r", r)
	c.Connect()
	r.expect(t, "connect")

	require.NoError(t, c.Send(testHeartbeat()))
	buf := make([]byte, mavlink.MaxFrame)
	require.NoError(t, vehicle.SetReadDeadline(time.Now().Add(testTimeout)))
	n, from, err := vehicle.ReadFrom(buf)
	require.NoError(t, err)
	ps := mavlink.NewParser().Feed(buf[:n])
	require.Len(t, ps, 1)
	assert.Equal(t, mavlink.MSG_ID_HEARTBEAT, ps[0].MsgID)

	_, err = vehicle.WriteTo(helpers.MustHex("fd 02 00 00 03 01 01 4d 00 00 90 01 a7 8e"), from)
	require.NoError(t, err)
	r.expect(t, "packet:77")

	c.Disconnect()
	r.expect(t, "disconnect")
}
