package vehicle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
)

func TestIdentify(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		hb     mavlink.Heartbeat
		expect Firmware
		ok     bool
	}
	cases := []Case{
		{"copter", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_QUADROTOR, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduCopter, true},
		{"heli", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_HELICOPTER, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduCopter, true},
		{"plane", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_FIXED_WING, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduPlane, true},
		{"vtol", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_VTOL_QUAD, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduPlane, true},
		{"rover", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_GROUND_ROVER, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduRover, true},
		{"boat", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_SURFACE_BOAT, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduRover, true},
		{"sub", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_SUBMARINE, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareArduSub, true},
		{"px4", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_QUADROTOR, Autopilot: mavlink.MAV_AUTOPILOT_PX4}, FirmwarePX4, true},
		{"generic", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_QUADROTOR, Autopilot: mavlink.MAV_AUTOPILOT_GENERIC}, FirmwareGeneric, true},
		{"gcs", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_GCS, Autopilot: mavlink.MAV_AUTOPILOT_INVALID}, FirmwareUnknown, false},
		{"companion", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_ONBOARD_CTRL, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}, FirmwareUnknown, false},
		{"invalid", mavlink.Heartbeat{Type: mavlink.MAV_TYPE_QUADROTOR, Autopilot: mavlink.MAV_AUTOPILOT_INVALID}, FirmwareUnknown, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			f, ok := Identify(&c.hb)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.expect, f, f.String())
		})
	}
}

func TestProfile(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Profile{Dialect: DialectPX4, BytewiseParams: true}, FirmwarePX4.Profile())
	assert.Equal(t, DialectArduPilot, FirmwareArduPlane.Profile().Dialect)
	assert.False(t, FirmwareArduCopter.Profile().BytewiseParams)
	assert.Equal(t, Profile{}, FirmwareGeneric.Profile())
	assert.True(t, FirmwareArduRover.ArduPilot())
	assert.False(t, FirmwarePX4.ArduPilot())
}

func TestNew(t *testing.T) {
	t.Parallel()
	p := &mavlink.Packet{SysID: 3, CompID: 1}
	v, ok := New(p, &mavlink.Heartbeat{Type: mavlink.MAV_TYPE_FIXED_WING, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA})
	require.True(t, ok)
	assert.Equal(t, uint8(3), v.SysID)
	assert.Equal(t, FirmwareArduPlane, v.Firmware)
	assert.Contains(t, v.String(), "arduplane")
	_, ok = New(p, &mavlink.Heartbeat{Type: mavlink.MAV_TYPE_GCS})
	assert.False(t, ok)
	assert.Equal(t, "vehicle(none)", (*Vehicle)(nil).String())
}

type eventLog chan Event

func (ch eventLog) expect(t testing.TB, e Event, timeout time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		assert.Equal(t, e, got, "expected=%s actual=%s", e, got)
	case <-time.After(timeout):
		t.Fatalf("event=%s timeout", e)
	}
}

func (ch eventLog) expectNone(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Errorf("unexpected event=%s", got)
	case <-time.After(d):
	}
}

func TestMonitor(t *testing.T) {
	t.Parallel()
	events := make(eventLog, 16)
	m := NewMonitor(100*time.Millisecond, log2.NewTest(t, log2.LDebug), func(e Event) { events <- e })
	defer m.Reset()
	copter := &mavlink.Heartbeat{Type: mavlink.MAV_TYPE_QUADROTOR, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA}

	assert.False(t, m.Heartbeat(1, 1, &mavlink.Heartbeat{Type: mavlink.MAV_TYPE_GCS}))
	events.expectNone(t, 0)

	require.True(t, m.Heartbeat(1, 1, copter))
	events.expect(t, EventHeartbeatFirst, time.Second)
	assert.True(t, m.Alive())
	assert.Equal(t, FirmwareArduCopter, m.Firmware())
	sys, comp, ok := m.Target()
	assert.Equal(t, []interface{}{uint8(1), uint8(1), true}, []interface{}{sys, comp, ok})

	m.Heartbeat(1, 1, copter)
	assert.False(t, m.Heartbeat(2, 1, copter), "other vehicle ignored")
	events.expectNone(t, 10*time.Millisecond)

	events.expect(t, EventHeartbeatTimeout, time.Second)
	assert.False(t, m.Alive())

	m.Heartbeat(1, 1, copter)
	events.expect(t, EventHeartbeatRestored, time.Second)

	m.Heartbeat(1, 1, &mavlink.Heartbeat{Type: mavlink.MAV_TYPE_FIXED_WING, Autopilot: mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA})
	events.expect(t, EventType, time.Second)
	assert.Equal(t, FirmwareArduPlane, m.Firmware())

	m.Reset()
	events.expectNone(t, 150*time.Millisecond)
	assert.False(t, m.Alive())
	m.Heartbeat(2, 1, copter)
	events.expect(t, EventHeartbeatFirst, time.Second)
}

func TestMonitorHandlePacket(t *testing.T) {
	t.Parallel()
	events := make(eventLog, 4)
	m := NewMonitor(time.Minute, nil, func(e Event) { events <- e })
	defer m.Reset()

	assert.Nil(t, m.HandlePacket(&mavlink.Packet{MsgID: mavlink.MSG_ID_COMMAND_ACK, Payload: []byte{1}}))
	assert.Nil(t, m.HandlePacket(&mavlink.Packet{MsgID: mavlink.MSG_ID_HEARTBEAT}))
	p := mavlink.NewPacket(&mavlink.Heartbeat{Type: mavlink.MAV_TYPE_QUADROTOR, Autopilot: mavlink.MAV_AUTOPILOT_PX4})
	p.SysID, p.CompID = 1, 1
	hb := m.HandlePacket(p)
	require.NotNil(t, hb)
	assert.Equal(t, mavlink.MAV_AUTOPILOT_PX4, hb.Autopilot)
	events.expect(t, EventHeartbeatFirst, time.Second)
	assert.True(t, m.SinceLast() < time.Minute)
}
