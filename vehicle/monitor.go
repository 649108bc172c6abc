package vehicle

import (
	"sync"
	"time"

	"github.com/temoto/atomic_clock"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
)

const DefaultHeartbeatTimeout = 5 * time.Second

// Monitor derives liveness events from heartbeats of single vehicle.
// emit is called outside of internal lock.
type Monitor struct {
	mu       sync.Mutex
	log      *log2.Log
	emit     func(Event)
	wd       *helpers.Watchdog
	last     atomic_clock.Clock
	seen     bool
	alive    bool
	sysID    uint8
	compID   uint8
	firmware Firmware
}

func NewMonitor(timeout time.Duration, log *log2.Log, emit func(Event)) *Monitor {
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	m := &Monitor{log: log, emit: emit}
	m.wd = helpers.NewWatchdog(timeout, m.fire)
	return m
}

// HandlePacket returns decoded autopilot heartbeat, nil for other packets.
func (m *Monitor) HandlePacket(p *mavlink.Packet) *mavlink.Heartbeat {
	if p.MsgID != mavlink.MSG_ID_HEARTBEAT {
		return nil
	}
	msg, err := mavlink.Decode(p)
	if err != nil {
		m.log.Debugf("vehicle heartbeat decode err=%v", err)
		return nil
	}
	hb := msg.(*mavlink.Heartbeat)
	if !m.Heartbeat(p.SysID, p.CompID, hb) {
		return nil
	}
	return hb
}

// Heartbeat returns false when heartbeat is ignored.
func (m *Monitor) Heartbeat(sysID, compID uint8, hb *mavlink.Heartbeat) bool {
	f, ok := Identify(hb)
	if !ok {
		return false
	}
	events := make([]Event, 0, 2)
	m.mu.Lock()
	switch {
	case !m.seen:
		m.seen = true
		m.sysID, m.compID, m.firmware = sysID, compID, f
		events = append(events, EventHeartbeatFirst)
	case sysID != m.sysID:
		m.mu.Unlock()
		m.log.Debugf("vehicle ignore heartbeat from sys=%d tracking=%d", sysID, m.sysID)
		return false
	case !m.alive:
		events = append(events, EventHeartbeatRestored)
	}
	if f != m.firmware {
		m.log.Infof("vehicle firmware %s -> %s", m.firmware, f)
		m.firmware = f
		events = append(events, EventType)
	}
	m.alive = true
	m.last.SetNow()
	m.wd.Reset()
	m.mu.Unlock()

	for _, e := range events {
		m.emit(e)
	}
	return true
}

func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if !m.wd.Current(gen) || !m.alive {
		m.mu.Unlock()
		return
	}
	m.alive = false
	m.mu.Unlock()
	m.log.Infof("vehicle heartbeat timeout after %s", m.wd.Timeout())
	m.emit(EventHeartbeatTimeout)
}

// Reset forgets vehicle, next heartbeat is first again.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.wd.Stop()
	m.seen = false
	m.alive = false
	m.firmware = FirmwareUnknown
	m.last.Set(0)
	m.mu.Unlock()
}

func (m *Monitor) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *Monitor) Firmware() Firmware {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firmware
}

// Target returns tracked vehicle system and component ids.
func (m *Monitor) Target() (sysID, compID uint8, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sysID, m.compID, m.seen
}

func (m *Monitor) SinceLast() time.Duration {
	if m.last.IsZero() {
		return 0
	}
	return atomic_clock.Since(&m.last)
}
