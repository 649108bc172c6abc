package broker

import (
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/param"
	"github.com/temoto/gclink/sidecar"
	"github.com/temoto/gclink/vehicle"
)

// linkListener drives broker collaborators from transport events.
type linkListener struct{ b *Broker }

func (l linkListener) OnConnect(t time.Time) {
	l.b.startGCSHeartbeat()
	l.b.startSidecar()
}

func (l linkListener) OnDisconnect(t time.Time) {
	b := l.b
	b.stopGCSHeartbeat()
	b.tracker.CancelAll()
	b.monitor.Reset()
	b.params.OnVehicleEvent(vehicle.EventDisconnected, b.monitor.Firmware())
	// sidecar goes first, its own disconnect report wins over primary
	b.stopSidecar()
	b.mu.Lock()
	b.primary = false
	b.mu.Unlock()
	b.updateLiveness()
}

func (l linkListener) OnCommError(msg string) {}

func (l linkListener) OnPacket(p *mavlink.Packet) {
	b := l.b
	if b.tracker.HandlePacket(p) {
		return
	}
	if b.params.HandlePacket(p) {
		return
	}
	if hb := b.monitor.HandlePacket(p); hb != nil {
		b.mu.Lock()
		if b.vehicle == nil {
			if v, ok := vehicle.New(p, hb); ok {
				b.vehicle = v
				b.log.Infof("broker identified %s", v)
			}
		}
		b.mu.Unlock()
	}
}

func (b *Broker) onVehicleEvent(e vehicle.Event) {
	f := b.monitor.Firmware()
	if e == vehicle.EventHeartbeatFirst {
		b.mu.Lock()
		b.primary = true
		b.mu.Unlock()
	}
	b.emit(e)
	b.params.OnVehicleEvent(e, f)
	if e == vehicle.EventHeartbeatFirst {
		b.updateLiveness()
	}
}

// sessionListener delivers transport events to one session and its export.
type sessionListener struct{ s *session }

func (l sessionListener) OnConnect(t time.Time)    { l.s.sink.OnConnect(t) }
func (l sessionListener) OnDisconnect(t time.Time) { l.s.sink.OnDisconnect(t) }
func (l sessionListener) OnCommError(msg string)   { l.s.sink.OnCommError(msg) }
func (l sessionListener) OnPacket(p *mavlink.Packet) {
	if l.s.export != nil {
		if b, err := p.Bytes(); err == nil {
			_ = l.s.export.Write(time.Now(), b)
		}
	}
	l.s.sink.OnPacketReceived(p)
}

type paramFanout struct{ b *Broker }

func (f paramFanout) OnParametersBegin() {
	for _, s := range f.b.sinks() {
		s.OnParametersBegin()
	}
}

func (f paramFanout) OnParameterReceived(p param.Parameter, index, count int) {
	for _, s := range f.b.sinks() {
		s.OnParameterReceived(p, index, count)
	}
}

func (f paramFanout) OnParametersEnd() {
	for _, s := range f.b.sinks() {
		s.OnParametersEnd()
	}
}

type sidecarListener struct{ b *Broker }

func (l sidecarListener) OnConnected()    { l.set(true) }
func (l sidecarListener) OnDisconnected() { l.set(false) }
func (l sidecarListener) OnMessage(m sidecar.Message) {
	l.b.log.Debugf("broker sidecar message type=%d len=%d", m.Type, len(m.Value))
}

func (l sidecarListener) set(up bool) {
	l.b.mu.Lock()
	l.b.sideUp = up
	l.b.mu.Unlock()
	l.b.updateLiveness()
}

func (b *Broker) startGCSHeartbeat() {
	if b.c.GCSHeartbeat <= 0 {
		return
	}
	b.mu.Lock()
	if b.gcs != nil && b.gcs.IsRunning() {
		b.mu.Unlock()
		return
	}
	a := alive.NewAlive()
	a.Add(1)
	b.gcs = a
	b.mu.Unlock()
	go b.gcsHeartbeat(a, b.c.GCSHeartbeat)
}

func (b *Broker) stopGCSHeartbeat() {
	b.mu.Lock()
	a := b.gcs
	b.gcs = nil
	b.mu.Unlock()
	if a != nil {
		a.Stop()
		a.Wait()
	}
}

func (b *Broker) gcsHeartbeat(a *alive.Alive, period time.Duration) {
	defer a.Done()
	hb := mavlink.NewPacket(&mavlink.Heartbeat{
		Type:           mavlink.MAV_TYPE_GCS,
		Autopilot:      mavlink.MAV_AUTOPILOT_INVALID,
		SystemStatus:   mavlink.MAV_STATE_ACTIVE,
		MavlinkVersion: 3,
	})
	tmr := time.NewTicker(period)
	defer tmr.Stop()
	for {
		if err := b.conn.Send(hb); err != nil {
			b.log.Debugf("broker gcs heartbeat err=%v", err)
		}
		select {
		case <-a.StopChan():
			return
		case <-tmr.C:
		}
	}
}
