// Package broker multiplexes client sessions onto one MAVLink link.
//
// Broker owns link.Conn, parameter manager, heartbeat monitor, command
// tracker and optional sidecar. Every link event is delivered to every
// session unmodified. Vehicle level CONNECTED is reported when first
// heartbeat arrived on current connection and, if sidecar applies, the
// sidecar is connected too.
package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/gclink/command"
	"github.com/temoto/gclink/link"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/param"
	"github.com/temoto/gclink/sidecar"
	"github.com/temoto/gclink/tlog"
	"github.com/temoto/gclink/vehicle"
)

const DefaultGCSHeartbeat = time.Second

const listenerTag = "broker"

// Sink receives session events. Callbacks run on link, timer or sidecar
// goroutines and must not block.
type Sink interface {
	OnConnect(t time.Time)
	OnDisconnect(t time.Time)
	OnCommError(msg string)
	OnPacketReceived(p *mavlink.Packet)
	OnVehicleEvent(e vehicle.Event)
	OnParametersBegin()
	OnParameterReceived(p param.Parameter, index, count int)
	OnParametersEnd()
}

type Config struct {
	Link    link.Config
	Factory link.ChannelFactory // nil selects channel by kind

	GCSHeartbeat     time.Duration // 0 disables
	HeartbeatTimeout time.Duration

	Param   param.Config
	Command command.Config

	SidecarEnable bool
	Sidecar       sidecar.Config

	Export tlog.SessionConfig
}

// SidecarApplies reports sidecar capability: udp primary link with sidecar enabled.
func (c Config) SidecarApplies() bool {
	return c.SidecarEnable && c.Link.Kind == link.KindUDP
}

type session struct {
	id     string
	sink   Sink
	export tlog.Exporter
}

type Broker struct { //nolint:maligned
	log     *log2.Log
	c       Config
	conn    *link.Conn
	params  *param.Manager
	monitor *vehicle.Monitor
	tracker *command.Tracker
	side    *sidecar.Client

	mu       sync.Mutex
	sessions map[string]*session
	vehicle  *vehicle.Vehicle
	primary  bool // first heartbeat on current connection
	sideUp   bool
	reported bool // externally visible connected
	follow   bool
	gcs      *alive.Alive
}

func New(c Config, log *log2.Log) (*Broker, error) {
	conn, err := link.NewConn(c.Link, log, c.Factory)
	if err != nil {
		return nil, errors.Annotate(err, "broker")
	}
	b := &Broker{
		log:      log,
		c:        c,
		conn:     conn,
		sessions: make(map[string]*session),
	}
	b.monitor = vehicle.NewMonitor(c.HeartbeatTimeout, log, b.onVehicleEvent)
	b.params = param.NewManager(c.Param, conn, b.target, log)
	b.params.SetListener(paramFanout{b})
	b.tracker = command.NewTracker(c.Command, conn, log)
	if c.SidecarApplies() {
		b.side = sidecar.NewClient(c.Sidecar, sidecarListener{b}, log)
	}
	conn.AddListener(listenerTag, linkListener{b})
	return b, nil
}

func (b *Broker) Link() *link.Conn           { return b.conn }
func (b *Broker) State() link.State          { return b.conn.State() }
func (b *Broker) Params() *param.Manager     { return b.params }
func (b *Broker) Sidecar() *sidecar.Client   { return b.side }
func (b *Broker) HeartbeatAlive() bool       { return b.monitor.Alive() }
func (b *Broker) Firmware() vehicle.Firmware { return b.monitor.Firmware() }
func (b *Broker) PendingCommands() int       { return b.tracker.Pending() }

func (b *Broker) Parameter(name string) (param.Parameter, bool) { return b.params.Parameter(name) }

// Vehicle returns identity built from first heartbeat, nil before that.
func (b *Broker) Vehicle() *vehicle.Vehicle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vehicle
}

// Connected reports externally visible vehicle connection.
func (b *Broker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reported
}

// Connect registers session, replacing registration with the same id.
func (b *Broker) Connect(id string, sink Sink) error {
	if id == "" {
		return errors.NotValidf("broker session id empty")
	}
	if sink == nil {
		return errors.NotValidf("broker session=%s sink nil", id)
	}

	b.mu.Lock()
	s := &session{id: id, sink: sink}
	if old := b.sessions[id]; old != nil {
		s.export = old.export
	} else if b.c.Export.Enabled() {
		export, err := b.c.Export.Open(id, b.log)
		if err != nil {
			b.log.Errorf("broker session=%s export err=%v", id, err)
		}
		s.export = export
	}
	b.sessions[id] = s
	reported := b.reported
	b.mu.Unlock()
	b.log.Debugf("broker session=%s attached", id)

	b.startSidecar()
	switch b.conn.State() {
	case link.StateDisconnected:
		sink.OnVehicleEvent(vehicle.EventConnecting)
		b.conn.AddListener(id, sessionListener{s})
		b.conn.Connect()
		return nil
	case link.StateConnecting:
		sink.OnVehicleEvent(vehicle.EventConnecting)
	}
	b.conn.AddListener(id, sessionListener{s})
	if reported {
		sink.OnVehicleEvent(vehicle.EventConnected)
		if !b.monitor.Alive() {
			sink.OnVehicleEvent(vehicle.EventHeartbeatTimeout)
		}
	}
	return nil
}

// Reopen connects transport again for registered sessions. No-op unless
// link is disconnected and at least one session is attached.
func (b *Broker) Reopen() bool {
	if b.conn.State() != link.StateDisconnected {
		return false
	}
	ss := b.sinks()
	if len(ss) == 0 {
		return false
	}
	for _, s := range ss {
		s.OnVehicleEvent(vehicle.EventConnecting)
	}
	b.startSidecar()
	b.conn.Connect()
	return true
}

// Disconnect unregisters session, last one closes transport.
func (b *Broker) Disconnect(id string) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	if ok {
		delete(b.sessions, id)
	}
	last := len(b.sessions) == 0
	b.mu.Unlock()
	if !ok {
		return
	}
	b.conn.RemoveListener(id)
	b.closeExport(s)
	b.log.Debugf("broker session=%s detached", id)
	if last {
		b.conn.Disconnect()
		b.stopSidecar()
	}
}

// DisconnectAll tears down sidecar, every session and auxiliary behavior.
func (b *Broker) DisconnectAll() {
	b.stopSidecar()
	b.mu.Lock()
	ss := b.sessions
	b.sessions = make(map[string]*session)
	b.follow = false
	b.mu.Unlock()
	for id, s := range ss {
		b.conn.RemoveListener(id)
		b.closeExport(s)
	}
	b.stopGCSHeartbeat()
	b.conn.Disconnect()
}

// Close is DisconnectAll and waits for transport tasks.
// Must not be called from Sink callbacks.
func (b *Broker) Close() error {
	b.DisconnectAll()
	err := b.conn.Close()
	b.params.Stop()
	b.monitor.Reset()
	return err
}

func (b *Broker) Sessions() []string {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// SetFollow records follow behavior toggle, reported in log only.
func (b *Broker) SetFollow(on bool) {
	b.mu.Lock()
	changed := b.follow != on
	b.follow = on
	b.mu.Unlock()
	if changed {
		e := vehicle.EventFollowStop
		if on {
			e = vehicle.EventFollowStart
		}
		b.log.Infof("broker %s", e)
		b.emit(e)
	}
}

func (b *Broker) Following() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.follow
}

// Parameters returns cached table snapshot, empty table triggers refresh.
func (b *Broker) Parameters() map[string]param.Parameter { return b.params.Parameters() }
func (b *Broker) RefreshParameters()                     { b.params.Refresh() }
func (b *Broker) SendParameter(p param.Parameter) error  { return b.params.SendParameter(p) }
func (b *Broker) ReadParameter(name string) error        { return b.params.ReadParameter(name) }

// SendCommand fills zero target from tracked vehicle and waits for ack.
func (b *Broker) SendCommand(ctx context.Context, cmd mavlink.CommandLong) (command.Ack, error) {
	if cmd.TargetSystem == 0 {
		cmd.TargetSystem, cmd.TargetComponent = b.target()
	}
	return b.tracker.Send(ctx, cmd)
}

func (b *Broker) target() (uint8, uint8) {
	if sys, comp, ok := b.monitor.Target(); ok {
		return sys, comp
	}
	return 1, mavlink.MAV_COMP_ID_AUTOPILOT1
}

func (b *Broker) sinks() []Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked_sinks()
}

func (b *Broker) locked_sinks() []Sink {
	ss := make([]Sink, 0, len(b.sessions))
	for _, s := range b.sessions {
		ss = append(ss, s.sink)
	}
	return ss
}

func (b *Broker) emit(e vehicle.Event) {
	for _, s := range b.sinks() {
		s.OnVehicleEvent(e)
	}
}

func (b *Broker) closeExport(s *session) {
	if s.export == nil {
		return
	}
	if err := s.export.Close(); err != nil {
		b.log.Errorf("broker session=%s export close err=%v", s.id, err)
	}
}

// updateLiveness emits CONNECTED or DISCONNECTED on transitions of
// primary AND sidecar.
func (b *Broker) updateLiveness() {
	b.mu.Lock()
	up := b.primary && (b.side == nil || b.sideUp)
	changed := up != b.reported
	b.reported = up
	ss := b.locked_sinks()
	b.mu.Unlock()
	if !changed {
		return
	}
	e := vehicle.EventDisconnected
	if up {
		e = vehicle.EventConnected
	}
	b.log.Infof("broker vehicle %s", e)
	for _, s := range ss {
		s.OnVehicleEvent(e)
	}
}

func (b *Broker) startSidecar() {
	if b.side == nil {
		return
	}
	b.mu.Lock()
	n := len(b.sessions)
	b.mu.Unlock()
	if n > 0 {
		b.side.Start()
	}
}

// stopSidecar waits for sidecar goroutine, never call with b.mu held.
func (b *Broker) stopSidecar() {
	if b.side != nil {
		b.side.Stop()
	}
}
