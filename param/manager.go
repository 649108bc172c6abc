// Package param synchronizes vehicle parameter table over MAVLink.
//
// Refresh requests full list, received values are checked against
// roll-call of indices; watchdog re-requests missing ones individually.
package param

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/vehicle"
)

const DefaultTimeout = 1000 * time.Millisecond

// Listener is notified outside of Manager lock, in order of state changes.
type Listener interface {
	OnParametersBegin()
	OnParameterReceived(p Parameter, index, count int)
	OnParametersEnd()
}

type Sender interface {
	Send(p *mavlink.Packet) error
}

// Target returns vehicle system and component for outgoing requests.
type Target func() (sysID, compID uint8)

type Config struct {
	Timeout     time.Duration
	MetadataDir string
}

type Manager struct {
	mu         sync.Mutex
	log        *log2.Log
	sender     Sender
	target     Target
	listener   Listener
	wd         *helpers.Watchdog
	metaDir    string
	refreshing bool
	expected   int
	table      map[string]Parameter
	rollcall   rollCall
	firmware   vehicle.Firmware
	meta       MetadataTable
}

type event func(Listener)

func NewManager(c Config, sender Sender, target Target, log *log2.Log) *Manager {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if target == nil {
		target = func() (uint8, uint8) { return 1, mavlink.MAV_COMP_ID_AUTOPILOT1 }
	}
	m := &Manager{
		log:     log,
		sender:  sender,
		target:  target,
		metaDir: c.MetadataDir,
		table:   make(map[string]Parameter),
	}
	m.wd = helpers.NewWatchdog(c.Timeout, m.fire)
	return m
}

func (self *Manager) SetListener(l Listener) {
	self.mu.Lock()
	self.listener = l
	self.mu.Unlock()
}

// Refresh is no-op while another refresh is in flight.
func (self *Manager) Refresh() {
	self.mu.Lock()
	if self.refreshing {
		self.mu.Unlock()
		return
	}
	self.refreshing = true
	self.expected = 0
	self.table = make(map[string]Parameter)
	self.rollcall.reset()
	self.wd.Reset()
	l := self.listener
	self.mu.Unlock()

	self.log.Debugf("param refresh")
	if l != nil {
		l.OnParametersBegin()
	}
	sys, comp := self.target()
	self.send(&mavlink.ParamRequestList{TargetSystem: sys, TargetComponent: comp})
}

// HandlePacket consumes PARAM_VALUE, returns false for other packets.
func (self *Manager) HandlePacket(p *mavlink.Packet) bool {
	if p.MsgID != mavlink.MSG_ID_PARAM_VALUE {
		return false
	}
	msg, err := mavlink.Decode(p)
	if err != nil {
		self.log.Errorf("param decode p=%s err=%v", p, err)
		return true
	}
	self.handleValue(msg.(*mavlink.ParamValue))
	return true
}

func (self *Manager) handleValue(pv *mavlink.ParamValue) {
	events := make([]event, 0, 2)

	self.mu.Lock()
	bytewise := self.firmware.Profile().BytewiseParams
	p := Parameter{
		Name:  pv.ID,
		Value: mavlink.ParamValueDecode(pv.Value, pv.Type, bytewise),
		Type:  pv.Type,
		Index: int(pv.Index),
		Meta:  self.meta.Lookup(pv.ID),
	}
	self.table[p.key()] = p

	if pv.Index == mavlink.ParamIndexNone {
		events = append(events, itemEvent(p, 0, 1), endEvent)
	} else {
		index, count := int(pv.Index), int(pv.Count)
		if index < count {
			self.rollcall.set(index)
		} else {
			self.log.Debugf("param %s index=%d out of count=%d", p.Name, index, count)
		}
		self.expected = count
		events = append(events, itemEvent(p, index, count))
		if len(self.table) >= self.expected {
			self.wd.Stop()
			self.refreshing = false
			events = append(events, endEvent)
		} else if self.refreshing {
			self.wd.Reset()
		}
	}
	l := self.listener
	self.mu.Unlock()

	emit(l, events)
}

func (self *Manager) fire(gen uint64) {
	self.mu.Lock()
	if !self.wd.Current(gen) || !self.refreshing {
		self.mu.Unlock()
		return
	}
	if self.expected == 0 {
		self.refreshing = false
		self.wd.Stop()
		self.mu.Unlock()
		self.log.Debugf("param refresh gave up, no response")
		return
	}
	missing := self.rollcall.missing(self.expected)
	self.wd.Reset()
	self.mu.Unlock()

	self.log.Debugf("param re-request missing=%d", len(missing))
	sys, comp := self.target()
	for _, i := range missing {
		self.send(&mavlink.ParamRequestRead{Index: int16(i), TargetSystem: sys, TargetComponent: comp})
	}
}

// Stop cancels in flight refresh, table is kept.
func (self *Manager) Stop() {
	self.mu.Lock()
	self.wd.Stop()
	self.refreshing = false
	self.mu.Unlock()
}

// OnVehicleEvent drives refresh lifecycle from vehicle liveness.
func (self *Manager) OnVehicleEvent(e vehicle.Event, f vehicle.Firmware) {
	switch e {
	case vehicle.EventHeartbeatFirst:
		self.SetFirmware(f)
		self.Refresh()
	case vehicle.EventDisconnected, vehicle.EventHeartbeatTimeout:
		self.Stop()
	case vehicle.EventType:
		self.SetFirmware(f)
	}
}

// SetFirmware reloads metadata dialect and re-annotates cached parameters.
func (self *Manager) SetFirmware(f vehicle.Firmware) {
	meta, err := LoadMetadata(f, self.metaDir)
	if err != nil {
		self.log.Errorf("param firmware=%s metadata err=%v", f, err)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.firmware = f
	self.meta = meta
	for k, p := range self.table {
		p.Meta = meta.Lookup(p.Name)
		self.table[k] = p
	}
}

// Parameters returns snapshot keyed by lower case name.
// Empty table triggers Refresh.
func (self *Manager) Parameters() map[string]Parameter {
	self.mu.Lock()
	snap := make(map[string]Parameter, len(self.table))
	for k, p := range self.table {
		snap[k] = p
	}
	self.mu.Unlock()
	if len(snap) == 0 {
		self.Refresh()
	}
	return snap
}

// Sorted returns parameters with name prefix, case insensitive, sorted by name.
func (self *Manager) Sorted(prefix string) []Parameter {
	prefix = strings.ToLower(prefix)
	self.mu.Lock()
	ps := make([]Parameter, 0, len(self.table))
	for k, p := range self.table {
		if strings.HasPrefix(k, prefix) {
			ps = append(ps, p)
		}
	}
	self.mu.Unlock()
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

func (self *Manager) Parameter(name string) (Parameter, bool) {
	if name == "" {
		return Parameter{}, false
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	p, ok := self.table[strings.ToLower(name)]
	return p, ok
}

func (self *Manager) SendParameter(p Parameter) error {
	if err := validName(p.Name); err != nil {
		return err
	}
	self.mu.Lock()
	bytewise := self.firmware.Profile().BytewiseParams
	self.mu.Unlock()
	sys, comp := self.target()
	return self.send(&mavlink.ParamSet{
		Value:           mavlink.ParamValueEncode(p.Value, p.Type, bytewise),
		TargetSystem:    sys,
		TargetComponent: comp,
		ID:              p.Name,
		Type:            p.Type,
	})
}

// Set sends new value for cached parameter.
func (self *Manager) Set(name string, value float64) error {
	p, ok := self.Parameter(name)
	if !ok {
		return errors.NotFoundf("param %s", name)
	}
	p.Value = value
	return self.SendParameter(p)
}

func (self *Manager) ReadParameter(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	sys, comp := self.target()
	return self.send(&mavlink.ParamRequestRead{Index: -1, TargetSystem: sys, TargetComponent: comp, ID: name})
}

func (self *Manager) Refreshing() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.refreshing
}

func (self *Manager) Expected() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.expected
}

func (self *Manager) Missing() []int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.rollcall.missing(self.expected)
}

func (self *Manager) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.table)
}

func (self *Manager) send(m mavlink.Message) error {
	err := self.sender.Send(mavlink.NewPacket(m))
	if err != nil {
		err = errors.Annotatef(err, "param send msgid=%d", m.MsgID())
		self.log.Error(err)
	}
	return err
}

func itemEvent(p Parameter, index, count int) event {
	return func(l Listener) { l.OnParameterReceived(p, index, count) }
}

func endEvent(l Listener) { l.OnParametersEnd() }

func emit(l Listener, events []event) {
	if l == nil {
		return
	}
	for _, e := range events {
		e(l)
	}
}
