// Package vehicle identifies remote autopilot and tracks its heartbeat liveness.
package vehicle

import (
	"fmt"
	"time"

	"github.com/temoto/gclink/mavlink"
)

// Vehicle is identity snapshot taken from first autopilot heartbeat.
type Vehicle struct {
	SysID      uint8
	CompID     uint8
	Firmware   Firmware
	Type       mavlink.MavType
	Autopilot  mavlink.MavAutopilot
	Identified time.Time
}

func New(p *mavlink.Packet, hb *mavlink.Heartbeat) (*Vehicle, bool) {
	f, ok := Identify(hb)
	if !ok {
		return nil, false
	}
	v := &Vehicle{
		SysID:      p.SysID,
		CompID:     p.CompID,
		Firmware:   f,
		Type:       hb.Type,
		Autopilot:  hb.Autopilot,
		Identified: time.Now(),
	}
	return v, true
}

func (v *Vehicle) Profile() Profile { return v.Firmware.Profile() }

func (v *Vehicle) String() string {
	if v == nil {
		return "vehicle(none)"
	}
	return fmt.Sprintf("vehicle(sys=%d comp=%d firmware=%s type=%d)", v.SysID, v.CompID, v.Firmware, v.Type)
}
