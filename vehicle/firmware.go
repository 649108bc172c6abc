package vehicle

import "github.com/temoto/gclink/mavlink"

// Firmware is autopilot family, tagged variant selecting profile.
type Firmware uint8

const (
	FirmwareUnknown Firmware = iota
	FirmwareArduCopter
	FirmwareArduPlane
	FirmwareArduRover
	FirmwareArduSub
	FirmwarePX4
	FirmwareGeneric
)

func (f Firmware) String() string {
	switch f {
	case FirmwareArduCopter:
		return "arducopter"
	case FirmwareArduPlane:
		return "arduplane"
	case FirmwareArduRover:
		return "ardurover"
	case FirmwareArduSub:
		return "ardusub"
	case FirmwarePX4:
		return "px4"
	case FirmwareGeneric:
		return "generic"
	}
	return "unknown"
}

type Dialect string

const (
	DialectNone      Dialect = ""
	DialectArduPilot Dialect = "ardupilot"
	DialectPX4       Dialect = "px4"
)

// Profile is firmware specific protocol behavior.
type Profile struct {
	Dialect Dialect
	// PX4 packs integer parameter bits into PARAM_VALUE float field.
	BytewiseParams bool
}

func (f Firmware) Profile() Profile {
	switch f {
	case FirmwareArduCopter, FirmwareArduPlane, FirmwareArduRover, FirmwareArduSub:
		return Profile{Dialect: DialectArduPilot}
	case FirmwarePX4:
		return Profile{Dialect: DialectPX4, BytewiseParams: true}
	}
	return Profile{}
}

func (f Firmware) ArduPilot() bool { return f.Profile().Dialect == DialectArduPilot }

// Identify maps heartbeat to firmware.
// ok=false for heartbeats not coming from a vehicle autopilot (GCS, companion, invalid).
func Identify(hb *mavlink.Heartbeat) (Firmware, bool) {
	switch hb.Type {
	case mavlink.MAV_TYPE_GCS, mavlink.MAV_TYPE_ONBOARD_CTRL:
		return FirmwareUnknown, false
	}
	switch hb.Autopilot {
	case mavlink.MAV_AUTOPILOT_INVALID:
		return FirmwareUnknown, false
	case mavlink.MAV_AUTOPILOT_PX4:
		return FirmwarePX4, true
	case mavlink.MAV_AUTOPILOT_ARDUPILOTMEGA:
		switch hb.Type {
		case mavlink.MAV_TYPE_FIXED_WING, mavlink.MAV_TYPE_VTOL_DUO, mavlink.MAV_TYPE_VTOL_QUAD:
			return FirmwareArduPlane, true
		case mavlink.MAV_TYPE_GROUND_ROVER, mavlink.MAV_TYPE_SURFACE_BOAT:
			return FirmwareArduRover, true
		case mavlink.MAV_TYPE_SUBMARINE:
			return FirmwareArduSub, true
		}
		return FirmwareArduCopter, true
	}
	return FirmwareGeneric, true
}
