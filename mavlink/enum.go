package mavlink

import (
	"fmt"
	"sync"
)

const (
	MSG_ID_HEARTBEAT          uint32 = 0
	MSG_ID_PARAM_REQUEST_READ uint32 = 20
	MSG_ID_PARAM_REQUEST_LIST uint32 = 21
	MSG_ID_PARAM_VALUE        uint32 = 22
	MSG_ID_PARAM_SET          uint32 = 23
	MSG_ID_COMMAND_LONG       uint32 = 76
	MSG_ID_COMMAND_ACK        uint32 = 77
)

// CRC_EXTRA seeds from message definitions. Frames of other ids can not be verified.
var crcExtra = map[uint32]byte{
	MSG_ID_HEARTBEAT:          50,
	1:                         124, // SYS_STATUS
	2:                         137, // SYSTEM_TIME
	4:                         237, // PING
	11:                        89,  // SET_MODE
	MSG_ID_PARAM_REQUEST_READ: 214,
	MSG_ID_PARAM_REQUEST_LIST: 159,
	MSG_ID_PARAM_VALUE:        220,
	MSG_ID_PARAM_SET:          168,
	24:                        24,  // GPS_RAW_INT
	27:                        144, // RAW_IMU
	29:                        115, // SCALED_PRESSURE
	30:                        39,  // ATTITUDE
	33:                        104, // GLOBAL_POSITION_INT
	35:                        244, // RC_CHANNELS_RAW
	36:                        222, // SERVO_OUTPUT_RAW
	42:                        28,  // MISSION_CURRENT
	47:                        153, // MISSION_ACK
	62:                        183, // NAV_CONTROLLER_OUTPUT
	65:                        118, // RC_CHANNELS
	66:                        148, // REQUEST_DATA_STREAM
	74:                        20,  // VFR_HUD
	MSG_ID_COMMAND_LONG:       152,
	MSG_ID_COMMAND_ACK:        143,
	109:                       185, // RADIO_STATUS
	111:                       34,  // TIMESYNC
	147:                       154, // BATTERY_STATUS
	148:                       178, // AUTOPILOT_VERSION
	242:                       104, // HOME_POSITION
	245:                       130, // EXTENDED_SYS_STATE
	253:                       83,  // STATUSTEXT
}
var crcExtraMu sync.RWMutex

func CRCExtra(id uint32) (byte, bool) {
	crcExtraMu.RLock()
	x, ok := crcExtra[id]
	crcExtraMu.RUnlock()
	return x, ok
}

// RegisterExtra allows parser to pass through more message types.
func RegisterExtra(id uint32, extra byte) {
	crcExtraMu.Lock()
	crcExtra[id] = extra
	crcExtraMu.Unlock()
}

type MavType uint8

const (
	MAV_TYPE_GENERIC      MavType = 0
	MAV_TYPE_FIXED_WING   MavType = 1
	MAV_TYPE_QUADROTOR    MavType = 2
	MAV_TYPE_COAXIAL      MavType = 3
	MAV_TYPE_HELICOPTER   MavType = 4
	MAV_TYPE_GCS          MavType = 6
	MAV_TYPE_GROUND_ROVER MavType = 10
	MAV_TYPE_SURFACE_BOAT MavType = 11
	MAV_TYPE_SUBMARINE    MavType = 12
	MAV_TYPE_HEXAROTOR    MavType = 13
	MAV_TYPE_OCTOROTOR    MavType = 14
	MAV_TYPE_TRICOPTER    MavType = 15
	MAV_TYPE_ONBOARD_CTRL MavType = 18
	MAV_TYPE_VTOL_DUO     MavType = 19
	MAV_TYPE_VTOL_QUAD    MavType = 20
	MAV_TYPE_DODECAROTOR  MavType = 29
)

type MavAutopilot uint8

const (
	MAV_AUTOPILOT_GENERIC       MavAutopilot = 0
	MAV_AUTOPILOT_ARDUPILOTMEGA MavAutopilot = 3
	MAV_AUTOPILOT_INVALID       MavAutopilot = 8
	MAV_AUTOPILOT_PX4           MavAutopilot = 12
)

const (
	MAV_STATE_ACTIVE uint8 = 4
)

type MavResult uint8

const (
	MAV_RESULT_ACCEPTED             MavResult = 0
	MAV_RESULT_TEMPORARILY_REJECTED MavResult = 1
	MAV_RESULT_DENIED               MavResult = 2
	MAV_RESULT_UNSUPPORTED          MavResult = 3
	MAV_RESULT_FAILED               MavResult = 4
	MAV_RESULT_IN_PROGRESS          MavResult = 5
)

func (r MavResult) String() string {
	switch r {
	case MAV_RESULT_ACCEPTED:
		return "accepted"
	case MAV_RESULT_TEMPORARILY_REJECTED:
		return "temporarily-rejected"
	case MAV_RESULT_DENIED:
		return "denied"
	case MAV_RESULT_UNSUPPORTED:
		return "unsupported"
	case MAV_RESULT_FAILED:
		return "failed"
	case MAV_RESULT_IN_PROGRESS:
		return "in-progress"
	}
	return fmt.Sprintf("MavResult(%d)", uint8(r))
}

type ParamType uint8

const (
	PARAM_TYPE_UINT8  ParamType = 1
	PARAM_TYPE_INT8   ParamType = 2
	PARAM_TYPE_UINT16 ParamType = 3
	PARAM_TYPE_INT16  ParamType = 4
	PARAM_TYPE_UINT32 ParamType = 5
	PARAM_TYPE_INT32  ParamType = 6
	PARAM_TYPE_UINT64 ParamType = 7
	PARAM_TYPE_INT64  ParamType = 8
	PARAM_TYPE_REAL32 ParamType = 9
	PARAM_TYPE_REAL64 ParamType = 10
)

func (t ParamType) String() string {
	switch t {
	case PARAM_TYPE_UINT8:
		return "uint8"
	case PARAM_TYPE_INT8:
		return "int8"
	case PARAM_TYPE_UINT16:
		return "uint16"
	case PARAM_TYPE_INT16:
		return "int16"
	case PARAM_TYPE_UINT32:
		return "uint32"
	case PARAM_TYPE_INT32:
		return "int32"
	case PARAM_TYPE_UINT64:
		return "uint64"
	case PARAM_TYPE_INT64:
		return "int64"
	case PARAM_TYPE_REAL32:
		return "real32"
	case PARAM_TYPE_REAL64:
		return "real64"
	}
	return fmt.Sprintf("ParamType(%d)", uint8(t))
}

// Commands used by ground control core.
const (
	MAV_CMD_NAV_RETURN_TO_LAUNCH     uint16 = 20
	MAV_CMD_DO_SET_MODE              uint16 = 176
	MAV_CMD_PREFLIGHT_REBOOT         uint16 = 246
	MAV_CMD_COMPONENT_ARM_DISARM     uint16 = 400
	MAV_CMD_SET_MESSAGE_INTERVAL     uint16 = 511
	MAV_CMD_REQUEST_PROTOCOL_VERSION uint16 = 519
	MAV_CMD_REQUEST_AUTOPILOT_CAPS   uint16 = 520
)

const (
	MAV_COMP_ID_AUTOPILOT1       uint8 = 1
	MAV_COMP_ID_MISSIONPLANNER   uint8 = 190
	MAV_COMP_ID_ONBOARD_COMPUTER uint8 = 191

	DefaultGCSSystemID uint8 = 255
)
