package mavlink

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/juju/errors"
)

// Sentinel PARAM_VALUE index for value sent outside of list transfer.
const ParamIndexNone uint16 = 65535

const paramIDLen = 16

type Message interface {
	MsgID() uint32
	Marshal() []byte
	Unmarshal(payload []byte) error
}

// Decode parses packet body according to MsgID.
// v2 truncated payloads are zero extended.
func Decode(p *Packet) (Message, error) {
	var m Message
	switch p.MsgID {
	case MSG_ID_HEARTBEAT:
		m = &Heartbeat{}
	case MSG_ID_PARAM_REQUEST_READ:
		m = &ParamRequestRead{}
	case MSG_ID_PARAM_REQUEST_LIST:
		m = &ParamRequestList{}
	case MSG_ID_PARAM_VALUE:
		m = &ParamValue{}
	case MSG_ID_PARAM_SET:
		m = &ParamSet{}
	case MSG_ID_COMMAND_LONG:
		m = &CommandLong{}
	case MSG_ID_COMMAND_ACK:
		m = &CommandAck{}
	default:
		return nil, errors.NotSupportedf("mavlink decode msgid=%d", p.MsgID)
	}
	if err := m.Unmarshal(p.Payload); err != nil {
		return nil, errors.Annotatef(err, "mavlink decode msgid=%d", p.MsgID)
	}
	return m, nil
}

type Heartbeat struct {
	CustomMode     uint32
	Type           MavType
	Autopilot      MavAutopilot
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

const heartbeatLen = 9

func (m *Heartbeat) MsgID() uint32 { return MSG_ID_HEARTBEAT }
func (m *Heartbeat) Marshal() []byte {
	b := make([]byte, heartbeatLen)
	binary.LittleEndian.PutUint32(b[0:], m.CustomMode)
	b[4] = byte(m.Type)
	b[5] = byte(m.Autopilot)
	b[6] = m.BaseMode
	b[7] = m.SystemStatus
	b[8] = m.MavlinkVersion
	return b
}
func (m *Heartbeat) Unmarshal(payload []byte) error {
	b, err := extend(payload, heartbeatLen)
	if err != nil {
		return err
	}
	m.CustomMode = binary.LittleEndian.Uint32(b[0:])
	m.Type = MavType(b[4])
	m.Autopilot = MavAutopilot(b[5])
	m.BaseMode = b[6]
	m.SystemStatus = b[7]
	m.MavlinkVersion = b[8]
	return nil
}

type ParamRequestRead struct {
	Index           int16
	TargetSystem    uint8
	TargetComponent uint8
	ID              string
}

const paramRequestReadLen = 20

func (m *ParamRequestRead) MsgID() uint32 { return MSG_ID_PARAM_REQUEST_READ }
func (m *ParamRequestRead) Marshal() []byte {
	b := make([]byte, paramRequestReadLen)
	binary.LittleEndian.PutUint16(b[0:], uint16(m.Index))
	b[2] = m.TargetSystem
	b[3] = m.TargetComponent
	putParamID(b[4:], m.ID)
	return b
}
func (m *ParamRequestRead) Unmarshal(payload []byte) error {
	b, err := extend(payload, paramRequestReadLen)
	if err != nil {
		return err
	}
	m.Index = int16(binary.LittleEndian.Uint16(b[0:]))
	m.TargetSystem = b[2]
	m.TargetComponent = b[3]
	m.ID = getParamID(b[4:])
	return nil
}

type ParamRequestList struct {
	TargetSystem    uint8
	TargetComponent uint8
}

const paramRequestListLen = 2

func (m *ParamRequestList) MsgID() uint32 { return MSG_ID_PARAM_REQUEST_LIST }
func (m *ParamRequestList) Marshal() []byte {
	return []byte{m.TargetSystem, m.TargetComponent}
}
func (m *ParamRequestList) Unmarshal(payload []byte) error {
	b, err := extend(payload, paramRequestListLen)
	if err != nil {
		return err
	}
	m.TargetSystem = b[0]
	m.TargetComponent = b[1]
	return nil
}

type ParamValue struct {
	Value float32
	Count uint16
	Index uint16
	ID    string
	Type  ParamType
}

const paramValueLen = 25

func (m *ParamValue) MsgID() uint32 { return MSG_ID_PARAM_VALUE }
func (m *ParamValue) Marshal() []byte {
	b := make([]byte, paramValueLen)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(m.Value))
	binary.LittleEndian.PutUint16(b[4:], m.Count)
	binary.LittleEndian.PutUint16(b[6:], m.Index)
	putParamID(b[8:], m.ID)
	b[24] = byte(m.Type)
	return b
}
func (m *ParamValue) Unmarshal(payload []byte) error {
	b, err := extend(payload, paramValueLen)
	if err != nil {
		return err
	}
	m.Value = math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))
	m.Count = binary.LittleEndian.Uint16(b[4:])
	m.Index = binary.LittleEndian.Uint16(b[6:])
	m.ID = getParamID(b[8:])
	m.Type = ParamType(b[24])
	return nil
}

type ParamSet struct {
	Value           float32
	TargetSystem    uint8
	TargetComponent uint8
	ID              string
	Type            ParamType
}

const paramSetLen = 23

func (m *ParamSet) MsgID() uint32 { return MSG_ID_PARAM_SET }
func (m *ParamSet) Marshal() []byte {
	b := make([]byte, paramSetLen)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(m.Value))
	b[4] = m.TargetSystem
	b[5] = m.TargetComponent
	putParamID(b[6:], m.ID)
	b[22] = byte(m.Type)
	return b
}
func (m *ParamSet) Unmarshal(payload []byte) error {
	b, err := extend(payload, paramSetLen)
	if err != nil {
		return err
	}
	m.Value = math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))
	m.TargetSystem = b[4]
	m.TargetComponent = b[5]
	m.ID = getParamID(b[6:])
	m.Type = ParamType(b[22])
	return nil
}

type CommandLong struct {
	Params          [7]float32
	Command         uint16
	TargetSystem    uint8
	TargetComponent uint8
	Confirmation    uint8
}

const commandLongLen = 33

func (m *CommandLong) MsgID() uint32 { return MSG_ID_COMMAND_LONG }
func (m *CommandLong) Marshal() []byte {
	b := make([]byte, commandLongLen)
	for i, p := range m.Params {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(p))
	}
	binary.LittleEndian.PutUint16(b[28:], m.Command)
	b[30] = m.TargetSystem
	b[31] = m.TargetComponent
	b[32] = m.Confirmation
	return b
}
func (m *CommandLong) Unmarshal(payload []byte) error {
	b, err := extend(payload, commandLongLen)
	if err != nil {
		return err
	}
	for i := range m.Params {
		m.Params[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	m.Command = binary.LittleEndian.Uint16(b[28:])
	m.TargetSystem = b[30]
	m.TargetComponent = b[31]
	m.Confirmation = b[32]
	return nil
}

// CommandAck without v2 extension fields.
type CommandAck struct {
	Command uint16
	Result  MavResult
}

const commandAckLen = 3

func (m *CommandAck) MsgID() uint32 { return MSG_ID_COMMAND_ACK }
func (m *CommandAck) Marshal() []byte {
	b := make([]byte, commandAckLen)
	binary.LittleEndian.PutUint16(b[0:], m.Command)
	b[2] = byte(m.Result)
	return b
}
func (m *CommandAck) Unmarshal(payload []byte) error {
	b, err := extend(payload, commandAckLen)
	if err != nil {
		return err
	}
	m.Command = binary.LittleEndian.Uint16(b[0:])
	m.Result = MavResult(b[2])
	return nil
}

// extend returns payload zero padded to n, longer payload carries
// extension fields and is accepted as is.
func extend(payload []byte, n int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.NotValidf("empty payload")
	}
	if len(payload) >= n {
		return payload, nil
	}
	b := make([]byte, n)
	copy(b, payload)
	return b, nil
}

func putParamID(b []byte, id string) {
	copy(b[:paramIDLen], id)
}

func getParamID(b []byte) string {
	b = b[:paramIDLen]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ParamValueDecode converts wire float to numeric value.
// Bytewise firmwares put integer bits directly into float field.
func ParamValueDecode(raw float32, t ParamType, bytewise bool) float64 {
	if !bytewise {
		return float64(raw)
	}
	bits := math.Float32bits(raw)
	switch t {
	case PARAM_TYPE_UINT8:
		return float64(uint8(bits))
	case PARAM_TYPE_INT8:
		return float64(int8(bits))
	case PARAM_TYPE_UINT16:
		return float64(uint16(bits))
	case PARAM_TYPE_INT16:
		return float64(int16(bits))
	case PARAM_TYPE_UINT32:
		return float64(bits)
	case PARAM_TYPE_INT32:
		return float64(int32(bits))
	}
	return float64(raw)
}

func ParamValueEncode(v float64, t ParamType, bytewise bool) float32 {
	if !bytewise {
		return float32(v)
	}
	var bits uint32
	switch t {
	case PARAM_TYPE_UINT8:
		bits = uint32(uint8(v))
	case PARAM_TYPE_INT8:
		bits = uint32(uint8(int8(v)))
	case PARAM_TYPE_UINT16:
		bits = uint32(uint16(v))
	case PARAM_TYPE_INT16:
		bits = uint32(uint16(int16(v)))
	case PARAM_TYPE_UINT32:
		bits = uint32(v)
	case PARAM_TYPE_INT32:
		bits = uint32(int32(v))
	default:
		return float32(v)
	}
	return math.Float32frombits(bits)
}
