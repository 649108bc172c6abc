// Package mavlink implements MAVLink v1/v2 framing and the few message
// bodies ground control core consumes.
package mavlink

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/gclink/crc"
)

type Version uint8

const (
	VersionAuto Version = 0
	V1          Version = 1
	V2          Version = 2
)

func (v Version) String() string {
	switch v {
	case VersionAuto:
		return "auto"
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("Version(%d)", uint8(v))
}

const (
	MagicV1 byte = 0xfe
	MagicV2 byte = 0xfd

	IncompatSigned byte = 0x01

	headerLenV1  = 6
	headerLenV2  = 10
	checksumLen  = 2
	signatureLen = 13

	MaxPayload = 255
	// MaxFrame is v2 header + payload + checksum + signature.
	MaxFrame = headerLenV2 + MaxPayload + checksumLen + signatureLen
)

type Packet struct {
	Version   Version
	Incompat  uint8
	Compat    uint8
	Seq       uint8
	SysID     uint8
	CompID    uint8
	MsgID     uint32
	Payload   []byte
	Signature []byte

	raw []byte // received frame of id without CRC_EXTRA
}

// NewPacket wraps message body. Header fields are filled by sender.
func NewPacket(m Message) *Packet {
	return &Packet{MsgID: m.MsgID(), Payload: m.Marshal()}
}

// Known reports whether checksum of this message id can be verified.
// Unknown packets are passed through as received.
func (p *Packet) Known() bool {
	_, ok := CRCExtra(p.MsgID)
	return ok
}

func (p *Packet) Signed() bool { return p.Incompat&IncompatSigned != 0 }

// Bytes encodes frame. Version auto is encoded as v1 when message id fits.
// v2 payload is truncated of trailing zeros, outgoing frames are never signed.
func (p *Packet) Bytes() ([]byte, error) {
	extra, ok := CRCExtra(p.MsgID)
	if !ok {
		if p.raw != nil {
			return append([]byte(nil), p.raw...), nil
		}
		return nil, errors.NotSupportedf("mavlink encode msgid=%d crc extra", p.MsgID)
	}
	version := p.Version
	if version == VersionAuto {
		version = V1
		if p.MsgID > 0xff {
			version = V2
		}
	}
	payload := p.Payload
	if len(payload) > MaxPayload {
		return nil, errors.NotValidf("mavlink encode msgid=%d payload length=%d", p.MsgID, len(payload))
	}

	var b []byte
	switch version {
	case V1:
		if p.MsgID > 0xff {
			return nil, errors.NotValidf("mavlink v1 msgid=%d", p.MsgID)
		}
		b = make([]byte, headerLenV1, headerLenV1+len(payload)+checksumLen)
		b[0] = MagicV1
		b[1] = byte(len(payload))
		b[2] = p.Seq
		b[3] = p.SysID
		b[4] = p.CompID
		b[5] = byte(p.MsgID)
	case V2:
		for len(payload) > 1 && payload[len(payload)-1] == 0 {
			payload = payload[:len(payload)-1]
		}
		b = make([]byte, headerLenV2, headerLenV2+len(payload)+checksumLen)
		b[0] = MagicV2
		b[1] = byte(len(payload))
		b[2] = p.Incompat &^ IncompatSigned
		b[3] = p.Compat
		b[4] = p.Seq
		b[5] = p.SysID
		b[6] = p.CompID
		b[7] = byte(p.MsgID)
		b[8] = byte(p.MsgID >> 8)
		b[9] = byte(p.MsgID >> 16)
	default:
		return nil, errors.NotValidf("mavlink version=%s", version)
	}
	b = append(b, payload...)
	sum := checksum(b[1:], extra)
	b = append(b, byte(sum), byte(sum>>8))
	return b, nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s(seq=%d sys=%d comp=%d id=%d payload=%s)",
		p.Version, p.Seq, p.SysID, p.CompID, p.MsgID, hex.EncodeToString(p.Payload))
}

// Copy returns deep copy, safe to keep after parser reuses buffers.
func (p *Packet) Copy() *Packet {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)
	if p.Signature != nil {
		c.Signature = append([]byte(nil), p.Signature...)
	}
	if p.raw != nil {
		c.raw = append([]byte(nil), p.raw...)
	}
	return &c
}

func checksum(b []byte, extra byte) uint16 {
	sum := crc.X25_n(crc.X25Init, b)
	return crc.X25(sum, extra)
}

func frameChecksum(frame []byte) uint16 {
	return binary.LittleEndian.Uint16(frame)
}
