package mavlink

import (
	"bytes"
	"sync/atomic"
)

// Packets counts every delivered frame, Unknown those delivered without checksum verification.
type ParserStat struct {
	Packets uint32
	BadCRC  uint32
	Unknown uint32
	Skipped uint32
}

// Parser is incremental frame decoder over byte stream.
// Not safe for concurrent use, one parser per read loop.
type Parser struct {
	buf  []byte
	stat ParserStat
}

func NewParser() *Parser {
	return &Parser{buf: make([]byte, 0, 2*MaxFrame)}
}

// Feed appends b to internal buffer and returns complete packets in stream order.
// Incomplete frame tail is kept until next Feed.
func (self *Parser) Feed(b []byte) []*Packet {
	self.buf = append(self.buf, b...)
	var out []*Packet
	off := 0
	for off < len(self.buf) {
		rest := self.buf[off:]
		start := indexMagic(rest)
		if start < 0 {
			atomic.AddUint32(&self.stat.Skipped, uint32(len(rest)))
			off = len(self.buf)
			break
		}
		if start > 0 {
			atomic.AddUint32(&self.stat.Skipped, uint32(start))
			off += start
			rest = rest[start:]
		}

		total, ok := frameLen(rest)
		if !ok || len(rest) < total {
			break // wait for more bytes
		}
		p, status := decodeFrame(rest[:total])
		switch status {
		case frameOk:
			atomic.AddUint32(&self.stat.Packets, 1)
			out = append(out, p)
			off += total
		case frameUnknown:
			atomic.AddUint32(&self.stat.Packets, 1)
			atomic.AddUint32(&self.stat.Unknown, 1)
			out = append(out, p)
			off += total
		case frameBadCRC:
			atomic.AddUint32(&self.stat.BadCRC, 1)
			off++
		}
	}
	n := copy(self.buf, self.buf[off:])
	self.buf = self.buf[:n]
	return out
}

func (self *Parser) Buffered() int { return len(self.buf) }

func (self *Parser) Reset() { self.buf = self.buf[:0] }

func (self *Parser) Stat() ParserStat {
	return ParserStat{
		Packets: atomic.LoadUint32(&self.stat.Packets),
		BadCRC:  atomic.LoadUint32(&self.stat.BadCRC),
		Unknown: atomic.LoadUint32(&self.stat.Unknown),
		Skipped: atomic.LoadUint32(&self.stat.Skipped),
	}
}

func indexMagic(b []byte) int {
	i1 := bytes.IndexByte(b, MagicV1)
	i2 := bytes.IndexByte(b, MagicV2)
	switch {
	case i1 < 0:
		return i2
	case i2 < 0:
		return i1
	case i1 < i2:
		return i1
	}
	return i2
}

// frameLen returns total frame length once enough header bytes arrived.
func frameLen(b []byte) (int, bool) {
	switch b[0] {
	case MagicV1:
		if len(b) < 2 {
			return 0, false
		}
		return headerLenV1 + int(b[1]) + checksumLen, true
	case MagicV2:
		if len(b) < 3 {
			return 0, false
		}
		total := headerLenV2 + int(b[1]) + checksumLen
		if b[2]&IncompatSigned != 0 {
			total += signatureLen
		}
		return total, true
	}
	panic("code error frameLen without magic")
}

type frameStatus uint8

const (
	frameOk frameStatus = iota
	frameUnknown
	frameBadCRC
)

func decodeFrame(frame []byte) (*Packet, frameStatus) {
	p := &Packet{}
	var hlen int
	switch frame[0] {
	case MagicV1:
		hlen = headerLenV1
		p.Version = V1
		p.Seq = frame[2]
		p.SysID = frame[3]
		p.CompID = frame[4]
		p.MsgID = uint32(frame[5])
	case MagicV2:
		hlen = headerLenV2
		p.Version = V2
		p.Incompat = frame[2]
		p.Compat = frame[3]
		p.Seq = frame[4]
		p.SysID = frame[5]
		p.CompID = frame[6]
		p.MsgID = uint32(frame[7]) | uint32(frame[8])<<8 | uint32(frame[9])<<16
	}
	plen := int(frame[1])
	extra, ok := CRCExtra(p.MsgID)
	status := frameOk
	if !ok {
		status = frameUnknown
		p.raw = append([]byte(nil), frame...)
	} else if checksum(frame[1:hlen+plen], extra) != frameChecksum(frame[hlen+plen:]) {
		return nil, frameBadCRC
	}
	p.Payload = append([]byte(nil), frame[hlen:hlen+plen]...)
	if p.Version == V2 && p.Signed() {
		sigStart := hlen + plen + checksumLen
		p.Signature = append([]byte(nil), frame[sigStart:sigStart+signatureLen]...)
	}
	return p, status
}
