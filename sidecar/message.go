package sidecar

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/juju/errors"
)

const headerLen = 8

var ErrTooLarge = errors.New("sidecar message too large")

// Message is TLV record: u32 LE type, u32 LE length, value.
type Message struct {
	Type  uint32
	Value []byte
}

func (m Message) String() string { return fmt.Sprintf("sidecar(type=%d len=%d)", m.Type, len(m.Value)) }

func (m Message) Marshal() []byte {
	b := make([]byte, headerLen+len(m.Value))
	binary.LittleEndian.PutUint32(b[0:], m.Type)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(m.Value)))
	copy(b[headerLen:], m.Value)
	return b
}

type Decoder struct {
	r   *bufio.Reader
	max uint32
}

func NewDecoder(r io.Reader, max uint32) *Decoder {
	return &Decoder{r: bufio.NewReader(r), max: max}
}

func (d *Decoder) Read() (Message, error) {
	header, err := d.r.Peek(headerLen)
	switch err {
	case nil:
	case io.EOF:
		if len(header) == 0 {
			return Message{}, err
		}
		return Message{}, errors.Annotate(io.ErrUnexpectedEOF, "header")
	default:
		return Message{}, errors.Annotate(err, "header")
	}
	m := Message{Type: binary.LittleEndian.Uint32(header[0:])}
	length := binary.LittleEndian.Uint32(header[4:])
	if d.max != 0 && length > d.max {
		return Message{}, errors.Annotatef(ErrTooLarge, "type=%d length=%d max=%d", m.Type, length, d.max)
	}
	if _, err = d.r.Discard(headerLen); err != nil {
		return Message{}, errors.Annotate(err, "discard")
	}
	m.Value = make([]byte, length)
	_, err = io.ReadFull(d.r, m.Value)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return Message{}, errors.Annotate(err, "readfull")
	}
	return m, nil
}
