package link

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gclink/mavlink"
)

type Kind string

const (
	KindUDP    Kind = "udp"
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
	KindMock   Kind = "mock"
)

const (
	DefaultReadBuffer  = 4096
	DefaultBaud        = 57600
	DefaultDialTimeout = 10 * time.Second
)

// Config is immutable connection description, copied into Conn at construction.
type Config struct {
	Kind Kind
	// udp: local listen address, tcp: remote address, serial: device path
	Endpoint string
	// udp only: initial peer until first datagram is received
	Remote      string
	Baud        int
	Protocol    mavlink.Version
	SysID       uint8
	CompID      uint8
	ReadBuffer  int
	DialTimeout time.Duration
}

func (c Config) String() string {
	switch c.Kind {
	case KindSerial:
		return fmt.Sprintf("serial:%s@%d", c.Endpoint, c.Baud)
	case KindUDP:
		if c.Remote != "" {
			return fmt.Sprintf("udp:%s->%s", c.Endpoint, c.Remote)
		}
	}
	return fmt.Sprintf("%s:%s", c.Kind, c.Endpoint)
}

func (c Config) Validate() error {
	switch c.Kind {
	case KindUDP, KindTCP, KindSerial:
		if c.Endpoint == "" {
			return errors.NotValidf("link kind=%s endpoint empty", c.Kind)
		}
	case KindMock:
	case "":
		return errors.NotValidf("link kind empty")
	default:
		return errors.NotValidf("link kind=%s", c.Kind)
	}
	switch c.Protocol {
	case mavlink.VersionAuto, mavlink.V1, mavlink.V2:
	default:
		return errors.NotValidf("link protocol=%s", c.Protocol)
	}
	if c.Baud < 0 || c.ReadBuffer < 0 {
		return errors.NotValidf("link baud=%d read_buffer=%d", c.Baud, c.ReadBuffer)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ReadBuffer == 0 {
		c.ReadBuffer = DefaultReadBuffer
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.SysID == 0 {
		c.SysID = mavlink.DefaultGCSSystemID
	}
	if c.CompID == 0 {
		c.CompID = mavlink.MAV_COMP_ID_MISSIONPLANNER
	}
	return c
}
