package link

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/gclink/mavlink"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	type Case struct {
		name  string
		c     Config
		valid bool
	}
	cases := []Case{
		{"udp", Config{Kind: KindUDP, Endpoint: ":14550"}, true},
		{"tcp", Config{Kind: KindTCP, Endpoint: "127.0.0.1:5760"}, true},
		{"serial", Config{Kind: KindSerial, Endpoint: "/dev/ttyACM0", Baud: 115200}, true},
		{"mock", Config{Kind: KindMock}, true},
		{"empty-kind", Config{Endpoint: ":14550"}, false},
		{"unknown-kind", Config{Kind: "can", Endpoint: "can0"}, false},
		{"empty-endpoint", Config{Kind: KindTCP}, false},
		{"bad-protocol", Config{Kind: KindMock, Protocol: 3}, false},
		{"negative-baud", Config{Kind: KindSerial, Endpoint: "/dev/ttyS0", Baud: -1}, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			err := c.c.Validate()
			if c.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsNotValid(err), "err=%v", err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	c := Config{Kind: KindSerial, Endpoint: "/dev/ttyUSB0"}.withDefaults()
	assert.Equal(t, DefaultBaud, c.Baud)
	assert.Equal(t, DefaultReadBuffer, c.ReadBuffer)
	assert.Equal(t, DefaultDialTimeout, c.DialTimeout)
	assert.Equal(t, mavlink.DefaultGCSSystemID, c.SysID)
	assert.Equal(t, mavlink.MAV_COMP_ID_MISSIONPLANNER, c.CompID)
	assert.Equal(t, "serial:/dev/ttyUSB0@57600", c.String())
	assert.Equal(t, "udp:0.0.0.0:14550->10.0.0.2:14555", Config{Kind: KindUDP, Endpoint: "0.0.0.0:14550", Remote: "10.0.0.2:14555"}.String())
	assert.Equal(t, "tcp:sitl:5760", Config{Kind: KindTCP, Endpoint: "sitl:5760"}.String())
}
