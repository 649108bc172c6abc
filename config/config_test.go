package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gclink/link"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/tlog"
)

type fakePublisher struct{}

func (fakePublisher) Publish(string, []byte) error { return nil }

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			lc := c.LinkConfig()
			assert.Equal(t, link.KindUDP, lc.Kind)
			assert.Equal(t, "0.0.0.0:14550", lc.Endpoint)
			assert.Equal(t, mavlink.VersionAuto, lc.Protocol)
			assert.Equal(t, log2.LInfo, c.LogLevel())
			bc := c.BrokerConfig(nil)
			assert.Equal(t, time.Second, bc.GCSHeartbeat)
			assert.Equal(t, 5*time.Second, bc.HeartbeatTimeout)
			assert.Equal(t, time.Second, bc.Param.Timeout)
			assert.Equal(t, 2, bc.Command.Retries)
			assert.False(t, bc.SidecarApplies())
			assert.False(t, bc.Export.Enabled())
		}, ""},
		{"link-serial", `link { kind = "serial" endpoint = "/dev/ttyACM0" baud = 115200 protocol = 2 }`, func(t testing.TB, c *Config) {
			lc := c.LinkConfig()
			assert.Equal(t, link.KindSerial, lc.Kind)
			assert.Equal(t, 115200, lc.Baud)
			assert.Equal(t, mavlink.V2, lc.Protocol)
		}, ""},
		{"gcs", `gcs { system_id = 250 component_id = 191 heartbeat_ms = -1 }`, func(t testing.TB, c *Config) {
			lc := c.LinkConfig()
			assert.Equal(t, uint8(250), lc.SysID)
			assert.Equal(t, uint8(191), lc.CompID)
			assert.Equal(t, time.Duration(0), c.BrokerConfig(nil).GCSHeartbeat)
		}, ""},
		{"retries-disabled", `vehicle { command_retries = -1 command_timeout_ms = 300 }`, func(t testing.TB, c *Config) {
			bc := c.BrokerConfig(nil)
			assert.Equal(t, 0, bc.Command.Retries)
			assert.Equal(t, 300*time.Millisecond, bc.Command.Timeout)
		}, ""},
		{"sidecar", `sidecar { enable = true retry_ms = 50 }`, func(t testing.TB, c *Config) {
			bc := c.BrokerConfig(nil)
			assert.True(t, bc.SidecarApplies())
			assert.Equal(t, "10.1.1.10:5507", bc.Sidecar.Addr)
			assert.Equal(t, 50*time.Millisecond, bc.Sidecar.RetryDelay)
		}, ""},
		{"upload", `upload { enable = true broker = "tcp://m:1883" topic_prefix = "fleet" } tlog { dir = "/tmp/t" }`, func(t testing.TB, c *Config) {
			assert.Nil(t, c.BrokerConfig(nil).Export.Publisher)
			bc := c.BrokerConfig(fakePublisher{})
			assert.NotNil(t, bc.Export.Publisher)
			assert.Equal(t, "/tmp/t", bc.Export.Dir)
			assert.Equal(t, "fleet", bc.Export.TopicPrefix)
			assert.Equal(t, DefaultSpoolDir, bc.Export.SpoolDir)
			assert.Equal(t, tlog.DefaultRetryDelay, bc.Export.RetryDelay)
			assert.Equal(t, "tcp://m:1883", c.MQTTConfig().Broker)
		}, ""},
		{"include", `include "tcp" {} link { endpoint = "override:5760" }`, func(t testing.TB, c *Config) {
			lc := c.LinkConfig()
			assert.Equal(t, link.KindTCP, lc.Kind)
			assert.Equal(t, "10.0.0.1:5760", lc.Endpoint, "include is read after including source")
		}, ""},
		{"include-optional", `include "missing" { optional = true }`, nil, ""},

		{"error-include-required", `include "missing" {}`, nil, "config required name=missing"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-kind", `link { kind = "carrier-pigeon" }`, nil, "link kind=carrier-pigeon"},
		{"error-upload", `upload { enable = true }`, nil, "upload enabled without broker"},
		{"error-log-level", `log { level = "loud" }`, nil, "log level=loud"},
		{"error-gcs", `gcs { system_id = 300 }`, nil, "system_id=300"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"tcp":          `link { kind = "tcp" endpoint = "10.0.0.1:5760" }`,
				"include-loop": `include "include-loop" {}`,
			})
			name := "test-inline"
			if strings.HasPrefix(c.name, "error-include-loop") {
				name = "include-loop"
			}
			cfg, err := ReadConfig(log, fs, name)
			if c.expectErr == "" {
				require.NoError(t, err, errors.ErrorStack(err))
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestReadConfigNoNames(t *testing.T) {
	t.Parallel()
	_, err := ReadConfig(log2.NewTest(t, log2.LDebug), NewMockFullReader(nil))
	assert.True(t, errors.IsNotValid(err))
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../gclink.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../gclink.hcl")
	assert.Equal(t, link.KindUDP, c.LinkConfig().Kind)
	assert.False(t, c.Upload.Enable)
}
