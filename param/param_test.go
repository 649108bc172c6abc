package param

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/vehicle"
)

func TestRollCall(t *testing.T) {
	t.Parallel()
	var r rollCall
	for _, i := range []int{0, 1, 3, 64, 130} {
		r.set(i)
	}
	assert.Equal(t, 5, r.count())
	assert.True(t, r.get(64))
	assert.False(t, r.get(65))
	assert.False(t, r.get(1000))
	assert.Equal(t, []int{2, 4}, r.missing(5))
	r.reset()
	assert.Equal(t, 0, r.count())
	assert.Equal(t, []int{0, 1}, r.missing(2))
}

func TestLoadMetadataEmbedded(t *testing.T) {
	t.Parallel()

	type Case struct {
		f       vehicle.Firmware
		name    string
		display string
	}
	cases := []Case{
		{vehicle.FirmwareArduCopter, "RTL_ALT", "RTL Altitude"},
		{vehicle.FirmwareArduCopter, "sysid_thismav", "MAVLink system ID of this vehicle"},
		{vehicle.FirmwareArduPlane, "TRIM_ARSPD_CM", "Target airspeed"},
		{vehicle.FirmwareArduRover, "CRUISE_SPEED", "Target cruise speed in auto modes"},
		{vehicle.FirmwarePX4, "MPC_XY_VEL_MAX", "Maximum horizontal velocity"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.f.String()+"/"+c.name, func(t *testing.T) {
			t.Parallel()
			table, err := LoadMetadata(c.f, "")
			require.NoError(t, err)
			m := table.Lookup(c.name)
			require.NotNil(t, m)
			assert.Equal(t, c.display, m.DisplayName)
		})
	}

	table, err := LoadMetadata(vehicle.FirmwareArduPlane, "")
	require.NoError(t, err)
	assert.Nil(t, table.Lookup("RTL_ALT"), "copter group excluded")
	table, err = LoadMetadata(vehicle.FirmwareGeneric, "")
	assert.NoError(t, err)
	assert.Nil(t, table.Lookup("RTL_ALT"))
}

func TestLoadMetadataDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "px4.toml"), []byte("[CUSTOM_P]\nunits = \"Hz\"\n"), 0644))
	table, err := LoadMetadata(vehicle.FirmwarePX4, dir)
	require.NoError(t, err)
	assert.Equal(t, "Hz", table.Lookup("custom_p").Units)
	assert.Nil(t, table.Lookup("MAV_SYS_ID"), "dir file replaces embedded")

	// no override for ardupilot in dir
	table, err = LoadMetadata(vehicle.FirmwareArduCopter, dir)
	require.NoError(t, err)
	assert.NotNil(t, table.Lookup("RTL_ALT"))

	_, err = ParsePX4([]byte("[broken"))
	assert.Error(t, err)
	_, err = ParseArduPilot([]byte("common: [1, 2"), "arducopter")
	assert.Error(t, err)
}

func TestParameterValue(t *testing.T) {
	t.Parallel()
	p := Parameter{Name: "RC1_MIN", Value: 1100, Type: mavlink.PARAM_TYPE_INT16, Meta: &Metadata{Units: "PWM"}}
	assert.Equal(t, "1100", p.ValueString())
	assert.Equal(t, "RC1_MIN=1100 (int16) PWM", p.String())
	v, err := p.ParseValue("0x10")
	require.NoError(t, err)
	assert.Equal(t, float64(16), v)
	_, err = p.ParseValue("1.5")
	assert.True(t, errors.IsNotValid(err))

	f := Parameter{Name: "WP_RADIUS", Value: 2.5, Type: mavlink.PARAM_TYPE_REAL32}
	assert.Equal(t, "2.5", f.ValueString())
	v, err = f.ParseValue(" 3.25 ")
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)
	_, err = f.ParseValue("x")
	assert.Error(t, err)
}
