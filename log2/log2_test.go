package log2

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestLevelFilter(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		level  Level
		expect string
	}
	cases := []Case{
		{"error", LError, "error: link udp:0.0.0.0:14550 read: EOF\n"},
		{"info", LInfo, "link connected\nerror: link udp:0.0.0.0:14550 read: EOF\n"},
		{"debug", LDebug, "debug: param index=3 received\nlink connected\nerror: link udp:0.0.0.0:14550 read: EOF\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, c.level)
			l.SetFlags(0)
			l.Debugf("param index=%d received", 3)
			l.Info("link connected")
			l.Errorf("link %s read: %s", "udp:0.0.0.0:14550", "EOF")
			assert.Equal(t, c.expect, buf.String())
		})
	}
}

func TestNilSafe(t *testing.T) {
	t.Parallel()
	var l *Log
	assert.False(t, l.Enabled(LError))
	assert.Nil(t, l.Clone(LDebug))
	l.SetLevel(LDebug)
	l.SetFlags(0)
	l.SetPrefix("x ")
	l.SetErrorFunc(func(error) { t.Error("must not be called on nil log") })
	l.Debugf("d")
	l.Info("i")
	l.Error(errors.New("e"))
	l.Println("p", 1)
}

func TestErrorFunc(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LError)
	l.SetFlags(0)
	var got []error
	l.SetErrorFunc(func(e error) { got = append(got, e) })

	exact := errors.NotFoundf("session=%s", "console")
	l.Error(exact)
	l.Errorf("sidecar dial attempt=%d", 2)
	l.Error("command", " timeout")
	l.Info("not an error")

	if assert.Len(t, got, 3) {
		assert.Equal(t, exact, got[0])
		assert.True(t, errors.IsNotFound(got[0]))
		assert.Equal(t, "sidecar dial attempt=2", got[1].Error())
		assert.Equal(t, "command timeout", got[2].Error())
	}
	assert.Equal(t, "error: session=console not found\nerror: sidecar dial attempt=2\nerror: command timeout\n", buf.String())
}

func TestClone(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	parent := NewWriter(buf, LError)
	parent.SetFlags(0)
	parent.SetPrefix("gclink ")
	hooked := 0
	parent.SetErrorFunc(func(error) { hooked++ })

	child := parent.Clone(LDebug)
	child.Debugf("tlog record len=%d", 17)
	parent.Debugf("hidden")
	child.Errorf("spool")
	assert.Equal(t, "gclink debug: tlog record len=17\ngclink error: spool\n", buf.String())
	assert.Equal(t, 1, hooked)
}

func TestMQTTLoggerSurface(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(0)
	l.Println("[client]", "connect", "started")
	l.Printf("[net] packet id=%d", 5)
	assert.Equal(t, "[client] connect started\n[net] packet id=5\n", buf.String())
}

func TestShortfileCaller(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(Lshortfile)
	_, file, line, _ := runtime.Caller(0)
	l.Infof("vehicle sys=%d", 1)
	assert.Equal(t, fmt.Sprintf("%s:%d: vehicle sys=1\n", filepath.Base(file), line+1), buf.String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input  string
		expect Level
		ok     bool
	}{
		{"", LInfo, true},
		{"info", LInfo, true},
		{"error", LError, true},
		{"debug", LDebug, true},
		{"all", LAll, true},
		{"trace", LInfo, false},
	}
	for _, c := range cases {
		level, ok := ParseLevel(c.input)
		assert.Equal(t, c.expect, level, c.input)
		assert.Equal(t, c.ok, ok, c.input)
	}
}

func TestNewTest(t *testing.T) {
	t.Parallel()
	l := NewTest(t, LDebug)
	assert.True(t, l.Enabled(LDebug))
	assert.False(t, l.Enabled(LAll))
	l.Debugf("visible in verbose test output")
}
