// Package tlog exports raw MAVLink frames per client session:
// telemetry log files and live MQTT upload.
package tlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/spq"
)

const stampLen = 8

// Exporter consumes frames of one session. Write must not block on network.
type Exporter interface {
	Write(t time.Time, frame []byte) error
	Close() error
}

// Record is tlog line: big-endian unix microseconds followed by raw frame.
func Record(t time.Time, frame []byte) []byte {
	b := make([]byte, stampLen+len(frame))
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()/int64(time.Microsecond)))
	copy(b[stampLen:], frame)
	return b
}

// ParseRecord splits record produced by Record.
func ParseRecord(b []byte) (time.Time, []byte, error) {
	if len(b) < stampLen {
		return time.Time{}, nil, errors.NotValidf("tlog record len=%d", len(b))
	}
	us := int64(binary.BigEndian.Uint64(b))
	return time.Unix(0, us*int64(time.Microsecond)), b[stampLen:], nil
}

type FileExporter struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// NewFile creates dir/<time>_<session>.tlog
func NewFile(dir string, session string, now time.Time) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Annotate(err, "tlog mkdir")
	}
	name := fmt.Sprintf("%s_%s.tlog", now.Format("2006-01-02_15-04-05"), SafeName(session))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Annotate(err, "tlog open")
	}
	return &FileExporter{f: f, path: path}, nil
}

func (self *FileExporter) Path() string { return self.path }

func (self *FileExporter) Write(t time.Time, frame []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return os.ErrClosed
	}
	return helpers.WriteAll(self.f, Record(t, frame))
}

func (self *FileExporter) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return nil
	}
	self.closed = true
	return self.f.Close()
}

// SafeName keeps session id usable as file name and MQTT topic level.
func SafeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}

// Multi fans out to every exporter, errors are folded.
type Multi []Exporter

func (self Multi) Write(t time.Time, frame []byte) error {
	var errs []error
	for _, e := range self {
		if err := e.Write(t, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (self Multi) Close() error {
	var errs []error
	for _, e := range self {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

// SessionConfig opens per session exporters. Empty Dir disables file capture,
// nil Publisher disables live upload.
type SessionConfig struct {
	Dir         string
	Publisher   Publisher
	TopicPrefix string
	SpoolDir    string
	RetryDelay  time.Duration
}

func (c SessionConfig) Enabled() bool { return c.Dir != "" || c.Publisher != nil }

// Open returns nil Exporter when nothing is enabled.
func (c SessionConfig) Open(session string, log *log2.Log) (Exporter, error) {
	var m Multi
	if c.Dir != "" {
		f, err := NewFile(c.Dir, session, time.Now())
		if err != nil {
			return nil, errors.Annotatef(err, "session=%s", session)
		}
		m = append(m, f)
	}
	if c.Publisher != nil {
		spool := c.SpoolDir
		if spool != spq.OnlyForTesting {
			spool = filepath.Join(c.SpoolDir, SafeName(session))
		}
		q, err := NewMQTT(c.Publisher, Topic(c.TopicPrefix, session), spool, c.RetryDelay, log)
		if err != nil {
			_ = m.Close()
			return nil, errors.Annotatef(err, "session=%s", session)
		}
		m = append(m, q)
	}
	switch len(m) {
	case 0:
		return nil, nil
	case 1:
		return m[0], nil
	}
	return m, nil
}
