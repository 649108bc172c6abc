//go:build linux

package link

import (
	"context"
	"os"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const (
	cBOTHER  = 0x1000
	cTCGETS2 = 0x802c542a
	cTCSETS2 = 0x402c542b
)

type serialChannel struct {
	c Config
	f *os.File
}

func newSerialChannel(c Config) Channel { return &serialChannel{c: c} }

func (self *serialChannel) String() string { return self.c.String() }

// Open configures raw 8N1 at arbitrary baud via termios2.
// File is non-blocking and registered with runtime poller, so Close unblocks Read.
func (self *serialChannel) Open(ctx context.Context) error {
	f, err := os.OpenFile(self.c.Endpoint, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return errors.Annotatef(err, "serial open %s", self.c.Endpoint)
	}
	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return errors.Annotate(err, "serial SyscallConn")
	}
	var terr error
	err = rc.Control(func(fd uintptr) { terr = setRaw(int(fd), self.c.Baud) })
	if err == nil {
		err = terr
	}
	if err != nil {
		f.Close()
		return errors.Annotatef(err, "serial configure %s baud=%d", self.c.Endpoint, self.c.Baud)
	}
	if err = ctx.Err(); err != nil {
		f.Close()
		return err
	}
	self.f = f
	return nil
}

func (self *serialChannel) Read(p []byte) (int, error)  { return self.f.Read(p) }
func (self *serialChannel) Write(p []byte) (int, error) { return self.f.Write(p) }
func (self *serialChannel) Close() error {
	if self.f == nil {
		return nil
	}
	return self.f.Close()
}

func setRaw(fd int, baud int) error {
	t, err := unix.IoctlGetTermios(fd, cTCGETS2)
	if err != nil {
		return errors.Annotate(err, "TCGETS2")
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | cBOTHER
	t.Ispeed = uint32(baud)
	t.Ospeed = uint32(baud)
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err = unix.IoctlSetTermios(fd, cTCSETS2, t); err != nil {
		return errors.Annotate(err, "TCSETS2")
	}
	return nil
}
