//go:build !linux

package link

import (
	"context"

	"github.com/juju/errors"
)

type serialChannel struct{ c Config }

func newSerialChannel(c Config) Channel { return &serialChannel{c: c} }

func (self *serialChannel) String() string { return self.c.String() }
func (self *serialChannel) Open(ctx context.Context) error {
	return errors.NotSupportedf("serial link on this platform")
}
func (self *serialChannel) Read(p []byte) (int, error)  { return 0, errors.NotSupportedf("serial") }
func (self *serialChannel) Write(p []byte) (int, error) { return 0, errors.NotSupportedf("serial") }
func (self *serialChannel) Close() error                { return nil }
