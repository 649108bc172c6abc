package helpers

import (
	"io"

	"github.com/juju/errors"
)

// WriteAll retries partial writes of frame b.
// Writer making no progress yields io.ErrShortWrite as cause.
func WriteAll(w io.Writer, b []byte) error {
	total := len(b)
	for len(b) > 0 {
		n, err := w.Write(b)
		b = b[n:]
		if err != nil {
			return errors.Annotatef(err, "written=%d/%d", total-len(b), total)
		}
		if n == 0 {
			return errors.Annotatef(io.ErrShortWrite, "written=%d/%d", total-len(b), total)
		}
	}
	return nil
}
