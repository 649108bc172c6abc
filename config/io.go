package config

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// FullReader resolves and reads config sources by name.
// ReadAll returns nil,nil for missing source so optional includes can be skipped.
type FullReader interface {
	Normalize(name string) string
	ReadAll(name string) ([]byte, error)
}

// OsFullReader resolves relative names against base directory.
type OsFullReader struct {
	base string
}

func NewOsFullReader() *OsFullReader { return &OsFullReader{} }

func (self *OsFullReader) SetBase(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Annotatef(err, "config base dir=%s", dir)
	}
	self.base = abs
	return nil
}

func (self *OsFullReader) Normalize(name string) string {
	if !filepath.IsAbs(name) {
		name = filepath.Join(self.base, name)
	}
	return filepath.Clean(name)
}

func (*OsFullReader) ReadAll(name string) ([]byte, error) {
	b, err := os.ReadFile(name)
	switch {
	case err == nil:
		return b, nil
	case os.IsNotExist(err):
		return nil, nil
	default:
		return nil, errors.Annotatef(err, "config read %s", name)
	}
}

// MockFullReader serves sources from memory, names are used as is.
type MockFullReader map[string]string

func NewMockFullReader(sources map[string]string) MockFullReader { return MockFullReader(sources) }

func (self MockFullReader) Normalize(name string) string { return filepath.Clean(name) }

func (self MockFullReader) ReadAll(name string) ([]byte, error) {
	if s, ok := self[name]; ok {
		return []byte(s), nil
	}
	return nil, nil
}
