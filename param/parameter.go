package param

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/gclink/mavlink"
)

const maxNameLen = 16

type Parameter struct {
	Name  string
	Value float64
	Type  mavlink.ParamType
	Index int
	Meta  *Metadata
}

func (p Parameter) key() string { return strings.ToLower(p.Name) }

func (p Parameter) Integer() bool {
	switch p.Type {
	case mavlink.PARAM_TYPE_REAL32, mavlink.PARAM_TYPE_REAL64:
		return false
	}
	return true
}

func (p Parameter) ValueString() string {
	if p.Integer() {
		return strconv.FormatInt(int64(p.Value), 10)
	}
	return strconv.FormatFloat(p.Value, 'g', -1, 32)
}

func (p Parameter) String() string {
	s := fmt.Sprintf("%s=%s (%s)", p.Name, p.ValueString(), p.Type)
	if p.Meta != nil && p.Meta.Units != "" {
		s += " " + p.Meta.Units
	}
	return s
}

// ParseValue converts text to value according to parameter type.
func (p Parameter) ParseValue(s string) (float64, error) {
	if p.Integer() {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
		if err != nil {
			return 0, errors.NotValidf("param %s integer value=%q", p.Name, s)
		}
		return float64(v), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.NotValidf("param %s value=%q", p.Name, s)
	}
	return v, nil
}

func validName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return errors.NotValidf("param name=%q", name)
	}
	return nil
}
