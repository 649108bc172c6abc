package param

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
	"github.com/temoto/gclink/vehicle"
	"gopkg.in/yaml.v2"
)

//go:embed metadata/ardupilot.yaml metadata/px4.toml
var embedded embed.FS

const (
	fileArduPilot = "ardupilot.yaml"
	filePX4       = "px4.toml"
)

type Metadata struct {
	DisplayName string `yaml:"display_name" toml:"display_name"`
	Description string `yaml:"description" toml:"description"`
	Units       string `yaml:"units" toml:"units"`
	Range       string `yaml:"range" toml:"range"`
	Values      string `yaml:"values" toml:"values"`
}

// MetadataTable keys are upper case parameter names.
type MetadataTable map[string]*Metadata

func (t MetadataTable) Lookup(name string) *Metadata {
	if t == nil {
		return nil
	}
	return t[strings.ToUpper(name)]
}

// LoadMetadata reads dialect table for firmware.
// Files in dir override embedded defaults, empty dir means embedded only.
func LoadMetadata(f vehicle.Firmware, dir string) (MetadataTable, error) {
	switch f.Profile().Dialect {
	case vehicle.DialectArduPilot:
		b, err := readMetadata(dir, fileArduPilot)
		if err != nil {
			return nil, err
		}
		return ParseArduPilot(b, f.String())
	case vehicle.DialectPX4:
		b, err := readMetadata(dir, filePX4)
		if err != nil {
			return nil, err
		}
		return ParsePX4(b)
	}
	return nil, nil
}

func readMetadata(dir, name string) ([]byte, error) {
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return b, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Annotatef(err, "param metadata %s", name)
		}
	}
	b, err := fs.ReadFile(embedded, "metadata/"+name)
	return b, errors.Annotatef(err, "param metadata embedded %s", name)
}

// ParseArduPilot merges "common" group with firmware group.
func ParseArduPilot(b []byte, group string) (MetadataTable, error) {
	var groups map[string]map[string]Metadata
	if err := yaml.Unmarshal(b, &groups); err != nil {
		return nil, errors.Annotate(err, "param metadata ardupilot")
	}
	t := make(MetadataTable)
	for _, g := range []string{"common", strings.ToLower(group)} {
		for name, m := range groups[g] {
			m := m
			t[strings.ToUpper(name)] = &m
		}
	}
	return t, nil
}

func ParsePX4(b []byte) (MetadataTable, error) {
	var raw map[string]Metadata
	if _, err := toml.Decode(string(b), &raw); err != nil {
		return nil, errors.Annotate(err, "param metadata px4")
	}
	t := make(MetadataTable, len(raw))
	for name, m := range raw {
		m := m
		t[strings.ToUpper(name)] = &m
	}
	return t, nil
}
