// Package config reads HCL configuration with includes.
package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/gclink/broker"
	"github.com/temoto/gclink/command"
	"github.com/temoto/gclink/helpers"
	"github.com/temoto/gclink/link"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/mavlink"
	"github.com/temoto/gclink/param"
	"github.com/temoto/gclink/sidecar"
	"github.com/temoto/gclink/tlog"
	"github.com/temoto/gclink/vehicle"
)

const (
	DefaultSpoolDir  = "/var/lib/gclink/spool"
	DefaultMaxSizeMB = 10
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Link struct {
		Kind           string `hcl:"kind"`
		Endpoint       string `hcl:"endpoint"`
		Remote         string `hcl:"remote"`
		Baud           int    `hcl:"baud"`
		Protocol       int    `hcl:"protocol"` // 0 follows vehicle
		ReadBuffer     int    `hcl:"read_buffer"`
		DialTimeoutSec int    `hcl:"dial_timeout_sec"`
	} `hcl:"link"`

	GCS struct {
		SystemID    int `hcl:"system_id"`
		ComponentID int `hcl:"component_id"`
		// negative disables
		HeartbeatMs int `hcl:"heartbeat_ms"`
	} `hcl:"gcs"`

	Param struct {
		TimeoutMs   int    `hcl:"timeout_ms"`
		MetadataDir string `hcl:"metadata_dir"`
	} `hcl:"param"`

	Vehicle struct {
		HeartbeatTimeoutMs int `hcl:"heartbeat_timeout_ms"`
		CommandTimeoutMs   int `hcl:"command_timeout_ms"`
		// 0 selects default, negative disables retry
		CommandRetries int `hcl:"command_retries"`
	} `hcl:"vehicle"`

	Sidecar struct {
		Enable         bool   `hcl:"enable"`
		Addr           string `hcl:"addr"`
		DialTimeoutSec int    `hcl:"dial_timeout_sec"`
		RetryMs        int    `hcl:"retry_ms"`
	} `hcl:"sidecar"`

	Tlog struct {
		Dir string `hcl:"dir"`
	} `hcl:"tlog"`

	Upload struct {
		Enable       bool   `hcl:"enable"`
		Broker       string `hcl:"broker"`
		ClientID     string `hcl:"client_id"`
		Username     string `hcl:"username"`
		Password     string `hcl:"password"`
		TopicPrefix  string `hcl:"topic_prefix"`
		SpoolDir     string `hcl:"spool_dir"`
		StorePath    string `hcl:"store_path"`
		KeepaliveSec int    `hcl:"keepalive_sec"`
		TimeoutSec   int    `hcl:"timeout_sec"`
		RetryMs      int    `hcl:"retry_ms"`
	} `hcl:"upload"`

	Log struct {
		Level      string `hcl:"level"`
		File       string `hcl:"file"`
		MaxSizeMB  int    `hcl:"max_size_mb"`
		MaxBackups int    `hcl:"max_backups"`
		Color      bool   `hcl:"color"`
	} `hcl:"log"`

	_copy_guard sync.Mutex //nolint:unused
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.AlreadyExistsf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values override.
// With OsFullReader, includes are relative to directory of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("config ReadConfig() without names")
	}
	if osfs, ok := fs.(*OsFullReader); ok {
		if err := osfs.SetBase(filepath.Dir(names[0])); err != nil {
			return nil, err
		}
		names = append([]string{filepath.Base(names[0])}, names[1:]...)
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, err
	}
	c.applyDefaults()
	return c, c.Validate()
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func (c *Config) applyDefaults() {
	if c.Link.Kind == "" {
		c.Link.Kind = string(link.KindUDP)
	}
	if c.Link.Kind == string(link.KindUDP) && c.Link.Endpoint == "" {
		c.Link.Endpoint = "0.0.0.0:14550"
	}
	if c.Sidecar.Addr == "" {
		c.Sidecar.Addr = sidecar.DefaultAddr
	}
	if c.Upload.SpoolDir == "" {
		c.Upload.SpoolDir = DefaultSpoolDir
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultMaxSizeMB
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if err := c.LinkConfig().Validate(); err != nil {
		errs = append(errs, errors.Annotate(err, "config link"))
	}
	if c.GCS.SystemID < 0 || c.GCS.SystemID > 255 || c.GCS.ComponentID < 0 || c.GCS.ComponentID > 255 {
		errs = append(errs, errors.NotValidf("config gcs system_id=%d component_id=%d", c.GCS.SystemID, c.GCS.ComponentID))
	}
	if c.Upload.Enable && c.Upload.Broker == "" {
		errs = append(errs, errors.NotValidf("config upload enabled without broker"))
	}
	if _, ok := log2.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, errors.NotValidf("config log level=%s", c.Log.Level))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) LogLevel() log2.Level {
	l, _ := log2.ParseLevel(c.Log.Level)
	return l
}

func (c *Config) LinkConfig() link.Config {
	return link.Config{
		Kind:        link.Kind(c.Link.Kind),
		Endpoint:    c.Link.Endpoint,
		Remote:      c.Link.Remote,
		Baud:        c.Link.Baud,
		Protocol:    mavlink.Version(c.Link.Protocol),
		SysID:       uint8(c.GCS.SystemID),
		CompID:      uint8(c.GCS.ComponentID),
		ReadBuffer:  c.Link.ReadBuffer,
		DialTimeout: helpers.IntSecondDefault(c.Link.DialTimeoutSec, link.DefaultDialTimeout),
	}
}

func (c *Config) MQTTConfig() tlog.MQTTConfig {
	return tlog.MQTTConfig{
		Broker:         c.Upload.Broker,
		ClientID:       c.Upload.ClientID,
		Username:       c.Upload.Username,
		Password:       c.Upload.Password,
		TopicPrefix:    c.Upload.TopicPrefix,
		StorePath:      c.Upload.StorePath,
		KeepAlive:      helpers.IntSecondDefault(c.Upload.KeepaliveSec, tlog.DefaultKeepAlive),
		PublishTimeout: helpers.IntSecondDefault(c.Upload.TimeoutSec, tlog.DefaultPublishTimeout),
	}
}

// BrokerConfig assembles broker configuration, nil pub disables live upload.
func (c *Config) BrokerConfig(pub tlog.Publisher) broker.Config {
	var gcs time.Duration
	if c.GCS.HeartbeatMs >= 0 {
		gcs = helpers.IntMillisecondDefault(c.GCS.HeartbeatMs, broker.DefaultGCSHeartbeat)
	}
	retries := c.Vehicle.CommandRetries
	switch {
	case retries == 0:
		retries = command.DefaultRetries
	case retries < 0:
		retries = 0
	}
	bc := broker.Config{
		Link:             c.LinkConfig(),
		GCSHeartbeat:     gcs,
		HeartbeatTimeout: helpers.IntMillisecondDefault(c.Vehicle.HeartbeatTimeoutMs, vehicle.DefaultHeartbeatTimeout),
		Param: param.Config{
			Timeout:     helpers.IntMillisecondDefault(c.Param.TimeoutMs, param.DefaultTimeout),
			MetadataDir: c.Param.MetadataDir,
		},
		Command: command.Config{
			Timeout: helpers.IntMillisecondDefault(c.Vehicle.CommandTimeoutMs, command.DefaultTimeout),
			Retries: retries,
		},
		SidecarEnable: c.Sidecar.Enable,
		Sidecar: sidecar.Config{
			Addr:        c.Sidecar.Addr,
			DialTimeout: helpers.IntSecondDefault(c.Sidecar.DialTimeoutSec, sidecar.DefaultDialTimeout),
			RetryDelay:  helpers.IntMillisecondDefault(c.Sidecar.RetryMs, sidecar.DefaultRetryDelay),
		},
		Export: tlog.SessionConfig{
			Dir:         c.Tlog.Dir,
			TopicPrefix: c.Upload.TopicPrefix,
			SpoolDir:    c.Upload.SpoolDir,
			RetryDelay:  helpers.IntMillisecondDefault(c.Upload.RetryMs, tlog.DefaultRetryDelay),
		},
	}
	if pub != nil && c.Upload.Enable {
		bc.Export.Publisher = pub
	}
	return bc
}

func (c *Config) String() string {
	return fmt.Sprintf("link=%s sidecar=%t tlog=%s upload=%t", c.LinkConfig(), c.Sidecar.Enable, c.Tlog.Dir, c.Upload.Enable)
}
