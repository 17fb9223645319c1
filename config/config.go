// Package config loads the reactor's file-backed settings: listen
// address and the tunables that map onto epoll.Config. It
// mirrors the root-level Yaml/Json loaders the teacher kept next to
// its server bootstrap, split into their own package so the reactor's
// config shape is reusable outside of a cmd/ main.
package config

import (
	"encoding/json"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v2"

	"github.com/epollkit/reactor/epoll"
)

// Config is the file-backed superset of epoll.Config: everything a
// deployed reactor needs besides the EventHandler implementation
// itself, which is wired up in code. Field names follow the reactor's
// own vocabulary (listen_addr, epoll_wait_timeout_ms, ...) rather than
// the teacher's conf.go naming, since those names are the ones an
// operator writing a YAML file for this reactor will actually reach for.
type Config struct {
	ListenAddr              string `yaml:"listen_addr" json:"listen_addr"`
	EpollWaitTimeoutMs      int    `yaml:"epoll_wait_timeout_ms" json:"epoll_wait_timeout_ms"`
	MaxEventsPerCycle       int    `yaml:"max_events_per_cycle" json:"max_events_per_cycle"`
	ShutdownDrainDeadlineMs int    `yaml:"shutdown_drain_deadline_ms" json:"shutdown_drain_deadline_ms"`

	// WriteQueueSoftLimit is a pointer so "absent from the file" (no
	// backpressure watermark) is distinguishable from "explicitly 0".
	WriteQueueSoftLimit *uint64 `yaml:"write_queue_soft_limit" json:"write_queue_soft_limit"`

	// Etcd names the key WatchWriteQueueLimit (etcd.go) watches. The
	// loaders only parse it; ReactorConfig does not read it, so the
	// reactor keeps the limit it was given at epoll.New.
	Etcd *EtcdConfig `yaml:"etcd" json:"etcd"`
}

// EtcdConfig names the key watched for a live WriteQueueSoftLimit
// override. Endpoints follows clientv3.Config's own field name so a
// deployment's existing etcd endpoint list can be pasted in unchanged.
type EtcdConfig struct {
	Endpoints          []string      `yaml:"endpoints" json:"endpoints"`
	DialTimeout        time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	WriteQueueLimitKey string        `yaml:"write_queue_limit_key" json:"write_queue_limit_key"`
}

func defaults() Config {
	return Config{
		ListenAddr:              ":9000",
		EpollWaitTimeoutMs:      1000,
		MaxEventsPerCycle:       1024,
		ShutdownDrainDeadlineMs: 5000,
	}
}

// LoadYAML reads a YAML config file, falling back to defaults for any
// field the file omits.
func LoadYAML(path string) (Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadJSON reads a JSON config file the same way, decoding with
// jsoniter, which matches the stdlib encoding/json API exactly.
func LoadJSON(path string) (Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := jsoniter.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustMarshalJSON renders a Config as indented JSON for inspection.
// Panics on error, since a Config value is always marshalable by
// construction.
func MustMarshalJSON(cfg Config) []byte {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}

// ReactorConfig projects the subset epoll.New actually consumes.
func (c Config) ReactorConfig() epoll.Config {
	var softLimit int
	if c.WriteQueueSoftLimit != nil {
		softLimit = int(*c.WriteQueueSoftLimit)
	}
	return epoll.Config{
		WaitTimeoutMs:        c.EpollWaitTimeoutMs,
		MaxEventsPerCycle:    c.MaxEventsPerCycle,
		ShutdownDrainTimeout: time.Duration(c.ShutdownDrainDeadlineMs) * time.Millisecond,
		WriteQueueSoftLimit:  softLimit,
	}
}
