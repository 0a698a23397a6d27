// Package config loads dispatchd's service configuration from a YAML
// file, following the same gopkg.in/yaml.v3 loading pattern the teacher
// CLI used to apply resource manifests.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is dispatchd's top-level service configuration.
type Config struct {
	// ServiceOwnerURI identifies this dispatcher instance as the owner of
	// the combined set it broadcasts (spec §4.2).
	ServiceOwnerURI string `yaml:"service_owner_uri"`

	// PublishEndpoint is where the combined set tells other owners to
	// route their events; normally this dispatcher's own /events route.
	PublishEndpoint string `yaml:"publish_endpoint"`

	// ServiceAccessCookie is decoded from the configuration file, but no
	// other package reads it: it is not attached to responses, deliveries,
	// or the combined set.
	ServiceAccessCookie string `yaml:"service_access_cookie"`

	WorkerConcurrency  int           `yaml:"worker_concurrency"`
	RetryInterval      time.Duration `yaml:"retry_interval"`
	DefaultMaxFailures int           `yaml:"default_max_failures"`
	QueueRootPath      string        `yaml:"queue_root_path"`
	SegmentMaxBytes    int64         `yaml:"segment_max_bytes"`

	HTTPAddr string `yaml:"http_addr"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors pkg/log.Config for YAML decoding.
type LogConfig struct {
	Level      log.Level `yaml:"level"`
	JSONOutput bool      `yaml:"json_output"`
}

// Default returns a Config with every field at the values the dispatcher
// would use if the operator specified nothing.
func Default() Config {
	return Config{
		ServiceOwnerURI:    "pubsub://dispatchd/",
		PublishEndpoint:    "http://localhost:8080/events",
		WorkerConcurrency:  types.DefaultWorkerConcurrency,
		RetryInterval:      types.DefaultRetryInterval,
		DefaultMaxFailures: types.DefaultMaxFailures,
		QueueRootPath:      "./data/queues",
		SegmentMaxBytes:    types.DefaultSegmentMaxBytes,
		HTTPAddr:           ":8080",
		Log:                LogConfig{Level: log.InfoLevel, JSONOutput: true},
	}
}

// Load reads and parses a YAML configuration file, applying Default()
// values for anything the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a configuration the dispatcher cannot safely start
// with.
func (c Config) Validate() error {
	if c.ServiceOwnerURI == "" {
		return fmt.Errorf("service_owner_uri is required")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive")
	}
	if c.QueueRootPath == "" {
		return fmt.Errorf("queue_root_path is required")
	}
	return nil
}
