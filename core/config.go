package core

import (
	"fmt"
	"strings"
	"time"
)

type DispatchConfig struct {
	DefaultMaxAttempts int           `koanf:"default_max_attempts" mapstructure:"default_max_attempts"`
	DefaultRetryDelay  time.Duration `koanf:"default_retry_delay" mapstructure:"default_retry_delay"`
	WorkerBatchSize    int           `koanf:"worker_batch_size" mapstructure:"worker_batch_size"`
	WorkerPollInterval time.Duration `koanf:"worker_poll_interval" mapstructure:"worker_poll_interval"`
}

// Config is an immutable snapshot built once at startup and handed to the
// engine; runtime mutation goes through the registries, never through here.
type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "captainhook",
		Dispatch: DispatchConfig{
			DefaultMaxAttempts: DefaultMaxAttempts,
			DefaultRetryDelay:  DefaultRetryDelay,
			WorkerBatchSize:    25,
			WorkerPollInterval: 5 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatch.DefaultMaxAttempts < 0 {
		return fmt.Errorf("core: dispatch.default_max_attempts must be >= 0")
	}
	if c.Dispatch.WorkerBatchSize < 0 {
		return fmt.Errorf("core: dispatch.worker_batch_size must be >= 0")
	}
	return nil
}
