// Package config loads the kernel's tunables through viper: defaults
// first, then an optional pelican.yaml, then PELICAN_* environment
// variables.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every runtime tunable of the simulator.
type Config struct {
	// DiskPath is where the disk image file lives.
	DiskPath string `mapstructure:"disk_path"`

	// SchedLogPath receives the scheduler event stream; "-" means stderr.
	SchedLogPath string `mapstructure:"sched_log_path"`

	// TimerInterval is the period of the timer device in ticks.
	TimerInterval int `mapstructure:"timer_interval"`

	// AgingTicks is how long a ready thread may starve before its
	// priority is raised.
	AgingTicks int `mapstructure:"aging_ticks"`

	// DemoteLimitTicks is the running thread's CPU allowance before
	// demotion.
	DemoteLimitTicks int `mapstructure:"demote_limit_ticks"`

	// BurstAlpha weights the newest observation in the burst estimate.
	BurstAlpha float64 `mapstructure:"burst_alpha"`
}

// Load reads the configuration. A missing config file is fine; the
// defaults describe a working machine.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("pelican")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.pelican")

	v.SetDefault("disk_path", "pelican.img")
	v.SetDefault("sched_log_path", "-")
	v.SetDefault("timer_interval", 100)
	v.SetDefault("aging_ticks", 1500)
	v.SetDefault("demote_limit_ticks", 100)
	v.SetDefault("burst_alpha", 0.5)

	v.SetEnvPrefix("PELICAN")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
