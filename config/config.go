package config

import (
	"maps"
	"time"

	"github.com/cedar-tools/scriptrun/internal/execution/supervisor"
	"github.com/cedar-tools/scriptrun/util/conf"
)

// EnvPrefix is the prefix of all config env vars. Nested keys are
// separated by a double underscore, e.g. SCRIPTRUN_SUPERVISOR__GRACE_PERIOD.
const EnvPrefix = "SCRIPTRUN_"

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// ScriptsDir is the root of the script tree
	ScriptsDir string `conf:"scripts_dir"`

	// ConfigsDir holds the saved script configurations
	ConfigsDir string `conf:"configs_dir"`

	// LogDir is the directory swept by the watch command
	LogDir string `conf:"log_dir"`

	// BaseDir is passed to every script as CEDAR_BASE_DIR
	BaseDir string `conf:"base_dir"`

	// SweepInterval is the interval at which LogDir is swept
	SweepInterval time.Duration `conf:"sweep_interval"`

	// Supervisor is the configuration of the script supervisor
	Supervisor supervisor.Config `conf:"supervisor"`
}

var DefaultConfig = defaults()

func defaults() conf.DefaultConfig {
	cfg := conf.MergeDefaults("supervisor", conf.DefaultConfig{
		"interpreter":   supervisor.DefaultInterpreter,
		"archive_log":   "log/app.log",
		"poll_interval": supervisor.DefaultPollInterval,
		"grace_period":  supervisor.DefaultGracePeriod,
		"kill_timeout":  supervisor.DefaultKillTimeout,
		"output":        string(supervisor.OutputInherit),
	})

	maps.Copy(cfg, conf.DefaultConfig{
		"log_level":      "info",
		"log_format":     "production",
		"scripts_dir":    "scripts",
		"configs_dir":    "configs",
		"log_dir":        "log",
		"base_dir":       ".",
		"sweep_interval": 200 * time.Millisecond,
	})

	return cfg
}
