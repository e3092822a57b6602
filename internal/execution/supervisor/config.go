package supervisor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cedar-tools/scriptrun/internal/execution/worker"
)

// StopConfig describes how a run is terminated.
type StopConfig = worker.StopConfig

// OutputMode selects what happens to stdout and stderr of the child.
type OutputMode string

const (
	// OutputInherit passes the output through to the supervisor's own streams
	OutputInherit OutputMode = "inherit"

	// OutputDiscard drops the output
	OutputDiscard OutputMode = "discard"
)

const (
	DefaultInterpreter  = "python3"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultGracePeriod  = 5 * time.Second
	DefaultKillTimeout  = 5 * time.Second
)

type Config struct {
	// Interpreter runs python entry points.
	Interpreter string `conf:"interpreter"`

	// TempDir holds the transient config artifacts and run logs.
	// Defaults to the system temp dir.
	TempDir string `conf:"temp_dir"`

	// ArchiveLog is the persistent log every run is appended to.
	// Archiving is disabled if empty.
	ArchiveLog string `conf:"archive_log"`

	// PollInterval is the interval at which the run log is read.
	PollInterval time.Duration `conf:"poll_interval"`

	// Stop configures the termination of a run.
	Stop StopConfig `conf:"stop,squash"`

	// Output selects whether the child's stdout and stderr are
	// inherited or discarded. They are never captured.
	Output OutputMode `conf:"output"`

	// EnvFile is an optional dotenv file with additional variables
	// for the child environment.
	EnvFile string `conf:"env_file"`
}

func (c Config) withDefaults() Config {
	if c.Interpreter == "" {
		c.Interpreter = DefaultInterpreter
	}

	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}

	if abs, err := filepath.Abs(c.TempDir); err == nil {
		c.TempDir = abs
	}

	if c.ArchiveLog != "" {
		if abs, err := filepath.Abs(c.ArchiveLog); err == nil {
			c.ArchiveLog = abs
		}
	}

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.Stop.GracePeriod <= 0 {
		c.Stop.GracePeriod = DefaultGracePeriod
	}

	if c.Stop.KillTimeout <= 0 {
		c.Stop.KillTimeout = DefaultKillTimeout
	}

	if c.Output == "" {
		c.Output = OutputInherit
	}

	return c
}
