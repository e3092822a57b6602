package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cedar-tools/scriptrun/config"
	"github.com/cedar-tools/scriptrun/internal/shell"
	"github.com/cedar-tools/scriptrun/util/conf"
	"github.com/cedar-tools/scriptrun/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	appName  = "scriptrun"
	appUsage = `Run user scripts from a script tree, one at a time, and
follow their logs while they run.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Usage:   "an optional JSON file with the configuration.",
				Aliases: []string{"f"},
				EnvVars: []string{"SCRIPTRUN_CONFIG_FILE"},
			},
			// inventory flags
			&cli.StringFlag{
				Name:     "scripts-dir",
				Usage:    "the root of the script tree.",
				Aliases:  []string{"s"},
				Category: "scripts",
			},
			&cli.StringFlag{
				Name:     "configs-dir",
				Usage:    "the directory holding the saved script configurations.",
				Category: "scripts",
			},
			&cli.StringFlag{
				Name:     "log-dir",
				Usage:    "the directory followed by the watch command.",
				Category: "scripts",
			},
			&cli.StringFlag{
				Name:     "base-dir",
				Usage:    "the base directory passed to every script.",
				Category: "scripts",
			},
			&cli.DurationFlag{
				Name:     "sweep-interval",
				Usage:    "the interval at which the log dir is swept.",
				Category: "scripts",
			},
			// supervisor flags
			&cli.StringFlag{
				Name:     "interpreter",
				Usage:    "the interpreter running python entry points.",
				Category: "supervisor",
			},
			&cli.StringFlag{
				Name:     "temp-dir",
				Usage:    "the directory for transient config files and run logs.",
				Category: "supervisor",
			},
			&cli.StringFlag{
				Name:     "archive-log",
				Usage:    "the log every run is appended to. Empty disables archiving.",
				Category: "supervisor",
			},
			&cli.DurationFlag{
				Name:     "poll-interval",
				Usage:    "the interval at which the run log is read.",
				Category: "supervisor",
			},
			&cli.DurationFlag{
				Name:     "grace-period",
				Usage:    "how long a script may take to exit after SIGTERM.",
				Category: "supervisor",
			},
			&cli.DurationFlag{
				Name:     "kill-timeout",
				Usage:    "how long to wait for a script to exit after SIGKILL.",
				Category: "supervisor",
			},
			&cli.StringFlag{
				Name:     "output",
				Usage:    "what happens to the script's stdout and stderr. Options: inherit, discard.",
				Category: "supervisor",
			},
			&cli.StringFlag{
				Name:     "env-file",
				Usage:    "a dotenv file with additional variables for every script.",
				Category: "supervisor",
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// parse config using defaults, file, env and flags
			cfg, err := conf.Parse[config.Config](conf.ParseOptions{
				Cli:       ctx,
				CliMap:    cliMap,
				Defaults:  config.DefaultConfig,
				EnvPrefix: config.EnvPrefix,
				FileName:  ctx.String("config-file"),
				Log:       log,
			})
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			// Before may have failed before creating the logger
			logging.LoggerOrNop(ctx.Context).Sync()

			return nil
		},
	}

	// cliMap maps flag names to nested config keys
	cliMap = map[string]string{
		"interpreter":   "supervisor.interpreter",
		"temp-dir":      "supervisor.temp_dir",
		"archive-log":   "supervisor.archive_log",
		"poll-interval": "supervisor.poll_interval",
		"grace-period":  "supervisor.grace_period",
		"kill-timeout":  "supervisor.kill_timeout",
		"output":        "supervisor.output",
		"env-file":      "supervisor.env_file",
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

// Execute runs the app and returns the exit code of the process.
func Execute(params ExecuteParams) int {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	return run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return 0
	}

	// if app exited with ExitError, exit with given exit code
	if shell.IsExitError(err) {
		return shell.ExitCode(err)
	}

	// otherwise, exit with exit code 1
	fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
	return 1
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	// script output and events own stdout
	config.OutputPaths = []string{"stderr"}

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
