package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os/signal"
	"strings"
	"syscall"

	"github.com/getsentry/sentry-go"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cedar-tools/scriptrun/app"
	"github.com/cedar-tools/scriptrun/config"
	"github.com/cedar-tools/scriptrun/internal/execution/supervisor"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/cedar-tools/scriptrun/internal/shell"
	"github.com/cedar-tools/scriptrun/util/conf"
	"github.com/cedar-tools/scriptrun/util/logging"
)

var (
	runCmdDescription = `The run command runs a single script and prints its log
lines and lifecycle events to stdout until the script exits.

The script is identified by its directory below the scripts dir,
e.g. "reports/daily". Its configuration is built from the defaults
of its form, overridden by the saved configuration, a config file
passed with --config and finally every --set key=value.

SIGINT and SIGTERM stop the script gracefully. The command exits
with the exit code of the script.`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Run a script and follow its log.",
		ArgsUsage:   "<script-id>",
		Description: runCmdDescription,
		Action:      runAction,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "set",
				Usage:   "override a config value. Values are parsed as JSON, falling back to strings.",
				Aliases: []string{"S"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "a JSON file overriding the saved configuration.",
				Aliases: []string{"c"},
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "save the resulting configuration before running.",
			},
		},
	}
)

func runAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	id := ctx.Args().First()
	if id == "" {
		return cli.Exit("missing script id", 2)
	}

	inv, err := app.NewInventory(cfg, log)
	if err != nil {
		return err
	}

	scriptConfig, err := loadScriptConfig(inv, id, ctx.String("config"), ctx.StringSlice("set"))
	if err != nil && !errors.Is(err, inventory.ErrNotFound) {
		return err
	}

	// an unknown script is reported by the supervisor
	if err == nil && ctx.Bool("save") {
		if err := inv.SaveConfig(id, scriptConfig); err != nil {
			return err
		}
	}

	sup, err := supervisor.New(supervisor.Params{
		Context:  ctx.Context,
		Config:   cfg.Supervisor,
		Resolver: inv,
		Log:      log,
	})
	if err != nil {
		return err
	}
	defer sup.Cleanup()

	code, err := follow(ctx, sup, supervisor.RunRequest{
		ScriptID: id,
		Config:   scriptConfig,
		BaseDir:  cfg.BaseDir,
	}, log)
	if err != nil {
		return err
	}

	if code != 0 {
		return shell.NewExitError(exitStatus(code))
	}

	return nil
}

// exitStatus maps the exit code of a run to a process exit status.
// Signal deaths are reported as -signal and follow the shell
// convention of 128+signal.
func exitStatus(code int) int {
	if code < 0 {
		return 128 - code
	}

	return code
}

// follow starts the run and prints its events until it ends. It returns
// the exit code of the script.
func follow(ctx *cli.Context, sup *supervisor.Supervisor, req supervisor.RunRequest, log *zap.Logger) (int, error) {
	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, cancel := sup.Subscribe()
	defer cancel()

	done := make(chan struct{})
	code := 1

	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(done)

		for event := range events {
			fmt.Fprintln(ctx.App.Writer, event.String())

			switch event.Type {
			case supervisor.EventFinished:
				code = *event.ExitCode
				return nil
			case supervisor.EventError:
				sentry.CaptureException(errors.New(event.Message))
				return nil
			}
		}

		return nil
	})

	g.Go(func() error {
		select {
		case <-done:
		case <-sigCtx.Done():
			log.Info("stopping script")
			sup.Stop()
		}
		return nil
	})

	if _, err := sup.Start(sigCtx, req); err != nil {
		log.Debug("script not started", zap.Error(err))

		// interrupted before the start, nothing was published
		if ctxErr := sigCtx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			cancel()
		}
	}

	return code, g.Wait()
}

// loadScriptConfig builds the configuration of a run from the saved
// configuration, an optional config file and key=value overrides.
func loadScriptConfig(inv *inventory.Inventory, id, configFile string, overrides []string) (map[string]any, error) {
	scriptConfig, err := inv.LoadConfig(id)
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(configFile), kjson.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		maps.Copy(scriptConfig, k.Raw())
	}

	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", o)
		}
		scriptConfig[key] = parseValue(value)
	}

	return scriptConfig, nil
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func init() {
	rootApp.Commands = append(rootApp.Commands, runCmd)
}
