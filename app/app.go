package app

import (
	"context"

	"github.com/cedar-tools/scriptrun/config"
	"github.com/cedar-tools/scriptrun/internal/execution/supervisor"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/cedar-tools/scriptrun/internal/shell"
	"github.com/cedar-tools/scriptrun/util/conf"
	"github.com/cedar-tools/scriptrun/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	return shell.New(log, SharedModule(config)), nil
}

// SharedModule provides the config, the script inventory and the
// supervisor to all commands run through the shell.
func SharedModule(cfg config.Config) fx.Option {
	return fx.Module(
		"shared",
		// provide global config
		fx.Supply(cfg),
		// provide supervisor config
		fx.Supply(cfg.Supervisor),
		// provide script inventory
		fx.Provide(NewInventory),
		// provide supervisor
		fx.Provide(NewLifecycleSupervisor),
	)
}

func NewInventory(config config.Config, log *zap.Logger) (*inventory.Inventory, error) {
	return inventory.New(inventory.Params{
		ScriptsDir: config.ScriptsDir,
		ConfigsDir: config.ConfigsDir,
		Log:        log,
	})
}

type SupervisorParams struct {
	fx.In

	Context   context.Context
	Config    supervisor.Config
	Inventory *inventory.Inventory
	Log       *zap.Logger
}

func NewSupervisor(params SupervisorParams) (*supervisor.Supervisor, error) {
	return supervisor.New(supervisor.Params{
		Context:  params.Context,
		Config:   params.Config,
		Resolver: params.Inventory,
		Log:      params.Log,
	})
}

// NewLifecycleSupervisor creates a supervisor whose runs are cleaned up
// when the application stops.
func NewLifecycleSupervisor(params SupervisorParams, lc fx.Lifecycle) (*supervisor.Supervisor, error) {
	s, err := NewSupervisor(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			s.Cleanup()
			return nil
		},
	})

	return s, nil
}
