package handler

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(NewRunHandler),
		fx.Provide(NewHealthRoute),
		fx.Provide(NewScriptsRoute),
		fx.Provide(NewStartRoute),
		fx.Provide(NewActiveRoute),
		fx.Provide(NewStopRoute),
		fx.Provide(NewEventsRoute),
	)
}
