package standalone

import (
	"go.uber.org/fx"

	"github.com/cedar-tools/scriptrun/handler"
	"github.com/cedar-tools/scriptrun/internal/execution/supervisor"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/cedar-tools/scriptrun/internal/server"
	"github.com/cedar-tools/scriptrun/util/logging"
)

func Module(config Config) fx.Option {
	return fx.Module(
		"serve",
		// rename logger for module
		logging.DecorateLogger("serve"),
		// expose the supervisor and the inventory to the handlers
		fx.Provide(func(s *supervisor.Supervisor) handler.Controller { return s }),
		fx.Provide(func(i *inventory.Inventory) handler.Catalog { return i }),
		// provide handlers
		handler.Module(),
		// provide server
		server.Module(config.HttpConfig),
	)
}
