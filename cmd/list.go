package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cedar-tools/scriptrun/app"
	"github.com/cedar-tools/scriptrun/config"
	"github.com/cedar-tools/scriptrun/util/conf"
	"github.com/cedar-tools/scriptrun/util/logging"
)

var listCmd = &cli.Command{
	Name:   "list",
	Usage:  "List the scripts below the scripts dir.",
	Action: listAction,
}

func listAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	inv, err := app.NewInventory(cfg, log)
	if err != nil {
		return err
	}

	ids, err := inv.List()
	if err != nil {
		return err
	}

	for _, id := range ids {
		fmt.Fprintln(ctx.App.Writer, id)
	}

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, listCmd)
}
