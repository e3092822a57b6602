package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/cedar-tools/scriptrun/config"
	"github.com/cedar-tools/scriptrun/internal/execution/tail"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/cedar-tools/scriptrun/util/conf"
	"github.com/cedar-tools/scriptrun/util/logging"
)

var (
	watchCmdDescription = `The watch command follows every file below the log dir and
prints new lines prefixed with the file they were written to.
Content written before the command started is skipped.

The command blocks until interrupted.`
	watchCmd = &cli.Command{
		Name:        "watch",
		Usage:       "Follow the log dir.",
		Description: watchCmdDescription,
		Action:      watchAction,
	}
)

func watchAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := tail.NewSweeper(cfg.LogDir, func(line string) {
		fmt.Fprintln(ctx.App.Writer, line)
	}, log, tail.WithSkipDir(inventory.ShouldSkip))

	if err := sweeper.Prime(); err != nil {
		return err
	}

	poller, err := tail.NewPoller(cfg.SweepInterval, sweeper.Sweep, log)
	if err != nil {
		return err
	}
	defer poller.Stop()

	log.Info("watching", zap.String("dir", cfg.LogDir), zap.Duration("interval", cfg.SweepInterval))

	<-sigCtx.Done()

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, watchCmd)
}
