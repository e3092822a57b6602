package cmd

import (
	"github.com/cedar-tools/scriptrun/app"
	"github.com/cedar-tools/scriptrun/app/standalone"
	"github.com/cedar-tools/scriptrun/internal/server"
	"github.com/urfave/cli/v2"
)

var (
	serveCmdDescription = `The serve command starts a http server exposing the script
	tree. Scripts are started and stopped over http, and the log
	lines and lifecycle events of every run are streamed to all
	clients of the events endpoint.

	The command will launch the http server and blocks indefin-
	itely, processing incoming http requests. On shutdown the
	active script is stopped and its files are removed.`
	serveCmd = &cli.Command{
		Name:        "serve",
		Usage:       "Start a http server controlling the scripts.",
		Description: serveCmdDescription,
		Action:      serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Aliases:  []string{"H"},
				Usage:    "The host to listen on.",
				Value:    "localhost",
				Category: "http",
				EnvVars:  []string{"HTTP_HOST"},
			},
			&cli.IntFlag{
				Name:     "port",
				Aliases:  []string{"P"},
				Usage:    "The port to listen on.",
				Value:    8080,
				Category: "http",
				EnvVars:  []string{"HTTP_PORT"},
			},
			&cli.BoolFlag{
				Name:     "h2c",
				Usage:    "Enable HTTP/2 cleartext upgrade.",
				Value:    false,
				Category: "http",
				EnvVars:  []string{"HTTP_H2C"},
			},
		},
	}
)

func serveAction(ctx *cli.Context) error {
	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	config := standalone.Config{
		HttpConfig: server.HttpConfig{
			Host: ctx.String("host"),
			Port: ctx.Int("port"),
			H2c:  ctx.Bool("h2c"),
		},
	}

	return app.Run(ctx.Context, standalone.Module(config))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, serveCmd)
}
