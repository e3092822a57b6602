package standalone

import "github.com/cedar-tools/scriptrun/internal/server"

type Config struct {
	// HttpConfig represents the configuration for the HTTP server.
	HttpConfig server.HttpConfig `conf:",squash"`
}
