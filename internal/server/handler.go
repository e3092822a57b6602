package server

import (
	"net/http"

	"go.uber.org/fx"
)

// HttpHandler is a route served by the http server. Name is a
// http.ServeMux pattern, e.g. "GET /runs".
type HttpHandler struct {
	Name    string
	Handler http.Handler
}

type HttpHandlerResult struct {
	fx.Out

	Handler *HttpHandler `group:"handlers"`
}

// AsHttpHandler registers handler for the route pattern name.
func AsHttpHandler(
	name string,
	handler http.Handler,
) HttpHandlerResult {
	return HttpHandlerResult{
		Handler: &HttpHandler{
			Name:    name,
			Handler: handler,
		},
	}
}
