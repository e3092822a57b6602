package handler

import (
	"net/http"

	"github.com/cedar-tools/scriptrun/internal/server"
)

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("GET /health", http.HandlerFunc(HealthHandler))
}

func NewScriptsRoute(handler *RunHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("GET /scripts", http.HandlerFunc(handler.Scripts))
}

func NewStartRoute(handler *RunHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("POST /runs", http.HandlerFunc(handler.Start))
}

func NewActiveRoute(handler *RunHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("GET /runs", http.HandlerFunc(handler.Active))
}

func NewStopRoute(handler *RunHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("DELETE /runs", http.HandlerFunc(handler.Stop))
}

func NewEventsRoute(handler *RunHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("GET /events", http.HandlerFunc(handler.Events))
}
