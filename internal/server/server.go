package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	fx.In

	Context context.Context

	Config HttpConfig

	Handlers []*HttpHandler `group:"handlers"`
	Logger   *zap.Logger
}

type HttpServer struct {
	ctx     context.Context
	addr    string
	handler http.Handler
	server  *http.Server
	log     *zap.Logger
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	log := params.Logger.Named("http")

	mux := http.NewServeMux()

	for _, handler := range params.Handlers {
		log.Debug("registering route", zap.String("route", handler.Name))
		mux.Handle(handler.Name, handler.Handler)
	}

	var handler http.Handler = mux
	if params.Config.H2c {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	addr := net.JoinHostPort(params.Config.Host, fmt.Sprint(params.Config.Port))

	// no write timeout, event streams stay open
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return params.Context
		},
	}

	return &HttpServer{
		ctx:     params.Context,
		addr:    addr,
		handler: handler,
		server:  server,
		log:     log,
	}
}

func NewLifecycleServer(params HttpServerParams, lc fx.Lifecycle) *HttpServer {
	server := NewHttpServer(params)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := server.Listen(ctx)
			if err != nil {
				return err
			}
			go server.Serve(listener)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
	return server
}

// Handler returns the root handler with all routes registered.
func (s *HttpServer) Handler() http.Handler {
	return s.handler
}

func (s *HttpServer) Listen(ctx context.Context) (net.Listener, error) {
	cfg := net.ListenConfig{}

	listener, err := cfg.Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.log.With(zap.Error(err)).Error("failed to listen")
		return nil, err
	}

	s.log.With(zap.String("address", listener.Addr().String())).Info("listening")

	return listener, nil
}

func (s *HttpServer) Serve(listener net.Listener) error {
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.With(zap.Error(err)).Error("failed to serve")
		return err
	}

	return nil
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.With(zap.Error(err)).Error("failed to shutdown")
		return err
	}

	return nil
}
