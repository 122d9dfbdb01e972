package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fxnlabs/smm-acc/internal/acc"
	"github.com/fxnlabs/smm-acc/internal/config"
	"github.com/fxnlabs/smm-acc/internal/metrics"
	"github.com/fxnlabs/smm-acc/internal/status"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func serveCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve metrics and device status over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Override metrics.listenAddress"},
		},
		Action: func(c *cli.Context) error {
			if addr := c.String("listen"); addr != "" {
				e.cfg.Metrics.ListenAddress = addr
			}
			app := fx.New(serveOptions(e.cfg, e.log))
			app.Run()
			return app.Err()
		},
	}
}

// serveOptions wires the backend manager and the HTTP server into an fx
// application.
func serveOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Supply(cfg, log),
		fx.Provide(
			newManager,
			newMux,
			newStatusServer,
		),
		fx.Invoke(func(*statusServer) {}),
	)
}

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*acc.Manager, error) {
	manager, err := acc.NewManager(cfg.Device, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return manager.Cleanup()
		},
	})
	return manager, nil
}

func newMux(manager *acc.Manager, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/device", metrics.Middleware(status.NewDeviceHandler(manager, log), "/device"))
	mux.Handle("/blocksizes", metrics.Middleware(status.NewBlocksizesHandler(log), "/blocksizes"))
	return mux
}

// statusServer owns the listener so the bound address is known after start.
type statusServer struct {
	srv  *http.Server
	addr net.Addr
}

// Addr returns the bound address; nil before the app starts.
func (s *statusServer) Addr() net.Addr {
	return s.addr
}

func newStatusServer(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux, log *zap.Logger) *statusServer {
	log = log.Named("http")
	s := &statusServer{
		srv: &http.Server{
			Addr:              cfg.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", s.srv.Addr)
			if err != nil {
				return err
			}
			s.addr = ln.Addr()
			log.Info("Starting server on", zap.String("address", s.addr.String()))
			go func() {
				if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	})
	return s
}
