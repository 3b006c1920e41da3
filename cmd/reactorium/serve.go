package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/oakmoth/reactorium/client"
	"github.com/oakmoth/reactorium/config"
	"github.com/oakmoth/reactorium/game"
	"github.com/oakmoth/reactorium/game/httpapi"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/store"
	"github.com/oakmoth/reactorium/transport"
	"github.com/oakmoth/reactorium/transport/tcp"
	"github.com/oakmoth/reactorium/transport/ws"
)

// newServeCmd boots every built-in reactor kind as one process: the
// client manager, the game supervisor, the TCP and websocket transport
// endpoints, the control-plane HTTP/JSON API, and a Prometheus metrics
// endpoint.
func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reactorium runtime: transports, matches, and the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	logger := newLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := reactor.NewBroker(logger, m)
	pool := reactor.NewWorkerPool(cfg.WorkerPoolSize)

	var snapshots *store.Store
	if cfg.SnapshotDBPath != "" {
		snapshots, err = store.Open(cfg.SnapshotDBPath)
		if err != nil {
			return err
		}
		defer snapshots.Close()
	}

	clientManagerID := reactor.NewID()
	if _, err := client.SpawnManager(ctx, broker, pool, clientManagerID, logger, m); err != nil {
		return err
	}

	sv, err := game.NewSupervisor(broker, pool, clientManagerID, snapshots, logger, m)
	if err != nil {
		return err
	}
	go sv.Run(ctx)

	endpoint := transport.NewEndpoint(broker, pool, clientManagerID, logger, m)
	if err := endpoint.Register(); err != nil {
		return err
	}

	if cfg.TCPAddr != "" {
		tcpListener, err := tcp.Listen(cfg.TCPAddr, endpoint, broker, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := tcpListener.Serve(ctx); err != nil {
				logger.Error("tcp listener exited", "err", err.Error())
			}
		}()
		logger.Info("tcp transport listening", "addr", cfg.TCPAddr)
	}

	factories := map[string]httpapi.ControllerFactory{
		"echo": newEchoGame,
	}
	api := httpapi.NewServer(sv, factories, cfg.ControllerBufferBytes, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, ws.NewHandler(endpoint, broker, logger))
	mux.Handle("/", api)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	go func() { errCh <- metricsSrv.ListenAndServe() }()
	logger.Info("control api listening", "addr", cfg.HTTPAddr)
	logger.Info("metrics listening", "addr", cfg.MetricsAddr)

	select {
	case <-ctx.Done():
		_ = httpSrv.Close()
		_ = metricsSrv.Close()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
