package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oakmoth/reactorium/client"
	"github.com/oakmoth/reactorium/config"
	"github.com/oakmoth/reactorium/game"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/transport"
	"github.com/oakmoth/reactorium/transport/tcp"
)

// newEchoCmd builds one echo match and a bare TCP listener for it,
// then prints the match identifier, the listen address and the TCP
// framing a client must use — a manual smoke test with nothing to
// configure beyond how many seats the match has. The player tokens are
// not printed; they go only to the client manager.
func newEchoCmd(flags *rootFlags) *cobra.Command {
	var players int

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a single in-process echo match for manual smoke-testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(cmd.Context(), flags, players)
		},
	}
	cmd.Flags().IntVar(&players, "players", 2, "number of player seats in the demo match")
	return cmd
}

func runEcho(ctx context.Context, flags *rootFlags, players int) error {
	if players <= 0 {
		return fmt.Errorf("players must be positive")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	logger := newLogger()
	m := metrics.Noop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := reactor.NewBroker(logger, m)
	pool := reactor.NewWorkerPool(cfg.WorkerPoolSize)

	clientManagerID := reactor.NewID()
	if _, err := client.SpawnManager(ctx, broker, pool, clientManagerID, logger, m); err != nil {
		return err
	}

	sv, err := game.NewSupervisor(broker, pool, clientManagerID, nil, logger, m)
	if err != nil {
		return err
	}
	go sv.Run(ctx)

	endpoint := transport.NewEndpoint(broker, pool, clientManagerID, logger, m)
	if err := endpoint.Register(); err != nil {
		return err
	}

	tcpListener, err := tcp.Listen(cfg.TCPAddr, endpoint, broker, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := tcpListener.Serve(ctx); err != nil {
			logger.Error("tcp listener exited", "err", err.Error())
		}
	}()

	matchID, err := sv.Build(ctx, game.BuildSpec{
		NewController:         newEchoGame,
		PlayerCount:           players,
		ControllerBufferBytes: cfg.ControllerBufferBytes,
	})
	if err != nil {
		return err
	}

	fmt.Printf("echo match %d built with %d seats, listening on %s\n", matchID, players, cfg.TCPAddr)
	fmt.Println("connect with a raw TCP client: write the player's 8-byte big-endian token, then exchange 4-byte length-prefixed frames")
	fmt.Println("player tokens are delivered to the client manager only; run 'serve' with a real transport client to redeem one")

	<-ctx.Done()
	return nil
}
