package transport

import (
	"context"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// Endpoint is the transport-agnostic half of a concrete adapter
// (transport/tcp, transport/ws): it registers itself with the Client
// Manager and, for every connection that completes a token handshake,
// announces a fresh session via SpawnPlayer (spec.md §6). An Endpoint
// holds no mailbox of its own — it only ever sends, never receives, so
// it needs no reactor driver.
type Endpoint struct {
	id            reactor.ID
	broker        *reactor.Broker
	pool          *reactor.WorkerPool
	clientManager reactor.ID
	logger        log.Logger
	metrics       *metrics.Metrics
}

// NewEndpoint mints a fresh identity for an endpoint talking to
// clientManager.
func NewEndpoint(broker *reactor.Broker, pool *reactor.WorkerPool, clientManager reactor.ID, logger log.Logger, m *metrics.Metrics) *Endpoint {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Endpoint{
		id:            reactor.NewID(),
		broker:        broker,
		pool:          pool,
		clientManager: clientManager,
		logger:        logger,
		metrics:       m,
	}
}

// Register announces this endpoint to the client manager so it is
// ready to accept SpawnPlayer traffic (spec.md §4.8's RegisterEndpoint).
func (e *Endpoint) Register() error {
	return e.broker.Sender(e.clientManager).Send(e.id, wire.RegisterEndpoint{Endpoint: e.id})
}

// Accept spawns a session reactor for conn and presents token to the
// client manager. The returned channel yields the session's reactor
// identifier once the client manager has resolved the token and built
// the session (or never, if the token is unknown — the adapter should
// pair this with a handshake timeout). Adapters feed frames read off
// conn to that identifier with FeedFrame.
func (e *Endpoint) Accept(ctx context.Context, conn Conn, token uint64) (<-chan reactor.ID, error) {
	bound := make(chan reactor.ID, 1)
	build := func(newID reactor.ID, controller reactor.Sender) reactor.Sender {
		if _, err := SpawnSession(ctx, e.broker, e.pool, newID, conn, e.logger, e.metrics); err != nil {
			e.logger.Error("failed to spawn session reactor", "err", err.Error())
		}
		bound <- newID
		return e.broker.Sender(newID)
	}
	if err := e.broker.Sender(e.clientManager).Send(e.id, wire.SpawnPlayer{Token: token, Build: build}); err != nil {
		return nil, err
	}
	return bound, nil
}
