// Package transport holds the pieces shared by every concrete
// transport adapter (transport/tcp, transport/ws): the Conn
// abstraction a connection-specific adapter must satisfy, the
// reactor-backed Session that bridges a live connection to its
// client controller, and the Endpoint helper that registers with the
// Client Manager and announces freshly authenticated sessions via
// SpawnPlayer (spec.md §6). Adapters only ever call SpawnPlayer into
// the client manager's external link — nothing here reaches into
// reactor internals beyond the public reactor package surface.
package transport

import (
	"context"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// Conn is the minimal framed-message interface a transport-specific
// connection must provide. Both transport/tcp (length-prefixed frames
// over net.TCPConn) and transport/ws (gorilla/websocket messages)
// implement it.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
}

// sessionState is a per-connection session reactor's own state.
type sessionState struct {
	conn       Conn
	controller reactor.ID
	bound      bool
	logger     log.Logger
}

// SessionParams builds the CoreParams for a session reactor wrapping
// conn. The reactor is spawned by an Endpoint's SpawnPlayer builder
// callback (spec.md §6) and learns its controller's identity from the
// wire.Accepted the client manager sends it.
func SessionParams(conn Conn, logger log.Logger) *reactor.CoreParams[sessionState] {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := reactor.NewCoreParams(sessionState{conn: conn, logger: logger})
	reactor.OnReactor(p, onAccepted)
	reactor.OnReactor(p, onClientInput)
	return p
}

// SpawnSession registers a fresh session reactor for conn on broker and
// runs it on pool.
func SpawnSession(ctx context.Context, broker *reactor.Broker, pool *reactor.WorkerPool, id reactor.ID, conn Conn, logger log.Logger, m *metrics.Metrics) (*reactor.ReactorDriver[sessionState], error) {
	return reactor.Spawn(ctx, broker, pool, id, "session", SessionParams(conn, logger), logger, m)
}

func onAccepted(s *sessionState, h reactor.ReactorHandle, v wire.Accepted) error {
	s.controller = v.Controller
	s.bound = true

	lp := reactor.NewLinkParams(v.Controller, struct{}{})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.Data) error {
		if err := s.conn.WriteFrame(v.Payload); err != nil {
			s.logger.Error("session write failed", "err", err.Error())
			lh.CloseLink(lh.Peer(), true)
			_ = s.conn.Close()
			lh.Destroy()
		}
		return nil
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, _ wire.ClientKicked) error {
		_ = s.conn.Close()
		lh.Destroy()
		return nil
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, _ wire.Close) error {
		_ = s.conn.Close()
		lh.Destroy()
		return nil
	})
	h.OpenLink(lp.Build())
	return nil
}

// onClientInput relays one raw frame read off the connection (fed in
// by the adapter's reader loop as an external wire.PlayerInput
// addressed to this session) on to the bound controller. Frames that
// arrive before the session is bound are dropped — the handshake
// races the first frame only in pathological clients.
func onClientInput(s *sessionState, h reactor.ReactorHandle, v wire.PlayerInput) error {
	if !s.bound {
		return nil
	}
	return h.SendExternal(s.controller, v)
}

// FeedFrame is called by an adapter's per-connection reader goroutine
// for every frame it reads off the wire, forwarding it to sessionID's
// mailbox as a wire.PlayerInput.
func FeedFrame(broker *reactor.Broker, sessionID reactor.ID, payload []byte) error {
	return broker.Sender(sessionID).Send(broker.RuntimeID(), wire.PlayerInput{Payload: payload})
}
