// Package client also implements the Client Controller of spec.md §4.9:
// one per player per match, buffering host-to-player traffic while its
// session is detached and forwarding it once a session attaches.
package client

import (
	"context"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// DefaultBufferBytes is the FIFO cap used when a caller passes zero,
// resolving the Open Question in spec.md §9 in favor of a generous but
// bounded default (4 MiB of buffered payload bytes, oldest-drop).
const DefaultBufferBytes = 4 << 20

type bufferedFrame struct {
	payload []byte
}

// controllerState is a Client Controller's own reactor state.
type controllerState struct {
	player reactor.ID
	host   reactor.ID

	session   *reactor.ID
	connected bool

	buffer      []bufferedFrame
	bufferBytes int
	bufferCap   int

	logger log.Logger
}

// ControllerParams builds the CoreParams for a Client Controller.
// bufferCap is the FIFO's byte cap; zero selects DefaultBufferBytes.
func ControllerParams(bufferCap int, logger log.Logger) *reactor.CoreParams[controllerState] {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferBytes
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := reactor.NewCoreParams(controllerState{bufferCap: bufferCap, logger: logger})

	reactor.OnReactor(p, onInitController)
	reactor.OnReactor(p, onAccepted)
	reactor.OnReactor(p, onSessionClosed)
	reactor.OnReactor(p, onFinalState)

	return p
}

// SpawnController registers a fresh Client Controller on broker and
// runs it on pool. The caller sends wire.InitController to seed its
// host link.
func SpawnController(ctx context.Context, broker *reactor.Broker, pool *reactor.WorkerPool, bufferCap int, logger log.Logger, m *metrics.Metrics) (*reactor.ReactorDriver[controllerState], error) {
	return reactor.Spawn(ctx, broker, pool, reactor.NewID(), "client-controller", ControllerParams(bufferCap, logger), logger, m)
}

func onInitController(s *controllerState, h reactor.ReactorHandle, v wire.InitController) error {
	s.player = v.Player
	s.host = v.Host

	lp := reactor.NewLinkParams(v.Host, struct{}{})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.Data) error {
		return handleHostData(s, lh, v)
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.ClientKicked) error {
		return handleKick(s, lh)
	})
	h.OpenLink(lp.Build())
	return nil
}

// onAccepted attaches a newly authenticated session: the client manager
// replies Accepted to both the session and its controller once
// SpawnPlayer resolves a token, so a controller learns its session's
// identity the same way it learns its host's.
func onAccepted(s *controllerState, h reactor.ReactorHandle, v wire.Accepted) error {
	attach(s, h, v.Session)
	return nil
}

// attach binds session as the controller's live session, closing the
// link to any previously attached session first — a second SpawnPlayer
// redemption for this controller's token replaces the earlier session
// rather than running alongside it (spec.md §4.8).
func attach(s *controllerState, h reactor.ReactorHandle, session reactor.ID) {
	if s.session != nil && *s.session != session {
		h.CloseLink(*s.session, true)
	}

	lp := reactor.NewLinkParams(session, struct{}{}).WithAuto(true)
	lp.OnClose(func(_ *struct{}, lh reactor.LinkHandle) {
		lh.Enqueue(reactor.ToReactor(), wire.ControllerLost{Controller: lh.Peer()})
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.PlayerInput) error {
		return handlePlayerInput(s, lh, v)
	})
	h.OpenLink(lp.Build())

	s.session = &session
	s.connected = true
	flushBuffer(s, h, session)
}

func flushBuffer(s *controllerState, h reactor.ReactorHandle, session reactor.ID) {
	for _, frame := range s.buffer {
		_ = h.SendExternal(session, wire.Data{Payload: frame.payload})
	}
	s.buffer = nil
	s.bufferBytes = 0
}

func handleHostData(s *controllerState, h reactor.ReactorHandle, v wire.Data) error {
	if s.connected && s.session != nil {
		return h.SendExternal(*s.session, v)
	}
	bufferFrame(s, v.Payload)
	return nil
}

// bufferFrame appends payload to the FIFO, dropping the oldest frames
// until the buffer fits within bufferCap bytes (spec.md §4.9).
func bufferFrame(s *controllerState, payload []byte) {
	s.buffer = append(s.buffer, bufferedFrame{payload: payload})
	s.bufferBytes += len(payload)
	for s.bufferBytes > s.bufferCap && len(s.buffer) > 0 {
		dropped := s.buffer[0]
		s.buffer = s.buffer[1:]
		s.bufferBytes -= len(dropped.payload)
		s.logger.Info("client controller FIFO overflow, dropping oldest frame", "player", s.player.String())
	}
}

func handlePlayerInput(s *controllerState, h reactor.LinkHandle, v wire.PlayerInput) error {
	return h.SendExternal(s.host, v)
}

// onSessionClosed fires when the session link closes (detach): the
// controller stays alive, buffering, until a reattach or a kick.
func onSessionClosed(s *controllerState, h reactor.ReactorHandle, v wire.ControllerLost) error {
	if s.session != nil && v.Controller == *s.session {
		s.session = nil
		s.connected = false
	}
	return nil
}

func handleKick(s *controllerState, h reactor.LinkHandle) error {
	if s.connected && s.session != nil {
		_ = h.SendExternal(*s.session, wire.Close{})
		h.CloseLink(*s.session, true)
	}
	h.Destroy()
	return nil
}

// onFinalState fires when the match reactor finalizes, per spec.md
// §5's teardown order (step-lock, then client controllers, then
// self): the session, if any, is told to close and the controller
// self-destroys.
func onFinalState(s *controllerState, h reactor.ReactorHandle, v wire.FinalState) error {
	if s.connected && s.session != nil {
		_ = h.SendExternal(*s.session, wire.Close{})
		h.CloseLink(*s.session, true)
	}
	h.Destroy()
	return nil
}
