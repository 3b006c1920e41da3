// Package steplock implements the per-match turn barrier described in
// spec.md §4.7: it fans a host message batch out to attached player
// controllers, collects their replies until every player has answered
// or a deadline passes, and hands the collected batch back to the
// owning match reactor.
package steplock

import (
	"context"
	"time"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// state is the step-lock's own reactor state. Link handlers close over
// a *state captured at link-build time rather than relying on a
// generic per-link state type, since every link here needs the same
// shared bookkeeping (roster, expected, received).
type state struct {
	matchPeer reactor.ID
	timeout   time.Duration

	roster   map[reactor.ID]struct{}
	expected map[reactor.ID]struct{}
	received map[reactor.ID][]byte

	collecting bool
	seq        uint64
	timer      *time.Timer

	metrics *metrics.Metrics
}

// Params builds the CoreParams for a step-lock reactor. Callers spawn
// it with reactor.Spawn (or the Spawn helper below) and then send it a
// wire.InitRoster message naming the match reactor and the controllers
// to seed its links (game.SpawnMatch sends it from the runtime identity).
func Params(m *metrics.Metrics) *reactor.CoreParams[state] {
	if m == nil {
		m = metrics.Noop()
	}
	p := reactor.NewCoreParams(state{metrics: m})

	reactor.OnReactor(p, onInitRoster)
	reactor.OnReactor(p, onTick)
	reactor.OnReactor(p, onControllerLost)
	reactor.OnReactor(p, onKickPlayer)
	reactor.OnReactor(p, onClose)

	return p
}

// Spawn registers a fresh step-lock reactor on broker and runs it on
// pool. The caller is responsible for sending the wire.InitRoster
// message that seeds its links.
func Spawn(ctx context.Context, broker *reactor.Broker, pool *reactor.WorkerPool, logger log.Logger, m *metrics.Metrics) (*reactor.ReactorDriver[state], error) {
	return reactor.Spawn(ctx, broker, pool, reactor.NewID(), "steplock", Params(m), logger, m)
}

func onInitRoster(s *state, h reactor.ReactorHandle, v wire.InitRoster) error {
	s.matchPeer = v.MatchPeer
	s.timeout = time.Duration(v.Timeout)
	s.roster = make(map[reactor.ID]struct{}, len(v.Controllers))

	attachMatchLink(s, h, v.MatchPeer)
	for _, controller := range v.Controllers {
		s.roster[controller] = struct{}{}
		attachController(s, h, controller)
	}
	return nil
}

func attachMatchLink(s *state, h reactor.ReactorHandle, peer reactor.ID) {
	lp := reactor.NewLinkParams(peer, struct{}{})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.HostBatch) error {
		return handleHostBatch(s, lh, v)
	})
	h.OpenLink(lp.Build())
}

func attachController(s *state, h reactor.ReactorHandle, controller reactor.ID) {
	lp := reactor.NewLinkParams(controller, struct{}{}).OnClose(func(_ *struct{}, lh reactor.LinkHandle) {
		lh.Enqueue(reactor.ToReactor(), wire.ControllerLost{Controller: lh.Peer()})
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.PlayerInput) error {
		return handlePlayerInput(s, lh, v)
	})
	h.OpenLink(lp.Build())
}

func handleHostBatch(s *state, lh reactor.LinkHandle, v wire.HostBatch) error {
	for _, msg := range v.Messages {
		deliverHostMessage(s, lh, msg)
	}
	beginCollecting(s, lh)
	return nil
}

func deliverHostMessage(s *state, h reactor.ReactorHandle, msg wire.HostMessage) {
	if msg.Target != nil {
		if _, ok := s.roster[*msg.Target]; ok {
			_ = h.SendExternal(*msg.Target, wire.Data{Payload: msg.Payload})
		}
		if msg.Kick {
			dropController(s, h, *msg.Target)
		}
		return
	}
	for controller := range s.roster {
		_ = h.SendExternal(controller, wire.Data{Payload: msg.Payload})
	}
}

func beginCollecting(s *state, h reactor.ReactorHandle) {
	s.seq++
	s.received = make(map[reactor.ID][]byte, len(s.roster))
	s.expected = make(map[reactor.ID]struct{}, len(s.roster))
	for controller := range s.roster {
		s.expected[controller] = struct{}{}
	}

	if len(s.expected) == 0 {
		finalizeTurn(s, h)
		return
	}

	s.collecting = true
	if s.timeout > 0 {
		seq := s.seq
		self := h.Self()
		timer := h // ReactorHandle is safe to call SendExternal on from another goroutine.
		s.timer = time.AfterFunc(s.timeout, func() {
			_ = timer.SendExternal(self, wire.Tick{Seq: seq})
		})
	}
}

func handlePlayerInput(s *state, lh reactor.LinkHandle, v wire.PlayerInput) error {
	if !s.collecting {
		return nil
	}
	peer := lh.Peer()
	if _, ok := s.expected[peer]; !ok {
		return nil
	}
	s.received[peer] = v.Payload
	delete(s.expected, peer)
	if len(s.expected) == 0 {
		finalizeTurn(s, lh)
	}
	return nil
}

func finalizeTurn(s *state, h reactor.ReactorHandle) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	msgs := make([]wire.PlayerMessage, 0, len(s.roster))
	for peer := range s.roster {
		payload, ok := s.received[peer]
		if !ok {
			s.metrics.TurnTimeouts.Inc()
		}
		msgs = append(msgs, wire.PlayerMessage{Player: peer, Payload: payload})
	}

	s.collecting = false
	s.expected = nil
	s.received = nil
	s.metrics.TurnsCompleted.Inc()
	_ = h.SendExternal(s.matchPeer, wire.Turn{Messages: msgs})
}

func dropController(s *state, h reactor.ReactorHandle, controller reactor.ID) {
	delete(s.roster, controller)
	if s.expected != nil {
		if _, ok := s.expected[controller]; ok {
			delete(s.expected, controller)
			if s.collecting && len(s.expected) == 0 {
				finalizeTurn(s, h)
			}
		}
	}
	_ = h.SendExternal(controller, wire.ClientKicked{})
	h.CloseLink(controller, true)
}

func onTick(s *state, h reactor.ReactorHandle, v wire.Tick) error {
	if !s.collecting || v.Seq != s.seq {
		return nil
	}
	finalizeTurn(s, h)
	return nil
}

func onControllerLost(s *state, h reactor.ReactorHandle, v wire.ControllerLost) error {
	delete(s.roster, v.Controller)
	if s.expected != nil {
		if _, ok := s.expected[v.Controller]; ok {
			delete(s.expected, v.Controller)
			if s.collecting && len(s.expected) == 0 {
				finalizeTurn(s, h)
			}
		}
	}
	return nil
}

func onKickPlayer(s *state, h reactor.ReactorHandle, v wire.KickPlayer) error {
	dropController(s, h, v.Player)
	return nil
}

// onClose is the match reactor's explicit teardown signal (spec.md
// §5's "step-lock, then client controllers, then self" order): every
// controller link is dropped and the step-lock self-destroys
// immediately, independent of whatever link bookkeeping its match peer
// does on its own side.
func onClose(s *state, h reactor.ReactorHandle, _ wire.Close) error {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for controller := range s.roster {
		h.CloseLink(controller, true)
	}
	h.Destroy()
	return nil
}
