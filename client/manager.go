// Package client implements the process-wide Client Manager and the
// per-player Client Controller described in spec.md §4.8/§4.9: the
// manager mints player tokens when a match is built (a token stays
// redeemable, so a player can reconnect with it), watches
// for the controllers that redeemed them to disappear, and accepts
// fresh sessions from transport endpoints once they present a valid
// token.
package client

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/oakmoth/reactorium/errs"
	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// attachment is what a minted token resolves to: the player/controller
// pair it was minted for.
type attachment struct {
	player     reactor.ID
	controller reactor.ID
}

// managerState is the Client Manager's own reactor state. It is never
// shared with a per-peer Link[S]'s state type; the handlers that need
// it close over a *managerState captured at link-build time instead,
// the same pattern steplock uses for its own links.
type managerState struct {
	attached map[uint64]attachment // token -> attachment
	watching map[reactor.ID]struct{}

	logger log.Logger
}

// ManagerParams builds the CoreParams for the Client Manager. Exactly
// one Client Manager runs per process. spec.md §4.8 lists RegisterGame,
// RegisterEndpoint, and SpawnPlayer as "operations (as link messages)",
// so every peer that talks to the manager — the game supervisor, a
// registered transport endpoint, or an endpoint that never bothered to
// pre-register — gets the same peer link, built either proactively
// (RegisterEndpoint) or lazily on first contact via the auto-link
// fallback, so replies always reach the right sender.
func ManagerParams(logger log.Logger) *reactor.CoreParams[managerState] {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := reactor.NewCoreParams(managerState{
		attached: make(map[uint64]attachment),
		watching: make(map[reactor.ID]struct{}),
		logger:   logger,
	})

	reactor.OnReactor(p, onControllerClosed)
	p.WithAutoLink(buildPeerLink)

	return p
}

// SpawnManager registers the Client Manager on broker and runs it on pool.
func SpawnManager(ctx context.Context, broker *reactor.Broker, pool *reactor.WorkerPool, id reactor.ID, logger log.Logger, m *metrics.Metrics) (*reactor.ReactorDriver[managerState], error) {
	return reactor.Spawn(ctx, broker, pool, id, "client-manager", ManagerParams(logger), logger, m)
}

// buildPeerLink builds the link any peer of the Client Manager uses,
// whether opened proactively (RegisterEndpoint) or lazily on first
// contact (auto-link fallback for the supervisor or an unregistered
// endpoint).
func buildPeerLink(s *managerState, peer reactor.ID) reactor.LinkRuntime {
	lp := reactor.NewLinkParams(peer, struct{}{}).WithAuto(true)
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.RegisterGame) error {
		return handleRegisterGame(s, lh, v)
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.RegisterEndpoint) error {
		return handleRegisterEndpoint(s, lh, v)
	})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.SpawnPlayer) error {
		return handleSpawnPlayer(s, lh, v)
	})
	return lp.Build()
}

// mintToken produces a non-zero token not already recorded in attached
// (property P4: tokens are unique among the tokens currently recorded;
// a token revoked by onControllerClosed may be minted again later).
func mintToken(attached map[uint64]attachment) (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, errs.Wrap(errs.ErrInternal, "mint token: %v", err)
		}
		token := binary.BigEndian.Uint64(buf[:])
		if token == 0 {
			continue
		}
		if _, exists := attached[token]; exists {
			continue
		}
		return token, nil
	}
}

func handleRegisterGame(s *managerState, lh reactor.LinkHandle, v wire.RegisterGame) error {
	tokens := make([]uint64, len(v.Players))
	for i, slot := range v.Players {
		token, err := mintToken(s.attached)
		if err != nil {
			s.logger.Error("failed to mint player token", "err", err.Error())
			return err
		}
		s.attached[token] = attachment{player: slot.Player, controller: slot.Controller}
		tokens[i] = token
		watchController(s, lh, slot.Controller)
	}
	return lh.SendExternal(lh.Peer(), wire.PlayerUUIDs{Match: v.Match, Tokens: tokens})
}

// watchController opens an auto outgoing link to controller so the
// manager learns, via the link's closer, when that controller exits —
// at which point every token minted for it must be revoked.
func watchController(s *managerState, h reactor.ReactorHandle, controller reactor.ID) {
	if _, already := s.watching[controller]; already {
		return
	}
	s.watching[controller] = struct{}{}

	lp := reactor.NewLinkParams(controller, struct{}{}).WithAuto(true)
	lp.OnClose(func(_ *struct{}, lh reactor.LinkHandle) {
		lh.Enqueue(reactor.ToReactor(), wire.ControllerClosed{Controller: lh.Peer()})
	})
	h.OpenLink(lp.Build())
}

func onControllerClosed(s *managerState, h reactor.ReactorHandle, v wire.ControllerClosed) error {
	delete(s.watching, v.Controller)
	for token, att := range s.attached {
		if att.controller == v.Controller {
			delete(s.attached, token)
		}
	}
	return nil
}

func handleRegisterEndpoint(s *managerState, lh reactor.LinkHandle, v wire.RegisterEndpoint) error {
	if v.Endpoint == lh.Peer() {
		return nil // already linked, nothing further to open
	}
	lh.OpenLink(buildPeerLink(s, v.Endpoint))
	return nil
}

// handleSpawnPlayer looks up the token's attachment and, if present,
// runs the caller-supplied builder to materialize the per-session
// reactor, then tells both the session and its controller who they are
// bound to. The token is never removed on redemption: a second
// SpawnPlayer for the same token replaces the earlier session rather
// than being rejected (spec.md §4.8), since a player may legitimately
// reconnect with the same token after a dropped connection.
func handleSpawnPlayer(s *managerState, lh reactor.LinkHandle, v wire.SpawnPlayer) error {
	att, ok := s.attached[v.Token]
	if !ok {
		s.logger.Info("spawn player rejected: unknown token")
		return nil
	}

	newID := reactor.NewID()
	controllerSender := lh.Broker().Sender(att.controller)
	sessionSender := v.Build(newID, controllerSender)

	accepted := wire.Accepted{Player: att.player, Session: newID, Controller: att.controller}
	if err := sessionSender.Send(lh.Self(), accepted); err != nil {
		return err
	}
	return controllerSender.Send(lh.Self(), accepted)
}
