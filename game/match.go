// Package game implements the Game Supervisor and the Match Reactor
// described in spec.md §4.5/§4.6: the supervisor accepts Build/State/Kill
// requests from a control-plane caller, and each Match Reactor owns one
// user-supplied game controller, delegating per-turn fan-out/collection
// to a step-lock and per-player buffering to client controllers.
package game

import (
	"context"

	"github.com/oakmoth/reactorium/client"
	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/steplock"
	"github.com/oakmoth/reactorium/store"
	"github.com/oakmoth/reactorium/wire"
)

// GameController is the user-supplied object a Match Reactor drives.
// This is the "richer contract" resolution of the Open Question in
// spec.md §9: beyond Step/State/IsDone, it also receives connect and
// disconnect notifications for the players attached to its match.
type GameController interface {
	// Step advances the simulation by one turn, given this turn's
	// collected player messages (a nil Payload marks a timed-out player;
	// dropped players are left out), and returns the host messages to broadcast or
	// target for the next turn.
	Step(turn []wire.PlayerMessage) []wire.HostMessage
	// State returns an opaque, JSON-marshalable snapshot of the match.
	State() (any, error)
	// IsDone reports whether the match has concluded and, if so, its
	// final value.
	IsDone() (any, bool)
	// OnConnect notifies the controller that player's client controller
	// has joined the match.
	OnConnect(player reactor.ID)
	// OnDisconnect notifies the controller that player's client
	// controller has left the match, by disconnect or kick.
	OnDisconnect(player reactor.ID)
}

// matchState is a Match Reactor's own state.
type matchState struct {
	controller GameController

	matchID    uint64
	supervisor reactor.ID
	stepLock   reactor.ID
	// controllers maps a client controller's reactor identifier to the
	// logical player identifier it serves.
	controllers map[reactor.ID]reactor.ID

	// snapshots mirrors State() there after every completed turn, for
	// operator inspection only; may be nil.
	snapshots *store.Store

	closing bool
	logger  log.Logger
}

// MatchParams builds the CoreParams for a Match Reactor around
// controller. snapshots may be nil to disable per-turn state mirroring.
// The caller must send wire.InitMatch immediately after spawning to
// seed the step-lock and controller links.
func MatchParams(controller GameController, snapshots *store.Store, logger log.Logger) *reactor.CoreParams[matchState] {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := reactor.NewCoreParams(matchState{controller: controller, snapshots: snapshots, logger: logger})

	reactor.OnReactor(p, onInitMatch)
	reactor.OnReactor(p, onStateRequest)
	reactor.OnReactor(p, onKillRequest)
	reactor.OnReactor(p, onControllerLost)

	return p
}

func onInitMatch(s *matchState, h reactor.ReactorHandle, v wire.InitMatch) error {
	s.matchID = v.MatchID
	s.supervisor = v.Supervisor
	s.stepLock = v.StepLock
	s.controllers = make(map[reactor.ID]reactor.ID, len(v.Slots))

	attachStepLock(s, h, v.StepLock)
	for _, slot := range v.Slots {
		s.controllers[slot.Controller] = slot.Player
		attachControllerLink(s, h, slot.Controller)
		s.controller.OnConnect(slot.Player)
	}
	return nil
}

func attachStepLock(s *matchState, h reactor.ReactorHandle, stepLock reactor.ID) {
	lp := reactor.NewLinkParams(stepLock, struct{}{})
	reactor.OnLink(lp, func(_ *struct{}, lh reactor.LinkHandle, v wire.Turn) error {
		return onTurn(s, lh, v)
	})
	h.OpenLink(lp.Build())
}

func attachControllerLink(s *matchState, h reactor.ReactorHandle, controller reactor.ID) {
	lp := reactor.NewLinkParams(controller, struct{}{})
	lp.OnClose(func(_ *struct{}, lh reactor.LinkHandle) {
		lh.Enqueue(reactor.ToReactor(), wire.ControllerLost{Controller: lh.Peer()})
	})
	h.OpenLink(lp.Build())
}

func onTurn(s *matchState, h reactor.ReactorHandle, v wire.Turn) error {
	if s.closing {
		return nil
	}
	outgoing := s.controller.Step(v.Messages)
	if err := h.SendExternal(s.stepLock, wire.HostBatch{Messages: outgoing}); err != nil {
		return err
	}
	mirrorState(s)
	for _, msg := range outgoing {
		if msg.Kick && msg.Target != nil {
			dropController(s, h, *msg.Target)
		}
	}
	checkDone(s, h)
	return nil
}

// mirrorState writes the controller's current state to the snapshot
// store, if one is configured. Failures are logged, not propagated —
// snapshotting is best-effort and never blocks live match traffic.
func mirrorState(s *matchState) {
	if s.snapshots == nil {
		return
	}
	val, err := s.controller.State()
	if err != nil {
		return
	}
	if err := s.snapshots.Put(s.matchID, val); err != nil {
		s.logger.Error("snapshot write failed", "match", s.matchID, "err", err.Error())
	}
}

func checkDone(s *matchState, h reactor.ReactorHandle) {
	if val, done := s.controller.IsDone(); done {
		finalizeMatch(s, h, val)
	}
}

// dropController handles a mid-turn Kick: the controller link is
// hard-closed, which skips its closer callback, so OnDisconnect is
// called here directly instead.
func dropController(s *matchState, h reactor.ReactorHandle, controller reactor.ID) {
	if player, ok := s.controllers[controller]; ok {
		delete(s.controllers, controller)
		s.controller.OnDisconnect(player)
	}
	h.CloseLink(controller, true)
}

func onControllerLost(s *matchState, h reactor.ReactorHandle, v wire.ControllerLost) error {
	if player, ok := s.controllers[v.Controller]; ok {
		delete(s.controllers, v.Controller)
		s.controller.OnDisconnect(player)
	}
	return nil
}

func onStateRequest(s *matchState, h reactor.ReactorHandle, v wire.StateRequest) error {
	val, err := s.controller.State()
	found := err == nil
	if err != nil {
		val = nil
	}
	return h.SendExternal(s.supervisor, wire.StateResponse{Corr: v.Corr, Value: val, Found: found})
}

// onKillRequest forces an immediate final-state emit and link teardown,
// per spec.md §4.6's "KillRequest forces a final-state emit and
// immediate link teardown".
func onKillRequest(s *matchState, h reactor.ReactorHandle, v wire.KillRequest) error {
	val, _ := s.controller.State()
	finalizeMatch(s, h, val)
	return h.SendExternal(s.supervisor, wire.KillAck{Corr: v.Corr})
}

// finalizeMatch tears the whole match-reactor graph down in spec.md
// §5's order — step-lock, then client controllers, then self: the
// step-lock gets an explicit wire.Close (CloseLink alone only updates
// the match's own link bookkeeping and never reaches the step-lock's
// own reactor state), then every controller gets its FinalState and is
// unlinked, and the match reactor self-destroys once its own last link
// closes (invariant R1).
func finalizeMatch(s *matchState, h reactor.ReactorHandle, val any) {
	if s.closing {
		return
	}
	s.closing = true
	_ = h.SendExternal(s.stepLock, wire.Close{})
	h.CloseLink(s.stepLock, true)
	for controller := range s.controllers {
		_ = h.SendExternal(controller, wire.FinalState{Value: val})
		h.CloseLink(controller, true)
	}
}

// BuildSpec describes one match to spawn: the game controller factory,
// how many players it seats, the step-lock deadline to use (zero means
// wait-for-all, per spec.md §5), and the per-controller FIFO cap (zero
// selects client.DefaultBufferBytes).
type BuildSpec struct {
	NewController         func() GameController
	PlayerCount           int
	StepTimeout           int64 // nanoseconds
	ControllerBufferBytes int
}

// SpawnMatch is the "builder closure" of spec.md §4.5: it spawns the
// whole match-reactor graph — the match reactor itself, a step-lock,
// and one client controller per seat — wires them together, and
// returns the match reactor's identifier plus the player/controller
// roster for the caller (the game supervisor) to hand to the client
// manager via RegisterGame.
func SpawnMatch(ctx context.Context, broker *reactor.Broker, pool *reactor.WorkerPool, supervisor reactor.ID, matchID uint64, snapshots *store.Store, spec BuildSpec, logger log.Logger, m *metrics.Metrics) (reactor.ID, []wire.PlayerSlot, error) {
	controller := spec.NewController()
	matchReactorID := reactor.NewID()

	if _, err := reactor.Spawn(ctx, broker, pool, matchReactorID, "match", MatchParams(controller, snapshots, logger), logger, m); err != nil {
		return reactor.NilID, nil, err
	}

	stepDriver, err := steplock.Spawn(ctx, broker, pool, logger, m)
	if err != nil {
		return reactor.NilID, nil, err
	}

	slots := make([]wire.PlayerSlot, spec.PlayerCount)
	controllerIDs := make([]reactor.ID, spec.PlayerCount)
	for i := 0; i < spec.PlayerCount; i++ {
		ctrlDriver, err := client.SpawnController(ctx, broker, pool, spec.ControllerBufferBytes, logger, m)
		if err != nil {
			return reactor.NilID, nil, err
		}
		player := reactor.NewID()
		controllerIDs[i] = ctrlDriver.ID()
		slots[i] = wire.PlayerSlot{Player: player, Controller: ctrlDriver.ID()}
	}

	runtime := broker.RuntimeID()

	for _, slot := range slots {
		if err := broker.Sender(slot.Controller).Send(runtime, wire.InitController{
			Player: slot.Player,
			Host:   stepDriver.ID(),
		}); err != nil {
			return reactor.NilID, nil, err
		}
	}

	if err := broker.Sender(stepDriver.ID()).Send(runtime, wire.InitRoster{
		MatchPeer:   matchReactorID,
		Controllers: controllerIDs,
		Timeout:     spec.StepTimeout,
	}); err != nil {
		return reactor.NilID, nil, err
	}

	if err := broker.Sender(matchReactorID).Send(runtime, wire.InitMatch{
		MatchID:    matchID,
		Supervisor: supervisor,
		StepLock:   stepDriver.ID(),
		Slots:      slots,
	}); err != nil {
		return reactor.NilID, nil, err
	}

	return matchReactorID, slots, nil
}
