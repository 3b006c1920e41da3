package game

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/oakmoth/reactorium/errs"
	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/store"
	"github.com/oakmoth/reactorium/wire"
)

type buildOp struct {
	spec  BuildSpec
	reply chan buildResult
}

type buildResult struct {
	matchID uint64
	ok      bool
}

type stateOp struct {
	matchID uint64
	reply   chan stateResult
}

type stateResult struct {
	value any
	found bool
}

type killOp struct {
	matchID uint64
	reply   chan killResult
}

type killResult struct {
	ok bool
}

type corrKind int

const (
	corrState corrKind = iota
	corrKill
)

type pendingCorr struct {
	kind  corrKind
	state chan stateResult
	kill  chan killResult
}

// Supervisor is the Game Supervisor of spec.md §4.5: it accepts
// Build/State/Kill requests over a buffered Go channel from a
// control-plane caller (in-process, or game/httpapi's HTTP front end
// running on its behalf) and maintains the set of in-flight matches.
// It also owns a broker mailbox of its own, since State/Kill replies
// arrive asynchronously from a match reactor rather than as a direct
// return value.
type Supervisor struct {
	id            reactor.ID
	mailbox       *reactor.Mailbox
	broker        *reactor.Broker
	pool          *reactor.WorkerPool
	clientManager reactor.ID

	// snapshots is handed to every spawned match reactor for per-turn
	// state mirroring; may be nil to disable snapshotting entirely.
	snapshots *store.Store

	ops chan any

	matches      map[uint64]reactor.ID
	correlations map[reactor.ID]pendingCorr

	logger  log.Logger
	metrics *metrics.Metrics
}

// NewSupervisor registers the supervisor's own mailbox on broker and
// returns it ready to Run. clientManager is the reactor identifier of
// the process's Client Manager, notified via RegisterGame on Build.
// snapshots may be nil to disable per-match state mirroring.
func NewSupervisor(broker *reactor.Broker, pool *reactor.WorkerPool, clientManager reactor.ID, snapshots *store.Store, logger log.Logger, m *metrics.Metrics) (*Supervisor, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if m == nil {
		m = metrics.Noop()
	}
	id := reactor.NewID()
	mb, err := broker.NewMailbox(id, "game-supervisor")
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		id:            id,
		mailbox:       mb,
		broker:        broker,
		pool:          pool,
		clientManager: clientManager,
		snapshots:     snapshots,
		ops:           make(chan any, 64),
		matches:       make(map[uint64]reactor.ID),
		correlations:  make(map[reactor.ID]pendingCorr),
		logger:        logger,
		metrics:       m,
	}, nil
}

// ID returns the supervisor's own reactor identifier (the address a
// match reactor sends StateResponse/KillAck replies to).
func (sv *Supervisor) ID() reactor.ID { return sv.id }

// Run drives the supervisor's control-channel and mailbox loop until
// ctx is cancelled.
func (sv *Supervisor) Run(ctx context.Context) {
	defer sv.mailbox.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sv.mailbox.Recv():
			if !ok {
				return
			}
			sv.handleEnvelope(env)
		case op := <-sv.ops:
			sv.handleOp(ctx, op)
		}
	}
}

func (sv *Supervisor) handleOp(ctx context.Context, op any) {
	switch o := op.(type) {
	case buildOp:
		sv.handleBuild(ctx, o)
	case stateOp:
		sv.handleState(o)
	case killOp:
		sv.handleKill(o)
	}
}

func randomMatchID(taken map[uint64]reactor.ID) (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, errs.Wrap(errs.ErrInternal, "mint match id: %v", err)
		}
		id := binary.BigEndian.Uint64(buf[:])
		if id == 0 {
			continue
		}
		if _, exists := taken[id]; exists {
			continue
		}
		return id, nil
	}
}

func (sv *Supervisor) handleBuild(ctx context.Context, o buildOp) {
	matchID, err := randomMatchID(sv.matches)
	if err != nil {
		sv.logger.Error("failed to mint match id", "err", err.Error())
		o.reply <- buildResult{}
		return
	}

	matchReactor, slots, err := SpawnMatch(ctx, sv.broker, sv.pool, sv.id, matchID, sv.snapshots, o.spec, sv.logger, sv.metrics)
	if err != nil {
		sv.logger.Error("build failed", "err", err.Error())
		o.reply <- buildResult{}
		return
	}
	sv.matches[matchID] = matchReactor

	if err := sv.broker.Sender(sv.clientManager).Send(sv.id, wire.RegisterGame{Match: matchID, Players: slots}); err != nil {
		sv.logger.Error("failed to register match with client manager", "err", err.Error())
	}

	o.reply <- buildResult{matchID: matchID, ok: true}
}

func (sv *Supervisor) handleState(o stateOp) {
	matchReactor, ok := sv.matches[o.matchID]
	if !ok {
		o.reply <- stateResult{}
		return
	}
	corr := reactor.NewID()
	sv.correlations[corr] = pendingCorr{kind: corrState, state: o.reply}
	if err := sv.broker.Sender(matchReactor).Send(sv.id, wire.StateRequest{Corr: corr}); err != nil {
		delete(sv.correlations, corr)
		delete(sv.matches, o.matchID) // the match reactor is already gone
		o.reply <- stateResult{}
	}
}

func (sv *Supervisor) handleKill(o killOp) {
	matchReactor, ok := sv.matches[o.matchID]
	if !ok {
		o.reply <- killResult{}
		return
	}
	delete(sv.matches, o.matchID)
	corr := reactor.NewID()
	sv.correlations[corr] = pendingCorr{kind: corrKill, kill: o.reply}
	if err := sv.broker.Sender(matchReactor).Send(sv.id, wire.KillRequest{Corr: corr}); err != nil {
		delete(sv.correlations, corr)
		o.reply <- killResult{}
	}
}

func (sv *Supervisor) handleEnvelope(env reactor.Envelope) {
	if v, err := reactor.Take[wire.StateResponse](&env.Msg); err == nil {
		sv.resolveState(v)
		return
	}
	if v, err := reactor.Take[wire.KillAck](&env.Msg); err == nil {
		sv.resolveKill(v)
		return
	}
	sv.logger.Error("supervisor received unexpected message", "from", env.Sender.String())
}

func (sv *Supervisor) resolveState(v wire.StateResponse) {
	pc, ok := sv.correlations[v.Corr]
	if !ok || pc.kind != corrState {
		sv.logger.Error("stray or mismatched StateResponse", "corr", v.Corr.String())
		return
	}
	delete(sv.correlations, v.Corr)
	pc.state <- stateResult{value: v.Value, found: v.Found}
}

func (sv *Supervisor) resolveKill(v wire.KillAck) {
	pc, ok := sv.correlations[v.Corr]
	if !ok || pc.kind != corrKill {
		sv.logger.Error("stray or mismatched KillAck", "corr", v.Corr.String())
		return
	}
	delete(sv.correlations, v.Corr)
	pc.kill <- killResult{ok: true}
}

// Build spawns a fresh match per spec and replies with its match
// identifier once RegisterGame has been sent to the client manager.
func (sv *Supervisor) Build(ctx context.Context, spec BuildSpec) (uint64, error) {
	reply := make(chan buildResult, 1)
	select {
	case sv.ops <- buildOp{spec: spec, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-reply:
		if !r.ok {
			return 0, errs.Wrap(errs.ErrInternal, "build failed")
		}
		return r.matchID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// State requests the current opaque value for matchID. found is false
// for an unknown match identifier.
func (sv *Supervisor) State(ctx context.Context, matchID uint64) (any, bool, error) {
	reply := make(chan stateResult, 1)
	select {
	case sv.ops <- stateOp{matchID: matchID, reply: reply}:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.value, r.found, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Kill tears down matchID. ok is false for an unknown match identifier.
func (sv *Supervisor) Kill(ctx context.Context, matchID uint64) (bool, error) {
	reply := make(chan killResult, 1)
	select {
	case sv.ops <- killOp{matchID: matchID, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
