package game

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/store"
	"github.com/oakmoth/reactorium/wire"
)

// fakeGame is a minimal GameController recording every callback it gets.
type fakeGame struct {
	mu        sync.Mutex
	steps     [][]wire.PlayerMessage
	connected []reactor.ID
	dropped   []reactor.ID
	outgoing  []wire.HostMessage
	state     any
	done      bool
	doneValue any
}

func (g *fakeGame) Step(turn []wire.PlayerMessage) []wire.HostMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.steps = append(g.steps, turn)
	return g.outgoing
}

func (g *fakeGame) State() (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, nil
}

func (g *fakeGame) IsDone() (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doneValue, g.done
}

func (g *fakeGame) OnConnect(player reactor.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = append(g.connected, player)
}

func (g *fakeGame) OnDisconnect(player reactor.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropped = append(g.dropped, player)
}

// fakeStepLock stands in for the step-lock: it records HostBatch
// broadcasts and lets the test inject a Turn as if it were collected.
type fakeStepLock struct {
	id    reactor.ID
	batch chan wire.HostBatch
}

func spawnFakeStepLock(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool) *fakeStepLock {
	t.Helper()
	batch := make(chan wire.HostBatch, 16)
	params := reactor.NewCoreParams(struct{}{})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.HostBatch) error {
		batch <- v
		return nil
	})
	id := reactor.NewID()
	d, err := reactor.Spawn(ctx, b, pool, id, "fake-step-lock", params, nil, nil)
	require.NoError(t, err)
	return &fakeStepLock{id: d.ID(), batch: batch}
}

// fakeClientController stands in for a player's client controller: it
// records FinalState broadcasts from the match reactor.
type fakeClientController struct {
	id    reactor.ID
	final chan wire.FinalState
}

func spawnFakeClientController(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool) *fakeClientController {
	t.Helper()
	final := make(chan wire.FinalState, 4)
	params := reactor.NewCoreParams(struct{}{})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.FinalState) error {
		final <- v
		return nil
	})
	id := reactor.NewID()
	d, err := reactor.Spawn(ctx, b, pool, id, "fake-client-controller", params, nil, nil)
	require.NoError(t, err)
	return &fakeClientController{id: d.ID(), final: final}
}

// fakeSupervisor stands in for the game supervisor: it records
// StateResponse/KillAck replies addressed to it.
type fakeSupervisor struct {
	id    reactor.ID
	state chan wire.StateResponse
	kill  chan wire.KillAck
}

func spawnFakeSupervisor(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool) *fakeSupervisor {
	t.Helper()
	state := make(chan wire.StateResponse, 4)
	kill := make(chan wire.KillAck, 4)
	params := reactor.NewCoreParams(struct{}{})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.StateResponse) error {
		state <- v
		return nil
	})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.KillAck) error {
		kill <- v
		return nil
	})
	id := reactor.NewID()
	d, err := reactor.Spawn(ctx, b, pool, id, "fake-supervisor", params, nil, nil)
	require.NoError(t, err)
	return &fakeSupervisor{id: d.ID(), state: state, kill: kill}
}

func setupMatch(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool, game *fakeGame, snapshots *store.Store, supervisor *fakeSupervisor) (reactor.ID, *fakeStepLock, []*fakeClientController) {
	t.Helper()
	m := metrics.Noop()

	matchReactorID := reactor.NewID()
	_, err := reactor.Spawn(ctx, b, pool, matchReactorID, "match", MatchParams(game, snapshots, nil), nil, m)
	require.NoError(t, err)

	stepLock := spawnFakeStepLock(t, ctx, b, pool)
	c1 := spawnFakeClientController(t, ctx, b, pool)
	c2 := spawnFakeClientController(t, ctx, b, pool)

	slots := []wire.PlayerSlot{
		{Player: reactor.NewID(), Controller: c1.id},
		{Player: reactor.NewID(), Controller: c2.id},
	}

	require.NoError(t, b.Sender(matchReactorID).Send(supervisor.id, wire.InitMatch{
		MatchID:    99,
		Supervisor: supervisor.id,
		StepLock:   stepLock.id,
		Slots:      slots,
	}))

	require.Eventually(t, func() bool {
		game.mu.Lock()
		defer game.mu.Unlock()
		return len(game.connected) == 2
	}, time.Second, 10*time.Millisecond, "OnConnect never fired for both slots")

	return matchReactorID, stepLock, []*fakeClientController{c1, c2}
}

func TestMatchProcessesTurnAndBroadcastsHostBatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)

	game := &fakeGame{outgoing: []wire.HostMessage{{Payload: []byte("go")}}}
	supervisor := spawnFakeSupervisor(t, ctx, b, pool)
	matchReactorID, stepLock, _ := setupMatch(t, ctx, b, pool, game, nil, supervisor)

	require.NoError(t, b.Sender(matchReactorID).Send(stepLock.id, wire.Turn{
		Messages: []wire.PlayerMessage{{Payload: []byte("a")}},
	}))

	select {
	case batch := <-stepLock.batch:
		require.Len(t, batch.Messages, 1)
		assert.Equal(t, []byte("go"), batch.Messages[0].Payload)
	case <-time.After(time.Second):
		t.Fatal("step-lock never received the host batch")
	}
}

func TestMatchMirrorsStateToSnapshotStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)

	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	snap, err := store.Open(dbPath)
	require.NoError(t, err)
	defer snap.Close()

	game := &fakeGame{state: map[string]any{"turn": 1}}
	supervisor := spawnFakeSupervisor(t, ctx, b, pool)
	matchReactorID, stepLock, _ := setupMatch(t, ctx, b, pool, game, snap, supervisor)

	require.NoError(t, b.Sender(matchReactorID).Send(stepLock.id, wire.Turn{}))

	select {
	case <-stepLock.batch:
	case <-time.After(time.Second):
		t.Fatal("turn was never processed")
	}

	require.Eventually(t, func() bool {
		_, found, err := snap.Get(99)
		require.NoError(t, err)
		return found
	}, time.Second, 10*time.Millisecond, "snapshot was never written")
}

func TestMatchKickDropsControllerAndNotifiesGame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)

	game := &fakeGame{}
	supervisor := spawnFakeSupervisor(t, ctx, b, pool)
	matchReactorID, stepLock, controllers := setupMatch(t, ctx, b, pool, game, nil, supervisor)
	kicked := controllers[0].id
	game.outgoing = []wire.HostMessage{{Kick: true, Target: &kicked}}

	require.NoError(t, b.Sender(matchReactorID).Send(stepLock.id, wire.Turn{}))

	select {
	case <-stepLock.batch:
	case <-time.After(time.Second):
		t.Fatal("turn was never processed")
	}

	require.Eventually(t, func() bool {
		game.mu.Lock()
		defer game.mu.Unlock()
		return len(game.dropped) == 1
	}, time.Second, 10*time.Millisecond, "OnDisconnect never fired for the kicked player")
}

func TestMatchStateRequestRepliesToSupervisor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)

	game := &fakeGame{state: "mid-game"}
	supervisor := spawnFakeSupervisor(t, ctx, b, pool)
	matchReactorID, _, _ := setupMatch(t, ctx, b, pool, game, nil, supervisor)

	corr := reactor.NewID()
	require.NoError(t, b.Sender(matchReactorID).Send(supervisor.id, wire.StateRequest{Corr: corr}))

	select {
	case resp := <-supervisor.state:
		assert.Equal(t, corr, resp.Corr)
		assert.True(t, resp.Found)
		assert.Equal(t, "mid-game", resp.Value)
	case <-time.After(time.Second):
		t.Fatal("supervisor never received StateResponse")
	}
}

func TestMatchKillRequestForcesFinalizeAndAcks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)

	game := &fakeGame{state: "final-value"}
	supervisor := spawnFakeSupervisor(t, ctx, b, pool)
	matchReactorID, _, controllers := setupMatch(t, ctx, b, pool, game, nil, supervisor)

	corr := reactor.NewID()
	require.NoError(t, b.Sender(matchReactorID).Send(supervisor.id, wire.KillRequest{Corr: corr}))

	select {
	case ack := <-supervisor.kill:
		assert.Equal(t, corr, ack.Corr)
	case <-time.After(time.Second):
		t.Fatal("supervisor never received KillAck")
	}

	for _, c := range controllers {
		select {
		case final := <-c.final:
			assert.Equal(t, "final-value", final.Value)
		case <-time.After(time.Second):
			t.Fatal("controller never received FinalState")
		}
	}

	require.Eventually(t, func() bool {
		return !b.Exists(matchReactorID)
	}, time.Second, 10*time.Millisecond, "match reactor never self-destroyed after kill")
}
