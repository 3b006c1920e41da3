package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

type fakeHost struct {
	id   reactor.ID
	recv chan wire.PlayerInput
}

func spawnFakeHost(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool) *fakeHost {
	t.Helper()
	recv := make(chan wire.PlayerInput, 16)
	params := reactor.NewCoreParams(struct{}{})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.PlayerInput) error {
		recv <- v
		return nil
	})
	id := reactor.NewID()
	d, err := reactor.Spawn(ctx, b, pool, id, "fake-host", params, nil, nil)
	require.NoError(t, err)
	return &fakeHost{id: d.ID(), recv: recv}
}

type fakeSession struct {
	id     reactor.ID
	data   chan wire.Data
	kicked chan struct{}
	closed chan struct{}
}

func spawnFakeSession(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool) *fakeSession {
	t.Helper()
	fs := &fakeSession{
		id:     reactor.NewID(),
		data:   make(chan wire.Data, 16),
		kicked: make(chan struct{}, 1),
		closed: make(chan struct{}, 1),
	}
	params := reactor.NewCoreParams(struct{}{})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.Data) error {
		fs.data <- v
		return nil
	})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.ClientKicked) error {
		fs.kicked <- struct{}{}
		return nil
	})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.Close) error {
		fs.closed <- struct{}{}
		return nil
	})
	_, err := reactor.Spawn(ctx, b, pool, fs.id, "fake-session", params, nil, nil)
	require.NoError(t, err)
	return fs
}

func TestControllerForwardsHostDataWhenAttached(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	host := spawnFakeHost(t, ctx, b, pool)
	session := spawnFakeSession(t, ctx, b, pool)

	ctrlDriver, err := SpawnController(ctx, b, pool, 0, nil, m)
	require.NoError(t, err)

	player := reactor.NewID()
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.InitController{Player: player, Host: host.id}))
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Accepted{Player: player, Session: session.id, Controller: ctrlDriver.ID()}))

	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Data{Payload: []byte("hello")}))

	select {
	case d := <-session.data:
		assert.Equal(t, []byte("hello"), d.Payload)
	case <-time.After(time.Second):
		t.Fatal("session never received forwarded data")
	}
}

func TestControllerBuffersWhileDetachedAndFlushesOnAttach(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	host := spawnFakeHost(t, ctx, b, pool)

	ctrlDriver, err := SpawnController(ctx, b, pool, 0, nil, m)
	require.NoError(t, err)

	player := reactor.NewID()
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.InitController{Player: player, Host: host.id}))

	// No session attached yet: this must be buffered, not dropped.
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Data{Payload: []byte("buffered")}))
	time.Sleep(50 * time.Millisecond)

	session := spawnFakeSession(t, ctx, b, pool)
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Accepted{Player: player, Session: session.id, Controller: ctrlDriver.ID()}))

	select {
	case d := <-session.data:
		assert.Equal(t, []byte("buffered"), d.Payload)
	case <-time.After(time.Second):
		t.Fatal("session never received the buffered frame on attach")
	}
}

func TestControllerForwardsPlayerInputToHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	host := spawnFakeHost(t, ctx, b, pool)
	session := spawnFakeSession(t, ctx, b, pool)

	ctrlDriver, err := SpawnController(ctx, b, pool, 0, nil, m)
	require.NoError(t, err)

	player := reactor.NewID()
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.InitController{Player: player, Host: host.id}))
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Accepted{Player: player, Session: session.id, Controller: ctrlDriver.ID()}))

	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(session.id, wire.PlayerInput{Payload: []byte("move")}))

	select {
	case v := <-host.recv:
		assert.Equal(t, []byte("move"), v.Payload)
	case <-time.After(time.Second):
		t.Fatal("host never received forwarded player input")
	}
}

func TestControllerKickClosesSessionAndDestroysSelf(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	host := spawnFakeHost(t, ctx, b, pool)
	session := spawnFakeSession(t, ctx, b, pool)

	ctrlDriver, err := SpawnController(ctx, b, pool, 0, nil, m)
	require.NoError(t, err)

	player := reactor.NewID()
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.InitController{Player: player, Host: host.id}))
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Accepted{Player: player, Session: session.id, Controller: ctrlDriver.ID()}))

	// The host (step-lock) sends ClientKicked to the controller on kick.
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.ClientKicked{}))

	select {
	case <-session.closed:
	case <-time.After(time.Second):
		t.Fatal("session never received Close on kick")
	}

	require.Eventually(t, func() bool {
		return !b.Exists(ctrlDriver.ID())
	}, time.Second, 10*time.Millisecond, "controller never destroyed itself after kick")
}

func TestControllerBufferOverflowDropsOldestFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	host := spawnFakeHost(t, ctx, b, pool)

	ctrlDriver, err := SpawnController(ctx, b, pool, 10, nil, m) // tiny cap: 10 bytes
	require.NoError(t, err)

	player := reactor.NewID()
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.InitController{Player: player, Host: host.id}))

	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Data{Payload: []byte("0123456789")})) // fills the cap
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Data{Payload: []byte("overflow")}))  // forces the first frame out
	time.Sleep(50 * time.Millisecond)

	session := spawnFakeSession(t, ctx, b, pool)
	require.NoError(t, b.Sender(ctrlDriver.ID()).Send(host.id, wire.Accepted{Player: player, Session: session.id, Controller: ctrlDriver.ID()}))

	select {
	case d := <-session.data:
		assert.Equal(t, []byte("overflow"), d.Payload, "the oldest frame should have been dropped, not the newest")
	case <-time.After(time.Second):
		t.Fatal("session never received the surviving buffered frame")
	}

	select {
	case <-session.data:
		t.Fatal("only one frame should have survived the overflow")
	case <-time.After(100 * time.Millisecond):
	}
}
