package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmoth/reactorium/metrics"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// fakeConn is an in-memory Conn for session tests.
type fakeConn struct {
	written chan []byte
	closed  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan []byte, 16), closed: make(chan struct{}, 1)}
}

func (c *fakeConn) ReadFrame() ([]byte, error) { return nil, errors.New("not used in these tests") }

func (c *fakeConn) WriteFrame(payload []byte) error {
	c.written <- payload
	return nil
}

func (c *fakeConn) Close() error {
	select {
	case c.closed <- struct{}{}:
	default:
	}
	return nil
}

type fakeController struct {
	id   reactor.ID
	recv chan wire.PlayerInput
}

func spawnFakeController(t *testing.T, ctx context.Context, b *reactor.Broker, pool *reactor.WorkerPool) *fakeController {
	t.Helper()
	recv := make(chan wire.PlayerInput, 16)
	params := reactor.NewCoreParams(struct{}{})
	reactor.OnReactor(params, func(_ *struct{}, h reactor.ReactorHandle, v wire.PlayerInput) error {
		recv <- v
		return nil
	})
	id := reactor.NewID()
	d, err := reactor.Spawn(ctx, b, pool, id, "fake-controller", params, nil, nil)
	require.NoError(t, err)
	return &fakeController{id: d.ID(), recv: recv}
}

func TestSessionWritesHostDataToConn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	conn := newFakeConn()
	controller := spawnFakeController(t, ctx, b, pool)

	sessionID := reactor.NewID()
	_, err := SpawnSession(ctx, b, pool, sessionID, conn, nil, m)
	require.NoError(t, err)

	require.NoError(t, b.Sender(sessionID).Send(controller.id, wire.Accepted{
		Session: sessionID, Controller: controller.id,
	}))

	require.NoError(t, b.Sender(sessionID).Send(controller.id, wire.Data{Payload: []byte("hello")}))

	select {
	case payload := <-conn.written:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("conn never received the written frame")
	}
}

func TestSessionForwardsPlayerInputToController(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	conn := newFakeConn()
	controller := spawnFakeController(t, ctx, b, pool)

	sessionID := reactor.NewID()
	_, err := SpawnSession(ctx, b, pool, sessionID, conn, nil, m)
	require.NoError(t, err)

	require.NoError(t, b.Sender(sessionID).Send(controller.id, wire.Accepted{
		Session: sessionID, Controller: controller.id,
	}))

	require.NoError(t, FeedFrame(b, sessionID, []byte("move-left")))

	select {
	case v := <-controller.recv:
		assert.Equal(t, []byte("move-left"), v.Payload)
	case <-time.After(time.Second):
		t.Fatal("controller never received forwarded input")
	}
}

func TestSessionDropsInputBeforeAccepted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	conn := newFakeConn()
	sessionID := reactor.NewID()
	_, err := SpawnSession(ctx, b, pool, sessionID, conn, nil, m)
	require.NoError(t, err)

	// Fed before any Accepted arrives: must be silently dropped, not
	// forwarded anywhere or crash the session.
	require.NoError(t, FeedFrame(b, sessionID, []byte("too-early")))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, b.Exists(sessionID), "session must survive an early frame")
}

func TestSessionClosesConnOnClientKicked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	b := reactor.NewBroker(nil, nil)
	pool := reactor.NewWorkerPool(8)
	m := metrics.Noop()

	conn := newFakeConn()
	controller := spawnFakeController(t, ctx, b, pool)

	sessionID := reactor.NewID()
	_, err := SpawnSession(ctx, b, pool, sessionID, conn, nil, m)
	require.NoError(t, err)

	require.NoError(t, b.Sender(sessionID).Send(controller.id, wire.Accepted{
		Session: sessionID, Controller: controller.id,
	}))

	require.NoError(t, b.Sender(sessionID).Send(controller.id, wire.ClientKicked{}))

	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatal("conn was never closed on ClientKicked")
	}

	require.Eventually(t, func() bool {
		return !b.Exists(sessionID)
	}, time.Second, 10*time.Millisecond, "session never destroyed itself after ClientKicked")
}
