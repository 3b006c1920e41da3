package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
)

type splitLinkState struct {
	fromPeer   int
	fromInside int
}

// TestLinkExternalAndInternalTablesAreIndependent binds the same tag to
// two different callbacks on a single link's external and internal
// tables, then drives one message through each path — the tables must
// not bleed into each other (spec.md §3's Link record).
func TestLinkExternalAndInternalTablesAreIndependent(t *testing.T) {
	b := NewBroker(nil, nil)
	id := NewID()
	peer := NewID()
	mb, err := b.NewMailbox(id, "split")
	require.NoError(t, err)

	params := NewCoreParams(counterState{})
	d := newDriver(id, "split", b, mb, params, log.NewNopLogger(), metrics.Noop())

	lp := NewLinkParams(peer, splitLinkState{})
	OnLink(lp, func(s *splitLinkState, lh LinkHandle, v pingPayload) error {
		s.fromPeer += v.N
		return nil
	})
	OnLinkInternal(lp, func(s *splitLinkState, lh LinkHandle, v pingPayload) error {
		s.fromInside += v.N
		return nil
	})
	d.handle.OpenLink(lp.Build())
	d.drainInternal()
	require.Contains(t, d.links, peer)

	d.handleExternal(Envelope{Sender: peer, Receiver: id, Msg: Wrap(pingPayload{N: 3})})

	typed, ok := d.links[peer].(*Link[splitLinkState])
	require.True(t, ok)
	assert.Equal(t, 3, typed.state.fromPeer)
	assert.Equal(t, 0, typed.state.fromInside, "an externally-arrived message must not reach the internal table")

	d.handle.Enqueue(ToLink(peer), pingPayload{N: 5})
	d.drainInternal()

	assert.Equal(t, 3, typed.state.fromPeer, "an internally-routed message must not reach the external table")
	assert.Equal(t, 5, typed.state.fromInside)
}

// TestLinkToAllLinksReachesOnlyInternalTables confirms ToAllLinks fans a
// message out to every open link's internal table, leaving external
// tables untouched.
func TestLinkToAllLinksReachesOnlyInternalTables(t *testing.T) {
	b := NewBroker(nil, nil)
	id := NewID()
	peerA, peerB := NewID(), NewID()
	mb, err := b.NewMailbox(id, "broadcast")
	require.NoError(t, err)

	params := NewCoreParams(counterState{})
	d := newDriver(id, "broadcast", b, mb, params, log.NewNopLogger(), metrics.Noop())

	for _, peer := range []ID{peerA, peerB} {
		lp := NewLinkParams(peer, splitLinkState{})
		OnLinkInternal(lp, func(s *splitLinkState, lh LinkHandle, v pingPayload) error {
			s.fromInside += v.N
			return nil
		})
		d.handle.OpenLink(lp.Build())
	}
	d.drainInternal()

	d.handle.Enqueue(ToAllLinks(), pingPayload{N: 2})
	d.drainInternal()

	for _, peer := range []ID{peerA, peerB} {
		typed, ok := d.links[peer].(*Link[splitLinkState])
		require.True(t, ok)
		assert.Equal(t, 2, typed.state.fromInside)
		assert.Equal(t, 0, typed.state.fromPeer)
	}
}
