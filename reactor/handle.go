package reactor

import "github.com/oakmoth/reactorium/log"

// ReactorHandle is the capability set a reactor's own handlers and its
// links' handlers are given: send to a peer, enqueue an internal
// operation, open or close a link, or request self-destruction
// (spec.md §4.3, §4.4). It is non-generic so it can be shared across
// reactors whose state types differ.
type ReactorHandle interface {
	// Self returns this reactor's own identifier.
	Self() ID
	// Broker returns the broker this reactor is registered with.
	Broker() *Broker
	// SendExternal dispatches v to peer through the broker, as if sent
	// by Self().
	SendExternal(peer ID, v any) error
	// Enqueue places v on the internal operation queue, routed per target.
	// Internal operations are drained to empty before the next external
	// message is read from the mailbox (spec.md §4.3).
	Enqueue(target Target, v any)
	// OpenLink records link as open. link was built with NewLinkParams
	// and is frozen from that point on (invariant L2).
	OpenLink(link LinkRuntime)
	// CloseLink closes the link to peer. If soft, the link's closer
	// callback runs once, given one last LinkHandle, before the link
	// record is removed; a hard close skips the callback.
	CloseLink(peer ID, hard bool)
	// Destroy requests that the reactor tear itself down once the
	// internal queue has drained.
	Destroy()
	// Logger returns the reactor's logger, already scoped with its ID.
	Logger() log.Logger
}

// LinkHandle is the handle passed to a link's own handlers: everything
// a ReactorHandle offers, plus the identity of the peer the link is
// attached to.
type LinkHandle interface {
	ReactorHandle
	// Peer returns the identifier of the reactor on the other end of
	// this link.
	Peer() ID
}

// opSink receives internal operations enqueued from handler code. The
// concrete ReactorDriver[S] implements it; driverHandle only needs this
// much of the driver to stay non-generic.
type opSink interface {
	enqueueOp(op internalOp)
}

// driverHandle is the concrete ReactorHandle backing a running
// ReactorDriver[S]. It never touches S directly, which is what lets
// ReactorHandle stay a non-generic interface despite the driver being
// parametrized over the reactor's state type.
type driverHandle struct {
	id     ID
	broker *Broker
	sink   opSink
	logger log.Logger
}

func (h *driverHandle) Self() ID          { return h.id }
func (h *driverHandle) Broker() *Broker   { return h.broker }
func (h *driverHandle) Logger() log.Logger { return h.logger }

func (h *driverHandle) SendExternal(peer ID, v any) error {
	return h.broker.Sender(peer).Send(h.id, v)
}

func (h *driverHandle) Enqueue(target Target, v any) {
	h.sink.enqueueOp(internalOp{kind: opMessage, target: target, msg: Wrap(v)})
}

func (h *driverHandle) OpenLink(link LinkRuntime) {
	h.sink.enqueueOp(internalOp{kind: opOpenLink, peer: link.Peer(), link: link})
}

func (h *driverHandle) CloseLink(peer ID, hard bool) {
	kind := opCloseLink
	if hard {
		kind = opCloseLinkHard
	}
	h.sink.enqueueOp(internalOp{kind: kind, peer: peer})
}

func (h *driverHandle) Destroy() {
	h.sink.enqueueOp(internalOp{kind: opDestroy})
}

// linkHandle adapts a ReactorHandle into a LinkHandle scoped to peer.
type linkHandle struct {
	ReactorHandle
	peer ID
}

func (h linkHandle) Peer() ID { return h.peer }
