package reactor

// LinkRuntime is the type-erased face of a Link[S], letting a reactor
// driver hold links of differing state types in a single map (spec.md
// §4.4). It is exported so that handler code in other packages can build
// a Link[S] with NewLinkParams and hand it to ReactorHandle.OpenLink
// without reactor needing a generic method in a public interface.
type LinkRuntime interface {
	// Peer is the reactor on the other end of the link.
	Peer() ID
	// Auto reports whether this link was opened without requiring a
	// reciprocal open from the peer (invariant L1).
	Auto() bool
	// Closed reports whether the link's closer has already run.
	Closed() bool
	// DispatchExternal routes a message that arrived from this link's
	// peer through the broker's mailbox to this link's external handler
	// table, returning whether a handler was registered for it.
	DispatchExternal(rh ReactorHandle, tag Tag, msg *Message) (bool, error)
	// DispatchInternal routes a message enqueued from within the owning
	// reactor itself (via Enqueue with ToLink or ToAllLinks) to this
	// link's internal handler table (spec.md §3's "Link record" holds
	// both tables separately).
	DispatchInternal(rh ReactorHandle, tag Tag, msg *Message) (bool, error)
	// RunCloser invokes the link's closer callback, if any, then marks
	// the link closed. Called at most once.
	RunCloser(rh ReactorHandle)
}

// Handler is the signature for a link's per-message-type callback. It
// takes the link's own state, a handle scoped to the link's peer, and
// the arrived message.
type Handler[S any] func(state *S, h LinkHandle, msg *Message) error

// LinkParams builds a Link[S]'s frozen handler tables before it is
// opened. Once Build is called, the tables cannot be extended — the
// link's handler set is fixed for its lifetime (invariant L2). external
// and internal are kept separate per spec.md §3's Link record, so the
// same tag may be bound to a different callback depending on whether
// the message arrived from the peer or was routed internally via
// ToLink/ToAllLinks.
type LinkParams[S any] struct {
	peer     ID
	auto     bool
	state    S
	external map[Tag]Handler[S]
	internal map[Tag]Handler[S]
	closer   func(state *S, h LinkHandle)
}

// NewLinkParams begins building a link to peer, carrying the given
// per-link state.
func NewLinkParams[S any](peer ID, state S) *LinkParams[S] {
	return &LinkParams[S]{
		peer:     peer,
		state:    state,
		external: make(map[Tag]Handler[S]),
		internal: make(map[Tag]Handler[S]),
	}
}

// WithAuto marks the link as not requiring a reciprocal open from the
// peer to satisfy invariant L1 — used for links opened toward reactors
// that are known never to open a matching link back (e.g. the client
// manager's links to its peers and watched controllers, and a client
// controller's link to its session).
func (p *LinkParams[S]) WithAuto(auto bool) *LinkParams[S] {
	p.auto = auto
	return p
}

// OnClose registers the callback run once, with one last LinkHandle,
// when the link is closed softly.
func (p *LinkParams[S]) OnClose(f func(state *S, h LinkHandle)) *LinkParams[S] {
	p.closer = f
	return p
}

// On registers a raw, tag-keyed handler on the external table. Prefer
// OnLink for typed registration; On exists for callers that already
// hold a Tag.
func (p *LinkParams[S]) On(tag Tag, h Handler[S]) *LinkParams[S] {
	p.external[tag] = h
	return p
}

// OnInternal registers a raw, tag-keyed handler on the internal table,
// reached only via Enqueue(ToLink(peer), ...) or Enqueue(ToAllLinks(), ...)
// from within the owning reactor's own handler code.
func (p *LinkParams[S]) OnInternal(tag Tag, h Handler[S]) *LinkParams[S] {
	p.internal[tag] = h
	return p
}

// OnLink registers an external handler for messages wrapping exactly T
// — dispatched when the message arrives from this link's peer — taking
// T out of the message before calling h.
func OnLink[S any, T any](p *LinkParams[S], h func(state *S, lh LinkHandle, v T) error) *LinkParams[S] {
	p.external[tagOfGeneric[T]()] = wrapLinkHandler(h)
	return p
}

// OnLinkInternal registers an internal handler for messages wrapping
// exactly T — dispatched only when routed via ToLink/ToAllLinks from
// the owning reactor's own code, never by the peer's mailbox traffic.
func OnLinkInternal[S any, T any](p *LinkParams[S], h func(state *S, lh LinkHandle, v T) error) *LinkParams[S] {
	p.internal[tagOfGeneric[T]()] = wrapLinkHandler(h)
	return p
}

func wrapLinkHandler[S any, T any](h func(state *S, lh LinkHandle, v T) error) Handler[S] {
	return func(state *S, lh LinkHandle, msg *Message) error {
		v, err := Take[T](msg)
		if err != nil {
			return err
		}
		return h(state, lh, v)
	}
}

// Build freezes the handler tables and returns the link, ready to be
// passed to ReactorHandle.OpenLink.
func (p *LinkParams[S]) Build() *Link[S] {
	return &Link[S]{
		peer:     p.peer,
		auto:     p.auto,
		state:    p.state,
		external: p.external,
		internal: p.internal,
		closer:   p.closer,
	}
}

// Link is one reactor's end of a bidirectional connection to peer,
// carrying its own state S and frozen external/internal handler tables
// (spec.md §3, §4.4).
type Link[S any] struct {
	peer     ID
	auto     bool
	state    S
	external map[Tag]Handler[S]
	internal map[Tag]Handler[S]
	closer   func(state *S, h LinkHandle)
	closed   bool
}

func (l *Link[S]) Peer() ID    { return l.peer }
func (l *Link[S]) Auto() bool  { return l.auto }
func (l *Link[S]) Closed() bool { return l.closed }

func (l *Link[S]) DispatchExternal(rh ReactorHandle, tag Tag, msg *Message) (bool, error) {
	return l.dispatch(l.external, rh, tag, msg)
}

func (l *Link[S]) DispatchInternal(rh ReactorHandle, tag Tag, msg *Message) (bool, error) {
	return l.dispatch(l.internal, rh, tag, msg)
}

func (l *Link[S]) dispatch(table map[Tag]Handler[S], rh ReactorHandle, tag Tag, msg *Message) (bool, error) {
	h, ok := table[tag]
	if !ok {
		return false, nil
	}
	lh := linkHandle{ReactorHandle: rh, peer: l.peer}
	return true, h(&l.state, lh, msg)
}

func (l *Link[S]) RunCloser(rh ReactorHandle) {
	if l.closed {
		return
	}
	if l.closer != nil {
		lh := linkHandle{ReactorHandle: rh, peer: l.peer}
		l.closer(&l.state, lh)
	}
	l.closed = true
}
