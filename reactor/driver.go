package reactor

import (
	"container/list"
	"context"

	"github.com/oakmoth/reactorium/errs"
	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
)

// ReactorHandler is a reactor's own (not link-scoped) handler callback.
type ReactorHandler[S any] func(state *S, h ReactorHandle, msg *Message) error

// CoreParams builds a reactor's own frozen handler table before the
// reactor is spawned (invariant L2 applies here too: once Spawn is
// called, the table cannot grow).
type CoreParams[S any] struct {
	state    S
	handlers map[Tag]ReactorHandler[S]
	autoLink func(state *S, peer ID) LinkRuntime
}

// NewCoreParams begins building a reactor's handler table, carrying the
// reactor's own state.
func NewCoreParams[S any](state S) *CoreParams[S] {
	return &CoreParams[S]{state: state, handlers: make(map[Tag]ReactorHandler[S])}
}

// On registers a raw, tag-keyed handler on the reactor's own table.
func (p *CoreParams[S]) On(tag Tag, h ReactorHandler[S]) *CoreParams[S] {
	p.handlers[tag] = h
	return p
}

// WithAutoLink installs a factory invoked when an arriving message is
// handled neither by the sender's link (if there is one) nor by the
// reactor's own table. The returned link is installed for that sender,
// replacing any link already held for it, and the triggering message
// is redispatched through it; whether the link is "auto" is up to the
// factory. A reactor with no auto-link factory drops such a message
// and logs it as unhandled.
func (p *CoreParams[S]) WithAutoLink(f func(state *S, peer ID) LinkRuntime) *CoreParams[S] {
	p.autoLink = f
	return p
}

// OnReactor registers a handler for messages wrapping exactly T on the
// reactor's own table.
func OnReactor[S any, T any](p *CoreParams[S], h func(state *S, rh ReactorHandle, v T) error) *CoreParams[S] {
	tag := tagOfGeneric[T]()
	p.handlers[tag] = func(state *S, rh ReactorHandle, msg *Message) error {
		v, err := Take[T](msg)
		if err != nil {
			return err
		}
		return h(state, rh, v)
	}
	return p
}

type opKind int

const (
	opMessage opKind = iota
	opOpenLink
	opCloseLink
	opCloseLinkHard
	opDestroy
)

// internalOp is one entry on a reactor's internal operation queue
// (spec.md §4.3). Internal traffic never crosses a mailbox: handler
// code appends directly to the owning driver's queue, which is only
// ever touched from the driver's own goroutine.
type internalOp struct {
	kind opKind
	peer ID

	target Target
	msg    Message

	link LinkRuntime
}

// ReactorDriver runs a single reactor: it owns the reactor's mailbox,
// its own handler table, its links, and the internal operation queue
// that is drained to empty between every pair of external messages
// (spec.md §4.3). Dispatch for one reactor is strictly single-threaded;
// concurrency across reactors comes from running many drivers, never
// from sharing one.
type ReactorDriver[S any] struct {
	id      ID
	name    string
	broker  *Broker
	mailbox *Mailbox
	handle  *driverHandle

	state    *S
	handlers map[Tag]ReactorHandler[S]
	links    map[ID]LinkRuntime
	autoLink func(state *S, peer ID) LinkRuntime

	ops *list.List

	destroying bool

	logger  log.Logger
	metrics *metrics.Metrics
}

func newDriver[S any](id ID, name string, broker *Broker, mb *Mailbox, params *CoreParams[S], logger log.Logger, m *metrics.Metrics) *ReactorDriver[S] {
	scoped := logger.With("reactor", id.String(), "name", name)
	d := &ReactorDriver[S]{
		id:       id,
		name:     name,
		broker:   broker,
		mailbox:  mb,
		state:    &params.state,
		handlers: params.handlers,
		links:    make(map[ID]LinkRuntime),
		autoLink: params.autoLink,
		ops:      list.New(),
		logger:   scoped,
		metrics:  m,
	}
	d.handle = &driverHandle{id: id, broker: broker, sink: d, logger: scoped}
	return d
}

// Handle returns the ReactorHandle this driver exposes to its own and
// its links' handlers. Exposed so Spawn's caller can seed an initial
// OpenLink before the run loop starts consuming the mailbox.
func (d *ReactorDriver[S]) Handle() ReactorHandle { return d.handle }

// ID returns the reactor's identifier.
func (d *ReactorDriver[S]) ID() ID { return d.id }

// State exposes the reactor's own state for callers that spawned the
// driver in-process and want to inspect it after Run returns (tests,
// mainly; live code should go through messages).
func (d *ReactorDriver[S]) State() *S { return d.state }

func (d *ReactorDriver[S]) enqueueOp(op internalOp) {
	d.ops.PushBack(op)
}

// Run drives the reactor until its mailbox closes, ctx is cancelled, or
// the reactor destroys itself. It is meant to run on its own goroutine,
// typically handed to a WorkerPool. A panic inside a handler is
// recovered, logged as an ErrInternal, and closes the reactor.
func (d *ReactorDriver[S]) Run(ctx context.Context) {
	defer d.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-d.mailbox.Recv():
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						err := errs.Wrap(errs.ErrInternal, "handler panicked: %v", r)
						d.logger.Error("handler panicked, closing reactor", "err", err.Error())
						d.destroying = true
					}
				}()
				d.handleExternal(env)
				d.drainInternal()
			}()
			if d.destroying {
				return
			}
		}
	}
}

func (d *ReactorDriver[S]) handleExternal(env Envelope) {
	tag := env.Msg.Tag()

	if link, ok := d.links[env.Sender]; ok {
		handled, err := link.DispatchExternal(d.handle, tag, &env.Msg)
		if err != nil {
			d.logger.Error("link handler failed", "peer", env.Sender.String(), "err", err.Error())
		}
		if handled {
			d.metrics.MessagesDispatched.Inc()
			return
		}
	}

	if h, ok := d.handlers[tag]; ok {
		if err := h(d.state, d.handle, &env.Msg); err != nil {
			d.logger.Error("reactor handler failed", "from", env.Sender.String(), "err", err.Error())
		}
		d.metrics.MessagesDispatched.Inc()
		return
	}

	if d.autoLink != nil {
		if link := d.autoLink(d.state, env.Sender); link != nil {
			d.links[env.Sender] = link
			d.logger.Info("auto-link opened on first contact", "peer", env.Sender.String())
			handled, err := link.DispatchExternal(d.handle, tag, &env.Msg)
			if err != nil {
				d.logger.Error("auto-link handler failed", "peer", env.Sender.String(), "err", err.Error())
			}
			if handled {
				d.metrics.MessagesDispatched.Inc()
				return
			}
		}
	}

	d.logger.Error("no handler for external message", "from", env.Sender.String())
}

func (d *ReactorDriver[S]) drainInternal() {
	for d.ops.Len() > 0 {
		front := d.ops.Front()
		d.ops.Remove(front)
		op := front.Value.(internalOp)
		d.applyOp(op)
		if d.destroying {
			d.ops.Init()
			return
		}
	}
}

func (d *ReactorDriver[S]) applyOp(op internalOp) {
	switch op.kind {
	case opMessage:
		d.applyMessage(op)
	case opOpenLink:
		d.links[op.peer] = op.link
		d.logger.Info("link opened", "peer", op.peer.String(), "auto", op.link.Auto())
	case opCloseLink:
		d.closeLink(op.peer, false)
	case opCloseLinkHard:
		d.closeLink(op.peer, true)
	case opDestroy:
		d.destroying = true
	}
}

func (d *ReactorDriver[S]) applyMessage(op internalOp) {
	tag := op.msg.Tag()
	switch op.target.kind {
	case targetReactor:
		if h, ok := d.handlers[tag]; ok {
			if err := h(d.state, d.handle, &op.msg); err != nil {
				d.logger.Error("internal reactor handler failed", "err", err.Error())
			}
		}
	case targetLink:
		if link, ok := d.links[op.target.peer]; ok {
			if _, err := link.DispatchInternal(d.handle, tag, &op.msg); err != nil {
				d.logger.Error("internal link handler failed", "peer", op.target.peer.String(), "err", err.Error())
			}
		}
	case targetAllLinks:
		for peer, link := range d.links {
			msg := op.msg
			if _, err := link.DispatchInternal(d.handle, tag, &msg); err != nil {
				d.logger.Error("internal broadcast handler failed", "peer", peer.String(), "err", err.Error())
			}
		}
	}
}

func (d *ReactorDriver[S]) closeLink(peer ID, hard bool) {
	link, ok := d.links[peer]
	if !ok {
		return
	}
	if !hard {
		link.RunCloser(d.handle)
	}
	delete(d.links, peer)
	d.logger.Info("link closed", "peer", peer.String(), "hard", hard)

	// R1: a reactor with zero links self-destroys and unregisters.
	if len(d.links) == 0 && !d.destroying {
		d.destroying = true
		d.logger.Info("zero links remaining, self-destroying")
	}
}

func (d *ReactorDriver[S]) shutdown() {
	for peer, link := range d.links {
		link.RunCloser(d.handle)
		delete(d.links, peer)
	}
	d.mailbox.Close()
	d.logger.Info("reactor destroyed")
}
