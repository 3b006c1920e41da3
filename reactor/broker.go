package reactor

import (
	"sync"

	"github.com/oakmoth/reactorium/errs"
	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/metrics"
)

// Broker is the process-wide registry mapping reactor ID to inbound
// mailbox (spec.md §4.2). It is explicitly constructed and injected,
// never a package-level singleton, per the design note in spec.md §9
// ("so tests can run many independent brokers in parallel").
type Broker struct {
	mu        sync.Mutex
	mailboxes map[ID]*mailbox
	runtimeID ID

	logger  log.Logger
	metrics *metrics.Metrics
}

// NewBroker constructs an empty broker with its own runtime identifier,
// used as the sender for messages injected from outside any reactor.
func NewBroker(logger log.Logger, m *metrics.Metrics) *Broker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Broker{
		mailboxes: make(map[ID]*mailbox),
		runtimeID: NewID(),
		logger:    logger,
		metrics:   m,
	}
}

// RuntimeID returns the identifier the broker uses as sender for messages
// it injects on behalf of external callers (spec.md §4.2).
func (b *Broker) RuntimeID() ID { return b.runtimeID }

// register inserts mb under id, failing with ErrDuplicate if id is
// already registered (spec.md §4.2).
func (b *Broker) register(id ID, mb *mailbox, name string) error {
	b.mu.Lock()
	if _, exists := b.mailboxes[id]; exists {
		b.mu.Unlock()
		return errs.Wrap(errs.ErrDuplicate, "reactor %s already registered", id)
	}
	b.mailboxes[id] = mb
	b.mu.Unlock()

	b.metrics.ReactorsSpawned.Inc()
	b.metrics.ReactorsActive.Inc()
	b.logger.Info("reactor registered", "id", id.String(), "name", name)
	return nil
}

// Unregister removes id from the registry. Idempotent (spec.md §4.2).
func (b *Broker) Unregister(id ID) {
	b.mu.Lock()
	_, existed := b.mailboxes[id]
	delete(b.mailboxes, id)
	b.mu.Unlock()

	if existed {
		b.metrics.ReactorsActive.Dec()
		b.logger.Info("reactor unregistered", "id", id.String())
	}
}

// Exists reports whether id currently has a registered mailbox.
func (b *Broker) Exists(id ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.mailboxes[id]
	return ok
}

// Dispatch looks up e.Receiver and enqueues e on its mailbox. The
// registry lock is released before the enqueue itself so that a slow
// receiver cannot block other dispatches (spec.md §4.2's concurrency
// note). The broker's own runtime ID is never a valid dispatch target.
func (b *Broker) Dispatch(e Envelope) error {
	if e.Receiver == b.runtimeID {
		return errs.Wrap(errs.ErrInternal, "cannot dispatch to the runtime identifier %s", e.Receiver)
	}

	b.mu.Lock()
	mb, ok := b.mailboxes[e.Receiver]
	b.mu.Unlock()

	if !ok {
		return errs.Wrap(errs.ErrNoSuchReactor, "no reactor registered for %s", e.Receiver)
	}

	mb.Send(e)
	b.metrics.MessagesDispatched.Inc()
	return nil
}

// Mailbox is a registered inbound queue, handed out to anything that
// wants to receive envelopes addressed to id — a reactor driver, or a
// "reactor-like" adapter such as a transport session (spec.md §9's
// "cyclic reactor graph" note: reactors only ever hold IDs and cloneable
// sender handles, never each other directly).
type Mailbox struct {
	mb     *mailbox
	id     ID
	broker *Broker
}

// NewMailbox registers a fresh mailbox for id under name and returns a
// handle to it. Fails with ErrDuplicate if id is already registered.
func (b *Broker) NewMailbox(id ID, name string) (*Mailbox, error) {
	mb := newMailbox()
	if err := b.register(id, mb, name); err != nil {
		return nil, err
	}
	return &Mailbox{mb: mb, id: id, broker: b}, nil
}

// ID returns the reactor identifier this mailbox was registered under.
func (m *Mailbox) ID() ID { return m.id }

// Recv exposes the receive side for a consumer's select loop.
func (m *Mailbox) Recv() <-chan Envelope { return m.mb.Recv() }

// Close unregisters the mailbox from the broker and releases its queue.
func (m *Mailbox) Close() {
	m.broker.Unregister(m.id)
	m.mb.Close()
}

// Sender is a cloneable handle to a reactor's mailbox, obtained without
// holding the registry lock for the lifetime of the handle. Sends made
// through a Sender after the target reactor has exited fail with
// ErrNoSuchReactor (not ErrMailboxClosed), since the registry entry is
// gone (spec.md §4.2).
type Sender struct {
	broker *Broker
	id     ID
}

// Sender returns a cloneable handle to id's mailbox.
func (b *Broker) Sender(id ID) Sender {
	return Sender{broker: b, id: id}
}

// Target returns the reactor ID this sender addresses.
func (s Sender) Target() ID { return s.id }

// Send wraps v in a Message and dispatches it from "from" to the
// sender's target.
func (s Sender) Send(from ID, v any) error {
	return s.broker.Dispatch(Envelope{Sender: from, Receiver: s.id, Msg: Wrap(v)})
}
