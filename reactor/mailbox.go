package reactor

import (
	infinity "github.com/Code-Hex/go-infinity-channel"
)

// mailbox is a reactor's inbound queue. Spec.md §5 requires MPSC unbounded
// mailboxes with producer-side back-pressure left to the caller, so the
// underlying storage is an unbounded channel (grounded on the
// Code-Hex/go-infinity-channel dependency already present in the retrieved
// pack's dependency graph) rather than a fixed-capacity Go channel.
type mailbox struct {
	ch *infinity.Channel[Envelope]
}

func newMailbox() *mailbox {
	return &mailbox{ch: infinity.NewChannel[Envelope]()}
}

// Send enqueues an envelope without blocking the caller on the receiver
// ever being read, matching "dispatch releases the lock before the actual
// enqueue" (spec.md §4.2) — the infinity channel's In() never blocks on
// consumption.
func (mb *mailbox) Send(e Envelope) {
	mb.ch.In() <- e
}

// Recv exposes the receive-only side for the driver's select loop.
func (mb *mailbox) Recv() <-chan Envelope {
	return mb.ch.Out()
}

// Close tears down the mailbox. After Close, Send must not be called.
func (mb *mailbox) Close() {
	mb.ch.Close()
}
