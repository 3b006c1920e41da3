// Package wire holds the message types exchanged between the runtime's
// built-in reactor kinds (game supervisor, match reactor, step-lock,
// client manager, client controller). Centralizing them here, rather
// than scattering per-package message types, avoids import cycles
// between those packages while keeping every wire shape in one place.
package wire

import "github.com/oakmoth/reactorium/reactor"

// PlayerMessage is one player's turn submission. A nil Payload marks a
// player that did not answer before the turn's deadline; a player
// dropped from the roster during the turn has no entry at all
// (spec.md §4.7).
type PlayerMessage struct {
	Player  reactor.ID
	Payload []byte
}

// HostMessage is one message the game controller produced for a turn.
type HostMessage struct {
	Payload []byte
	Target  *reactor.ID // nil => broadcast to every attached player
	Kick    bool
}

// HostBatch carries one turn's host messages from the match reactor
// down to the step-lock, entering its Broadcasting state.
type HostBatch struct {
	Messages []HostMessage
}

// Turn carries one turn's collected player responses back up to the
// match reactor.
type Turn struct {
	Messages []PlayerMessage
}

// InitRoster seeds a freshly spawned step-lock with the match reactor's
// identity and the initial controller roster.
type InitRoster struct {
	MatchPeer   reactor.ID
	Controllers []reactor.ID
	Timeout     int64 // nanoseconds; 0 means wait-for-all
}

// KickPlayer asks the step-lock to drop a player from its roster and
// hard-close its link to that player's controller. Player holds the
// controller's reactor identifier, the key the step-lock's roster uses.
type KickPlayer struct {
	Player reactor.ID
}

// Tick is the step-lock's own internal deadline-fired marker.
type Tick struct {
	Seq uint64
}

// ControllerLost is enqueued internally when a reactor's link to a
// controller closes out from under it; a client controller also
// enqueues it, naming the session, when its session link closes.
type ControllerLost struct {
	Controller reactor.ID
}

// Data is host-to-player payload delivered to an attached controller,
// or buffered in the controller's FIFO while detached.
type Data struct {
	Payload []byte
}

// ClientKicked is sent by the step-lock to a client controller when its
// player is removed from the match; a session reactor that receives it
// closes its connection.
type ClientKicked struct{}

// PlayerInput is the raw bytes a session forwards from its client.
type PlayerInput struct {
	Payload []byte
}

// StateRequest/StateResponse and KillRequest/KillAck are the
// supervisor<->match-reactor control triad (spec.md §4.5/§4.6),
// correlated by Corr.
type StateRequest struct{ Corr reactor.ID }

type StateResponse struct {
	Corr  reactor.ID
	Value any
	Found bool
}

type KillRequest struct{ Corr reactor.ID }

type KillAck struct{ Corr reactor.ID }

// FinalState announces match completion with the controller's final value.
type FinalState struct{ Value any }

// RegisterGame seeds the client manager with a freshly built match's
// player/controller roster (spec.md §4.8).
type RegisterGame struct {
	Match   uint64
	Players []PlayerSlot
}

// PlayerSlot pairs a logical player identifier with its controller
// reactor's identifier.
type PlayerSlot struct {
	Player     reactor.ID
	Controller reactor.ID
}

// PlayerUUIDs replies to the game supervisor with minted tokens, in the
// same order as the RegisterGame.Players it answers.
type PlayerUUIDs struct {
	Match  uint64
	Tokens []uint64
}

// SpawnPlayer is emitted by a transport endpoint once a session
// authenticates with a token (spec.md §6).
type SpawnPlayer struct {
	Token uint64
	Build func(newID reactor.ID, controller reactor.Sender) reactor.Sender
}

// Accepted tells a freshly spawned session reactor, and the client
// controller it was bound to, who the other side is.
type Accepted struct {
	Player     reactor.ID
	Session    reactor.ID
	Controller reactor.ID
}

// ControllerClosed notifies the client manager that a controller exited.
type ControllerClosed struct {
	Controller reactor.ID
}

// RegisterEndpoint asks the client manager to open an external link to
// an endpoint reactor expected to emit SpawnPlayer arrivals.
type RegisterEndpoint struct {
	Endpoint reactor.ID
}

// InitController seeds a freshly spawned client controller with its
// player identifier and the step-lock it forwards input to.
type InitController struct {
	Player reactor.ID
	Host   reactor.ID
}

// Close tells a reactor to terminate. Sent to a session reactor on
// kick/final-state, and to a step-lock reactor by its owning match
// reactor during teardown (spec.md §5).
type Close struct{}

// InitMatch seeds a freshly spawned match reactor with the identities
// it needs to open its own links: the supervisor it replies to, the
// step-lock it delegates turns to, and the player/controller roster.
type InitMatch struct {
	MatchID    uint64
	Supervisor reactor.ID
	StepLock   reactor.ID
	Slots      []PlayerSlot
}
