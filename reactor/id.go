package reactor

import "github.com/google/uuid"

// ID is a reactor identifier: a 128-bit opaque value, globally unique
// within the process, compared bitwise (spec.md §3). It is realized as a
// UUID, the way the rest of the retrieved pack mints process-wide opaque
// identifiers (google/uuid).
type ID [16]byte

// NilID is the zero ID, never assigned to a real reactor.
var NilID ID

// NewID mints a fresh random reactor identifier.
func NewID() ID {
	return ID(uuid.New())
}

// String renders the identifier in standard UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Bytes returns the identifier as a 16-byte big-endian blob, the wire
// representation named in spec.md §6.
func (id ID) Bytes() [16]byte {
	return id
}

// IDFromBytes recovers an ID from a 16-byte blob as received over the wire.
func IDFromBytes(b [16]byte) ID {
	return ID(b)
}
