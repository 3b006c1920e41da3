package reactor

import (
	"hash/fnv"
	"reflect"

	"github.com/oakmoth/reactorium/errs"
)

// Tag is the stable 64-bit hash of a logical message kind (spec.md §9's
// "tagged variant whose tag is a stable hash"). Go has no compile-time
// TypeId the way Rust does, so the tag is derived once per type from its
// fully qualified name and cached.
type Tag = uint64

var tagCache = struct {
	m map[reflect.Type]Tag
}{m: make(map[reflect.Type]Tag)}

// TagOf returns the stable tag for the dynamic type of v. v may be nil of
// a concrete type (e.g. (*Foo)(nil)) purely to select the type.
func TagOf(v any) Tag {
	t := reflect.TypeOf(v)
	return TagOfType(t)
}

// TagOfType returns the stable tag for t directly, for callers that only
// have a reflect.Type (generic helpers below).
func TagOfType(t reflect.Type) Tag {
	if tag, ok := tagCache.m[t]; ok {
		return tag
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(t.PkgPath() + "." + t.Name()))
	tag := h.Sum64()
	tagCache.m[t] = tag
	return tag
}

func tagOfGeneric[T any]() Tag {
	var zero T
	return TagOfType(reflect.TypeOf(&zero).Elem())
}

// Message is the type-erased, single-owner payload container of spec.md
// §4.1: wrap(value), tag(), take_as<T>(), borrow_as<T>(). Ownership is a
// documented convention rather than a compiler-enforced one (Go has no
// linear types), but Take nils out the stored value so a double-take is
// observably ErrEmpty.
type Message struct {
	tag   Tag
	value any
	taken bool
}

// Wrap consumes v, recording its type tag and taking logical ownership.
func Wrap(v any) Message {
	return Message{tag: TagOf(v), value: v}
}

// Tag returns the message's recorded type tag.
func (m *Message) Tag() Tag {
	return m.tag
}

// Take yields exclusive ownership of the stored value if the recorded tag
// matches T, leaving the container empty. A second Take fails with
// ErrEmpty; a Take whose type does not match fails with ErrTagMismatch
// and leaves the value in place for a later Take of the right type.
func Take[T any](m *Message) (T, error) {
	var zero T
	if m.taken {
		return zero, errs.ErrEmpty
	}
	if m.tag != tagOfGeneric[T]() {
		return zero, errs.ErrTagMismatch
	}
	v, ok := m.value.(T)
	if !ok {
		return zero, errs.ErrTagMismatch
	}
	m.taken = true
	m.value = nil
	return v, nil
}

// Borrow yields an immutable view of the stored value without taking
// ownership, failing the same way Take does on tag mismatch or emptiness.
func Borrow[T any](m *Message) (*T, error) {
	var zero T
	if m.taken {
		return nil, errs.ErrEmpty
	}
	if m.tag != tagOfGeneric[T]() {
		return nil, errs.ErrTagMismatch
	}
	v, ok := m.value.(T)
	if !ok {
		return nil, errs.ErrTagMismatch
	}
	return &v, nil
}
