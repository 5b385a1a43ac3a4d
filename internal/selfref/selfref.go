// Package selfref gives a base type a safe way to hand callbacks a
// reference to its most-derived self without every caller threading
// that reference through constructors by hand.
package selfref

// Box holds a self-reference that a base type's constructor cannot
// supply (the derived value does not exist yet while the base is being
// built). Embed Box in a base struct, then call Set once construction
// of the derived value completes.
type Box[Self any] struct {
	self Self
}

// Set records self as the most-derived value backing this base. Call
// exactly once, immediately after the derived value is fully
// constructed.
func (b *Box[Self]) Set(self Self) {
	b.self = self
}

// Self returns the most-derived value, or the zero value of Self if
// Set was never called.
func (b *Box[Self]) Self() Self {
	return b.self
}

// As returns b's self-reference narrowed to interface Sibling, and
// reports whether the narrowing succeeded. Use from a base method that
// needs to call a capability only a specific derived type implements,
// mirroring a sibling cast across a CRTP base in the absence of Go
// inheritance.
func As[Self, Sibling any](b *Box[Self]) (Sibling, bool) {
	sibling, ok := any(b.self).(Sibling)
	return sibling, ok
}
