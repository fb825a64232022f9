// Package scope implements the per-function scope book (§4.2): a map from
// identifier-pool ordinal to the kind of slot that name currently resolves
// to, and the machinery for threading a name from an enclosing function down
// into a nested one as a "bindable" placeholder until something actually
// references it.
//
// The book itself is backed by a swiss.Map rather than a built-in Go map:
// function bodies in real programs rarely declare more than a handful of
// names, but the book is allocated once per function and walked on every
// descent into a nested function literal, so a flat, cache-friendly map
// pays for itself the way it does in the teacher's own use of swiss for its
// hot interned-string tables.
package scope

import (
	"github.com/dolthub/swiss"
)

// Kind classifies what a name in a Book currently resolves to.
type Kind uint8

//nolint:revive
const (
	Undefined Kind = iota
	Local
	Exhale
	Inhale
	Public
	Bindable
)

// Entry is one Book record: the kind of slot a name resolves to, its index
// within that kind's slot space, and (Bindable only) the hop count from the
// frame holding the entry to the frame that actually owns the name.
type Entry struct {
	Kind  Kind
	Index uint32
	Depth uint32 // valid only when Kind == Bindable
}

// Book is one function's scope book, keyed by identifier-pool ordinal.
type Book struct {
	entries *swiss.Map[uint32, Entry]
}

// New returns an empty book.
func New() *Book {
	return &Book{entries: swiss.NewMap[uint32, Entry](uint32(8))}
}

// Lookup returns the entry recorded for ordinal and whether one exists.
func (b *Book) Lookup(ordinal uint32) (Entry, bool) {
	return b.entries.Get(ordinal)
}

// Declare records ordinal as kind/index in this book, overwriting any prior
// entry (shadowing within the same function rebinds the name).
func (b *Book) Declare(ordinal uint32, kind Kind, index uint32) {
	b.entries.Put(ordinal, Entry{Kind: kind, Index: index})
}

// Promote rewrites an existing entry's kind/index in place (used when the
// binder promotes a Local to an Exhale, or a Bindable to an Inhale).
func (b *Book) Promote(ordinal uint32, kind Kind, index uint32) {
	b.entries.Put(ordinal, Entry{Kind: kind, Index: index})
}

// DescendInto populates child with a Bindable entry for every Local,
// Exhale, and Inhale entry in b (the parent book), per §4.2: "the parent's
// book is walked and every local/exhale/inhale entry is copied into the
// child as bindable with a hop count". depth is the child's hop distance
// from this book's frame (1 for an immediate child).
func (b *Book) DescendInto(child *Book, depth uint32) {
	b.entries.Iter(func(ordinal uint32, e Entry) (stop bool) {
		switch e.Kind {
		case Local, Exhale, Inhale:
			child.entries.Put(ordinal, Entry{Kind: Bindable, Index: ordinal, Depth: depth})
		case Bindable:
			// b itself never referenced this name (so it is still only a
			// placeholder here): forward it to the grandchild with the hop
			// count increased by one more frame, so a function nested two or
			// more levels below the actual owner still sees the name even
			// though every frame in between is silent about it.
			child.entries.Put(ordinal, Entry{Kind: Bindable, Index: ordinal, Depth: e.Depth + depth})
		}
		return false
	})
}

// Len reports the number of names currently recorded.
func (b *Book) Len() int { return int(b.entries.Count()) }

// ShiftLocalsAbove decrements the Index of every Local entry whose index is
// greater than removedIdx, used by the binder when promoting a non-argument
// local to an exhale frees up its local slot (§4.4 step 2, "shift down
// subsequent local indices and update the book").
func (b *Book) ShiftLocalsAbove(removedIdx uint32) {
	var toShift []uint32
	b.entries.Iter(func(ordinal uint32, e Entry) (stop bool) {
		if e.Kind == Local && e.Index > removedIdx {
			toShift = append(toShift, ordinal)
		}
		return false
	})
	for _, ordinal := range toShift {
		e, _ := b.entries.Get(ordinal)
		e.Index--
		b.entries.Put(ordinal, e)
	}
}
