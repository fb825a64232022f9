package scope

// Chain tracks the stack of open Books during a single descent through
// nested function literals, mirroring the teacher resolver's linked list of
// enclosing blocks (see lang/resolver's function/block nesting) but scoped
// to whole functions rather than every lexical block, since the book only
// needs function-granularity entries (§4.2).
type Chain struct {
	books []*Book
}

// Push opens a new, empty book as a child of the current top of the chain
// and returns it. If the chain is non-empty, every local/exhale/inhale entry
// in the previous top is copied into the new book as Bindable at hop depth
// 1; deeper hops are reachable transitively once the binder walks outward.
func (c *Chain) Push() *Book {
	child := New()
	if len(c.books) > 0 {
		parent := c.books[len(c.books)-1]
		parent.DescendInto(child, 1)
	}
	c.books = append(c.books, child)
	return child
}

// Pop closes the innermost book.
func (c *Chain) Pop() {
	c.books = c.books[:len(c.books)-1]
}

// Top returns the innermost open book, or nil if the chain is empty.
func (c *Chain) Top() *Book {
	if len(c.books) == 0 {
		return nil
	}
	return c.books[len(c.books)-1]
}

// At returns the book `hops` frames out from the top (0 = Top()).
func (c *Chain) At(hops uint32) *Book {
	i := len(c.books) - 1 - int(hops)
	if i < 0 || i >= len(c.books) {
		return nil
	}
	return c.books[i]
}

// Depth reports how many books are currently open.
func (c *Chain) Depth() int { return len(c.books) }
