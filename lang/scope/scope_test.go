package scope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/scope"
)

func TestBookDeclareLookup(t *testing.T) {
	b := scope.New()
	_, ok := b.Lookup(1)
	assert.False(t, ok)

	b.Declare(1, scope.Local, 0)
	e, ok := b.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, scope.Local, e.Kind)
	assert.Equal(t, uint32(0), e.Index)
}

func TestBookPromote(t *testing.T) {
	b := scope.New()
	b.Declare(1, scope.Local, 2)
	b.Promote(1, scope.Exhale, 0)

	e, ok := b.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, scope.Exhale, e.Kind)
	assert.Equal(t, uint32(0), e.Index)
}

func TestDescendIntoCopiesAsBindable(t *testing.T) {
	parent := scope.New()
	parent.Declare(1, scope.Local, 0)
	parent.Declare(2, scope.Public, 3)

	child := scope.New()
	parent.DescendInto(child, 1)

	e, ok := child.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, scope.Bindable, e.Kind)
	assert.Equal(t, uint32(1), e.Index) // ordinal, for re-lookup in owner
	assert.Equal(t, uint32(1), e.Depth)

	// Public entries are module-global, not captured as bindables.
	_, ok = child.Lookup(2)
	assert.False(t, ok)
}

func TestDescendIntoForwardsBindableAcrossSilentFrame(t *testing.T) {
	// a declares i; b never references i but nests c, which does (spec §8
	// scenario S6): c must still see i as bindable, two hops up, even though
	// b's own book only ever held i as an unreferenced placeholder.
	var c scope.Chain
	a := c.Push()
	a.Declare(1, scope.Local, 0)

	b := c.Push()
	bEntry, ok := b.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, scope.Bindable, bEntry.Kind)
	assert.Equal(t, uint32(1), bEntry.Depth)

	inner := c.Push()
	e, ok := inner.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, scope.Bindable, e.Kind)
	assert.Equal(t, uint32(2), e.Depth)
}

func TestChainPushPop(t *testing.T) {
	var c scope.Chain
	assert.Equal(t, 0, c.Depth())

	outer := c.Push()
	outer.Declare(1, scope.Local, 0)

	inner := c.Push()
	e, ok := inner.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, scope.Bindable, e.Kind)

	assert.Same(t, inner, c.Top())
	assert.Same(t, outer, c.At(1))

	c.Pop()
	assert.Same(t, outer, c.Top())
	c.Pop()
	assert.Nil(t, c.Top())
}
