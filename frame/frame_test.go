package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/hey/vtype"
)

func TestNew(t *testing.T) {
	f := New(3, 2)
	assert.Len(t, f.Locals, 3)
	assert.Equal(t, 0, len(f.Stack))
	assert.Equal(t, 2, f.MaxStack)
	for _, l := range f.Locals {
		assert.Equal(t, vtype.Top, l)
	}
}

func TestPushPop(t *testing.T) {
	f := New(0, 2)
	require.NoError(t, f.Push(vtype.Integer))
	require.NoError(t, f.Push(vtype.Object("java/lang/String")))

	top, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, vtype.Object("java/lang/String"), top)

	top, err = f.Pop()
	require.NoError(t, err)
	assert.Equal(t, vtype.Integer, top)

	_, err = f.Pop()
	assert.ErrorIs(t, err, ErrStackUnderflow)
}

func TestPush_Overflow(t *testing.T) {
	f := New(0, 1)
	require.NoError(t, f.Push(vtype.Integer))
	err := f.Push(vtype.Integer)
	assert.ErrorIs(t, err, ErrStackOverflow)
}

func TestPopExpect_Category1(t *testing.T) {
	f := New(0, 2)
	require.NoError(t, f.Push(vtype.Integer))

	got, err := f.PopExpect(vtype.Integer, nil)
	require.NoError(t, err)
	assert.Equal(t, vtype.Integer, got)
}

func TestPopExpect_Category2(t *testing.T) {
	f := New(0, 4)
	require.NoError(t, f.Push(vtype.Long))
	require.NoError(t, f.Push(vtype.Top))

	got, err := f.PopExpect(vtype.Long, nil)
	require.NoError(t, err)
	assert.Equal(t, vtype.Long, got)
	assert.Equal(t, 0, len(f.Stack))
}

func TestPopExpect_Category2MissingHighHalf(t *testing.T) {
	f := New(0, 4)
	// pushed a category-1 value where a category-2 high-half Top was expected
	require.NoError(t, f.Push(vtype.Long))
	require.NoError(t, f.Push(vtype.Integer))

	_, err := f.PopExpect(vtype.Long, nil)
	assert.Error(t, err)
}

func TestPopExpect_TypeMismatch(t *testing.T) {
	f := New(0, 2)
	require.NoError(t, f.Push(vtype.Integer))

	_, err := f.PopExpect(vtype.Long, nil)
	assert.Error(t, err)
}

func TestSetLocal_Category2ClobbersHighHalf(t *testing.T) {
	f := New(3, 0)
	require.NoError(t, f.SetLocal(0, vtype.Long))
	assert.Equal(t, vtype.Long, f.Locals[0])
	assert.Equal(t, vtype.Top, f.Locals[1])

	// overwriting slot 1 (the stranded high half) must invalidate slot 0
	require.NoError(t, f.SetLocal(1, vtype.Integer))
	assert.Equal(t, vtype.Top, f.Locals[0])
	assert.Equal(t, vtype.Integer, f.Locals[1])
}

func TestSetLocal_OutOfBounds(t *testing.T) {
	f := New(1, 0)
	err := f.SetLocal(5, vtype.Integer)
	assert.ErrorIs(t, err, ErrLocalOutOfBounds)
}

func TestChopLocalsBy(t *testing.T) {
	f := New(5, 0)
	removed := f.ChopLocalsBy(2)
	assert.Equal(t, 2, removed)
	assert.Len(t, f.Locals, 3)

	// chopping more than available clamps at zero, reporting what was removed
	removed = f.ChopLocalsBy(10)
	assert.Equal(t, 3, removed)
	assert.Len(t, f.Locals, 0)
}

func TestAppendLocal(t *testing.T) {
	f := New(1, 0)
	require.NoError(t, f.AppendLocal(vtype.Integer))
	assert.Len(t, f.Locals, 2)

	require.NoError(t, f.AppendLocal(vtype.Double))
	assert.Len(t, f.Locals, 4)
	assert.Equal(t, vtype.Double, f.Locals[2])
	assert.Equal(t, vtype.Top, f.Locals[3])
}

func TestInitializeObject(t *testing.T) {
	f := New(2, 2)
	uninit := vtype.Uninitialized(0)
	init := vtype.Object("Foo")
	f.Locals[0] = uninit
	f.Locals[1] = vtype.Integer
	require.NoError(t, f.Push(uninit))
	require.NoError(t, f.Push(vtype.Integer))

	f.InitializeObject(uninit, init)

	assert.Equal(t, init, f.Locals[0])
	assert.Equal(t, vtype.Integer, f.Locals[1])
	assert.Equal(t, init, f.Stack[0])
	assert.Equal(t, vtype.Integer, f.Stack[1])
}

func TestMerge_NoChangeWhenIdentical(t *testing.T) {
	a := New(1, 1)
	a.Locals[0] = vtype.Integer
	require.NoError(t, a.Push(vtype.Integer))

	b := a.Clone()

	changed, err := a.Merge(b, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMerge_JoinsDivergingLocals(t *testing.T) {
	a := New(1, 0)
	a.Locals[0] = vtype.Object("java/lang/String")
	b := New(1, 0)
	b.Locals[0] = vtype.Null

	// Object(String) joined with Null is Object(String): the stored slot
	// keeps its value, so Merge reports no change.
	changed, err := a.Merge(b, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, vtype.Object("java/lang/String"), a.Locals[0])
}

func TestMerge_StackDepthMismatchErrors(t *testing.T) {
	a := New(0, 2)
	require.NoError(t, a.Push(vtype.Integer))
	b := New(0, 2)
	require.NoError(t, b.Push(vtype.Integer))
	require.NoError(t, b.Push(vtype.Integer))

	_, err := a.Merge(b, nil)
	assert.ErrorIs(t, err, ErrStackDepthMismatch)
}

func TestMerge_ShorterIncomingShrinksTarget(t *testing.T) {
	a := New(2, 0)
	b := New(1, 0)

	changed, err := a.Merge(b, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, a.Locals, 1)
}

func TestMerge_LongerIncomingIsError(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	_, err := a.Merge(b, nil)
	assert.ErrorIs(t, err, ErrLocalsCountMismatch)
}

func TestClone_DoesNotAlias(t *testing.T) {
	a := New(1, 1)
	require.NoError(t, a.Push(vtype.Integer))
	clone := a.Clone()
	clone.Locals[0] = vtype.Long
	_, _ = clone.Pop()

	assert.Equal(t, vtype.Top, a.Locals[0])
	assert.Equal(t, 1, len(a.Stack))
}
