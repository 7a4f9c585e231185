// Package frame implements the verifier's per-offset abstract machine state:
// a fixed-size locals vector paired with a bounded operand stack, with the
// category-1/category-2 slot discipline JVMS 4.10.1.2 requires.
package frame

import (
	"errors"
	"fmt"

	"github.com/wudi/hey/vtype"
)

var (
	// ErrStackOverflow is returned by Push when max_stack would be exceeded.
	ErrStackOverflow = errors.New("stack overflow")
	// ErrStackUnderflow is returned by Pop on an empty stack.
	ErrStackUnderflow = errors.New("stack underflow")
	// ErrLocalOutOfBounds is returned when a local index exceeds max_locals.
	ErrLocalOutOfBounds = errors.New("local index out of bounds")
	// ErrLocalsCountMismatch is returned by Merge when the incoming frame has
	// more locals than the stored frame (an over-length incoming frame).
	ErrLocalsCountMismatch = errors.New("frame merge mismatch: locals count")
	// ErrStackDepthMismatch is returned by Merge when the two frames disagree
	// on operand stack depth.
	ErrStackDepthMismatch = errors.New("frame merge mismatch: stack depth")
)

// Frame is the abstract state (locals, stack) at a single code offset.
// Frames are owned by the driver; every per-instruction transition clones
// its input frame so transitions are pure with respect to stored frames.
type Frame struct {
	Locals   []vtype.Type
	Stack    []vtype.Type
	MaxStack int
}

// New builds an empty frame with maxLocals pre-filled with Top and room for
// maxStack stack slots.
func New(maxLocals, maxStack int) *Frame {
	locals := make([]vtype.Type, maxLocals)
	for i := range locals {
		locals[i] = vtype.Top
	}
	return &Frame{
		Locals:   locals,
		Stack:    make([]vtype.Type, 0, maxStack),
		MaxStack: maxStack,
	}
}

// Clone returns a deep-enough copy: locals and stack backing arrays are
// duplicated so mutating the clone never aliases the original.
func (f *Frame) Clone() *Frame {
	clone := &Frame{
		Locals:   make([]vtype.Type, len(f.Locals)),
		Stack:    make([]vtype.Type, len(f.Stack), f.MaxStack),
		MaxStack: f.MaxStack,
	}
	copy(clone.Locals, f.Locals)
	copy(clone.Stack, f.Stack)
	return clone
}

// Push pushes a single slot. Category-2 values occupy two stack slots; the
// caller pushes the value then Top itself (this module uses the pair form
// consistently, per spec.md's requirement that the representation be fixed
// rather than mixed).
func (f *Frame) Push(t vtype.Type) error {
	if len(f.Stack) >= f.MaxStack {
		return fmt.Errorf("%w: max_stack=%d", ErrStackOverflow, f.MaxStack)
	}
	f.Stack = append(f.Stack, t)
	return nil
}

// Pop returns and removes the top stack slot.
func (f *Frame) Pop() (vtype.Type, error) {
	if len(f.Stack) == 0 {
		return vtype.Type{}, ErrStackUnderflow
	}
	idx := len(f.Stack) - 1
	t := f.Stack[idx]
	f.Stack = f.Stack[:idx]
	return t, nil
}

// PopExpect pops the top of stack and verifies it is assignable to
// expected. For a category-2 expected type, the high Top half must be on
// top of the stack with the value immediately beneath it.
func (f *Frame) PopExpect(expected vtype.Type, ctx vtype.Context) (vtype.Type, error) {
	if vtype.IsCategory2(expected) {
		top, err := f.Pop()
		if err != nil {
			return vtype.Type{}, err
		}
		if top.Kind != vtype.KindTop {
			return vtype.Type{}, fmt.Errorf("expected high half Top for category-2 value, got %s", top)
		}
		val, err := f.Pop()
		if err != nil {
			return vtype.Type{}, err
		}
		ok, err := vtype.Assignable(val, expected, ctx)
		if err != nil {
			return vtype.Type{}, err
		}
		if !ok {
			return vtype.Type{}, fmt.Errorf("type %s is not assignable to %s", val, expected)
		}
		return val, nil
	}

	val, err := f.Pop()
	if err != nil {
		return vtype.Type{}, err
	}
	ok, err := vtype.Assignable(val, expected, ctx)
	if err != nil {
		return vtype.Type{}, err
	}
	if !ok {
		return vtype.Type{}, fmt.Errorf("type %s is not assignable to %s", val, expected)
	}
	return val, nil
}

// GetLocal reads local slot i.
func (f *Frame) GetLocal(i int) (vtype.Type, error) {
	if i < 0 || i >= len(f.Locals) {
		return vtype.Type{}, fmt.Errorf("%w: index %d, have %d", ErrLocalOutOfBounds, i, len(f.Locals))
	}
	return f.Locals[i], nil
}

// SetLocal writes local slot i. Writing a category-2 value also writes Top
// at i+1. Writing any value to a slot invalidates the preceding slot to Top
// if that slot held the low half of a category-2 value that now has its
// high half clobbered (i.e. writing at i-1's i+1 position).
func (f *Frame) SetLocal(i int, t vtype.Type) error {
	if i < 0 || i >= len(f.Locals) {
		return fmt.Errorf("%w: index %d, have %d", ErrLocalOutOfBounds, i, len(f.Locals))
	}
	// If slot i was the high Top half of a category-2 value rooted at i-1,
	// overwriting it strands the low half; invalidate it to Top.
	if i > 0 && f.Locals[i].Kind == vtype.KindTop && vtype.IsCategory2(f.Locals[i-1]) {
		f.Locals[i-1] = vtype.Top
	}
	f.Locals[i] = t
	if vtype.IsCategory2(t) {
		if i+1 >= len(f.Locals) {
			return fmt.Errorf("%w: category-2 local at %d needs slot %d", ErrLocalOutOfBounds, i, i+1)
		}
		f.Locals[i+1] = vtype.Top
	}
	return nil
}

// ChopLocalsBy removes the trailing n local-variable slots, as a StackMapTable
// chop frame directs (JVMS 4.7.4: "the given number of local variables are
// absent and that the locals that otherwise follow it are shifted"). Returns
// the number of slots actually removed, which may be less than n if fewer
// than n category-1-equivalent trailing slots exist.
func (f *Frame) ChopLocalsBy(n int) int {
	removed := 0
	for removed < n && len(f.Locals) > 0 {
		f.Locals = f.Locals[:len(f.Locals)-1]
		removed++
	}
	return removed
}

// AppendLocal adds one local-variable slot at the end, as a StackMapTable
// append frame directs. A category-2 value also appends a trailing Top.
func (f *Frame) AppendLocal(t vtype.Type) error {
	f.Locals = append(f.Locals, t)
	if vtype.IsCategory2(t) {
		f.Locals = append(f.Locals, vtype.Top)
	}
	return nil
}

// Grow extends locals up to index i (inclusive), filling new slots with Top.
// Used by stores past the current locals length but still within max_locals
// (e.g. a StackMapTable append frame, or a store targeting a slot the
// initial frame under-sized).
func (f *Frame) Grow(i, maxLocals int) error {
	if i >= maxLocals {
		return fmt.Errorf("%w: index %d, max_locals %d", ErrLocalOutOfBounds, i, maxLocals)
	}
	for len(f.Locals) <= i {
		f.Locals = append(f.Locals, vtype.Top)
	}
	return nil
}

// InitializeObject rewrites every occurrence of uninitialized in both
// locals and stack to initialized, in lockstep (JVMS 4.10.1.9, invokespecial
// <init>).
func (f *Frame) InitializeObject(uninitialized, initialized vtype.Type) {
	for i, t := range f.Locals {
		if t.Equal(uninitialized) {
			f.Locals[i] = initialized
		}
	}
	for i, t := range f.Stack {
		if t.Equal(uninitialized) {
			f.Stack[i] = initialized
		}
	}
}

// Merge joins source into target in place (JVMS 4.10.2.4), reporting
// whether any slot changed so the driver knows whether to re-enqueue the
// successor. An over-length incoming frame (source longer than target) is
// an error; a shorter incoming frame (a chop-style predecessor) is
// tolerated by shrinking target to match. Stack depths must match exactly.
func (f *Frame) Merge(source *Frame, ctx vtype.Context) (bool, error) {
	if len(source.Locals) > len(f.Locals) {
		return false, ErrLocalsCountMismatch
	}
	if len(f.Stack) != len(source.Stack) {
		return false, ErrStackDepthMismatch
	}

	changed := false
	if len(source.Locals) < len(f.Locals) {
		f.Locals = f.Locals[:len(source.Locals)]
		changed = true
	}
	for i := range f.Locals {
		if f.Locals[i].Equal(source.Locals[i]) {
			continue
		}
		joined, err := vtype.Join(f.Locals[i], source.Locals[i], ctx)
		if err != nil {
			return false, err
		}
		if !joined.Equal(f.Locals[i]) {
			f.Locals[i] = joined
			changed = true
		}
	}
	for i := range f.Stack {
		if f.Stack[i].Equal(source.Stack[i]) {
			continue
		}
		joined, err := vtype.Join(f.Stack[i], source.Stack[i], ctx)
		if err != nil {
			return false, err
		}
		if !joined.Equal(f.Stack[i]) {
			f.Stack[i] = joined
			changed = true
		}
	}
	return changed, nil
}
