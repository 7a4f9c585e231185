package verifier

import (
	"errors"
	"fmt"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/frame"
	"github.com/wudi/hey/vtype"
)

// Verify runs fixed-point dataflow verification over m's bytecode (JVMS
// 4.10.1), seeding frames from its StackMapTable and joining exception
// handler frames at each protected region's handler_pc. ctx supplies the
// is_assignable/common_superclass oracle every reference-type comparison
// needs.
func Verify(m *Method, ctx vtype.Context) error {
	if m.IsNative() || m.IsAbstract() {
		if m.Code != nil {
			return NewClassFormatError(ErrMissingCode, "%s.%s: native or abstract method carries a Code attribute", m.ClassName, m.Name)
		}
		return nil
	}
	if m.Code == nil {
		return NewClassFormatError(ErrMissingCode, "%s.%s", m.ClassName, m.Name)
	}
	if len(m.Instructions) == 0 {
		return Decorate(newError(ErrFallOffEnd, "method body is empty"), m.ClassName, m.Name, -1, 0)
	}

	driver := &driver{
		method: m,
		ctx:    ctx,
		frames: make(map[int]*frame.Frame),
		queued: make(map[int]bool),
	}

	initial, err := driver.initialFrame()
	if err != nil {
		return Decorate(err, m.ClassName, m.Name, 0, 0)
	}
	driver.frames[0] = initial
	driver.enqueue(0)

	if err := driver.seedStackMapTable(); err != nil {
		return err
	}
	if err := driver.seedExceptionHandlers(); err != nil {
		return err
	}

	for len(driver.worklist) > 0 {
		offset := driver.worklist[0]
		driver.worklist = driver.worklist[1:]
		driver.queued[offset] = false

		in := m.instructionAt(offset)
		if in == nil {
			return Decorate(newError(ErrFallOffEnd, "no instruction at offset %d", offset), m.ClassName, m.Name, offset, 0)
		}

		current := driver.frames[offset].Clone()
		successors, err := step(current, m, in, ctx)
		if err != nil {
			return Decorate(err, m.ClassName, m.Name, offset, in.Opcode)
		}

		if err := driver.mergeHandlersOverlapping(offset, current); err != nil {
			return Decorate(err, m.ClassName, m.Name, offset, in.Opcode)
		}

		for _, succ := range successors {
			if succ < 0 || succ > driver.maxOffset() {
				return Decorate(newError(ErrFallOffEnd, "branch target %d out of range", succ), m.ClassName, m.Name, offset, in.Opcode)
			}
			if err := driver.mergeInto(succ, current); err != nil {
				return Decorate(err, m.ClassName, m.Name, offset, in.Opcode)
			}
		}
	}

	return nil
}

type driver struct {
	method   *Method
	ctx      vtype.Context
	frames   map[int]*frame.Frame
	worklist []int
	queued   map[int]bool
}

func (d *driver) maxOffset() int {
	max := 0
	for _, in := range d.method.Instructions {
		if in.Offset > max {
			max = in.Offset
		}
	}
	return max
}

func (d *driver) enqueue(offset int) {
	if d.queued[offset] {
		return
	}
	d.queued[offset] = true
	d.worklist = append(d.worklist, offset)
}

// mergeInto joins source into the stored frame at offset (creating it on
// first visit) and enqueues offset if the stored frame changed.
func (d *driver) mergeInto(offset int, source *frame.Frame) error {
	existing, ok := d.frames[offset]
	if !ok {
		d.frames[offset] = source.Clone()
		d.enqueue(offset)
		return nil
	}
	changed, err := existing.Merge(source, d.ctx)
	if err != nil {
		switch {
		case errors.Is(err, frame.ErrLocalsCountMismatch):
			return fmt.Errorf("%w at offset %d: %v", ErrLocalsCountMismatch, offset, err)
		case errors.Is(err, frame.ErrStackDepthMismatch):
			return fmt.Errorf("%w at offset %d: %v", ErrStackDepthMismatch, offset, err)
		default:
			return fmt.Errorf("%w at offset %d: %v", ErrStackDepthMismatch, offset, err)
		}
	}
	if changed {
		d.enqueue(offset)
	}
	return nil
}

// initialFrame builds the frame at offset 0: `this` (or nothing, for a
// static method) in local 0, followed by the declared parameters, per
// JVMS 4.10.1.6.
func (d *driver) initialFrame() (*frame.Frame, error) {
	desc, err := ParseMethodDescriptor(d.method.Descriptor)
	if err != nil {
		return nil, err
	}
	f := frame.New(d.method.Code.MaxLocals, d.method.Code.MaxStack)
	idx := 0
	if !d.method.IsStatic() {
		if d.method.IsConstructor() {
			if err := f.SetLocal(0, vtype.UninitializedThis); err != nil {
				return nil, err
			}
		} else {
			if err := f.SetLocal(0, vtype.Object(d.method.ClassName)); err != nil {
				return nil, err
			}
		}
		idx = 1
	}
	for _, p := range desc.Params {
		if err := f.SetLocal(idx, p); err != nil {
			return nil, err
		}
		if vtype.IsCategory2(p) {
			idx += 2
		} else {
			idx++
		}
	}
	return f, nil
}

// seedStackMapTable converts every StackMapTable frame into an absolute
// Frame relative to the running "current frame" (JVMS 4.7.4) and merges it
// in at its target offset.
func (d *driver) seedStackMapTable() error {
	entries := d.method.Code.StackMapTable()
	if len(entries) == 0 {
		return nil
	}
	current := d.frames[0].Clone()
	offset := -1 // first entry's offset_delta is absolute
	for _, smf := range entries {
		next := offset + smf.OffsetDelta + 1
		offset = next

		var target *frame.Frame
		var err error
		target, err = applyStackMapFrame(current, smf, d.method)
		if err != nil {
			return Decorate(err, d.method.ClassName, d.method.Name, offset, 0)
		}
		if offset > d.maxOffset() {
			return Decorate(newError(ErrBadStackMapIndex, "offset %d exceeds code length", offset), d.method.ClassName, d.method.Name, offset, 0)
		}
		if err := d.mergeInto(offset, target); err != nil {
			return Decorate(err, d.method.ClassName, d.method.Name, offset, 0)
		}
		current = target.Clone()
	}
	return nil
}

// applyStackMapFrame converts one StackMapTable entry into a Frame, given
// the running current frame it is relative to.
func applyStackMapFrame(current *frame.Frame, smf classfile.StackMapFrame, m *Method) (*frame.Frame, error) {
	switch smf.Kind {
	case classfile.FrameSame:
		f := current.Clone()
		f.Stack = f.Stack[:0]
		return f, nil
	case classfile.FrameSameLocals1StackItem, classfile.FrameSameLocals1StackItemExtended:
		f := current.Clone()
		f.Stack = f.Stack[:0]
		t, err := resolveRawType(smf.Stack[0], m)
		if err != nil {
			return nil, err
		}
		if err := f.Push(t); err != nil {
			return nil, err
		}
		if vtype.IsCategory2(t) {
			if err := f.Push(vtype.Top); err != nil {
				return nil, err
			}
		}
		return f, nil
	case classfile.FrameChop:
		f := current.Clone()
		f.ChopLocalsBy(smf.ChopCount())
		f.Stack = f.Stack[:0]
		return f, nil
	case classfile.FrameSameExtended:
		f := current.Clone()
		f.Stack = f.Stack[:0]
		return f, nil
	case classfile.FrameAppend:
		f := current.Clone()
		f.Stack = f.Stack[:0]
		for _, raw := range smf.Locals {
			t, err := resolveRawType(raw, m)
			if err != nil {
				return nil, err
			}
			if err := f.AppendLocal(t); err != nil {
				return nil, err
			}
		}
		return f, nil
	case classfile.FrameFull:
		f := frame.New(len(smf.Locals), current.MaxStack)
		i := 0
		for _, raw := range smf.Locals {
			t, err := resolveRawType(raw, m)
			if err != nil {
				return nil, err
			}
			if err := f.SetLocal(i, t); err != nil {
				return nil, err
			}
			if vtype.IsCategory2(t) {
				i += 2
			} else {
				i++
			}
		}
		for _, raw := range smf.Stack {
			t, err := resolveRawType(raw, m)
			if err != nil {
				return nil, err
			}
			if err := f.Push(t); err != nil {
				return nil, err
			}
			if vtype.IsCategory2(t) {
				if err := f.Push(vtype.Top); err != nil {
					return nil, err
				}
			}
		}
		return f, nil
	default:
		return nil, newError(ErrBadStackMapIndex, "unknown StackMapTable frame kind %d", smf.Kind)
	}
}

func resolveRawType(raw classfile.RawVerificationType, m *Method) (vtype.Type, error) {
	switch raw.Kind {
	case classfile.RawTop:
		return vtype.Top, nil
	case classfile.RawInteger:
		return vtype.Integer, nil
	case classfile.RawFloat:
		return vtype.Float, nil
	case classfile.RawLong:
		return vtype.Long, nil
	case classfile.RawDouble:
		return vtype.Double, nil
	case classfile.RawNull:
		return vtype.Null, nil
	case classfile.RawUninitializedThis:
		return vtype.UninitializedThis, nil
	case classfile.RawObject:
		name, err := m.Constants.TryGetClass(raw.ClassIndex)
		if err != nil {
			return vtype.Type{}, err
		}
		return vtype.Object(name), nil
	case classfile.RawUninitialized:
		return vtype.Uninitialized(raw.NewInstOffset), nil
	default:
		return vtype.Type{}, newError(ErrBadStackMapIndex, "unknown verification type kind %d", raw.Kind)
	}
}

// seedExceptionHandlers primes no handler frame up front and always returns
// nil. Because the starting frame of a protected region may not be known
// until the region's offsets have been processed, handler frames are merged
// by mergeHandlersOverlapping instead, which Verify's main loop calls after
// stepping every offset: for each protected region containing that offset
// it merges a frame with the same locals and a stack holding only the
// caught exception type (JVMS 4.10.1.8) into handler_pc.
func (d *driver) seedExceptionHandlers() error {
	return nil
}

// mergeHandlersOverlapping re-derives and merges handler frames for every
// exception-table entry whose protected region contains offset, using the
// just-computed frame at offset as an approximation of the region's entry
// frame (locals are stable across a region in verified bytecode; the stack
// is always cleared for a handler regardless).
func (d *driver) mergeHandlersOverlapping(offset int, current *frame.Frame) error {
	for _, e := range d.method.Code.ExceptionTable {
		if !e.Contains(offset) {
			continue
		}
		handlerFrame := current.Clone()
		handlerFrame.Stack = handlerFrame.Stack[:0]
		var excType vtype.Type
		if e.CatchType == 0 {
			excType = vtype.Object("java/lang/Throwable")
		} else {
			name, err := d.method.Constants.TryGetClass(e.CatchType)
			if err != nil {
				return err
			}
			excType = vtype.Object(name)
		}
		if err := handlerFrame.Push(excType); err != nil {
			return err
		}
		if err := d.mergeInto(e.HandlerPC, handlerFrame); err != nil {
			return err
		}
	}
	return nil
}
