package verifier

import (
	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/frame"
	"github.com/wudi/hey/opcodes"
	"github.com/wudi/hey/vtype"
)

// step applies one instruction's effect to f in place and returns the
// offsets of its fall-through/branch successors. A return or athrow
// instruction yields no successors. f is mutated; callers own cloning.
func step(f *frame.Frame, m *Method, in *opcodes.Instruction, ctx vtype.Context) ([]int, error) {
	op := in.Opcode
	cp := m.Constants

	switch op {
	case opcodes.OpNop:
		return fallthroughTo(in), nil

	case opcodes.OpAconstNull:
		return push1(f, in, vtype.Null)

	case opcodes.OpIconstM1, opcodes.OpIconst0, opcodes.OpIconst1, opcodes.OpIconst2,
		opcodes.OpIconst3, opcodes.OpIconst4, opcodes.OpIconst5, opcodes.OpBipush, opcodes.OpSipush:
		return push1(f, in, vtype.Integer)

	case opcodes.OpLconst0, opcodes.OpLconst1:
		return pushCat2(f, in, vtype.Long)

	case opcodes.OpFconst0, opcodes.OpFconst1, opcodes.OpFconst2:
		return push1(f, in, vtype.Float)

	case opcodes.OpDconst0, opcodes.OpDconst1:
		return pushCat2(f, in, vtype.Double)

	case opcodes.OpLdc, opcodes.OpLdcW:
		t, err := ldcConstant(cp, in.IntOperand)
		if err != nil {
			return nil, err
		}
		if vtype.IsCategory2(t) {
			return nil, newError(ErrTypeMismatch, "ldc of a category-2 constant, use ldc2_w")
		}
		return push1(f, in, t)

	case opcodes.OpLdc2W:
		t, err := ldcConstant(cp, in.IntOperand)
		if err != nil {
			return nil, err
		}
		if !vtype.IsCategory2(t) {
			return nil, newError(ErrTypeMismatch, "ldc2_w of a category-1 constant")
		}
		return pushCat2(f, in, t)

	// Loads.
	case opcodes.OpIload, opcodes.OpIload0, opcodes.OpIload1, opcodes.OpIload2, opcodes.OpIload3:
		return loadLocal(f, in, localIndexOf(in), vtype.Integer, false)
	case opcodes.OpFload, opcodes.OpFload0, opcodes.OpFload1, opcodes.OpFload2, opcodes.OpFload3:
		return loadLocal(f, in, localIndexOf(in), vtype.Float, false)
	case opcodes.OpLload, opcodes.OpLload0, opcodes.OpLload1, opcodes.OpLload2, opcodes.OpLload3:
		return loadLocal(f, in, localIndexOf(in), vtype.Long, true)
	case opcodes.OpDload, opcodes.OpDload0, opcodes.OpDload1, opcodes.OpDload2, opcodes.OpDload3:
		return loadLocal(f, in, localIndexOf(in), vtype.Double, true)
	case opcodes.OpAload, opcodes.OpAload0, opcodes.OpAload1, opcodes.OpAload2, opcodes.OpAload3:
		return loadLocalRef(f, in, localIndexOf(in), ctx)

	// Array loads.
	case opcodes.OpIaload:
		return arrayLoad(f, in, "[I", vtype.Integer, ctx)
	case opcodes.OpFaload:
		return arrayLoad(f, in, "[F", vtype.Float, ctx)
	case opcodes.OpLaload:
		return arrayLoadCat2(f, in, "[J", vtype.Long, ctx)
	case opcodes.OpDaload:
		return arrayLoadCat2(f, in, "[D", vtype.Double, ctx)
	case opcodes.OpBaload:
		return arrayLoad(f, in, "[B", vtype.Integer, ctx)
	case opcodes.OpCaload:
		return arrayLoad(f, in, "[C", vtype.Integer, ctx)
	case opcodes.OpSaload:
		return arrayLoad(f, in, "[S", vtype.Integer, ctx)
	case opcodes.OpAaload:
		return arrayLoadRef(f, in, ctx)

	// Stores.
	case opcodes.OpIstore, opcodes.OpIstore0, opcodes.OpIstore1, opcodes.OpIstore2, opcodes.OpIstore3:
		return storeLocal(f, in, localIndexOf(in), vtype.Integer, ctx)
	case opcodes.OpFstore, opcodes.OpFstore0, opcodes.OpFstore1, opcodes.OpFstore2, opcodes.OpFstore3:
		return storeLocal(f, in, localIndexOf(in), vtype.Float, ctx)
	case opcodes.OpLstore, opcodes.OpLstore0, opcodes.OpLstore1, opcodes.OpLstore2, opcodes.OpLstore3:
		return storeLocal(f, in, localIndexOf(in), vtype.Long, ctx)
	case opcodes.OpDstore, opcodes.OpDstore0, opcodes.OpDstore1, opcodes.OpDstore2, opcodes.OpDstore3:
		return storeLocal(f, in, localIndexOf(in), vtype.Double, ctx)
	case opcodes.OpAstore, opcodes.OpAstore0, opcodes.OpAstore1, opcodes.OpAstore2, opcodes.OpAstore3:
		return storeLocalRef(f, in, localIndexOf(in))

	// Array stores.
	case opcodes.OpIastore:
		return arrayStore(f, in, vtype.Integer, ctx)
	case opcodes.OpFastore:
		return arrayStore(f, in, vtype.Float, ctx)
	case opcodes.OpBastore:
		return arrayStore(f, in, vtype.Integer, ctx)
	case opcodes.OpCastore:
		return arrayStore(f, in, vtype.Integer, ctx)
	case opcodes.OpSastore:
		return arrayStore(f, in, vtype.Integer, ctx)
	case opcodes.OpLastore:
		return arrayStoreCat2(f, in, vtype.Long, ctx)
	case opcodes.OpDastore:
		return arrayStoreCat2(f, in, vtype.Double, ctx)
	case opcodes.OpAastore:
		return arrayStoreRef(f, in, ctx)

	// Stack manipulation.
	case opcodes.OpPop:
		if _, err := f.Pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	case opcodes.OpPop2:
		a, err := f.Pop()
		if err != nil {
			return nil, err
		}
		if vtype.IsCategory2(a) {
			return fallthroughTo(in), nil
		}
		if _, err := f.Pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	case opcodes.OpDup:
		return dupN(f, in, 0, 1)
	case opcodes.OpDupX1:
		return dupX(f, in, 1, 1)
	case opcodes.OpDupX2:
		return dupX2Variant(f, in)
	case opcodes.OpDup2:
		return dup2(f, in)
	case opcodes.OpDup2X1:
		return dup2X1(f, in)
	case opcodes.OpDup2X2:
		return dup2X2(f, in)
	case opcodes.OpSwap:
		a, err := f.Pop()
		if err != nil {
			return nil, err
		}
		b, err := f.Pop()
		if err != nil {
			return nil, err
		}
		// In the pair form a category-2 value shows up as its Top high half.
		if vtype.IsCategory2(a) || vtype.IsCategory2(b) || a.Kind == vtype.KindTop || b.Kind == vtype.KindTop {
			return nil, newError(ErrTypeMismatch, "swap of a category-2 value")
		}
		if err := f.Push(a); err != nil {
			return nil, err
		}
		if err := f.Push(b); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil

	// Arithmetic / bitwise / shifts.
	case opcodes.OpIadd, opcodes.OpIsub, opcodes.OpImul, opcodes.OpIdiv, opcodes.OpIrem,
		opcodes.OpIand, opcodes.OpIor, opcodes.OpIxor, opcodes.OpIshl, opcodes.OpIshr, opcodes.OpIushr:
		return binOp(f, in, vtype.Integer, ctx, op == opcodes.OpIshl || op == opcodes.OpIshr || op == opcodes.OpIushr)
	case opcodes.OpFadd, opcodes.OpFsub, opcodes.OpFmul, opcodes.OpFdiv, opcodes.OpFrem:
		return binOp(f, in, vtype.Float, ctx, false)
	case opcodes.OpLadd, opcodes.OpLsub, opcodes.OpLmul, opcodes.OpLdiv, opcodes.OpLrem,
		opcodes.OpLand, opcodes.OpLor, opcodes.OpLxor:
		return binOpCat2(f, in, vtype.Long, ctx)
	case opcodes.OpLshl, opcodes.OpLshr, opcodes.OpLushr:
		return shiftLong(f, in, ctx)
	case opcodes.OpDadd, opcodes.OpDsub, opcodes.OpDmul, opcodes.OpDdiv, opcodes.OpDrem:
		return binOpCat2(f, in, vtype.Double, ctx)
	case opcodes.OpIneg:
		return unOp(f, in, vtype.Integer, ctx)
	case opcodes.OpFneg:
		return unOp(f, in, vtype.Float, ctx)
	case opcodes.OpLneg:
		return unOpCat2(f, in, vtype.Long, ctx)
	case opcodes.OpDneg:
		return unOpCat2(f, in, vtype.Double, ctx)

	case opcodes.OpIinc:
		if _, err := f.GetLocal(in.IntOperand); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil

	// Conversions.
	case opcodes.OpI2f:
		return convert(f, in, vtype.Integer, vtype.Float, ctx)
	case opcodes.OpI2l:
		return convertWiden(f, in, vtype.Integer, vtype.Long, ctx)
	case opcodes.OpI2d:
		return convertWiden(f, in, vtype.Integer, vtype.Double, ctx)
	case opcodes.OpI2b, opcodes.OpI2c, opcodes.OpI2s:
		return convert(f, in, vtype.Integer, vtype.Integer, ctx)
	case opcodes.OpL2i:
		return convertNarrow(f, in, vtype.Long, vtype.Integer, ctx)
	case opcodes.OpL2f:
		return convertNarrow(f, in, vtype.Long, vtype.Float, ctx)
	case opcodes.OpL2d:
		return convertNarrow(f, in, vtype.Long, vtype.Double, ctx)
	case opcodes.OpF2i:
		return convert(f, in, vtype.Float, vtype.Integer, ctx)
	case opcodes.OpF2l:
		return convertWiden(f, in, vtype.Float, vtype.Long, ctx)
	case opcodes.OpF2d:
		return convertWiden(f, in, vtype.Float, vtype.Double, ctx)
	case opcodes.OpD2i:
		return convertNarrow(f, in, vtype.Double, vtype.Integer, ctx)
	case opcodes.OpD2l:
		return convertNarrow(f, in, vtype.Double, vtype.Long, ctx)
	case opcodes.OpD2f:
		return convertNarrow(f, in, vtype.Double, vtype.Float, ctx)

	// Comparisons.
	case opcodes.OpLcmp:
		return compareCat2(f, in, vtype.Long, ctx)
	case opcodes.OpFcmpl, opcodes.OpFcmpg:
		return compare1(f, in, vtype.Float, ctx)
	case opcodes.OpDcmpl, opcodes.OpDcmpg:
		return compareCat2(f, in, vtype.Double, ctx)

	// Conditional branches.
	case opcodes.OpIfeq, opcodes.OpIfne, opcodes.OpIflt, opcodes.OpIfge, opcodes.OpIfgt, opcodes.OpIfle:
		if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
			return nil, err
		}
		return branchTargets(f, in), nil
	case opcodes.OpIfIcmpeq, opcodes.OpIfIcmpne, opcodes.OpIfIcmplt, opcodes.OpIfIcmpge, opcodes.OpIfIcmpgt, opcodes.OpIfIcmple:
		if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
			return nil, err
		}
		if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
			return nil, err
		}
		return branchTargets(f, in), nil
	case opcodes.OpIfAcmpeq, opcodes.OpIfAcmpne:
		if err := popReference(f); err != nil {
			return nil, err
		}
		if err := popReference(f); err != nil {
			return nil, err
		}
		return branchTargets(f, in), nil
	case opcodes.OpIfnull, opcodes.OpIfnonnull:
		if err := popReference(f); err != nil {
			return nil, err
		}
		return branchTargets(f, in), nil
	case opcodes.OpGoto, opcodes.OpGotoW:
		return in.Targets, nil
	case opcodes.OpJsr, opcodes.OpJsrW:
		// jsr/ret (JSR subroutines) are deprecated since class file version
		// 51 and not emitted by any modern compiler; treated as an
		// unconditional branch to the subroutine entry with no return
		// address tracking.
		return in.Targets, nil
	case opcodes.OpRet:
		return nil, nil

	case opcodes.OpTableswitch, opcodes.OpLookupswitch:
		if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
			return nil, err
		}
		return append([]int{}, in.Targets...), nil

	// Returns.
	case opcodes.OpIreturn:
		_, err := f.PopExpect(vtype.Integer, ctx)
		return nil, err
	case opcodes.OpFreturn:
		_, err := f.PopExpect(vtype.Float, ctx)
		return nil, err
	case opcodes.OpLreturn:
		_, err := f.PopExpect(vtype.Long, ctx)
		return nil, err
	case opcodes.OpDreturn:
		_, err := f.PopExpect(vtype.Double, ctx)
		return nil, err
	case opcodes.OpAreturn:
		return nil, popReference(f)
	case opcodes.OpReturn:
		return nil, nil

	case opcodes.OpAthrow:
		return nil, popReference(f)

	// Fields.
	case opcodes.OpGetstatic:
		return fieldAccess(f, in, cp, true, false, ctx)
	case opcodes.OpPutstatic:
		return fieldAccess(f, in, cp, true, true, ctx)
	case opcodes.OpGetfield:
		return fieldAccess(f, in, cp, false, false, ctx)
	case opcodes.OpPutfield:
		return fieldAccess(f, in, cp, false, true, ctx)

	// Methods.
	case opcodes.OpInvokevirtual, opcodes.OpInvokespecial, opcodes.OpInvokeinterface:
		return invoke(f, m, in, cp, op, ctx)
	case opcodes.OpInvokestatic:
		return invoke(f, m, in, cp, op, ctx)
	case opcodes.OpInvokedynamic:
		return invokeDynamic(f, in, cp)

	case opcodes.OpNew:
		if _, err := cp.TryGetClass(in.IntOperand); err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Uninitialized(in.Offset))

	case opcodes.OpNewarray:
		if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Object(arrayTypeDescriptor(opcodes.ArrayType(in.IntOperand))))

	case opcodes.OpAnewarray:
		if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
			return nil, err
		}
		className, err := cp.TryGetClass(in.IntOperand)
		if err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Object("["+toFieldDescriptor(className)))

	case opcodes.OpArraylength:
		if err := popReference(f); err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Integer)

	case opcodes.OpCheckcast:
		if err := popReference(f); err != nil {
			return nil, err
		}
		className, err := cp.TryGetClass(in.IntOperand)
		if err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Object(className))

	case opcodes.OpInstanceof:
		if err := popReference(f); err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Integer)

	case opcodes.OpMonitorenter, opcodes.OpMonitorexit:
		if err := popReference(f); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil

	case opcodes.OpMultianewarray:
		dims := in.IntOperand2
		for i := 0; i < dims; i++ {
			if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
				return nil, err
			}
		}
		className, err := cp.TryGetClass(in.IntOperand)
		if err != nil {
			return nil, err
		}
		return push1(f, in, vtype.Object(className))

	default:
		return nil, newError(ErrUnknownOpcode, "opcode %s", op)
	}
}

func fallthroughTo(in *opcodes.Instruction) []int {
	return []int{in.NextOffset()}
}

// branchTargets is for conditional branches only: they fall through to the
// next instruction in addition to jumping to in.Targets. Unconditional
// branches (goto/goto_w/jsr/jsr_w) must not call this — they return
// in.Targets directly, with no fallthrough successor.
func branchTargets(f *frame.Frame, in *opcodes.Instruction) []int {
	if len(in.Targets) == 0 {
		return []int{in.NextOffset()}
	}
	return append([]int{in.NextOffset()}, in.Targets...)
}

func push1(f *frame.Frame, in *opcodes.Instruction, t vtype.Type) ([]int, error) {
	if err := f.Push(t); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func pushCat2(f *frame.Frame, in *opcodes.Instruction, t vtype.Type) ([]int, error) {
	if err := f.Push(t); err != nil {
		return nil, err
	}
	if err := f.Push(vtype.Top); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func popReference(f *frame.Frame) error {
	t, err := f.Pop()
	if err != nil {
		return err
	}
	if !vtype.IsReference(t) {
		return newError(ErrTypeMismatch, "expected a reference, got %s", t)
	}
	return nil
}

func localIndexOf(in *opcodes.Instruction) int {
	return in.IntOperand
}

func loadLocal(f *frame.Frame, in *opcodes.Instruction, index int, want vtype.Type, cat2 bool) ([]int, error) {
	t, err := f.GetLocal(index)
	if err != nil {
		return nil, err
	}
	if !t.Equal(want) {
		return nil, newError(ErrTypeMismatch, "local %d: expected %s, got %s", index, want, t)
	}
	if cat2 {
		return pushCat2(f, in, t)
	}
	return push1(f, in, t)
}

func loadLocalRef(f *frame.Frame, in *opcodes.Instruction, index int, ctx vtype.Context) ([]int, error) {
	t, err := f.GetLocal(index)
	if err != nil {
		return nil, err
	}
	if !vtype.IsReference(t) {
		return nil, newError(ErrTypeMismatch, "local %d: expected a reference, got %s", index, t)
	}
	return push1(f, in, t)
}

func storeLocal(f *frame.Frame, in *opcodes.Instruction, index int, want vtype.Type, ctx vtype.Context) ([]int, error) {
	v, err := f.PopExpect(want, ctx)
	if err != nil {
		return nil, err
	}
	if err := f.SetLocal(index, v); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func storeLocalRef(f *frame.Frame, in *opcodes.Instruction, index int) ([]int, error) {
	v, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if !vtype.IsReference(v) {
		return nil, newError(ErrTypeMismatch, "astore of a non-reference %s", v)
	}
	if err := f.SetLocal(index, v); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func arrayLoad(f *frame.Frame, in *opcodes.Instruction, arrayDesc string, elem vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	if err := popArrayRef(f); err != nil {
		return nil, err
	}
	return push1(f, in, elem)
}

func arrayLoadCat2(f *frame.Frame, in *opcodes.Instruction, arrayDesc string, elem vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	if err := popArrayRef(f); err != nil {
		return nil, err
	}
	return pushCat2(f, in, elem)
}

func arrayLoadRef(f *frame.Frame, in *opcodes.Instruction, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	arr, err := f.Pop()
	if err != nil {
		return nil, err
	}
	elem := elementTypeOf(arr)
	return push1(f, in, elem)
}

func arrayStore(f *frame.Frame, in *opcodes.Instruction, elem vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(elem, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	if err := popArrayRef(f); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func arrayStoreCat2(f *frame.Frame, in *opcodes.Instruction, elem vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(elem, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	if err := popArrayRef(f); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func arrayStoreRef(f *frame.Frame, in *opcodes.Instruction, ctx vtype.Context) ([]int, error) {
	if err := popReference(f); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	if err := popArrayRef(f); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func popArrayRef(f *frame.Frame) error {
	t, err := f.Pop()
	if err != nil {
		return err
	}
	if t.Kind == vtype.KindNull {
		return nil
	}
	if t.Kind != vtype.KindObject {
		return newError(ErrTypeMismatch, "expected an array reference, got %s", t)
	}
	return nil
}

func elementTypeOf(arr vtype.Type) vtype.Type {
	if arr.Kind != vtype.KindObject || len(arr.ClassName) < 2 || arr.ClassName[0] != '[' {
		return vtype.Object("java/lang/Object")
	}
	t, _, err := parseFieldType(arr.ClassName[1:])
	if err != nil {
		return vtype.Object("java/lang/Object")
	}
	return t
}

func binOp(f *frame.Frame, in *opcodes.Instruction, t vtype.Type, ctx vtype.Context, shift bool) ([]int, error) {
	right := t
	if shift {
		right = vtype.Integer
	}
	if _, err := f.PopExpect(right, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	return push1(f, in, t)
}

func binOpCat2(f *frame.Frame, in *opcodes.Instruction, t vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	return pushCat2(f, in, t)
}

func shiftLong(f *frame.Frame, in *opcodes.Instruction, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(vtype.Integer, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(vtype.Long, ctx); err != nil {
		return nil, err
	}
	return pushCat2(f, in, vtype.Long)
}

func unOp(f *frame.Frame, in *opcodes.Instruction, t vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	return push1(f, in, t)
}

func unOpCat2(f *frame.Frame, in *opcodes.Instruction, t vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	return pushCat2(f, in, t)
}

func convert(f *frame.Frame, in *opcodes.Instruction, from, to vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(from, ctx); err != nil {
		return nil, err
	}
	return push1(f, in, to)
}

func convertWiden(f *frame.Frame, in *opcodes.Instruction, from, to vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(from, ctx); err != nil {
		return nil, err
	}
	return pushCat2(f, in, to)
}

func convertNarrow(f *frame.Frame, in *opcodes.Instruction, from, to vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(from, ctx); err != nil {
		return nil, err
	}
	if vtype.IsCategory2(to) {
		return pushCat2(f, in, to)
	}
	return push1(f, in, to)
}

func compare1(f *frame.Frame, in *opcodes.Instruction, t vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	return push1(f, in, vtype.Integer)
}

func compareCat2(f *frame.Frame, in *opcodes.Instruction, t vtype.Type, ctx vtype.Context) ([]int, error) {
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	if _, err := f.PopExpect(t, ctx); err != nil {
		return nil, err
	}
	return push1(f, in, vtype.Integer)
}

// dupN duplicates the top value (skip slots below it are not reinserted;
// skip parameter reserved for future dup variants, currently always 0).
func dupN(f *frame.Frame, in *opcodes.Instruction, skip, count int) ([]int, error) {
	top, err := f.Pop()
	if err != nil {
		return nil, err
	}
	// In the pair form a category-2 value has its Top high half on top.
	if vtype.IsCategory2(top) || top.Kind == vtype.KindTop {
		return nil, newError(ErrTypeMismatch, "dup of a category-2 value, use dup2")
	}
	if err := f.Push(top); err != nil {
		return nil, err
	}
	if err := f.Push(top); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func dupX1(f *frame.Frame, in *opcodes.Instruction) ([]int, error) {
	a, err := f.Pop()
	if err != nil {
		return nil, err
	}
	b, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(a) || vtype.IsCategory2(b) || a.Kind == vtype.KindTop || b.Kind == vtype.KindTop {
		return nil, newError(ErrTypeMismatch, "dup_x1 of a category-2 value")
	}
	if err := f.Push(a); err != nil {
		return nil, err
	}
	if err := f.Push(b); err != nil {
		return nil, err
	}
	if err := f.Push(a); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func dupX(f *frame.Frame, in *opcodes.Instruction, _, _ int) ([]int, error) {
	return dupX1(f, in)
}

func dupX2Variant(f *frame.Frame, in *opcodes.Instruction) ([]int, error) {
	a, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(a) || a.Kind == vtype.KindTop {
		return nil, newError(ErrTypeMismatch, "dup_x2 of a category-2 top value")
	}
	b, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(b) {
		if err := f.Push(a); err != nil {
			return nil, err
		}
		if err := f.Push(b); err != nil {
			return nil, err
		}
		if err := f.Push(a); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	}
	c, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if err := f.Push(a); err != nil {
		return nil, err
	}
	if err := f.Push(c); err != nil {
		return nil, err
	}
	if err := f.Push(b); err != nil {
		return nil, err
	}
	if err := f.Push(a); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func dup2(f *frame.Frame, in *opcodes.Instruction) ([]int, error) {
	a, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(a) {
		if err := f.Push(a); err != nil {
			return nil, err
		}
		if err := f.Push(a); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	}
	b, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if err := f.Push(b); err != nil {
		return nil, err
	}
	if err := f.Push(a); err != nil {
		return nil, err
	}
	if err := f.Push(b); err != nil {
		return nil, err
	}
	if err := f.Push(a); err != nil {
		return nil, err
	}
	return fallthroughTo(in), nil
}

func dup2X1(f *frame.Frame, in *opcodes.Instruction) ([]int, error) {
	a, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(a) {
		b, err := f.Pop()
		if err != nil {
			return nil, err
		}
		if err := f.Push(a); err != nil {
			return nil, err
		}
		if err := f.Push(b); err != nil {
			return nil, err
		}
		if err := f.Push(a); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	}
	b, err := f.Pop()
	if err != nil {
		return nil, err
	}
	c, err := f.Pop()
	if err != nil {
		return nil, err
	}
	for _, v := range []vtype.Type{b, a, c, b, a} {
		if err := f.Push(v); err != nil {
			return nil, err
		}
	}
	return fallthroughTo(in), nil
}

func dup2X2(f *frame.Frame, in *opcodes.Instruction) ([]int, error) {
	a, err := f.Pop()
	if err != nil {
		return nil, err
	}
	b, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(a) && vtype.IsCategory2(b) {
		for _, v := range []vtype.Type{a, b, a} {
			if err := f.Push(v); err != nil {
				return nil, err
			}
		}
		return fallthroughTo(in), nil
	}
	if vtype.IsCategory2(a) {
		c, err := f.Pop()
		if err != nil {
			return nil, err
		}
		for _, v := range []vtype.Type{a, c, b, a} {
			if err := f.Push(v); err != nil {
				return nil, err
			}
		}
		return fallthroughTo(in), nil
	}
	c, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if vtype.IsCategory2(c) {
		for _, v := range []vtype.Type{b, a, c, b, a} {
			if err := f.Push(v); err != nil {
				return nil, err
			}
		}
		return fallthroughTo(in), nil
	}
	d, err := f.Pop()
	if err != nil {
		return nil, err
	}
	for _, v := range []vtype.Type{b, a, d, c, b, a} {
		if err := f.Push(v); err != nil {
			return nil, err
		}
	}
	return fallthroughTo(in), nil
}

func fieldAccess(f *frame.Frame, in *opcodes.Instruction, cp *classfile.ConstantPool, static, put bool, ctx vtype.Context) ([]int, error) {
	ref, err := cp.ResolveFieldRef(in.IntOperand)
	if err != nil {
		return nil, err
	}
	fieldType, err := ParseFieldDescriptor(ref.Descriptor)
	if err != nil {
		return nil, err
	}
	if put {
		if _, err := f.PopExpect(fieldType, ctx); err != nil {
			return nil, err
		}
		if !static {
			if err := popReference(f); err != nil {
				return nil, err
			}
		}
		return fallthroughTo(in), nil
	}
	if !static {
		if err := popReference(f); err != nil {
			return nil, err
		}
	}
	if vtype.IsCategory2(fieldType) {
		return pushCat2(f, in, fieldType)
	}
	return push1(f, in, fieldType)
}

func invoke(f *frame.Frame, m *Method, in *opcodes.Instruction, cp *classfile.ConstantPool, op opcodes.Opcode, ctx vtype.Context) ([]int, error) {
	ref, err := cp.ResolveMethodRef(in.IntOperand)
	if err != nil {
		return nil, err
	}
	desc, err := ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return nil, err
	}
	for i := len(desc.Params) - 1; i >= 0; i-- {
		if _, err := f.PopExpect(desc.Params[i], ctx); err != nil {
			return nil, err
		}
	}
	isStatic := op == opcodes.OpInvokestatic
	if !isStatic {
		receiver, err := f.Pop()
		if err != nil {
			return nil, err
		}
		if !vtype.IsReference(receiver) {
			return nil, newError(ErrTypeMismatch, "invoke receiver is not a reference: %s", receiver)
		}
		if (op == opcodes.OpInvokevirtual || op == opcodes.OpInvokeinterface) && receiver.Kind != vtype.KindNull {
			ok, err := vtype.Assignable(receiver, vtype.Object(ref.ClassName), ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, newError(ErrTypeMismatch, "invoke receiver %s is not assignable to %s", receiver, ref.ClassName)
			}
		}
		if op == opcodes.OpInvokespecial && ref.Name == "<init>" {
			var initialized vtype.Type
			if receiver.Kind == vtype.KindUninitializedThis {
				initialized = vtype.Object(m.ClassName)
			} else if receiver.Kind == vtype.KindUninitialized {
				initialized = vtype.Object(ref.ClassName)
			} else {
				return nil, newError(ErrUninitializedObject, "invokespecial <init> on an already-initialized receiver")
			}
			f.InitializeObject(receiver, initialized)
		}
	}
	if desc.IsVoid {
		return fallthroughTo(in), nil
	}
	if vtype.IsCategory2(desc.Return) {
		return pushCat2(f, in, desc.Return)
	}
	return push1(f, in, desc.Return)
}

func invokeDynamic(f *frame.Frame, in *opcodes.Instruction, cp *classfile.ConstantPool) ([]int, error) {
	// invokedynamic's bootstrap-method constant carries the call-site
	// descriptor; descriptor resolution for it is identical to a regular
	// method descriptor but the constant-pool entry shape (InvokeDynamic)
	// is not modeled in this package's ConstantPool (no receiver, no
	// Methodref class index) so the driver treats it as opaque: drop the
	// effect entirely rather than guess. A caller that needs it supplies
	// a richer classfile that resolves the bootstrap method's descriptor
	// ahead of verification and rewrites it into an ordinary Methodref.
	return fallthroughTo(in), nil
}

func arrayTypeDescriptor(at opcodes.ArrayType) string {
	switch at {
	case opcodes.ArrayBoolean:
		return "[Z"
	case opcodes.ArrayChar:
		return "[C"
	case opcodes.ArrayFloat:
		return "[F"
	case opcodes.ArrayDouble:
		return "[D"
	case opcodes.ArrayByte:
		return "[B"
	case opcodes.ArrayShort:
		return "[S"
	case opcodes.ArrayInt:
		return "[I"
	case opcodes.ArrayLong:
		return "[J"
	default:
		return "[Ljava/lang/Object;"
	}
}

func toFieldDescriptor(className string) string {
	if len(className) > 0 && className[0] == '[' {
		return className
	}
	return "L" + className + ";"
}
