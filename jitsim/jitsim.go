// Package jitsim is the typed-stack simulator a code generator consults to
// learn the machine-level shape (not the verifier's full subtype lattice)
// of values flowing through a method's bytecode. It mirrors the verifier's
// per-instruction pop/push contracts but collapses every reference type to
// a single REF kind and drops uninitialized-object tracking entirely:
// codegen only needs to know "this is a 32-bit int" or "this is a pointer",
// never "this is specifically an Uninitialized(7)".
//
// Grounded on compiler/jit's hotspot-detector/code-generator split
// (JITCompiler, Config, CompiledFunction): this module keeps that shape for
// a future code generator to plug into, but emits no machine code itself
// (jitsim never reaches the CodeGenerator.GenerateMachineCode step; that
// remains the JIT's job and stays out of scope here).
package jitsim

import (
	"fmt"
	"sync"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/opcodes"
)

// Kind is a machine-level value category, coarser than vtype.Kind: every
// reference type collapses to Ref, and there is no Uninitialized/
// UninitializedThis distinction.
type Kind byte

const (
	KindI32 Kind = iota
	KindI64
	KindF32
	KindF64
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// IsWide reports whether k occupies two JVM stack/local slots (i64/f64).
func (k Kind) IsWide() bool { return k == KindI64 || k == KindF64 }

// State is the machine-typed locals+stack at one offset, the jitsim analogue
// of frame.Frame. There is no MaxStack bound check here: codegen trusts the
// verifier already proved the method safe and only wants shapes, not limits.
type State struct {
	Locals []Kind
	Stack  []Kind
}

// Clone deep-copies s.
func (s *State) Clone() *State {
	c := &State{
		Locals: make([]Kind, len(s.Locals)),
		Stack:  make([]Kind, len(s.Stack)),
	}
	copy(c.Locals, s.Locals)
	copy(c.Stack, s.Stack)
	return c
}

func (s *State) push(k Kind) { s.Stack = append(s.Stack, k) }

func (s *State) pop() (Kind, error) {
	if len(s.Stack) == 0 {
		return 0, fmt.Errorf("jitsim: stack underflow")
	}
	k := s.Stack[len(s.Stack)-1]
	s.Stack = s.Stack[:len(s.Stack)-1]
	return k, nil
}

// Equal reports whether two states have identical shapes, used to detect a
// fixed point without the verifier's join/LUB machinery: jitsim merges by
// requiring equality rather than computing a least upper bound, since a
// diverging shape at a merge point means codegen should fall back to a
// conservative boxed representation rather than model it precisely.
func (s *State) Equal(o *State) bool {
	if len(s.Locals) != len(o.Locals) || len(s.Stack) != len(o.Stack) {
		return false
	}
	for i := range s.Locals {
		if s.Locals[i] != o.Locals[i] {
			return false
		}
	}
	for i := range s.Stack {
		if s.Stack[i] != o.Stack[i] {
			return false
		}
	}
	return true
}

// Method is the subset of verifier.Method jitsim needs: it takes its own
// narrow view rather than importing verifier, so a code generator can run
// jitsim on a method the verifier has already accepted without linking the
// full dataflow driver.
type Method struct {
	ClassName    string
	Name         string
	Descriptor   string
	IsStatic     bool
	Code         *classfile.Code
	Constants    *classfile.ConstantPool
	Instructions []*opcodes.Instruction
}

// Simulate runs a single forward pass (no exception-handler frame seeding,
// no StackMapTable consultation — codegen runs after verification succeeds,
// so it trusts the code is well-typed and only needs one linear walk plus
// merge-by-equality at join points) and returns the State computed at every
// offset.
func Simulate(m *Method) (map[int]*State, error) {
	if m.Code == nil || len(m.Instructions) == 0 {
		return nil, fmt.Errorf("jitsim: method %s.%s has no code", m.ClassName, m.Name)
	}
	states := map[int]*State{0: initialState(m)}
	worklist := []int{0}
	visited := map[int]bool{}

	byOffset := make(map[int]*opcodes.Instruction, len(m.Instructions))
	for _, in := range m.Instructions {
		byOffset[in.Offset] = in
	}

	for len(worklist) > 0 {
		offset := worklist[0]
		worklist = worklist[1:]

		in, ok := byOffset[offset]
		if !ok {
			return nil, fmt.Errorf("jitsim: no instruction at offset %d", offset)
		}
		cur := states[offset].Clone()
		successors, err := simStep(cur, m, in)
		if err != nil {
			return nil, fmt.Errorf("jitsim: %s.%s@%d: %w", m.ClassName, m.Name, offset, err)
		}
		for _, succ := range successors {
			existing, ok := states[succ]
			if !ok {
				states[succ] = cur.Clone()
				worklist = append(worklist, succ)
				continue
			}
			if !existing.Equal(cur) {
				// Shape conflict at a merge point: keep the first-seen
				// shape and let codegen box this value rather than
				// attempting a lattice join jitsim deliberately doesn't
				// model.
				continue
			}
			if !visited[succ] {
				visited[succ] = true
				worklist = append(worklist, succ)
			}
		}
	}
	return states, nil
}

func initialState(m *Method) *State {
	s := &State{Locals: make([]Kind, m.Code.MaxLocals)}
	idx := 0
	if !m.IsStatic {
		s.Locals[0] = KindRef
		idx = 1
	}
	params := parseParamKinds(m.Descriptor)
	for _, k := range params {
		s.Locals[idx] = k
		if k.IsWide() {
			idx += 2
		} else {
			idx++
		}
	}
	return s
}

// parseParamKinds reduces a method descriptor's parameter list to machine
// kinds, skipping the class-name/array-element detail jitsim doesn't need.
func parseParamKinds(descriptor string) []Kind {
	var kinds []Kind
	i := 1 // skip '('
	for i < len(descriptor) && descriptor[i] != ')' {
		k, n := fieldKindAt(descriptor[i:])
		kinds = append(kinds, k)
		i += n
	}
	return kinds
}

func fieldKindAt(s string) (Kind, int) {
	switch s[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return KindI32, 1
	case 'F':
		return KindF32, 1
	case 'J':
		return KindI64, 1
	case 'D':
		return KindF64, 1
	case 'L':
		for i := 1; i < len(s); i++ {
			if s[i] == ';' {
				return KindRef, i + 1
			}
		}
		return KindRef, len(s)
	case '[':
		_, n := fieldKindAt(s[1:])
		return KindRef, n + 1
	default:
		return KindI32, 1
	}
}

func returnKind(descriptor string) (Kind, bool) {
	i := 1
	for i < len(descriptor) && descriptor[i] != ')' {
		_, n := fieldKindAt(descriptor[i:])
		i += n
	}
	rest := descriptor[i+1:]
	if rest == "V" {
		return 0, true
	}
	k, _ := fieldKindAt(rest)
	return k, false
}

func fallthroughTo(in *opcodes.Instruction) []int { return []int{in.NextOffset()} }

func simStep(s *State, m *Method, in *opcodes.Instruction) ([]int, error) {
	op := in.Opcode
	switch op {
	case opcodes.OpNop:
		return fallthroughTo(in), nil
	case opcodes.OpAconstNull:
		s.push(KindRef)
		return fallthroughTo(in), nil
	case opcodes.OpIconstM1, opcodes.OpIconst0, opcodes.OpIconst1, opcodes.OpIconst2,
		opcodes.OpIconst3, opcodes.OpIconst4, opcodes.OpIconst5, opcodes.OpBipush, opcodes.OpSipush:
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpLconst0, opcodes.OpLconst1:
		s.push(KindI64)
		return fallthroughTo(in), nil
	case opcodes.OpFconst0, opcodes.OpFconst1, opcodes.OpFconst2:
		s.push(KindF32)
		return fallthroughTo(in), nil
	case opcodes.OpDconst0, opcodes.OpDconst1:
		s.push(KindF64)
		return fallthroughTo(in), nil

	case opcodes.OpLdc, opcodes.OpLdcW:
		k, err := ldcKind(m.Constants, in.IntOperand, false)
		if err != nil {
			return nil, err
		}
		s.push(k)
		return fallthroughTo(in), nil
	case opcodes.OpLdc2W:
		k, err := ldcKind(m.Constants, in.IntOperand, true)
		if err != nil {
			return nil, err
		}
		s.push(k)
		return fallthroughTo(in), nil

	case opcodes.OpIload, opcodes.OpIload0, opcodes.OpIload1, opcodes.OpIload2, opcodes.OpIload3,
		opcodes.OpFload, opcodes.OpFload0, opcodes.OpFload1, opcodes.OpFload2, opcodes.OpFload3,
		opcodes.OpLload, opcodes.OpLload0, opcodes.OpLload1, opcodes.OpLload2, opcodes.OpLload3,
		opcodes.OpDload, opcodes.OpDload0, opcodes.OpDload1, opcodes.OpDload2, opcodes.OpDload3,
		opcodes.OpAload, opcodes.OpAload0, opcodes.OpAload1, opcodes.OpAload2, opcodes.OpAload3:
		idx := in.IntOperand
		if idx >= len(s.Locals) {
			return nil, fmt.Errorf("local %d out of bounds", idx)
		}
		s.push(s.Locals[idx])
		return fallthroughTo(in), nil

	case opcodes.OpIaload, opcodes.OpBaload, opcodes.OpCaload, opcodes.OpSaload:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpFaload:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF32)
		return fallthroughTo(in), nil
	case opcodes.OpLaload:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI64)
		return fallthroughTo(in), nil
	case opcodes.OpDaload:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF64)
		return fallthroughTo(in), nil
	case opcodes.OpAaload:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindRef)
		return fallthroughTo(in), nil

	case opcodes.OpIstore, opcodes.OpIstore0, opcodes.OpIstore1, opcodes.OpIstore2, opcodes.OpIstore3,
		opcodes.OpFstore, opcodes.OpFstore0, opcodes.OpFstore1, opcodes.OpFstore2, opcodes.OpFstore3,
		opcodes.OpLstore, opcodes.OpLstore0, opcodes.OpLstore1, opcodes.OpLstore2, opcodes.OpLstore3,
		opcodes.OpDstore, opcodes.OpDstore0, opcodes.OpDstore1, opcodes.OpDstore2, opcodes.OpDstore3,
		opcodes.OpAstore, opcodes.OpAstore0, opcodes.OpAstore1, opcodes.OpAstore2, opcodes.OpAstore3:
		v, err := s.pop()
		if err != nil {
			return nil, err
		}
		idx := in.IntOperand
		for idx >= len(s.Locals) {
			s.Locals = append(s.Locals, KindI32)
		}
		s.Locals[idx] = v
		return fallthroughTo(in), nil

	case opcodes.OpIastore, opcodes.OpFastore, opcodes.OpBastore, opcodes.OpCastore, opcodes.OpSastore,
		opcodes.OpLastore, opcodes.OpDastore, opcodes.OpAastore:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil

	case opcodes.OpPop:
		_, err := s.pop()
		return fallthroughTo(in), err
	case opcodes.OpPop2:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	case opcodes.OpDup:
		v, err := s.pop()
		if err != nil {
			return nil, err
		}
		s.push(v)
		s.push(v)
		return fallthroughTo(in), nil
	case opcodes.OpSwap:
		a, err := s.pop()
		if err != nil {
			return nil, err
		}
		b, err := s.pop()
		if err != nil {
			return nil, err
		}
		s.push(a)
		s.push(b)
		return fallthroughTo(in), nil

	case opcodes.OpIadd, opcodes.OpIsub, opcodes.OpImul, opcodes.OpIdiv, opcodes.OpIrem,
		opcodes.OpIand, opcodes.OpIor, opcodes.OpIxor, opcodes.OpIshl, opcodes.OpIshr, opcodes.OpIushr:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpLadd, opcodes.OpLsub, opcodes.OpLmul, opcodes.OpLdiv, opcodes.OpLrem,
		opcodes.OpLand, opcodes.OpLor, opcodes.OpLxor, opcodes.OpLshl, opcodes.OpLshr, opcodes.OpLushr:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI64)
		return fallthroughTo(in), nil
	case opcodes.OpFadd, opcodes.OpFsub, opcodes.OpFmul, opcodes.OpFdiv, opcodes.OpFrem:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF32)
		return fallthroughTo(in), nil
	case opcodes.OpDadd, opcodes.OpDsub, opcodes.OpDmul, opcodes.OpDdiv, opcodes.OpDrem:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF64)
		return fallthroughTo(in), nil
	case opcodes.OpIneg:
		return fallthroughTo(in), nil
	case opcodes.OpLneg, opcodes.OpFneg, opcodes.OpDneg:
		return fallthroughTo(in), nil
	case opcodes.OpIinc:
		return fallthroughTo(in), nil

	case opcodes.OpI2l:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI64)
		return fallthroughTo(in), nil
	case opcodes.OpI2f:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF32)
		return fallthroughTo(in), nil
	case opcodes.OpI2d:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF64)
		return fallthroughTo(in), nil
	case opcodes.OpI2b, opcodes.OpI2c, opcodes.OpI2s:
		return fallthroughTo(in), nil
	case opcodes.OpL2i:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpL2f:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF32)
		return fallthroughTo(in), nil
	case opcodes.OpL2d:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF64)
		return fallthroughTo(in), nil
	case opcodes.OpF2i:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpF2l:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI64)
		return fallthroughTo(in), nil
	case opcodes.OpF2d:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF64)
		return fallthroughTo(in), nil
	case opcodes.OpD2i:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpD2l:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI64)
		return fallthroughTo(in), nil
	case opcodes.OpD2f:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindF32)
		return fallthroughTo(in), nil

	case opcodes.OpLcmp, opcodes.OpFcmpl, opcodes.OpFcmpg, opcodes.OpDcmpl, opcodes.OpDcmpg:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil

	case opcodes.OpIfeq, opcodes.OpIfne, opcodes.OpIflt, opcodes.OpIfge, opcodes.OpIfgt, opcodes.OpIfle,
		opcodes.OpIfnull, opcodes.OpIfnonnull:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return append([]int{in.NextOffset()}, in.Targets...), nil
	case opcodes.OpIfIcmpeq, opcodes.OpIfIcmpne, opcodes.OpIfIcmplt, opcodes.OpIfIcmpge, opcodes.OpIfIcmpgt, opcodes.OpIfIcmple,
		opcodes.OpIfAcmpeq, opcodes.OpIfAcmpne:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return append([]int{in.NextOffset()}, in.Targets...), nil
	case opcodes.OpGoto, opcodes.OpGotoW, opcodes.OpJsr, opcodes.OpJsrW:
		return append([]int{}, in.Targets...), nil
	case opcodes.OpRet:
		return nil, nil
	case opcodes.OpTableswitch, opcodes.OpLookupswitch:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return append([]int{}, in.Targets...), nil

	case opcodes.OpIreturn, opcodes.OpFreturn, opcodes.OpLreturn, opcodes.OpDreturn, opcodes.OpAreturn:
		_, err := s.pop()
		return nil, err
	case opcodes.OpReturn:
		return nil, nil
	case opcodes.OpAthrow:
		_, err := s.pop()
		return nil, err

	case opcodes.OpGetstatic:
		k, err := fieldKind(m.Constants, in.IntOperand)
		if err != nil {
			return nil, err
		}
		s.push(k)
		return fallthroughTo(in), nil
	case opcodes.OpPutstatic:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	case opcodes.OpGetfield:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		k, err := fieldKind(m.Constants, in.IntOperand)
		if err != nil {
			return nil, err
		}
		s.push(k)
		return fallthroughTo(in), nil
	case opcodes.OpPutfield:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil

	case opcodes.OpInvokevirtual, opcodes.OpInvokespecial, opcodes.OpInvokeinterface, opcodes.OpInvokestatic:
		return simInvoke(s, m, in, op)
	case opcodes.OpInvokedynamic:
		return fallthroughTo(in), nil

	case opcodes.OpNew:
		s.push(KindRef)
		return fallthroughTo(in), nil
	case opcodes.OpNewarray, opcodes.OpAnewarray:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindRef)
		return fallthroughTo(in), nil
	case opcodes.OpArraylength:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpCheckcast:
		return fallthroughTo(in), nil
	case opcodes.OpInstanceof:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		s.push(KindI32)
		return fallthroughTo(in), nil
	case opcodes.OpMonitorenter, opcodes.OpMonitorexit:
		if _, err := s.pop(); err != nil {
			return nil, err
		}
		return fallthroughTo(in), nil
	case opcodes.OpMultianewarray:
		for i := 0; i < in.IntOperand2; i++ {
			if _, err := s.pop(); err != nil {
				return nil, err
			}
		}
		s.push(KindRef)
		return fallthroughTo(in), nil

	default:
		return fallthroughTo(in), nil
	}
}

func simInvoke(s *State, m *Method, in *opcodes.Instruction, op opcodes.Opcode) ([]int, error) {
	ref, err := m.Constants.ResolveMethodRef(in.IntOperand)
	if err != nil {
		return nil, err
	}
	params := parseParamKinds(ref.Descriptor)
	for range params {
		if _, err := s.pop(); err != nil {
			return nil, err
		}
	}
	if op != opcodes.OpInvokestatic {
		if _, err := s.pop(); err != nil {
			return nil, err
		}
	}
	k, isVoid := returnKind(ref.Descriptor)
	if !isVoid {
		s.push(k)
	}
	return fallthroughTo(in), nil
}

func fieldKind(cp *classfile.ConstantPool, index int) (Kind, error) {
	ref, err := cp.ResolveFieldRef(index)
	if err != nil {
		return 0, err
	}
	k, _ := fieldKindAt(ref.Descriptor)
	return k, nil
}

func ldcKind(cp *classfile.ConstantPool, index int, wide bool) (Kind, error) {
	c, err := cp.TryGet(index)
	if err != nil {
		return 0, err
	}
	switch c.Tag {
	case classfile.TagInteger:
		return KindI32, nil
	case classfile.TagFloat:
		return KindF32, nil
	case classfile.TagLong:
		return KindI64, nil
	case classfile.TagDouble:
		return KindF64, nil
	case classfile.TagString, classfile.TagClass:
		return KindRef, nil
	default:
		return 0, fmt.Errorf("jitsim: constant pool index %d is not loadable", index)
	}
}

// HotspotDetector decides when a method is "hot" enough to warrant running
// Simulate and handing its State map to a code generator, mirroring
// compiler/jit's Config.CompilationThreshold/HotspotDetector split without
// carrying over that package's machine-code-emission responsibilities.
type HotspotDetector struct {
	mu        sync.Mutex
	counts    map[string]int64
	Threshold int64
}

// NewHotspotDetector builds a detector with the given call-count threshold.
func NewHotspotDetector(threshold int64) *HotspotDetector {
	return &HotspotDetector{counts: make(map[string]int64), Threshold: threshold}
}

// RecordCall increments key's call count and reports whether it has just
// crossed the threshold (so the caller simulates/compiles it exactly once).
func (h *HotspotDetector) RecordCall(key string) (justBecameHot bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[key]++
	return h.counts[key] == h.Threshold
}
