package jitsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/opcodes"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "i32", KindI32.String())
	assert.Equal(t, "i64", KindI64.String())
	assert.Equal(t, "f32", KindF32.String())
	assert.Equal(t, "f64", KindF64.String())
	assert.Equal(t, "ref", KindRef.String())
}

func TestKind_IsWide(t *testing.T) {
	assert.True(t, KindI64.IsWide())
	assert.True(t, KindF64.IsWide())
	assert.False(t, KindI32.IsWide())
	assert.False(t, KindRef.IsWide())
}

func TestState_Equal(t *testing.T) {
	a := &State{Locals: []Kind{KindI32, KindRef}, Stack: []Kind{KindI32}}
	b := &State{Locals: []Kind{KindI32, KindRef}, Stack: []Kind{KindI32}}
	c := &State{Locals: []Kind{KindI32, KindRef}, Stack: []Kind{KindRef}}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestState_Clone_DoesNotAlias(t *testing.T) {
	a := &State{Locals: []Kind{KindI32}, Stack: []Kind{KindRef}}
	b := a.Clone()
	b.Locals[0] = KindI64
	assert.Equal(t, KindI32, a.Locals[0])
}

func staticMethod(descriptor string, instructions []*opcodes.Instruction, cp *classfile.ConstantPool) *Method {
	if cp == nil {
		cp = classfile.NewConstantPool(nil)
	}
	return &Method{
		ClassName:    "pkg/Example",
		Name:         "run",
		Descriptor:   descriptor,
		IsStatic:     true,
		Code:         &classfile.Code{MaxStack: 4, MaxLocals: 4},
		Constants:    cp,
		Instructions: instructions,
	}
}

func TestSimulate_SimpleVoidReturn(t *testing.T) {
	m := staticMethod("()V", []*opcodes.Instruction{
		{Opcode: opcodes.OpReturn, Offset: 0, Length: 1},
	}, nil)
	states, err := Simulate(m)
	require.NoError(t, err)
	require.Contains(t, states, 0)
	assert.Empty(t, states[0].Stack)
}

func TestSimulate_InstanceMethodSeedsThisAsRef(t *testing.T) {
	m := staticMethod("(I)V", []*opcodes.Instruction{
		{Opcode: opcodes.OpReturn, Offset: 0, Length: 1},
	}, nil)
	m.IsStatic = false
	states, err := Simulate(m)
	require.NoError(t, err)
	initial := states[0]
	assert.Equal(t, KindRef, initial.Locals[0])
	assert.Equal(t, KindI32, initial.Locals[1])
}

func TestSimulate_ArithmeticPushesCorrectKind(t *testing.T) {
	m := staticMethod("()V", []*opcodes.Instruction{
		{Opcode: opcodes.OpIconst0, Offset: 0, Length: 1},
		{Opcode: opcodes.OpIconst1, Offset: 1, Length: 1},
		{Opcode: opcodes.OpIadd, Offset: 2, Length: 1},
		{Opcode: opcodes.OpPop, Offset: 3, Length: 1},
		{Opcode: opcodes.OpReturn, Offset: 4, Length: 1},
	}, nil)
	_, err := Simulate(m)
	require.NoError(t, err)
}

func TestSimulate_StackUnderflowErrors(t *testing.T) {
	m := staticMethod("()V", []*opcodes.Instruction{
		{Opcode: opcodes.OpPop, Offset: 0, Length: 1},
		{Opcode: opcodes.OpReturn, Offset: 1, Length: 1},
	}, nil)
	_, err := Simulate(m)
	require.Error(t, err)
}

func TestSimulate_BranchVisitsBothTargets(t *testing.T) {
	m := staticMethod("()V", []*opcodes.Instruction{
		{Opcode: opcodes.OpIconst0, Offset: 0, Length: 1},
		{Opcode: opcodes.OpIfeq, Offset: 1, Length: 3, Targets: []int{5}},
		{Opcode: opcodes.OpIconst0, Offset: 4, Length: 1},
		{Opcode: opcodes.OpReturn, Offset: 5, Length: 1},
	}, nil)
	states, err := Simulate(m)
	require.NoError(t, err)
	assert.Contains(t, states, 4)
	assert.Contains(t, states, 5)
}

func TestSimulate_InvokestaticConsumesArgsAndPushesReturn(t *testing.T) {
	cp := classfile.NewConstantPool([]classfile.Constant{
		{},                                                            // 0 unused
		{Tag: classfile.TagUtf8, Utf8: "pkg/Helper"},                   // 1
		{Tag: classfile.TagClass, NameIndex: 1},                       // 2
		{Tag: classfile.TagUtf8, Utf8: "add"},                         // 3
		{Tag: classfile.TagUtf8, Utf8: "(II)I"},                       // 4
		{Tag: classfile.TagNameAndType, NameIndex: 3, DescriptorIndex: 4}, // 5
		{Tag: classfile.TagMethodref, ClassIndex: 2, NameAndTypeIndex: 5}, // 6
	})
	m := staticMethod("()V", []*opcodes.Instruction{
		{Opcode: opcodes.OpIconst1, Offset: 0, Length: 1},
		{Opcode: opcodes.OpIconst2, Offset: 1, Length: 1},
		{Opcode: opcodes.OpInvokestatic, Offset: 2, Length: 3, IntOperand: 6},
		{Opcode: opcodes.OpPop, Offset: 5, Length: 1},
		{Opcode: opcodes.OpReturn, Offset: 6, Length: 1},
	}, cp)
	_, err := Simulate(m)
	require.NoError(t, err)
}

func TestSimulate_MissingCodeErrors(t *testing.T) {
	m := &Method{ClassName: "pkg/Example", Name: "run"}
	_, err := Simulate(m)
	assert.Error(t, err)
}

func TestHotspotDetector_RecordCall(t *testing.T) {
	d := NewHotspotDetector(3)
	assert.False(t, d.RecordCall("pkg/Example.run"))
	assert.False(t, d.RecordCall("pkg/Example.run"))
	assert.True(t, d.RecordCall("pkg/Example.run"))
	// already hot, stays past threshold without re-reporting
	assert.False(t, d.RecordCall("pkg/Example.run"))
}
