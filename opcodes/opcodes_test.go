package opcodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpcode_String(t *testing.T) {
	assert.Equal(t, "return", OpReturn.String())
	assert.Equal(t, "iadd", OpIadd.String())
}

func TestOpcode_String_Unknown(t *testing.T) {
	assert.Equal(t, "unknown(0xff)", Opcode(0xff).String())
}

func TestByName(t *testing.T) {
	op, ok := ByName("return")
	assert.True(t, ok)
	assert.Equal(t, OpReturn, op)

	_, ok = ByName("not_a_real_mnemonic")
	assert.False(t, ok)
}

func TestByName_IsInverseOfString(t *testing.T) {
	for _, op := range []Opcode{OpNop, OpIadd, OpReturn, OpInvokestatic, OpGotoW} {
		name := op.String()
		got, ok := ByName(name)
		assert.True(t, ok, "mnemonic %q should resolve back to an opcode", name)
		assert.Equal(t, op, got)
	}
}

func TestInstruction_NextOffset(t *testing.T) {
	in := &Instruction{Offset: 10, Length: 3}
	assert.Equal(t, 13, in.NextOffset())
}
