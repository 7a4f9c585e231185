package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() *ConstantPool {
	return NewConstantPool([]Constant{
		{},                                                  // 0 unused
		{Tag: TagUtf8, Utf8: "pkg/Example"},                  // 1
		{Tag: TagClass, NameIndex: 1},                        // 2
		{Tag: TagUtf8, Utf8: "value"},                        // 3
		{Tag: TagUtf8, Utf8: "I"},                            // 4
		{Tag: TagNameAndType, NameIndex: 3, DescriptorIndex: 4}, // 5
		{Tag: TagFieldref, ClassIndex: 2, NameAndTypeIndex: 5},  // 6
		{Tag: TagMethodref, ClassIndex: 2, NameAndTypeIndex: 5}, // 7
		{Tag: TagInteger, Int32: 42},                         // 8
	})
}

func TestConstantPool_TryGetClass(t *testing.T) {
	cp := testPool()
	name, err := cp.TryGetClass(2)
	require.NoError(t, err)
	assert.Equal(t, "pkg/Example", name)
}

func TestConstantPool_TryGetClass_WrongTag(t *testing.T) {
	cp := testPool()
	_, err := cp.TryGetClass(1)
	assert.Error(t, err)
}

func TestConstantPool_TryGet_OutOfRange(t *testing.T) {
	cp := testPool()
	_, err := cp.TryGet(99)
	require.Error(t, err)
	var invalid *ErrInvalidIndex
	assert.ErrorAs(t, err, &invalid)
}

func TestConstantPool_TryGet_ZeroIndexInvalid(t *testing.T) {
	cp := testPool()
	_, err := cp.TryGet(0)
	assert.Error(t, err)
}

func TestConstantPool_ResolveFieldRef(t *testing.T) {
	cp := testPool()
	ref, err := cp.ResolveFieldRef(6)
	require.NoError(t, err)
	assert.Equal(t, "pkg/Example", ref.ClassName)
	assert.Equal(t, "value", ref.Name)
	assert.Equal(t, "I", ref.Descriptor)
}

func TestConstantPool_ResolveMethodRef(t *testing.T) {
	cp := testPool()
	ref, err := cp.ResolveMethodRef(7)
	require.NoError(t, err)
	assert.Equal(t, "pkg/Example", ref.ClassName)
	assert.Equal(t, "value", ref.Name)
}

func TestExceptionTableEntry_Contains(t *testing.T) {
	e := ExceptionTableEntry{StartPC: 2, EndPC: 5}
	assert.False(t, e.Contains(1))
	assert.True(t, e.Contains(2))
	assert.True(t, e.Contains(4))
	assert.False(t, e.Contains(5))
}

func TestStackMapFrame_ChopCount(t *testing.T) {
	f := StackMapFrame{Kind: FrameChop, FrameType: 249}
	assert.Equal(t, 2, f.ChopCount())
}
