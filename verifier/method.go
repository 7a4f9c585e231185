package verifier

import (
	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/opcodes"
	"github.com/wudi/hey/vtype"
)

// Method binds a classfile.Method to the decoded instruction stream and the
// owning class name the driver needs for UninitializedThis/<init> checks
// and error context. Decoding raw bytes into Instructions is the class-file
// front end's job (out of scope here, see classfile.Code).
type Method struct {
	ClassName  string
	Name       string
	Descriptor string
	Access     classfile.MethodAccessFlags
	Code       *classfile.Code
	Constants  *classfile.ConstantPool

	Instructions []*opcodes.Instruction
}

// IsStatic reports whether the method has ACC_STATIC set.
func (m *Method) IsStatic() bool { return m.Access.Has(classfile.AccStatic) }

// IsNative reports whether the method has ACC_NATIVE set (no Code attribute
// is possible, and expected, for native methods).
func (m *Method) IsNative() bool { return m.Access.Has(classfile.AccNative) }

// IsAbstract reports whether the method has ACC_ABSTRACT set.
func (m *Method) IsAbstract() bool { return m.Access.Has(classfile.AccAbstract) }

// IsConstructor reports whether this is an instance initializer.
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// instructionAt returns the instruction whose Offset equals offset, or nil.
func (m *Method) instructionAt(offset int) *opcodes.Instruction {
	// Instructions are offset-ordered; a linear scan is fine at method size,
	// and keeps this package free of an auxiliary offset index structure.
	for _, in := range m.Instructions {
		if in.Offset == offset {
			return in
		}
	}
	return nil
}

// ldcConstant describes what a ldc/ldc_w/ldc2_w constant-pool entry pushes.
func ldcConstant(cp *classfile.ConstantPool, index int) (vtype.Type, error) {
	c, err := cp.TryGet(index)
	if err != nil {
		return vtype.Type{}, err
	}
	switch c.Tag {
	case classfile.TagInteger:
		return vtype.Integer, nil
	case classfile.TagFloat:
		return vtype.Float, nil
	case classfile.TagLong:
		return vtype.Long, nil
	case classfile.TagDouble:
		return vtype.Double, nil
	case classfile.TagString:
		return vtype.Object("java/lang/String"), nil
	case classfile.TagClass:
		return vtype.Object("java/lang/Class"), nil
	default:
		return vtype.Type{}, NewClassFormatError(ErrBadConstantPool, "index %d is not loadable", index)
	}
}
