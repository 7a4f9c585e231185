// Package classfile is the typed external data model the verifier and
// member resolver consume: constant pool accessors, Method/Code records,
// and StackMapTable frame shapes. Binary parsing of a .class file into
// these types is an external collaborator (spec.md 1, 6) — out of scope.
package classfile

import "fmt"

// ConstantTag identifies the kind of a constant-pool entry (JVMS 4.4).
type ConstantTag byte

const (
	TagUtf8 ConstantTag = iota + 1
	TagInteger
	TagFloat
	TagLong
	TagDouble
	TagClass
	TagString
	TagFieldref
	TagMethodref
	TagInterfaceMethodref
	TagNameAndType
)

// Constant is one constant-pool entry.
type Constant struct {
	Tag ConstantTag

	Utf8    string
	Int32   int32
	Float32 float32
	Int64   int64
	Float64 float64

	// Class, String: index of the name/value UTF8 entry.
	NameIndex int

	// Fieldref/Methodref/InterfaceMethodref.
	ClassIndex       int
	NameAndTypeIndex int

	// NameAndType.
	DescriptorIndex int
}

// ConstantPool is the typed accessor set external interfaces require
// (spec.md 6). Index 0 is invalid, matching JVMS 1-based indexing.
type ConstantPool struct {
	entries []Constant // entries[0] unused
}

// NewConstantPool wraps a slice of entries already parsed by the class-file
// front end; entries[0] is a placeholder.
func NewConstantPool(entries []Constant) *ConstantPool {
	return &ConstantPool{entries: entries}
}

// ErrInvalidIndex is returned by every try_get accessor on an out-of-range
// or ill-typed index.
type ErrInvalidIndex struct {
	Index int
	Want  string
}

func (e *ErrInvalidIndex) Error() string {
	return fmt.Sprintf("constant pool index %d is not a valid %s", e.Index, e.Want)
}

func (cp *ConstantPool) get(index int) (Constant, error) {
	if index <= 0 || index >= len(cp.entries) {
		return Constant{}, &ErrInvalidIndex{Index: index, Want: "entry"}
	}
	return cp.entries[index], nil
}

// TryGet returns the raw entry at index.
func (cp *ConstantPool) TryGet(index int) (Constant, error) {
	return cp.get(index)
}

// TryGetUtf8 returns the UTF8 string at index.
func (cp *ConstantPool) TryGetUtf8(index int) (string, error) {
	c, err := cp.get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != TagUtf8 {
		return "", &ErrInvalidIndex{Index: index, Want: "Utf8"}
	}
	return c.Utf8, nil
}

// TryGetClass resolves a Class constant to its binary class name.
func (cp *ConstantPool) TryGetClass(index int) (string, error) {
	c, err := cp.get(index)
	if err != nil {
		return "", err
	}
	if c.Tag != TagClass {
		return "", &ErrInvalidIndex{Index: index, Want: "Class"}
	}
	return cp.TryGetUtf8(c.NameIndex)
}

// TryGetNameAndType returns the (name, descriptor) UTF8 indices of a
// NameAndType constant.
func (cp *ConstantPool) TryGetNameAndType(index int) (nameIndex, descriptorIndex int, err error) {
	c, err := cp.get(index)
	if err != nil {
		return 0, 0, err
	}
	if c.Tag != TagNameAndType {
		return 0, 0, &ErrInvalidIndex{Index: index, Want: "NameAndType"}
	}
	return c.NameIndex, c.DescriptorIndex, nil
}

// TryGetFieldRef returns the (class index, name-and-type index) of a
// Fieldref constant.
func (cp *ConstantPool) TryGetFieldRef(index int) (classIndex, nameAndTypeIndex int, err error) {
	c, err := cp.get(index)
	if err != nil {
		return 0, 0, err
	}
	if c.Tag != TagFieldref {
		return 0, 0, &ErrInvalidIndex{Index: index, Want: "Fieldref"}
	}
	return c.ClassIndex, c.NameAndTypeIndex, nil
}

// TryGetMethodRef returns the (class index, name-and-type index) of a
// Methodref constant.
func (cp *ConstantPool) TryGetMethodRef(index int) (classIndex, nameAndTypeIndex int, err error) {
	c, err := cp.get(index)
	if err != nil {
		return 0, 0, err
	}
	if c.Tag != TagMethodref {
		return 0, 0, &ErrInvalidIndex{Index: index, Want: "Methodref"}
	}
	return c.ClassIndex, c.NameAndTypeIndex, nil
}

// TryGetInterfaceMethodRef returns the (class index, name-and-type index) of
// an InterfaceMethodref constant.
func (cp *ConstantPool) TryGetInterfaceMethodRef(index int) (classIndex, nameAndTypeIndex int, err error) {
	c, err := cp.get(index)
	if err != nil {
		return 0, 0, err
	}
	if c.Tag != TagInterfaceMethodref {
		return 0, 0, &ErrInvalidIndex{Index: index, Want: "InterfaceMethodref"}
	}
	return c.ClassIndex, c.NameAndTypeIndex, nil
}

// MethodRef is the fully resolved (class, name, descriptor) triple a
// Methodref/InterfaceMethodref constant denotes.
type MethodRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

// ResolveMethodRef follows a Methodref or InterfaceMethodref index through
// to its class name, method name, and descriptor.
func (cp *ConstantPool) ResolveMethodRef(index int) (MethodRef, error) {
	classIndex, natIndex, err := cp.TryGetMethodRef(index)
	if err != nil {
		classIndex, natIndex, err = cp.TryGetInterfaceMethodRef(index)
		if err != nil {
			return MethodRef{}, err
		}
	}
	className, err := cp.TryGetClass(classIndex)
	if err != nil {
		return MethodRef{}, err
	}
	nameIndex, descIndex, err := cp.TryGetNameAndType(natIndex)
	if err != nil {
		return MethodRef{}, err
	}
	name, err := cp.TryGetUtf8(nameIndex)
	if err != nil {
		return MethodRef{}, err
	}
	descriptor, err := cp.TryGetUtf8(descIndex)
	if err != nil {
		return MethodRef{}, err
	}
	return MethodRef{ClassName: className, Name: name, Descriptor: descriptor}, nil
}

// ResolveFieldRef follows a Fieldref index through to its class name, field
// name, and type descriptor.
func (cp *ConstantPool) ResolveFieldRef(index int) (MethodRef, error) {
	classIndex, natIndex, err := cp.TryGetFieldRef(index)
	if err != nil {
		return MethodRef{}, err
	}
	className, err := cp.TryGetClass(classIndex)
	if err != nil {
		return MethodRef{}, err
	}
	nameIndex, descIndex, err := cp.TryGetNameAndType(natIndex)
	if err != nil {
		return MethodRef{}, err
	}
	name, err := cp.TryGetUtf8(nameIndex)
	if err != nil {
		return MethodRef{}, err
	}
	descriptor, err := cp.TryGetUtf8(descIndex)
	if err != nil {
		return MethodRef{}, err
	}
	return MethodRef{ClassName: className, Name: name, Descriptor: descriptor}, nil
}

// MethodAccessFlags mirrors JVMS 4.6's access_flags bitmask for methods.
type MethodAccessFlags uint16

const (
	AccPublic       MethodAccessFlags = 0x0001
	AccPrivate      MethodAccessFlags = 0x0002
	AccProtected    MethodAccessFlags = 0x0004
	AccStatic       MethodAccessFlags = 0x0008
	AccFinal        MethodAccessFlags = 0x0010
	AccSynchronized MethodAccessFlags = 0x0020
	AccBridge       MethodAccessFlags = 0x0040
	AccVarargs      MethodAccessFlags = 0x0080
	AccNative       MethodAccessFlags = 0x0100
	AccAbstract     MethodAccessFlags = 0x0400
	AccStrict       MethodAccessFlags = 0x0800
	AccSynthetic    MethodAccessFlags = 0x1000
)

func (f MethodAccessFlags) Has(bit MethodAccessFlags) bool { return f&bit != 0 }

// FieldAccessFlags mirrors JVMS 4.5's access_flags bitmask for fields.
type FieldAccessFlags uint16

const (
	FieldAccPublic    FieldAccessFlags = 0x0001
	FieldAccPrivate   FieldAccessFlags = 0x0002
	FieldAccProtected FieldAccessFlags = 0x0004
	FieldAccStatic    FieldAccessFlags = 0x0008
	FieldAccFinal     FieldAccessFlags = 0x0010
)

func (f FieldAccessFlags) Has(bit FieldAccessFlags) bool { return f&bit != 0 }

// ExceptionTableEntry is one protected-region/handler pair (JVMS 4.7.3).
type ExceptionTableEntry struct {
	StartPC   int // inclusive
	EndPC     int // exclusive
	HandlerPC int
	CatchType int // constant-pool Class index, or 0 for a catch-all (finally)
}

// Contains reports whether offset lies inside [StartPC, EndPC).
func (e ExceptionTableEntry) Contains(offset int) bool {
	return offset >= e.StartPC && offset < e.EndPC
}

// StackMapFrameKind distinguishes the seven JVMS-defined StackMapTable
// frame shapes (JVMS 4.7.4).
type StackMapFrameKind byte

const (
	FrameSame StackMapFrameKind = iota
	FrameSameLocals1StackItem
	FrameSameLocals1StackItemExtended
	FrameChop
	FrameSameExtended
	FrameAppend
	FrameFull
)

// RawVerificationType is the StackMapTable wire encoding of a verification
// type (JVMS 4.7.4), distinct from vtype.Type because it additionally
// carries the Uninitialized variant's offset only, with no class name
// until resolved against the constant pool by the caller (classes are
// represented here as a constant-pool Class index).
type RawVerificationType struct {
	Kind          RawVerificationKind
	ClassIndex    int // for Kind == RawObject
	NewInstOffset int // for Kind == RawUninitialized
}

type RawVerificationKind byte

const (
	RawTop RawVerificationKind = iota
	RawInteger
	RawFloat
	RawDouble
	RawLong
	RawNull
	RawUninitializedThis
	RawObject
	RawUninitialized
)

// StackMapFrame is one entry of a StackMapTable attribute.
type StackMapFrame struct {
	Kind Kind

	// FrameType is the raw first byte (or synthesized chop/offset_delta
	// encoding), used to recover same/chop magnitude per JVMS 4.7.4.
	FrameType byte

	OffsetDelta int

	// Locals: for FrameAppend, the 1-3 appended locals; for FrameFull, the
	// complete locals vector.
	Locals []RawVerificationType

	// Stack: for FrameSameLocals1StackItem(Extended), the single stack
	// item; for FrameFull, the complete stack.
	Stack []RawVerificationType
}

// Kind is an alias kept for readability at call sites (StackMapFrame.Kind).
type Kind = StackMapFrameKind

// ChopCount returns the number of locals a chop frame removes, per JVMS
// 4.7.4's `251 - frame_type` rule.
func (f StackMapFrame) ChopCount() int {
	return 251 - int(f.FrameType)
}

// Attribute is the subset of class-file attributes the verifier reads off
// a Method's Code attribute.
type Attribute struct {
	Name          string
	StackMapTable []StackMapFrame
}

// Code is the JVMS 4.7.3 Code attribute.
type Code struct {
	MaxStack       int
	MaxLocals      int
	Instructions   []InstructionRef
	ExceptionTable []ExceptionTableEntry
	Attributes     []Attribute
}

// InstructionRef defers to the opcodes package's Instruction type via an
// interface seam so classfile has no import cycle with opcodes; verifier
// binds the two together. Kept as `interface{}` at this layer intentionally
// — see verifier.Method for the concrete binding.
type InstructionRef = any

// StackMapTable searches Code.Attributes for the StackMapTable attribute,
// returning nil if absent.
func (c *Code) StackMapTable() []StackMapFrame {
	for _, a := range c.Attributes {
		if a.Name == "StackMapTable" {
			return a.StackMapTable
		}
	}
	return nil
}

// Method is the JVMS 4.6 method_info record, reduced to what the verifier
// and member resolver need.
type Method struct {
	AccessFlags     MethodAccessFlags
	NameIndex       int
	DescriptorIndex int
	Code            *Code // nil for native/abstract methods
}

// NestHost, when non-empty, names the class this class's NestHost
// attribute points to (JVMS 4.7.28); an empty string means the class is
// its own nest host.
type ClassFile struct {
	ThisClassIndex int
	ConstantPool   *ConstantPool
	NestHost       string
	NestMembers    []string
}

func (cf *ClassFile) ThisClassName() (string, error) {
	return cf.ConstantPool.TryGetClass(cf.ThisClassIndex)
}
