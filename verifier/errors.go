package verifier

import (
	"errors"
	"fmt"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/opcodes"
)

// Sentinel kinds, grouped by category in the style of vm/errors.go.
var (
	// Structural errors: the class file itself is malformed. These are
	// reported as *ClassFormatError, not *VerifyError.
	ErrMissingCode     = errors.New("method has no Code attribute")
	ErrBadConstantPool = errors.New("invalid constant pool reference")
	ErrBadDescriptor   = errors.New("malformed field or method descriptor")

	// These remain VerifyError kinds: a goto/stack-map offset out of range
	// and a fallthrough past the end of code are well-formed-bytecode
	// verification failures, not class-format defects.
	ErrBadStackMapIndex = errors.New("StackMapTable entry targets an invalid offset")
	ErrFallOffEnd       = errors.New("control falls off the end of the code array")
	ErrUnknownOpcode    = errors.New("unknown opcode")

	// Verification errors: the bytecode is structurally sound but unsafe.
	ErrTypeMismatch        = errors.New("operand type mismatch")
	ErrStackDepthMismatch  = errors.New("merged frames disagree on stack depth")
	ErrLocalsCountMismatch = errors.New("merged frames disagree on locals count")
	ErrUninitializedThis   = errors.New("uninitialized this escapes constructor")
	ErrUninitializedObject = errors.New("use of uninitialized object reference")

	// Access errors: a referenced member cannot legally be reached.
	ErrIllegalAccess = errors.New("illegal access to field or method")
	ErrNoSuchMember  = errors.New("no such field or method")
)

// VerifyError decorates a sentinel with the code offset, opcode, and method
// context it was raised at, in the style of vm/errors.go's VMError.
type VerifyError struct {
	Kind       error
	Message    string
	ClassName  string
	MethodName string
	Offset     int
	Opcode     opcodes.Opcode
}

func (e *VerifyError) Error() string {
	loc := fmt.Sprintf("%s.%s", e.ClassName, e.MethodName)
	if e.Offset >= 0 {
		loc = fmt.Sprintf("%s@%d", loc, e.Offset)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Kind)
}

func (e *VerifyError) Unwrap() error { return e.Kind }

func (e *VerifyError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// newError builds a VerifyError with no offset/opcode context; Decorate
// fills those in once the driver knows where the failure occurred.
func newError(kind error, format string, args ...any) *VerifyError {
	return &VerifyError{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: -1}
}

// Decorate stamps class/method/offset/opcode context onto err without
// discarding its kind, mirroring vm/errors.go's DecorateError helper. A
// *ClassFormatError passes through unchanged: class-format defects have no
// bytecode-offset context to add. A raw constant-pool accessor error
// (*classfile.ErrInvalidIndex) is promoted to a *ClassFormatError, since an
// unresolvable constant-pool index is a malformed-input defect (spec §7),
// not a verification failure. Anything else is wrapped as a *VerifyError,
// falling back to the err itself as Kind if it isn't already one.
func Decorate(err error, className, methodName string, offset int, op opcodes.Opcode) error {
	if err == nil {
		return nil
	}
	var cfe *ClassFormatError
	if errors.As(err, &cfe) {
		return cfe
	}
	var invalidIndex *classfile.ErrInvalidIndex
	if errors.As(err, &invalidIndex) {
		return NewClassFormatError(ErrBadConstantPool, "%s.%s@%d: %v", className, methodName, offset, err)
	}
	var ve *VerifyError
	if errors.As(err, &ve) {
		ve.ClassName = className
		ve.MethodName = methodName
		ve.Offset = offset
		ve.Opcode = op
		return ve
	}
	return &VerifyError{
		Kind:       err,
		ClassName:  className,
		MethodName: methodName,
		Offset:     offset,
		Opcode:     op,
	}
}

// ClassFormatError reports a structurally malformed class file, distinct
// from a verification failure.
type ClassFormatError struct {
	Kind    error
	Message string
}

func (e *ClassFormatError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("class format error: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("class format error: %s", e.Kind)
}

func (e *ClassFormatError) Unwrap() error { return e.Kind }

func NewClassFormatError(kind error, format string, args ...any) *ClassFormatError {
	return &ClassFormatError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IllegalAccessError reports a member-resolution access-check failure.
type IllegalAccessError struct {
	Accessor string
	Target   string
	Reason   string
}

func (e *IllegalAccessError) Error() string {
	return fmt.Sprintf("class %q may not access %q: %s", e.Accessor, e.Target, e.Reason)
}

func (e *IllegalAccessError) Is(target error) bool {
	return target == ErrIllegalAccess
}
