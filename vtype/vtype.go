// Package vtype implements the JVM verification type lattice: the abstract
// values tracked on the operand stack and in the local-variable array during
// bytecode verification (JVMS 4.10.1.2).
package vtype

import "fmt"

// Kind distinguishes the variants of a verification Type.
type Kind byte

const (
	KindTop Kind = iota
	KindInteger
	KindFloat
	KindLong
	KindDouble
	KindNull
	KindObject
	KindUninitialized
	KindUninitializedThis
)

func (k Kind) String() string {
	switch k {
	case KindTop:
		return "top"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindNull:
		return "null"
	case KindObject:
		return "object"
	case KindUninitialized:
		return "uninitialized"
	case KindUninitializedThis:
		return "uninitializedThis"
	default:
		return "unknown"
	}
}

// Type is a single verification type. ClassName is populated only for
// KindObject; NewOffset only for KindUninitialized.
type Type struct {
	Kind      Kind
	ClassName string
	NewOffset int
}

var (
	Top               = Type{Kind: KindTop}
	Integer           = Type{Kind: KindInteger}
	Float             = Type{Kind: KindFloat}
	Long              = Type{Kind: KindLong}
	Double            = Type{Kind: KindDouble}
	Null              = Type{Kind: KindNull}
	UninitializedThis = Type{Kind: KindUninitializedThis}
)

// Object returns the verification type for a reference of the given binary
// class or array descriptor name (e.g. "java/lang/String" or "[I").
func Object(className string) Type {
	return Type{Kind: KindObject, ClassName: className}
}

// Uninitialized returns the verification type for an object allocated by the
// `new` at the given code offset and not yet passed to a constructor.
func Uninitialized(newOffset int) Type {
	return Type{Kind: KindUninitialized, NewOffset: newOffset}
}

// Equal reports whether two verification types are the same lattice point.
// Two Uninitialized values are equal only when their NewOffset matches.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindObject:
		return t.ClassName == other.ClassName
	case KindUninitialized:
		return t.NewOffset == other.NewOffset
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindObject:
		return fmt.Sprintf("Object(%s)", t.ClassName)
	case KindUninitialized:
		return fmt.Sprintf("Uninitialized(%d)", t.NewOffset)
	default:
		return t.Kind.String()
	}
}

// IsCategory2 reports whether t occupies two slots (Long/Double).
func IsCategory2(t Type) bool {
	return t.Kind == KindLong || t.Kind == KindDouble
}

// IsReference reports whether t is a reference-kind type: Null, Object, or
// one of the two uninitialized-object variants.
func IsReference(t Type) bool {
	switch t.Kind {
	case KindNull, KindObject, KindUninitialized, KindUninitializedThis:
		return true
	default:
		return false
	}
}

// Context is the classloader oracle the lattice consults for subtype facts.
// classloader.Context satisfies this; it is redeclared here (rather than
// imported) so vtype has no dependency on the classloader package.
type Context interface {
	IsAssignable(targetName, sourceName string) (bool, error)
	CommonSuperclass(a, b string) (string, error)
}

// Assignable reports whether source can be used wherever target is expected
// (source ⊑ target, JVMS 4.10.1.1).
func Assignable(source, target Type, ctx Context) (bool, error) {
	if source.Equal(target) {
		return true, nil
	}
	if target.Kind == KindTop {
		return true, nil
	}
	if source.Kind == KindNull && target.Kind == KindObject {
		return true, nil
	}
	if source.Kind == KindObject && target.Kind == KindObject {
		if ctx == nil {
			return false, fmt.Errorf("vtype: assignability of %s to %s requires a classloader context", source, target)
		}
		return ctx.IsAssignable(target.ClassName, source.ClassName)
	}
	// Uninitialized(x) is only assignable to Uninitialized(x); already
	// covered by the Equal check above. Every other combination, including
	// primitive mismatches and uninitialized-vs-initialized, is rejected.
	return false, nil
}

// Join computes the least upper bound of a and b in the verification
// lattice (JVMS 4.10.1.4).
func Join(a, b Type, ctx Context) (Type, error) {
	if a.Equal(b) {
		return a, nil
	}
	if a.Kind == KindNull && IsReference(b) {
		return b, nil
	}
	if b.Kind == KindNull && IsReference(a) {
		return a, nil
	}
	if a.Kind == KindObject && b.Kind == KindObject {
		if ctx == nil {
			return Object("java/lang/Object"), nil
		}
		name, err := ctx.CommonSuperclass(a.ClassName, b.ClassName)
		if err != nil {
			return Type{}, err
		}
		if name == "" {
			name = "java/lang/Object"
		}
		return Object(name), nil
	}
	return Top, nil
}
