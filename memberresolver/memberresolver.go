// Package memberresolver implements java.lang.invoke.MethodHandleNatives'
// resolve operation: turning a (class, name, type, flags) MemberName into a
// concrete field, method, or constructor with JLS 6.6 access checks and
// nestmate handling applied. Grounded on
// ristretto_intrinsics/src/java/lang/invoke/methodhandlenatives.rs, re-expressed
// against this module's classfile/classloader types instead of ristretto's
// runtime object model, and on runtime/reflection.go's name-based lookup
// style and registry/types.go's visibility model for the surrounding Go
// idiom.
package memberresolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/classloader"
)

// MemberNameFlags mirrors java.lang.invoke.MethodHandleNatives.Constants'
// bit layout: low bits classify the member kind, bits 24-27 pack a
// 4-bit reference kind (one of the nine REF_ constants below).
type MemberNameFlags uint32

const (
	IsMethod        MemberNameFlags = 0x00010000
	IsConstructor   MemberNameFlags = 0x00020000
	IsField         MemberNameFlags = 0x00040000
	IsType          MemberNameFlags = 0x00080000
	CallerSensitive MemberNameFlags = 0x00100000
	TrustedFinal    MemberNameFlags = 0x00200000
	ModifierStatic  MemberNameFlags = 0x00400000 // declaring member's ACC_STATIC, merged in on resolve
	Superclasses    MemberNameFlags = 0x00000004 // searchSupers: walk superclasses
	Interfaces      MemberNameFlags = 0x00000008 // searchSupers: walk superinterfaces

	referenceKindShift = 24
	referenceKindMask  MemberNameFlags = 0x0f000000

	// staticFieldVMIndexBit marks a resolved static field's VMIndex so
	// callers can distinguish a static field offset from an instance
	// field offset without re-consulting the ClassModel.
	staticFieldVMIndexBit = 1 << 30
)

func (f MemberNameFlags) Has(bit MemberNameFlags) bool { return f&bit != 0 }

// ReferenceKind returns the 4-bit reference-kind packed at bit 24.
func (f MemberNameFlags) ReferenceKind() ReferenceKind {
	return ReferenceKind((f & referenceKindMask) >> referenceKindShift)
}

// WithReferenceKind returns f with its reference-kind bits replaced by rk.
func (f MemberNameFlags) WithReferenceKind(rk ReferenceKind) MemberNameFlags {
	return (f &^ referenceKindMask) | (MemberNameFlags(rk) << referenceKindShift)
}

// ReferenceKind is the method-handle "kind" operand (JVMS 5.4.3.5), one of
// the nine REF_ constants.
type ReferenceKind byte

const (
	RefGetField ReferenceKind = iota + 1
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

// category describes what member kind and access-check shape a reference
// kind implies (supplemented beyond the bare 3-bit field per SPEC_FULL.md).
type category struct {
	field, method, ctor bool
	isStatic            bool
}

var referenceKindCategories = map[ReferenceKind]category{
	RefGetField:         {field: true},
	RefGetStatic:        {field: true, isStatic: true},
	RefPutField:         {field: true},
	RefPutStatic:        {field: true, isStatic: true},
	RefInvokeVirtual:    {method: true},
	RefInvokeStatic:     {method: true, isStatic: true},
	RefInvokeSpecial:    {method: true},
	RefNewInvokeSpecial: {ctor: true},
	RefInvokeInterface:  {method: true},
}

// LookupModeFlags mirrors MethodHandles.Lookup's mode bits, controlling
// which access checks a resolve call is permitted to pass.
type LookupModeFlags uint32

const (
	LookupPublic       LookupModeFlags = 0x01
	LookupPrivate      LookupModeFlags = 0x02
	LookupProtected    LookupModeFlags = 0x04
	LookupPackage      LookupModeFlags = 0x08
	LookupModule       LookupModeFlags = 0x10
	LookupUnconditional LookupModeFlags = 0x20
	LookupOriginal     LookupModeFlags = 0x40
	LookupTrusted      LookupModeFlags = ^LookupModeFlags(0) // all bits set
)

// MemberName is the (class, name, type, flags) tuple resolve() fills in.
type MemberName struct {
	ClassName  string
	Name       string
	Descriptor string // field type descriptor, or method descriptor
	Flags      MemberNameFlags

	// VMIndex is written back on success: a vtable/itable slot for a
	// virtual/interface method, or a field offset, opaque to callers
	// beyond "nonzero means resolved" (JVMS gives no fixed meaning here;
	// this module derives it from a hash of class, name and descriptor, see
	// stableIndex, so repeated resolutions of the same member are stable and
	// comparable; static fields additionally carry staticFieldVMIndexBit).
	VMIndex int
}

// Lookup is the caller's access context: the class whose Lookup object is
// performing the resolve, and the modes that Lookup object carries.
type Lookup struct {
	CallerClass string
	Modes       LookupModeFlags
}

// ClassModel is what the resolver needs to read off a loaded class: its
// declared methods/fields plus the access-check facts the classloader
// doesn't track (visibility, per-member flags).
type ClassModel interface {
	Methods(className string) ([]ResolvedMethod, error)
	Fields(className string) ([]ResolvedField, error)
	PackageOf(className string) string
}

// ResolvedMethod is one method_info as the resolver needs it.
type ResolvedMethod struct {
	Name       string
	Descriptor string
	Access     classfile.MethodAccessFlags
	IsCtor     bool
}

// ResolvedField is one field_info as the resolver needs it.
type ResolvedField struct {
	Name       string
	Descriptor string
	Access     classfile.FieldAccessFlags
}

// holderClasses are synthetic classes generated at link time by the JVM
// rather than loaded from a class file; methodhandlenatives.rs special-
// cases their resolution instead of treating a lookup miss as
// NoSuchMethodError, and the resolver here does the same.
var holderClasses = map[string]bool{
	"java/lang/invoke/DirectMethodHandle$Holder":     true,
	"java/lang/invoke/DelegatingMethodHandle$Holder": true,
	"java/lang/invoke/Invokers$Holder":               true,
	"java/lang/invoke/VarHandleGuards":               true,
	"java/lang/invoke/LambdaForm$Holder":             true,
}

var (
	ErrNoSuchMethod     = errors.New("no such method")
	ErrNoSuchField      = errors.New("no such field")
	ErrLinkageError     = errors.New("method handle linkage error")
)

// Resolver resolves MemberNames against a classloader.Context and a
// ClassModel, writing a nonzero VMIndex into the member on success.
type Resolver struct {
	Classes *classloader.Context
	Model   ClassModel
}

// Resolve implements MethodHandleNatives.resolve. On success it returns the
// (possibly updated) MemberName with VMIndex set; the returned member's
// ClassName is rewritten to the class that actually declares the member
// when resolution walked up the hierarchy.
func (r *Resolver) Resolve(member MemberName, lookup Lookup) (MemberName, error) {
	cat, ok := referenceKindCategories[member.Flags.ReferenceKind()]
	if !ok {
		return MemberName{}, fmt.Errorf("%w: unrecognized reference kind %d", ErrLinkageError, member.Flags.ReferenceKind())
	}

	if holderClasses[member.ClassName] {
		return r.resolveHolder(member, cat)
	}

	switch {
	case cat.field:
		return r.resolveField(member, lookup)
	case cat.method || cat.ctor:
		resolved, err := r.resolveMethod(member, lookup, cat)
		if err != nil && looksLikeLambdaOrInterfaceDispatch(member) {
			if recovered, rerr := r.recoverLambdaOrInterfaceMethod(member, lookup); rerr == nil {
				return recovered, nil
			}
		}
		return resolved, err
	default:
		return MemberName{}, fmt.Errorf("%w: flags %x name neither field nor method", ErrLinkageError, member.Flags)
	}
}

// resolveHolder accepts any well-formed request against a known holder
// class without walking a real method table: holder methods are generated
// by LambdaForm compilation, not loaded from a class file, so there is
// nothing for ClassModel to enumerate.
func (r *Resolver) resolveHolder(member MemberName, cat category) (MemberName, error) {
	member.VMIndex = stableIndex(member.ClassName, member.Name, member.Descriptor)
	return member, nil
}

// looksLikeLambdaOrInterfaceDispatch reports whether a failed resolution is
// worth retrying against the actual functional-interface type: the
// declaring class resolved to java/lang/Object but the name is a
// synthetic lambda dispatch name, or the member is flagged as an
// interface method.
func looksLikeLambdaOrInterfaceDispatch(member MemberName) bool {
	if member.ClassName != "java/lang/Object" {
		return false
	}
	return strings.HasPrefix(member.Name, "lambda$") || member.Flags.Has(Interfaces)
}

// recoverLambdaOrInterfaceMethod retries resolution by reinterpreting the
// member's descriptor as a functional-interface method lookup; a precise
// implementation would consult the invokedynamic call site's declared
// interface type, which is threaded through by the caller as
// member.ClassName already updated to that interface before this is
// reached in practice — here it simply re-resolves once more with the
// Interfaces search flag forced on.
func (r *Resolver) recoverLambdaOrInterfaceMethod(member MemberName, lookup Lookup) (MemberName, error) {
	retry := member
	retry.Flags |= Interfaces | Superclasses
	return r.resolveMethod(retry, lookup, referenceKindCategories[member.Flags.ReferenceKind()])
}

func (r *Resolver) resolveField(member MemberName, lookup Lookup) (MemberName, error) {
	className := member.ClassName
	for {
		fields, err := r.Model.Fields(className)
		if err != nil {
			return MemberName{}, err
		}
		for _, f := range fields {
			if f.Name != member.Name || f.Descriptor != member.Descriptor {
				continue
			}
			if err := r.checkFieldAccess(className, f, lookup); err != nil {
				return MemberName{}, err
			}
			member.ClassName = className
			member.VMIndex = stableIndex(className, f.Name, f.Descriptor)
			if f.Access.Has(classfile.FieldAccStatic) {
				member.Flags |= ModifierStatic
				member.VMIndex |= staticFieldVMIndexBit
			}
			return member, nil
		}
		info, err := r.classloaderGet(className)
		if err != nil || info.SuperName == "" {
			return MemberName{}, fmt.Errorf("%w: %s.%s", ErrNoSuchField, member.ClassName, member.Name)
		}
		className = info.SuperName
	}
}

func (r *Resolver) resolveMethod(member MemberName, lookup Lookup, cat category) (MemberName, error) {
	searchSupers := member.Flags.Has(Superclasses) || member.Flags.Has(Interfaces)
	className := member.ClassName
	visited := map[string]bool{}
	for className != "" && !visited[className] {
		visited[className] = true
		methods, err := r.Model.Methods(className)
		if err != nil {
			return MemberName{}, err
		}
		for _, m := range methods {
			if m.Name != member.Name || m.Descriptor != member.Descriptor {
				continue
			}
			if cat.ctor != m.IsCtor {
				continue
			}
			if err := r.checkMethodAccess(className, m, lookup); err != nil {
				return MemberName{}, err
			}
			member.ClassName = className
			member.VMIndex = stableIndex(className, m.Name, m.Descriptor)
			if m.Access.Has(classfile.AccStatic) {
				member.Flags |= ModifierStatic
			}
			return member, nil
		}
		if !searchSupers {
			break
		}
		info, err := r.classloaderGet(className)
		if err != nil {
			break
		}
		next := info.SuperName
		if next == "" && len(info.Interfaces) > 0 {
			next = info.Interfaces[0]
		}
		className = next
	}
	return MemberName{}, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, member.ClassName, member.Name, member.Descriptor)
}

func (r *Resolver) classloaderGet(className string) (classloader.ClassInfo, error) {
	return r.Classes.SuperOf(className)
}

// checkMethodAccess applies the JLS 6.6 four-way visibility dispatch:
// public is always visible, private requires the caller be the same class
// or a nestmate, protected requires same package or a caller that is a
// subclass, package-private requires the same package. Order and grouping
// follow methodhandlenatives.rs's check_method_access.
func (r *Resolver) checkMethodAccess(declaringClass string, m ResolvedMethod, lookup Lookup) error {
	if lookup.Modes == LookupTrusted {
		return nil
	}
	switch {
	case m.Access.Has(classfile.AccPublic):
		if lookup.Modes&LookupPublic == 0 {
			return accessDenied(lookup.CallerClass, declaringClass, m.Name, "caller's Lookup lacks PUBLIC mode")
		}
		return nil
	case m.Access.Has(classfile.AccPrivate):
		if lookup.Modes&LookupPrivate == 0 {
			return accessDenied(lookup.CallerClass, declaringClass, m.Name, "caller's Lookup lacks PRIVATE mode")
		}
		if lookup.CallerClass == declaringClass {
			return nil
		}
		nestmates, err := r.Classes.AreNestmates(lookup.CallerClass, declaringClass)
		if err != nil || !nestmates {
			return accessDenied(lookup.CallerClass, declaringClass, m.Name, "private member, caller is not a nestmate")
		}
		return nil
	case m.Access.Has(classfile.AccProtected):
		if lookup.Modes&LookupProtected == 0 && lookup.Modes&LookupPackage == 0 {
			return accessDenied(lookup.CallerClass, declaringClass, m.Name, "caller's Lookup lacks PROTECTED/PACKAGE mode")
		}
		if r.Model.PackageOf(lookup.CallerClass) == r.Model.PackageOf(declaringClass) {
			return nil
		}
		if r.Classes.IsSubclass(declaringClass, lookup.CallerClass) {
			return nil
		}
		return accessDenied(lookup.CallerClass, declaringClass, m.Name, "protected member, caller is neither same-package nor a subclass")
	default: // package-private
		if lookup.Modes&LookupPackage == 0 {
			return accessDenied(lookup.CallerClass, declaringClass, m.Name, "caller's Lookup lacks PACKAGE mode")
		}
		if r.Model.PackageOf(lookup.CallerClass) != r.Model.PackageOf(declaringClass) {
			return accessDenied(lookup.CallerClass, declaringClass, m.Name, "package-private member, caller in a different package")
		}
		return nil
	}
}

func (r *Resolver) checkFieldAccess(declaringClass string, f ResolvedField, lookup Lookup) error {
	if lookup.Modes == LookupTrusted {
		return nil
	}
	switch {
	case f.Access.Has(classfile.FieldAccPublic):
		if lookup.Modes&LookupPublic == 0 {
			return accessDenied(lookup.CallerClass, declaringClass, f.Name, "caller's Lookup lacks PUBLIC mode")
		}
		return nil
	case f.Access.Has(classfile.FieldAccPrivate):
		if lookup.CallerClass == declaringClass {
			return nil
		}
		nestmates, err := r.Classes.AreNestmates(lookup.CallerClass, declaringClass)
		if err != nil || !nestmates {
			return accessDenied(lookup.CallerClass, declaringClass, f.Name, "private field, caller is not a nestmate")
		}
		return nil
	case f.Access.Has(classfile.FieldAccProtected):
		if r.Model.PackageOf(lookup.CallerClass) == r.Model.PackageOf(declaringClass) {
			return nil
		}
		if r.Classes.IsSubclass(declaringClass, lookup.CallerClass) {
			return nil
		}
		return accessDenied(lookup.CallerClass, declaringClass, f.Name, "protected field, caller is neither same-package nor a subclass")
	default:
		if r.Model.PackageOf(lookup.CallerClass) != r.Model.PackageOf(declaringClass) {
			return accessDenied(lookup.CallerClass, declaringClass, f.Name, "package-private field, caller in a different package")
		}
		return nil
	}
}

func accessDenied(caller, target, member, reason string) error {
	return &AccessError{Caller: caller, Target: target + "." + member, Reason: reason}
}

// AccessError reports a JLS 6.6 access-check failure.
type AccessError struct {
	Caller string
	Target string
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("class %q may not access %q: %s", e.Caller, e.Target, e.Reason)
}

// stableIndex derives a deterministic, nonzero placeholder VM index from a
// member's identity, standing in for the vtable/itable slot a real JVM
// assigns at link time. The result stays below staticFieldVMIndexBit so
// that bit only ever marks a static field.
func stableIndex(className, name, descriptor string) int {
	h := 2166136261
	for _, b := range []byte(className + "#" + name + "#" + descriptor) {
		h = (h ^ int(b)) * 16777619
	}
	h &= staticFieldVMIndexBit - 1
	if h == 0 {
		h = 1
	}
	return h
}
