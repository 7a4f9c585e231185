package memberresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/classloader"
)

type stubLoader struct {
	classes map[string]classloader.ClassInfo
}

func (l *stubLoader) Load(name string) (classloader.ClassInfo, error) {
	info, ok := l.classes[name]
	if !ok {
		return classloader.ClassInfo{}, classloader.ErrClassNotFound
	}
	return info, nil
}

type stubModel struct {
	methods  map[string][]ResolvedMethod
	fields   map[string][]ResolvedField
	packages map[string]string
}

func (m *stubModel) Methods(className string) ([]ResolvedMethod, error) {
	return m.methods[className], nil
}

func (m *stubModel) Fields(className string) ([]ResolvedField, error) {
	return m.fields[className], nil
}

func (m *stubModel) PackageOf(className string) string {
	return m.packages[className]
}

func newIntegerResolver() *Resolver {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"java/lang/Integer": {Name: "java/lang/Integer", SuperName: "java/lang/Object"},
		"java/lang/Object":  {Name: "java/lang/Object"},
	}}
	model := &stubModel{
		fields: map[string][]ResolvedField{
			"java/lang/Integer": {
				{Name: "MAX_VALUE", Descriptor: "I", Access: classfile.FieldAccPublic | classfile.FieldAccStatic | classfile.FieldAccFinal},
			},
		},
		packages: map[string]string{
			"java/lang/Integer": "java/lang",
		},
	}
	return &Resolver{Classes: classloader.New(loader), Model: model}
}

func TestResolve_StaticFieldPublic(t *testing.T) {
	r := newIntegerResolver()
	member := MemberName{
		ClassName:  "java/lang/Integer",
		Name:       "MAX_VALUE",
		Descriptor: "I",
		Flags:      IsField.WithReferenceKind(RefGetStatic),
	}
	lookup := Lookup{CallerClass: "pkg/Caller", Modes: LookupPublic}

	resolved, err := r.Resolve(member, lookup)
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Integer", resolved.ClassName)
	assert.NotZero(t, resolved.VMIndex)
	assert.True(t, resolved.Flags.Has(ModifierStatic), "static modifier should be propagated into Flags")
	assert.NotZero(t, resolved.VMIndex&staticFieldVMIndexBit, "resolved static field's VMIndex should carry the static high-bit mark")
}

func TestResolve_InstanceFieldHasNoStaticMark(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Holder": {Name: "pkg/Holder", SuperName: "java/lang/Object"},
	}}
	model := &stubModel{
		fields: map[string][]ResolvedField{
			"pkg/Holder": {
				{Name: "value", Descriptor: "I", Access: classfile.FieldAccPublic},
			},
		},
		packages: map[string]string{"pkg/Holder": "pkg"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "pkg/Holder",
		Name:       "value",
		Descriptor: "I",
		Flags:      IsField.WithReferenceKind(RefGetField),
	}
	resolved, err := r.Resolve(member, Lookup{CallerClass: "pkg/Holder", Modes: LookupPublic})
	require.NoError(t, err)
	assert.False(t, resolved.Flags.Has(ModifierStatic))
	assert.Zero(t, resolved.VMIndex&staticFieldVMIndexBit)
}

func TestResolve_StaticMethodPropagatesModifier(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Holder": {Name: "pkg/Holder", SuperName: "java/lang/Object"},
	}}
	model := &stubModel{
		methods: map[string][]ResolvedMethod{
			"pkg/Holder": {
				{Name: "create", Descriptor: "()V", Access: classfile.AccPublic | classfile.AccStatic},
			},
		},
		packages: map[string]string{"pkg/Holder": "pkg"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "pkg/Holder",
		Name:       "create",
		Descriptor: "()V",
		Flags:      IsMethod.WithReferenceKind(RefInvokeStatic),
	}
	resolved, err := r.Resolve(member, Lookup{CallerClass: "pkg/Holder", Modes: LookupPublic})
	require.NoError(t, err)
	assert.True(t, resolved.Flags.Has(ModifierStatic))
}

func TestResolve_PrivateMethodWithoutTrustedIsDenied(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Holder": {Name: "pkg/Holder", SuperName: "java/lang/Object"},
	}}
	model := &stubModel{
		methods: map[string][]ResolvedMethod{
			"pkg/Holder": {
				{Name: "secret", Descriptor: "()V", Access: classfile.AccPrivate},
			},
		},
		packages: map[string]string{"pkg/Holder": "pkg", "pkg/Other": "pkg"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "pkg/Holder",
		Name:       "secret",
		Descriptor: "()V",
		Flags:      IsMethod.WithReferenceKind(RefInvokeSpecial),
	}
	lookup := Lookup{CallerClass: "pkg/Other", Modes: LookupPrivate}

	_, err := r.Resolve(member, lookup)
	require.Error(t, err)
	var accessErr *AccessError
	assert.ErrorAs(t, err, &accessErr)
}

func TestResolve_PrivateMethodSameClassAllowed(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Holder": {Name: "pkg/Holder", SuperName: "java/lang/Object"},
	}}
	model := &stubModel{
		methods: map[string][]ResolvedMethod{
			"pkg/Holder": {
				{Name: "secret", Descriptor: "()V", Access: classfile.AccPrivate},
			},
		},
		packages: map[string]string{"pkg/Holder": "pkg"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "pkg/Holder",
		Name:       "secret",
		Descriptor: "()V",
		Flags:      IsMethod.WithReferenceKind(RefInvokeSpecial),
	}
	lookup := Lookup{CallerClass: "pkg/Holder", Modes: LookupPrivate}

	resolved, err := r.Resolve(member, lookup)
	require.NoError(t, err)
	assert.Equal(t, "pkg/Holder", resolved.ClassName)
}

func TestResolve_PrivateMethodNestmateAllowed(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Outer": {Name: "pkg/Outer", SuperName: "java/lang/Object", NestMembers: []string{"pkg/Outer", "pkg/Outer$Inner"}},
		"pkg/Outer$Inner": {Name: "pkg/Outer$Inner", SuperName: "java/lang/Object", NestHost: "pkg/Outer"},
	}}
	model := &stubModel{
		methods: map[string][]ResolvedMethod{
			"pkg/Outer": {
				{Name: "secret", Descriptor: "()V", Access: classfile.AccPrivate},
			},
		},
		packages: map[string]string{"pkg/Outer": "pkg", "pkg/Outer$Inner": "pkg"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "pkg/Outer",
		Name:       "secret",
		Descriptor: "()V",
		Flags:      IsMethod.WithReferenceKind(RefInvokeSpecial),
	}
	lookup := Lookup{CallerClass: "pkg/Outer$Inner", Modes: LookupPrivate}

	resolved, err := r.Resolve(member, lookup)
	require.NoError(t, err)
	assert.Equal(t, "pkg/Outer", resolved.ClassName)
}

func TestResolve_HolderClassAcceptsAnyRequest(t *testing.T) {
	r := &Resolver{Classes: classloader.New(&stubLoader{classes: map[string]classloader.ClassInfo{}}), Model: &stubModel{}}
	member := MemberName{
		ClassName:  "java/lang/invoke/LambdaForm$Holder",
		Name:       "invoke",
		Descriptor: "()V",
		Flags:      IsMethod.WithReferenceKind(RefInvokeStatic),
	}
	resolved, err := r.Resolve(member, Lookup{CallerClass: "pkg/Caller"})
	require.NoError(t, err)
	assert.NotZero(t, resolved.VMIndex)
}

func TestResolve_LambdaRecoveryWalksInterfaces(t *testing.T) {
	// java/lang/Object itself declares no lambda$ method; the failed initial
	// resolution against it must trigger recoverLambdaOrInterfaceMethod,
	// which forces on the Interfaces/Superclasses search flags and finds the
	// method on the functional interface Object's ClassInfo links to.
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"java/lang/Object": {Name: "java/lang/Object", Interfaces: []string{"pkg/Functional"}},
		"pkg/Functional":   {Name: "pkg/Functional", IsInterface: true},
	}}
	model := &stubModel{
		methods: map[string][]ResolvedMethod{
			"pkg/Functional": {
				{Name: "lambda$run$0", Descriptor: "()V", Access: classfile.AccPublic},
			},
		},
		packages: map[string]string{"pkg/Functional": "pkg", "java/lang/Object": "java/lang"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "java/lang/Object",
		Name:       "lambda$run$0",
		Descriptor: "()V",
		Flags:      IsMethod.WithReferenceKind(RefInvokeInterface),
	}
	lookup := Lookup{CallerClass: "pkg/Functional", Modes: LookupPublic}

	resolved, err := r.Resolve(member, lookup)
	require.NoError(t, err)
	assert.Equal(t, "pkg/Functional", resolved.ClassName)
}

func TestResolve_NoSuchFieldWalksSuperclasses(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Child":  {Name: "pkg/Child", SuperName: "pkg/Parent"},
		"pkg/Parent": {Name: "pkg/Parent", SuperName: "java/lang/Object"},
	}}
	model := &stubModel{
		fields: map[string][]ResolvedField{
			"pkg/Parent": {
				{Name: "value", Descriptor: "I", Access: classfile.FieldAccPublic},
			},
		},
		packages: map[string]string{"pkg/Child": "pkg", "pkg/Parent": "pkg"},
	}
	r := &Resolver{Classes: classloader.New(loader), Model: model}

	member := MemberName{
		ClassName:  "pkg/Child",
		Name:       "value",
		Descriptor: "I",
		Flags:      IsField.WithReferenceKind(RefGetField),
	}
	resolved, err := r.Resolve(member, Lookup{CallerClass: "pkg/Child", Modes: LookupPublic})
	require.NoError(t, err)
	assert.Equal(t, "pkg/Parent", resolved.ClassName)
}

func TestResolve_NoSuchFieldError(t *testing.T) {
	loader := &stubLoader{classes: map[string]classloader.ClassInfo{
		"pkg/Empty": {Name: "pkg/Empty", SuperName: "java/lang/Object"},
	}}
	r := &Resolver{Classes: classloader.New(loader), Model: &stubModel{}}

	member := MemberName{
		ClassName:  "pkg/Empty",
		Name:       "missing",
		Descriptor: "I",
		Flags:      IsField.WithReferenceKind(RefGetField),
	}
	_, err := r.Resolve(member, Lookup{Modes: LookupTrusted})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuchField)
}

func TestReferenceKind_RoundTripsThroughFlags(t *testing.T) {
	flags := IsMethod.WithReferenceKind(RefInvokeSpecial)
	assert.Equal(t, RefInvokeSpecial, flags.ReferenceKind())
	assert.True(t, flags.Has(IsMethod))
}

func TestResolve_UnrecognizedReferenceKindIsLinkageError(t *testing.T) {
	r := &Resolver{Classes: classloader.New(&stubLoader{classes: map[string]classloader.ClassInfo{}}), Model: &stubModel{}}
	member := MemberName{ClassName: "pkg/X", Name: "y", Descriptor: "I"}
	_, err := r.Resolve(member, Lookup{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLinkageError)
}
