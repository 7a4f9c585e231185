package vtype

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubContext is a minimal vtype.Context for lattice tests that don't need
// a real classloader.Context.
type stubContext struct {
	assignable map[[2]string]bool
	common     map[[2]string]string
	err        error
}

func (s *stubContext) IsAssignable(target, source string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.assignable[[2]string{target, source}], nil
}

func (s *stubContext) CommonSuperclass(a, b string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if name, ok := s.common[[2]string{a, b}]; ok {
		return name, nil
	}
	if name, ok := s.common[[2]string{b, a}]; ok {
		return name, nil
	}
	return "", nil
}

func TestType_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Type
		want bool
	}{
		{"top equals top", Top, Top, true},
		{"integer equals integer", Integer, Integer, true},
		{"integer not equal long", Integer, Long, false},
		{"object equal same class", Object("java/lang/String"), Object("java/lang/String"), true},
		{"object not equal different class", Object("java/lang/String"), Object("java/lang/Object"), false},
		{"uninitialized equal same offset", Uninitialized(3), Uninitialized(3), true},
		{"uninitialized not equal different offset", Uninitialized(3), Uninitialized(7), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestIsCategory2(t *testing.T) {
	assert.True(t, IsCategory2(Long))
	assert.True(t, IsCategory2(Double))
	assert.False(t, IsCategory2(Integer))
	assert.False(t, IsCategory2(Object("java/lang/Object")))
}

func TestIsReference(t *testing.T) {
	assert.True(t, IsReference(Null))
	assert.True(t, IsReference(Object("java/lang/Object")))
	assert.True(t, IsReference(Uninitialized(0)))
	assert.True(t, IsReference(UninitializedThis))
	assert.False(t, IsReference(Integer))
	assert.False(t, IsReference(Top))
}

func TestAssignable(t *testing.T) {
	ctx := &stubContext{assignable: map[[2]string]bool{
		{"java/lang/Object", "java/lang/String"}: true,
	}}

	tests := []struct {
		name           string
		source, target Type
		ctx            Context
		want           bool
		wantErr        bool
	}{
		{"identical types", Integer, Integer, nil, true, false},
		{"anything to top", Object("whatever"), Top, nil, true, false},
		{"null to object", Null, Object("java/lang/String"), nil, true, false},
		{"object subtype via context", Object("java/lang/String"), Object("java/lang/Object"), ctx, true, false},
		{"object not subtype", Object("java/lang/Object"), Object("java/lang/String"), ctx, false, false},
		{"object comparison without context errors", Object("A"), Object("B"), nil, false, true},
		{"integer to long rejected", Integer, Long, nil, false, false},
		{"uninitializedThis not assignable to object", UninitializedThis, Object("java/lang/Object"), nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Assignable(tt.source, tt.target, tt.ctx)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoin(t *testing.T) {
	ctx := &stubContext{common: map[[2]string]string{
		{"java/lang/String", "java/lang/Integer"}: "java/lang/Object",
	}}

	t.Run("identical types join to themselves", func(t *testing.T) {
		got, err := Join(Integer, Integer, nil)
		require.NoError(t, err)
		assert.Equal(t, Integer, got)
	})

	t.Run("null joins with any reference to that reference", func(t *testing.T) {
		got, err := Join(Null, Object("java/lang/String"), nil)
		require.NoError(t, err)
		assert.Equal(t, Object("java/lang/String"), got)

		got, err = Join(Object("java/lang/String"), Null, nil)
		require.NoError(t, err)
		assert.Equal(t, Object("java/lang/String"), got)
	})

	t.Run("object join consults context for common superclass", func(t *testing.T) {
		got, err := Join(Object("java/lang/String"), Object("java/lang/Integer"), ctx)
		require.NoError(t, err)
		assert.Equal(t, Object("java/lang/Object"), got)
	})

	t.Run("object join without context falls back to Object", func(t *testing.T) {
		got, err := Join(Object("A"), Object("B"), nil)
		require.NoError(t, err)
		assert.Equal(t, Object("java/lang/Object"), got)
	})

	t.Run("mismatched categories join to Top", func(t *testing.T) {
		got, err := Join(Integer, Long, nil)
		require.NoError(t, err)
		assert.Equal(t, Top, got)
	})

	t.Run("propagates context errors", func(t *testing.T) {
		failing := &stubContext{err: errors.New("boom")}
		_, err := Join(Object("A"), Object("B"), failing)
		require.Error(t, err)
	})
}
