package classloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLoader struct {
	classes map[string]ClassInfo
}

func (l *mapLoader) Load(name string) (ClassInfo, error) {
	info, ok := l.classes[name]
	if !ok {
		return ClassInfo{}, ErrClassNotFound
	}
	return info, nil
}

func newTestHierarchy() *Context {
	loader := &mapLoader{classes: map[string]ClassInfo{
		"java/lang/Object":    {Name: "java/lang/Object"},
		"java/lang/Number":    {Name: "java/lang/Number", SuperName: "java/lang/Object"},
		"java/lang/Integer":   {Name: "java/lang/Integer", SuperName: "java/lang/Number", Interfaces: []string{"java/io/Serializable"}},
		"java/lang/Long":      {Name: "java/lang/Long", SuperName: "java/lang/Number"},
		"java/io/Serializable": {Name: "java/io/Serializable", IsInterface: true},
		"pkg/A":               {Name: "pkg/A", SuperName: "java/lang/Object"},
		"pkg/B":               {Name: "pkg/B", SuperName: "pkg/A"},
	}}
	return New(loader)
}

func TestIsAssignable_SameClass(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("pkg/A", "pkg/A")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAssignable_DirectSuperclass(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("pkg/A", "pkg/B")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAssignable_IndirectSuperclass(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("java/lang/Object", "java/lang/Integer")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAssignable_Interface(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("java/io/Serializable", "java/lang/Integer")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAssignable_Unrelated(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("java/lang/Long", "java/lang/Integer")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAssignable_ArrayToObject(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("java/lang/Object", "[Ljava/lang/Integer;")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAssignable_ArrayCovariance(t *testing.T) {
	c := newTestHierarchy()
	ok, err := c.IsAssignable("[Ljava/lang/Object;", "[Ljava/lang/Integer;")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommonSuperclass(t *testing.T) {
	c := newTestHierarchy()
	name, err := c.CommonSuperclass("java/lang/Integer", "java/lang/Long")
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Number", name)
}

func TestCommonSuperclass_Unrelated(t *testing.T) {
	c := newTestHierarchy()
	name, err := c.CommonSuperclass("pkg/B", "java/lang/Integer")
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", name)
}

func TestCommonSuperclass_SameClass(t *testing.T) {
	c := newTestHierarchy()
	name, err := c.CommonSuperclass("pkg/A", "pkg/A")
	require.NoError(t, err)
	assert.Equal(t, "pkg/A", name)
}

func TestIsSubclass(t *testing.T) {
	c := newTestHierarchy()
	assert.True(t, c.IsSubclass("pkg/A", "pkg/B"))
	assert.False(t, c.IsSubclass("pkg/B", "pkg/A"))
}

func TestGet_UnknownClassErrors(t *testing.T) {
	c := newTestHierarchy()
	_, err := c.IsAssignable("does/not/Exist", "also/Missing")
	require.NoError(t, err) // unresolved ancestors just stop the chain early
	_, err = c.SuperOf("does/not/Exist")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestPreload_BypassesLoader(t *testing.T) {
	c := New(&mapLoader{classes: map[string]ClassInfo{}})
	c.Preload(ClassInfo{Name: "pkg/Seeded", SuperName: "java/lang/Object"})
	info, err := c.SuperOf("pkg/Seeded")
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", info.SuperName)
}

func TestNestHost_DefaultsToSelf(t *testing.T) {
	c := New(&mapLoader{classes: map[string]ClassInfo{
		"pkg/Outer": {Name: "pkg/Outer"},
	}})
	host, err := c.NestHost("pkg/Outer")
	require.NoError(t, err)
	assert.Equal(t, "pkg/Outer", host)
}

func TestAreNestmates_ConfirmedBothDirections(t *testing.T) {
	c := New(&mapLoader{classes: map[string]ClassInfo{
		"pkg/Outer":  {Name: "pkg/Outer", NestMembers: []string{"pkg/Outer", "pkg/Outer$Inner"}},
		"pkg/Outer$Inner": {Name: "pkg/Outer$Inner", NestHost: "pkg/Outer"},
	}})
	ok, err := c.AreNestmates("pkg/Outer", "pkg/Outer$Inner")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAreNestmates_RejectsUnconfirmedMember(t *testing.T) {
	c := New(&mapLoader{classes: map[string]ClassInfo{
		"pkg/Outer":       {Name: "pkg/Outer", NestMembers: []string{"pkg/Outer"}},
		"pkg/Outer$Inner": {Name: "pkg/Outer$Inner", NestHost: "pkg/Outer"},
	}})
	// Inner claims pkg/Outer as its host, but Outer's own NestMembers list
	// does not list Inner back — the reverse cross-check must reject this.
	ok, err := c.AreNestmates("pkg/Outer", "pkg/Outer$Inner")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAreNestmates_DifferentHosts(t *testing.T) {
	c := New(&mapLoader{classes: map[string]ClassInfo{
		"pkg/A": {Name: "pkg/A"},
		"pkg/B": {Name: "pkg/B"},
	}})
	ok, err := c.AreNestmates("pkg/A", "pkg/B")
	require.NoError(t, err)
	assert.False(t, ok)
}
