// Package classloader is the is_assignable/common_superclass oracle the
// verifier and member resolver consult for every reference-type comparison
// (JVMS 4.10.1.2 note 2). It keeps a concurrent class hierarchy table in the
// shape of vm/class_manager.go's ClassManager: a sync.Map for the table
// itself plus an RWMutex-guarded "current lookup root", and loads entries
// on demand through a pluggable Loader rather than assuming the whole
// universe of classes is known up front.
package classloader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrClassNotFound is returned by Loader implementations (and surfaced by
// Context methods) when a class name cannot be resolved.
var ErrClassNotFound = errors.New("class not found")

// ClassInfo is the minimal hierarchy fact set the oracle needs about one
// class: its direct superclass and the interfaces it directly implements.
// java/lang/Object has an empty SuperName.
type ClassInfo struct {
	Name        string
	SuperName   string
	Interfaces  []string
	IsInterface bool

	// NestHost is the binary name this class's NestHost attribute points
	// to (JVMS 4.7.28), or "" if this class is its own nest host.
	NestHost string
	// NestMembers lists the classes this class's NestMembers attribute
	// claims as members, used for the reverse cross-check in
	// AreNestmates beyond trusting a member's own NestHost pointer.
	NestMembers []string
}

// NestHostOf returns info's declared nest host, or "" if it is its own host.
func (info ClassInfo) NestHostOf() string { return info.NestHost }

// Loader resolves a class name to its hierarchy facts, e.g. by reading a
// class file off a classpath or registry. Implementations are expected to
// be safe for concurrent use; Context serializes nothing beyond its own
// cache table.
type Loader interface {
	Load(name string) (ClassInfo, error)
}

// Cache is an optional secondary lookup consulted before Loader, typically
// a persistent store (see classcache) so repeated verifications of the
// same class hierarchy don't repeatedly hit the primary Loader.
type Cache interface {
	Lookup(name string) (ClassInfo, bool)
	Store(info ClassInfo)
}

// Context is the classloader context: a concurrent-safe, cached view over
// a Loader, implementing vtype.Context (IsAssignable, CommonSuperclass) and
// classfile-facing nestmate helpers.
type Context struct {
	table  sync.Map // map[string]ClassInfo
	loader Loader
	cache  Cache

	mu      sync.RWMutex
	current string // name of the class currently being verified, for diagnostics
}

// New builds a Context backed by loader, with no secondary cache.
func New(loader Loader) *Context {
	return &Context{loader: loader}
}

// WithCache attaches a secondary Cache, consulted before loader and
// populated after every successful load.
func (c *Context) WithCache(cache Cache) *Context {
	c.cache = cache
	return c
}

// SetCurrent records the name of the class presently being verified, purely
// for error-message context; it does not gate any lookup.
func (c *Context) SetCurrent(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = name
}

// Current returns the name set by SetCurrent, or "" if none.
func (c *Context) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Preload stores info directly in the table, bypassing Loader. Used to seed
// well-known classes (java/lang/Object, java/lang/Throwable, array types)
// without requiring a Loader round trip for them.
func (c *Context) Preload(info ClassInfo) {
	c.table.Store(info.Name, info)
}

func (c *Context) get(name string) (ClassInfo, error) {
	if val, ok := c.table.Load(name); ok {
		return val.(ClassInfo), nil
	}
	if c.cache != nil {
		if info, ok := c.cache.Lookup(name); ok {
			c.table.Store(name, info)
			return info, nil
		}
	}
	if c.loader == nil {
		return ClassInfo{}, fmt.Errorf("%w: %s (no loader configured)", ErrClassNotFound, name)
	}
	info, err := c.loader.Load(name)
	if err != nil {
		return ClassInfo{}, fmt.Errorf("%w: %s: %v", ErrClassNotFound, name, err)
	}
	if actual, loaded := c.table.LoadOrStore(name, info); loaded {
		info = actual.(ClassInfo)
	}
	if c.cache != nil {
		c.cache.Store(info)
	}
	return info, nil
}

// ancestors returns name's supertype chain including name itself, ending at
// java/lang/Object (or at the first unresolved link, left unreported).
func (c *Context) ancestors(name string) []string {
	chain := []string{name}
	seen := map[string]bool{name: true}
	cur := name
	for {
		info, err := c.get(cur)
		if err != nil || info.SuperName == "" {
			break
		}
		if seen[info.SuperName] {
			break // malformed cyclic hierarchy; stop rather than loop forever
		}
		seen[info.SuperName] = true
		chain = append(chain, info.SuperName)
		cur = info.SuperName
	}
	return chain
}

func (c *Context) allInterfaces(name string, acc map[string]bool) {
	info, err := c.get(name)
	if err != nil {
		return
	}
	for _, iface := range info.Interfaces {
		if !acc[iface] {
			acc[iface] = true
			c.allInterfaces(iface, acc)
		}
	}
	if info.SuperName != "" {
		c.allInterfaces(info.SuperName, acc)
	}
}

// arrayElementIsAssignable handles the JVMS 4.10.1.2 array-covariance rules:
// T[] <: S[] when T <: S, and every array type is assignable to
// java/lang/Object, java/lang/Cloneable, and java/io/Serializable.
func arrayElementIsAssignable(target, source string) (handled, ok bool) {
	sourceIsArray := strings.HasPrefix(source, "[")
	targetIsArray := strings.HasPrefix(target, "[")
	if !sourceIsArray && !targetIsArray {
		return false, false
	}
	if sourceIsArray && !targetIsArray {
		switch target {
		case "java/lang/Object", "java/lang/Cloneable", "java/io/Serializable":
			return true, true
		default:
			return true, false
		}
	}
	if !sourceIsArray {
		return true, false
	}
	// Both arrays: strip one leading '[' and recurse will be handled by the
	// caller (IsAssignable), since element types may themselves be
	// primitive descriptors which compare by simple equality.
	return false, false
}

// IsAssignable reports whether an instance of class source may be used
// wherever class target is expected: source == target, target is a
// (possibly indirect) superclass or superinterface of source, or the
// array-covariance special cases above.
func (c *Context) IsAssignable(targetName, sourceName string) (bool, error) {
	if targetName == sourceName {
		return true, nil
	}
	if targetName == "java/lang/Object" {
		return true, nil
	}
	if handled, ok := arrayElementIsAssignable(targetName, sourceName); handled {
		return ok, nil
	}
	if strings.HasPrefix(sourceName, "[") && strings.HasPrefix(targetName, "[") {
		target, source := targetName[1:], sourceName[1:]
		isRef := func(d string) bool { return strings.HasPrefix(d, "L") || strings.HasPrefix(d, "[") }
		if !isRef(target) || !isRef(source) {
			return target == source, nil
		}
		if strings.HasPrefix(target, "L") {
			target = strings.TrimSuffix(target[1:], ";")
		}
		if strings.HasPrefix(source, "L") {
			source = strings.TrimSuffix(source[1:], ";")
		}
		return c.IsAssignable(target, source)
	}

	for _, anc := range c.ancestors(sourceName) {
		if anc == targetName {
			return true, nil
		}
	}
	ifaces := map[string]bool{}
	for _, anc := range c.ancestors(sourceName) {
		c.allInterfaces(anc, ifaces)
	}
	return ifaces[targetName], nil
}

// CommonSuperclass returns the least upper bound of a and b in the class
// hierarchy: the first class in a's ancestor chain that also appears in
// b's ancestor chain. Falls back to java/lang/Object, matching the
// verifier's join rule for unrelated reference types (JVMS 4.10.1.4).
func (c *Context) CommonSuperclass(a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	bChain := map[string]bool{}
	for _, anc := range c.ancestors(b) {
		bChain[anc] = true
	}
	for _, anc := range c.ancestors(a) {
		if bChain[anc] {
			return anc, nil
		}
	}
	return "java/lang/Object", nil
}

// IsSubclass reports whether sourceName's class-only ancestor chain (no
// interfaces) contains targetName, used by member-resolution protected-
// access checks (JLS 6.6.2) which care about class inheritance, not
// interface implementation.
func (c *Context) IsSubclass(targetName, sourceName string) bool {
	for _, anc := range c.ancestors(sourceName) {
		if anc == targetName {
			return true
		}
	}
	return false
}

// SuperOf returns the full hierarchy facts for name, loading it through the
// configured Cache/Loader if not already cached. Exported for callers (e.g.
// memberresolver) that need the raw superclass/interfaces list rather than
// just an assignability verdict.
func (c *Context) SuperOf(name string) (ClassInfo, error) {
	return c.get(name)
}

// NestHost returns the nest host class name for name: the class's own
// NestHost attribute target, or name itself if it declares none.
func (c *Context) NestHost(name string) (string, error) {
	info, err := c.get(name)
	if err != nil {
		return "", err
	}
	if info.NestHostOf() == "" {
		return name, nil
	}
	return info.NestHostOf(), nil
}

// AreNestmates reports whether a and b belong to the same nest: both name
// the same host (following each one's own NestHost pointer), AND the host's
// own NestMembers attribute, when present, lists the member back. A class
// that only claims a host but is absent from that host's NestMembers list
// is not trusted as a nestmate — it must be confirmed from both directions,
// which methodhandlenatives.rs does not itself do.
func (c *Context) AreNestmates(a, b string) (bool, error) {
	hostA, err := c.NestHost(a)
	if err != nil {
		return false, err
	}
	hostB, err := c.NestHost(b)
	if err != nil {
		return false, err
	}
	if hostA != hostB {
		return false, nil
	}
	hostInfo, err := c.get(hostA)
	if err != nil {
		// A host class that cannot itself be loaded (e.g. a NestHost
		// attribute naming a class the loader does not know) still counts
		// as a match on the forward check alone.
		return true, nil
	}
	if len(hostInfo.NestMembers) == 0 {
		return true, nil
	}
	confirmsA := hostA == a
	confirmsB := hostB == b
	for _, m := range hostInfo.NestMembers {
		if m == a {
			confirmsA = true
		}
		if m == b {
			confirmsB = true
		}
	}
	return confirmsA && confirmsB, nil
}
