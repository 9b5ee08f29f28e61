// Package env implements ModuleEnv, the in-memory registry of everything a
// mumei compilation unit knows about: refined types, structs, enums,
// traits, impls, atoms, and the set of atom names verified in this run.
//
// One ModuleEnv per compilation unit, passed explicitly — no process-wide
// globals. Lookups are total (an explicit "not found" return, never a
// panic); insertion fails loudly on duplicate names, except for impls,
// which are keyed by (trait, type) and so allow one registration per pair.
package env

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sunholo/ailang/internal/ast"
)

// ModuleEnv is the registry described above. Mutated only during resolution
// and monomorphization; the verifier and emitter treat it as read-only.
type ModuleEnv struct {
	mu sync.RWMutex

	types     map[string]*ast.RefinedType
	structs   map[string]*ast.Struct
	enums     map[string]*ast.Enum
	traits    map[string]*ast.Trait
	impls     map[string]*ast.Impl // key: implKey(trait, type)
	atoms     map[string]*ast.Atom
	resources map[string]*ast.Resource

	verified map[string]bool
}

// New returns an empty ModuleEnv.
func New() *ModuleEnv {
	return &ModuleEnv{
		types:     make(map[string]*ast.RefinedType),
		structs:   make(map[string]*ast.Struct),
		enums:     make(map[string]*ast.Enum),
		traits:    make(map[string]*ast.Trait),
		impls:     make(map[string]*ast.Impl),
		atoms:     make(map[string]*ast.Atom),
		resources: make(map[string]*ast.Resource),
		verified:  make(map[string]bool),
	}
}

// DuplicateNameError is returned when an insertion would shadow an existing,
// non-identical definition.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s name: %s", e.Kind, e.Name)
}

func implKey(trait string, t ast.TypeRef) string {
	return trait + "::" + t.String()
}

// sortedKeys returns a map's keys in sorted order, for the deterministic
// iteration every enumerator on ModuleEnv promises its callers.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddType inserts a refined-type alias. A refined type may be re-declared
// identically without error (spec.md §4.2), matched here by the predicate's
// printed form — textually identical redeclarations are treated as the
// same definition.
func (e *ModuleEnv) AddType(t *ast.RefinedType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.types[t.Name]; ok {
		if existing.Base == t.Base && existing.Predicate.String() == t.Predicate.String() {
			return nil
		}
		return &DuplicateNameError{Kind: "type", Name: t.Name}
	}
	e.types[t.Name] = t
	return nil
}

// LookupType returns a refined type by name.
func (e *ModuleEnv) LookupType(name string) (*ast.RefinedType, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.types[name]
	return t, ok
}

// TypeNames returns every refined-type alias name, sorted.
func (e *ModuleEnv) TypeNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedKeys(e.types)
}

// AddStruct inserts a struct definition.
func (e *ModuleEnv) AddStruct(s *ast.Struct) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.structs[s.Name]; ok {
		return &DuplicateNameError{Kind: "struct", Name: s.Name}
	}
	e.structs[s.Name] = s
	return nil
}

// LookupStruct returns a struct by name.
func (e *ModuleEnv) LookupStruct(name string) (*ast.Struct, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.structs[name]
	return s, ok
}

// Structs returns every struct, sorted by name.
func (e *ModuleEnv) Structs() []*ast.Struct {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ast.Struct, 0, len(e.structs))
	for _, name := range sortedKeys(e.structs) {
		out = append(out, e.structs[name])
	}
	return out
}

// AddEnum inserts an enum (ADT) definition.
func (e *ModuleEnv) AddEnum(en *ast.Enum) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.enums[en.Name]; ok {
		return &DuplicateNameError{Kind: "enum", Name: en.Name}
	}
	e.enums[en.Name] = en
	return nil
}

// LookupEnum returns an enum by name.
func (e *ModuleEnv) LookupEnum(name string) (*ast.Enum, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.enums[name]
	return en, ok
}

// Enums returns every enum, sorted by name.
func (e *ModuleEnv) Enums() []*ast.Enum {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ast.Enum, 0, len(e.enums))
	for _, name := range sortedKeys(e.enums) {
		out = append(out, e.enums[name])
	}
	return out
}

// AddTrait inserts a trait definition.
func (e *ModuleEnv) AddTrait(t *ast.Trait) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.traits[t.Name]; ok {
		return &DuplicateNameError{Kind: "trait", Name: t.Name}
	}
	e.traits[t.Name] = t
	return nil
}

// LookupTrait returns a trait by name.
func (e *ModuleEnv) LookupTrait(name string) (*ast.Trait, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.traits[name]
	return t, ok
}

// Traits returns every trait, sorted by name.
func (e *ModuleEnv) Traits() []*ast.Trait {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ast.Trait, 0, len(e.traits))
	for _, name := range sortedKeys(e.traits) {
		out = append(out, e.traits[name])
	}
	return out
}

// AddImpl inserts an impl, keyed by (trait, type). Exactly one impl per
// pair is permitted.
func (e *ModuleEnv) AddImpl(i *ast.Impl) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := implKey(i.TraitName, i.ForType)
	if _, ok := e.impls[key]; ok {
		return &DuplicateNameError{Kind: "impl", Name: key}
	}
	e.impls[key] = i
	return nil
}

// LookupImpl returns the impl of trait for t, if any is registered.
func (e *ModuleEnv) LookupImpl(trait string, t ast.TypeRef) (*ast.Impl, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.impls[implKey(trait, t)]
	return i, ok
}

// Impls returns every registered impl, ordered for determinism (insertion
// order is not preserved by the map; callers that need insertion order
// should track it themselves — the verifier sorts by the implKey).
func (e *ModuleEnv) Impls() []*ast.Impl {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.impls))
	for k := range e.impls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*ast.Impl, len(keys))
	for i, k := range keys {
		out[i] = e.impls[k]
	}
	return out
}

// AddAtom inserts an atom definition.
func (e *ModuleEnv) AddAtom(a *ast.Atom) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.atoms[a.Name]; ok {
		return &DuplicateNameError{Kind: "atom", Name: a.Name}
	}
	e.atoms[a.Name] = a
	return nil
}

// LookupAtom returns an atom by name.
func (e *ModuleEnv) LookupAtom(name string) (*ast.Atom, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.atoms[name]
	return a, ok
}

// Atoms returns every atom, sorted by name for deterministic iteration.
func (e *ModuleEnv) Atoms() []*ast.Atom {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.atoms))
	for n := range e.atoms {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*ast.Atom, len(names))
	for i, n := range names {
		out[i] = e.atoms[n]
	}
	return out
}

// AddResource inserts a resource (named lock) declaration.
func (e *ModuleEnv) AddResource(r *ast.Resource) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.resources[r.Name]; ok {
		return &DuplicateNameError{Kind: "resource", Name: r.Name}
	}
	e.resources[r.Name] = r
	return nil
}

// LookupResource returns a resource declaration by name.
func (e *ModuleEnv) LookupResource(name string) (*ast.Resource, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.resources[name]
	return r, ok
}

// MarkVerified records that an atom's obligations were discharged in this
// run.
func (e *ModuleEnv) MarkVerified(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verified[name] = true
}

// Unverify removes an atom from the verified set (used on cache purge and
// on re-verification failure).
func (e *ModuleEnv) Unverify(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.verified, name)
}

// IsVerified reports whether an atom was marked verified in this run.
func (e *ModuleEnv) IsVerified(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.verified[name]
}

// VerifiedNames returns every atom name marked verified, sorted.
func (e *ModuleEnv) VerifiedNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.verified))
	for n := range e.verified {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
