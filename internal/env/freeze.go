package env

import (
	"sort"

	"github.com/sunholo/ailang/internal/ast"
)

// Frozen is a read-only snapshot of a ModuleEnv, handed to emission
// collaborators ("emitters must not alter it"). Built the way an
// export-extraction pass builds its result: a one-shot copy into plain
// slices so the emitter cannot reach back into the live, mutable
// registry.
type Frozen struct {
	Structs   []*ast.Struct
	Enums     []*ast.Enum
	Traits    []*ast.Trait
	Impls     []*ast.Impl
	Atoms     []*ast.Atom
	Resources []*ast.Resource
	Verified  map[string]bool
}

// Freeze builds a Frozen snapshot containing only atoms marked verified, in
// the monomorphized, fully-resolved state the emitter is entitled to see.
// Atoms that failed verification are omitted, per spec.md §7
// ("emission is skipped for that atom").
func (e *ModuleEnv) Freeze() *Frozen {
	e.mu.RLock()
	defer e.mu.RUnlock()

	f := &Frozen{Verified: make(map[string]bool, len(e.verified))}
	for n := range e.verified {
		f.Verified[n] = true
	}

	atomNames := make([]string, 0, len(e.atoms))
	for n := range e.atoms {
		atomNames = append(atomNames, n)
	}
	sort.Strings(atomNames)
	for _, n := range atomNames {
		if e.verified[n] {
			f.Atoms = append(f.Atoms, e.atoms[n])
		}
	}

	structNames := sortedStringKeys(e.structs)
	for _, n := range structNames {
		f.Structs = append(f.Structs, e.structs[n])
	}
	enumNames := sortedStringKeys(e.enums)
	for _, n := range enumNames {
		f.Enums = append(f.Enums, e.enums[n])
	}
	traitNames := sortedStringKeys(e.traits)
	for _, n := range traitNames {
		f.Traits = append(f.Traits, e.traits[n])
	}
	implKeys := make([]string, 0, len(e.impls))
	for k := range e.impls {
		implKeys = append(implKeys, k)
	}
	sort.Strings(implKeys)
	for _, k := range implKeys {
		f.Impls = append(f.Impls, e.impls[k])
	}
	resourceNames := sortedStringKeys(e.resources)
	for _, n := range resourceNames {
		f.Resources = append(f.Resources, e.resources[n])
	}
	return f
}

func sortedStringKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
