// Package emit builds the read-only handoff view of a monomorphized,
// verified ModuleEnv that spec.md §6 hands to the (out-of-scope) codegen
// and transpiler collaborators. Only atoms the verifier actually marked
// verified in this run cross the boundary; everything else — an atom that
// failed a gate, or one never reached because an earlier sibling aborted
// the build — is left behind.
//
// Grounded on internal/iface/builder.go's Builder.Build: a pass over a
// module's exportable names that produces one flat, deterministically
// digested, struct-of-slices interface value. There the unit of export is
// a typed binding; here it is a verified Atom, Struct, Enum, Trait, Impl,
// and Resource.
package emit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/cache"
	"github.com/sunholo/ailang/internal/env"
)

// Schema is the handoff payload's format tag, following the same
// "name.kind/v1" convention used elsewhere in this codebase.
const Schema = "mumei.emit/v1"

// ParamMode is an emitter-facing spelling of ast.ParamFlag: spec.md §6's
// "ref -> shared reference; ref mut -> exclusive reference; consume ->
// move" mapping, made explicit here so an emitter never has to import
// internal/ast just to read a three-value enum.
type ParamMode int

const (
	ModeMove ParamMode = iota
	ModeShared
	ModeExclusive
)

func (m ParamMode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeExclusive:
		return "exclusive"
	default:
		return "move"
	}
}

func paramMode(f ast.ParamFlag) ParamMode {
	switch f {
	case ast.ParamRef:
		return ModeShared
	case ast.ParamRefMut:
		return ModeExclusive
	default:
		return ModeMove
	}
}

// Param is one atom parameter as an emitter sees it.
type Param struct {
	Name string
	Type string // ast.TypeRef.String(), e.g. "i64", "Nat", "List<T>"
	Mode ParamMode
}

// ResourceUse names a resource this atom's body acquires; spec.md §6's
// "acquire R { ... } -> lock/unlock pair" mapping.
type ResourceUse struct {
	Name   string
	Shared bool
}

// Atom is the emitter-visible view of a verified ast.Atom: everything a
// codegen backend needs to produce a callable function: signature,
// printed contracts, resources, and the parsed body expression tree.
type Atom struct {
	Name      string
	Params    []Param
	Async     bool
	Resources []ResourceUse
	Requires  string // printed form, "" if absent
	Ensures   string // printed form, "" if absent

	// Body is the parsed expression tree, handed across unchanged for a
	// backend that wants to lower it directly rather than re-derive it
	// from Requires/Ensures. Emitters must treat it as read-only: nothing
	// in this package or the verifier mutates an Atom's Body once it
	// reaches here.
	Body ast.Expr
}

// TypeExport is an exported refined-type alias.
type TypeExport struct {
	Name string
	Base string
}

// Field mirrors ast.Field for export, keeping emit's surface independent
// of internal/ast's.
type Field struct {
	Name string
	Type string
}

// StructExport is an exported struct definition.
type StructExport struct {
	Name   string
	Fields []Field
}

// VariantExport is one enum variant.
type VariantExport struct {
	Name   string
	Fields []string // field TypeRef.String() values, positional
}

// EnumExport is an exported enum (ADT) definition.
type EnumExport struct {
	Name     string
	Variants []VariantExport
}

// TraitExport is an exported trait's method names (laws are not
// emitted: they were already discharged by Gate 9 and have no runtime
// representation).
type TraitExport struct {
	Name    string
	Methods []string // method names only, no signatures
}

// ImplExport is one verified trait implementation.
type ImplExport struct {
	Trait   string
	ForType string
}

// Program is the complete, read-only handoff value. Construct one with
// Build; nothing in this package exposes a way to mutate it afterward.
type Program struct {
	Schema string
	Digest string

	Types   []TypeExport
	Structs []StructExport
	Enums   []EnumExport
	Traits  []TraitExport
	Impls   []ImplExport
	Atoms   []Atom
}

// Build extracts the handoff Program from e. Only atoms in
// e.VerifiedNames() are included; structs, enums, traits, and impls are
// exported unconditionally since the verifier never marks them verified
// itself (they have no body to discharge) — their role here is purely to
// give an emitter the shapes its emitted atoms reference.
func Build(e *env.ModuleEnv) *Program {
	p := &Program{Schema: Schema}

	for _, name := range e.VerifiedNames() {
		a, ok := e.LookupAtom(name)
		if !ok {
			continue
		}
		p.Atoms = append(p.Atoms, buildAtom(e, a))
	}

	p.Types = buildTypes(e)
	p.Structs = buildStructs(e)
	p.Enums = buildEnums(e)
	p.Traits = buildTraits(e)
	p.Impls = buildImpls(e)

	p.Digest = digest(p)
	return p
}

func buildAtom(e *env.ModuleEnv, a *ast.Atom) Atom {
	out := Atom{
		Name:  a.Name,
		Async: a.Async,
		Body:  a.Body,
	}
	for _, param := range a.Params {
		out.Params = append(out.Params, Param{
			Name: param.Name,
			Type: param.Type.String(),
			Mode: paramMode(param.Flag),
		})
	}
	for _, name := range a.Resources {
		shared := false
		if r, ok := e.LookupResource(name); ok {
			shared = r.Shared
		}
		out.Resources = append(out.Resources, ResourceUse{Name: name, Shared: shared})
	}
	if a.Requires != nil {
		out.Requires = a.Requires.String()
	}
	if a.Ensures != nil {
		out.Ensures = a.Ensures.String()
	}
	return out
}

func buildTypes(e *env.ModuleEnv) []TypeExport {
	var out []TypeExport
	for _, name := range e.TypeNames() {
		t, ok := e.LookupType(name)
		if !ok {
			continue
		}
		out = append(out, TypeExport{Name: t.Name, Base: t.Base.String()})
	}
	return out
}

func buildStructs(e *env.ModuleEnv) []StructExport {
	var out []StructExport
	for _, s := range e.Structs() {
		st := StructExport{Name: s.Name}
		for _, f := range s.Fields {
			st.Fields = append(st.Fields, Field{Name: f.Name, Type: f.Type.String()})
		}
		out = append(out, st)
	}
	return out
}

func buildEnums(e *env.ModuleEnv) []EnumExport {
	var out []EnumExport
	for _, en := range e.Enums() {
		ee := EnumExport{Name: en.Name}
		for _, v := range en.Variants {
			fields := make([]string, len(v.Fields))
			for i, f := range v.Fields {
				fields[i] = f.String()
			}
			ee.Variants = append(ee.Variants, VariantExport{Name: v.Name, Fields: fields})
		}
		out = append(out, ee)
	}
	return out
}

func buildTraits(e *env.ModuleEnv) []TraitExport {
	var out []TraitExport
	for _, t := range e.Traits() {
		te := TraitExport{Name: t.Name}
		for _, m := range t.Methods {
			te.Methods = append(te.Methods, m.Name)
		}
		out = append(out, te)
	}
	return out
}

func buildImpls(e *env.ModuleEnv) []ImplExport {
	var out []ImplExport
	for _, i := range e.Impls() {
		out = append(out, ImplExport{Trait: i.TraitName, ForType: i.ForType.String()})
	}
	return out
}

// digest is a deterministic SHA-256 over the whole Program. Each atom with
// a body contributes cache.Digest of an atom holding only its Name and
// Body, so the per-atom value differs from the verifier's cache digest,
// which also covers contracts, parameters and flags.
func digest(p *Program) string {
	var b strings.Builder
	b.WriteString(p.Schema)
	b.WriteByte('|')
	for _, a := range p.Atoms {
		b.WriteString(a.Name)
		b.WriteByte(':')
		if a.Body != nil {
			b.WriteString(cacheDigestOf(a))
		}
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, s := range p.Structs {
		b.WriteString(s.Name)
		b.WriteByte(',')
	}
	for _, en := range p.Enums {
		b.WriteString(en.Name)
		b.WriteByte(',')
	}
	for _, t := range p.Traits {
		b.WriteString(t.Name)
		b.WriteByte(',')
	}
	for _, i := range p.Impls {
		b.WriteString(fmt.Sprintf("%s::%s,", i.Trait, i.ForType))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func cacheDigestOf(a Atom) string {
	return cache.Digest(&ast.Atom{
		Name: a.Name,
		Body: a.Body,
	})
}
