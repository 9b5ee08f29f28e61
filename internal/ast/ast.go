// Package ast defines the data model consumed by the mumei verification
// core: refined types, structs, enums, traits, impls, and atoms (contracted
// functions), plus the expression, pattern, and type-reference grammars
// they are built from. The surface tokenizer/parser is an external
// collaborator; this package only describes the tree it hands us.
package ast

import (
	"fmt"
	"strings"
)

// Pos is a source location, supplied by the external parser.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Node is the base interface implemented by every AST type.
type Node interface {
	String() string
	Position() Pos
}

// Expr is any expression node.
type Expr interface {
	Node
	exprNode()
}

// Pattern is any match-arm pattern node.
type Pattern interface {
	Node
	patternNode()
}

// BaseKind enumerates the four base types refinements may be built on.
type BaseKind int

const (
	I64 BaseKind = iota
	U64
	F64
	Bool
)

func (b BaseKind) String() string {
	switch b {
	case I64:
		return "i64"
	case U64:
		return "u64"
	case F64:
		return "f64"
	case Bool:
		return "bool"
	default:
		return "?"
	}
}

// TypeRefKind tags the variant held by a TypeRef.
type TypeRefKind int

const (
	TRBase TypeRefKind = iota
	TRRefined
	TRNamed
	TRGeneric
	TRSelf
	TRVar
)

// TypeRef is the tree of a type reference: a base type, a named refined
// alias, a user-defined name, a generic application C<T1,...,Tn>, Self, or
// a free type variable awaiting monomorphization.
type TypeRef struct {
	Kind TypeRefKind

	Base BaseKind // valid when Kind == TRBase

	RefinedName string // valid when Kind == TRRefined

	Name string // valid when Kind == TRNamed or TRVar

	GenericName string    // valid when Kind == TRGeneric
	Args        []TypeRef // valid when Kind == TRGeneric
}

func (t TypeRef) String() string {
	switch t.Kind {
	case TRBase:
		return t.Base.String()
	case TRRefined:
		return t.RefinedName
	case TRNamed:
		return t.Name
	case TRSelf:
		return "Self"
	case TRVar:
		return t.Name
	case TRGeneric:
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s<%s>", t.GenericName, strings.Join(parts, ","))
	default:
		return "?"
	}
}

// Equal reports structural equality after normalization.
func (t TypeRef) Equal(o TypeRef) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TRBase:
		return t.Base == o.Base
	case TRRefined:
		return t.RefinedName == o.RefinedName
	case TRNamed, TRVar:
		return t.Name == o.Name
	case TRSelf:
		return true
	case TRGeneric:
		if t.GenericName != o.GenericName || len(t.Args) != len(o.Args) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Substitute applies a type-variable substitution structurally, used by the
// monomorphizer to specialize generic definitions.
func (t TypeRef) Substitute(sub map[string]TypeRef) TypeRef {
	switch t.Kind {
	case TRVar:
		if repl, ok := sub[t.Name]; ok {
			return repl
		}
		return t
	case TRGeneric:
		args := make([]TypeRef, len(t.Args))
		for i, a := range t.Args {
			args[i] = a.Substitute(sub)
		}
		return TypeRef{Kind: TRGeneric, GenericName: t.GenericName, Args: args}
	default:
		return t
	}
}

// IsConcrete reports whether the type reference has no remaining type
// variables. The monomorphizer's output must only contain concrete refs.
func (t TypeRef) IsConcrete() bool {
	switch t.Kind {
	case TRVar:
		return false
	case TRGeneric:
		for _, a := range t.Args {
			if !a.IsConcrete() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// RefinedType is a named alias `name = base where P(v)`.
type RefinedType struct {
	Name      string
	Base      BaseKind
	Predicate Expr // predicate over the free variable "v"
	Pos       Pos
}

func (r *RefinedType) String() string {
	return fmt.Sprintf("type %s = %s where %s", r.Name, r.Base, r.Predicate)
}
func (r *RefinedType) Position() Pos { return r.Pos }

// Field is a single struct field: name, type, and an optional predicate
// over the field value "v".
type Field struct {
	Name      string
	Type      TypeRef
	Predicate Expr // optional
	Pos       Pos
}

// Struct is a named, optionally generic, ordered-field record type.
type Struct struct {
	Name       string
	TypeParams []string
	Fields     []Field
	Pos        Pos
}

func (s *Struct) String() string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name + ": " + f.Type.String()
	}
	return fmt.Sprintf("struct %s { %s }", s.Name, strings.Join(names, ", "))
}
func (s *Struct) Position() Pos { return s.Pos }

// Variant is one constructor of an Enum.
type Variant struct {
	Name   string
	Fields []TypeRef
	Pos    Pos
}

// Enum is a named, optionally generic, algebraic data type. A variant field
// may reference the enum by name (recursive ADT).
type Enum struct {
	Name       string
	TypeParams []string
	Variants   []Variant
	Pos        Pos
}

func (e *Enum) String() string {
	names := make([]string, len(e.Variants))
	for i, v := range e.Variants {
		names[i] = v.Name
	}
	return fmt.Sprintf("enum %s { %s }", e.Name, strings.Join(names, " | "))
}
func (e *Enum) Position() Pos { return e.Pos }

// VariantIndex returns the 0-based tag of a variant by name, and whether it
// was found. Enum tag invariant: 0 <= t < len(Variants).
func (e *Enum) VariantIndex(name string) (int, bool) {
	for i, v := range e.Variants {
		if v.Name == name {
			return i, true
		}
	}
	return 0, false
}

// TraitMethod is one required method signature of a Trait.
type TraitMethod struct {
	Name    string
	Params  []Field // Predicate on a Field here is a per-parameter refinement
	Returns TypeRef
	Pos     Pos
}

// Law is a named algebraic property relating trait method calls.
type Law struct {
	Name string
	Body Expr // an equality or implication over method calls and free vars
	Pos  Pos
}

// Trait declares a required method set and a list of algebraic laws those
// methods must satisfy for any conforming impl.
type Trait struct {
	Name    string
	Methods []TraitMethod
	Laws    []Law
	Pos     Pos
}

func (t *Trait) String() string { return fmt.Sprintf("trait %s", t.Name) }
func (t *Trait) Position() Pos  { return t.Pos }

// MethodBody is one implemented trait method.
type MethodBody struct {
	Name   string
	Params []Field
	Body   Expr
	Pos    Pos
}

// Impl is one implementation of a Trait for a concrete TypeRef. ModuleEnv
// permits exactly one Impl per (Trait, Type) pair.
type Impl struct {
	TraitName string
	ForType   TypeRef
	Methods   []MethodBody
	Pos       Pos
}

func (i *Impl) String() string {
	return fmt.Sprintf("impl %s for %s", i.TraitName, i.ForType)
}
func (i *Impl) Position() Pos { return i.Pos }

// ParamFlag tags how an atom consumes its parameter.
type ParamFlag int

const (
	ParamOwned ParamFlag = iota // consume
	ParamRef
	ParamRefMut
)

func (f ParamFlag) String() string {
	switch f {
	case ParamRef:
		return "ref"
	case ParamRefMut:
		return "ref mut"
	default:
		return "consume"
	}
}

// AtomParam is one parameter of an Atom.
type AtomParam struct {
	Name string
	Type TypeRef
	Flag ParamFlag
	Pos  Pos
}

// TraitBound is a generic-parameter constraint `T: Trait`.
type TraitBound struct {
	TypeParam string
	Trait     string
}

// Resource is a named, totally-ordered lock declaration.
// `resource R priority: N mode: (exclusive|shared)`.
type Resource struct {
	Name     string
	Priority int
	Shared   bool
	Pos      Pos
}

func (r *Resource) String() string {
	mode := "exclusive"
	if r.Shared {
		mode = "shared"
	}
	return fmt.Sprintf("resource %s priority: %d mode: %s", r.Name, r.Priority, mode)
}
func (r *Resource) Position() Pos { return r.Pos }

// Atom is a contracted function: refinement-typed parameters, a
// precondition, a postcondition, and trust/verification flags.
type Atom struct {
	Name       string
	TypeParams []string
	Bounds     []TraitBound
	Params     []AtomParam

	Requires Expr
	Ensures  Expr

	Body Expr // optional: nil for signature-only declarations

	Trusted    bool
	Unverified bool
	Async      bool

	Resources []string // resources this atom may acquire

	Invariant Expr // optional inductive invariant for recursive atoms
	Decreases Expr // optional ranking function

	MaxUnroll int // 0 means "use verifier default"

	Pos Pos
}

func (a *Atom) String() string {
	names := make([]string, len(a.Params))
	for i, p := range a.Params {
		names[i] = fmt.Sprintf("%s %s: %s", p.Flag, p.Name, p.Type)
	}
	return fmt.Sprintf("atom %s(%s)", a.Name, strings.Join(names, ", "))
}
func (a *Atom) Position() Pos { return a.Pos }

// Import is a top-level `import "path" as alias;` declaration.
type Import struct {
	Path  string
	Alias string // empty when no "as alias" clause was given
	Pos   Pos
}

func (i *Import) String() string {
	if i.Alias != "" {
		return fmt.Sprintf("import %q as %s", i.Path, i.Alias)
	}
	return fmt.Sprintf("import %q", i.Path)
}
func (i *Import) Position() Pos { return i.Pos }

// Program is the complete output of the external parser for one source
// file: its imports and the top-level items it declares.
type Program struct {
	Path    string
	Imports []*Import

	Types     []*RefinedType
	Structs   []*Struct
	Enums     []*Enum
	Traits    []*Trait
	Impls     []*Impl
	Atoms     []*Atom
	Resources []*Resource
}
