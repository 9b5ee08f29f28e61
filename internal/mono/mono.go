// Package mono implements L2: collection of every concrete instantiation
// site of every generic definition, structural substitution of type
// variables, and trait-bound satisfaction checking. Its output is a new,
// fully concrete env.ModuleEnv with no remaining type variables.
//
// Trait-bound satisfaction follows an InstanceEnv coherence-checking
// shape: bounds are checked once instantiation sites are known, against
// the impls already registered in the source ModuleEnv, keyed by
// (trait, type).
package mono

import (
	"fmt"
	"sort"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/env"
	"github.com/sunholo/ailang/internal/errs"
)

// Monomorphizer walks a ModuleEnv's atoms for call-site type arguments and
// produces concrete, name-mangled specializations.
type Monomorphizer struct {
	src *env.ModuleEnv
}

// New creates a Monomorphizer over src.
func New(src *env.ModuleEnv) *Monomorphizer {
	return &Monomorphizer{src: src}
}

// instantiation is one distinct (generic name, concrete args) application
// site discovered while walking call expressions and parameter types.
type instantiation struct {
	name string
	args []ast.TypeRef
}

// Mangle produces the specialized name for a generic atom/struct/enum
// instantiated at args, e.g. mangle("Stack", [i64]) -> "Stack__i64".
func Mangle(name string, args []ast.TypeRef) string {
	out := name
	for _, a := range args {
		out += "__" + sanitizeTypeName(a)
	}
	return out
}

func sanitizeTypeName(t ast.TypeRef) string {
	s := t.String()
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Run collects every instantiation site of every generic atom reachable
// from calls in non-generic atom bodies, checks trait bounds, substitutes,
// and returns a new ModuleEnv containing only concrete definitions: the
// non-generic atoms unchanged, plus one specialized atom per distinct
// instantiation of each generic atom.
func (m *Monomorphizer) Run() (*env.ModuleEnv, error) {
	out := env.New()

	generics := make(map[string]*ast.Atom)
	for _, a := range m.src.Atoms() {
		if len(a.TypeParams) > 0 {
			generics[a.Name] = a
			continue
		}
		if err := out.AddAtom(a); err != nil {
			return nil, err
		}
	}

	sites := m.collectSites(generics)

	seen := make(map[string]bool)
	keys := make([]string, 0, len(sites))
	for k := range sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		site := sites[k]
		generic := generics[site.name]
		if err := m.checkBounds(generic, site.args); err != nil {
			return nil, err
		}
		specialized := m.specialize(generic, site.args)
		if seen[specialized.Name] {
			continue
		}
		seen[specialized.Name] = true
		if err := out.AddAtom(specialized); err != nil {
			return nil, err
		}
	}

	// Carry over non-atom definitions unchanged; they are not
	// monomorphized independently of the atoms that reference them in
	// this core (structs/enums used at a generic site are referenced by
	// name from the specialized atom's TypeRefs, which already carry
	// concrete arguments after substitution).
	for _, s := range m.src.Impls() {
		if err := out.AddImpl(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// collectSites walks every concrete (non-generic) atom's body, requires and
// ensures for calls into a generic atom, recording the type arguments that
// inferArgsFromCallArgs infers from the call's literal arguments. A generic
// atom with no such call site gets no instantiation; declared parameter
// TypeRefs are not scanned.
func (m *Monomorphizer) collectSites(generics map[string]*ast.Atom) map[string]instantiation {
	sites := make(map[string]instantiation)

	record := func(name string, args []ast.TypeRef) {
		if len(args) == 0 {
			return
		}
		key := Mangle(name, args)
		sites[key] = instantiation{name: name, args: args}
	}

	var walkExpr func(e ast.Expr)
	walkExpr = func(e ast.Expr) {
		switch n := e.(type) {
		case nil:
			return
		case *ast.Call:
			if _, ok := generics[n.Callee]; ok {
				if args, ok := inferArgsFromCallArgs(generics[n.Callee], n.Args); ok {
					record(n.Callee, args)
				}
			}
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.BinaryOp:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.UnaryOp:
			walkExpr(n.X)
		case *ast.IfExpr:
			walkExpr(n.Cond)
			walkExpr(n.Then)
			walkExpr(n.Else)
		case *ast.LetExpr:
			walkExpr(n.Value)
			walkExpr(n.Rest)
		case *ast.Block:
			for _, x := range n.Exprs {
				walkExpr(x)
			}
		case *ast.Assign:
			walkExpr(n.Value)
		case *ast.While:
			walkExpr(n.Cond)
			walkExpr(n.Body)
		case *ast.Match:
			walkExpr(n.Scrutinee)
			for _, arm := range n.Arms {
				walkExpr(arm.Body)
			}
		case *ast.Index:
			walkExpr(n.Array)
			walkExpr(n.Idx)
		case *ast.FieldAccess:
			walkExpr(n.Recv)
		case *ast.Acquire:
			walkExpr(n.Body)
		case *ast.Await:
			walkExpr(n.X)
		}
	}

	for _, a := range m.src.Atoms() {
		if len(a.TypeParams) > 0 {
			continue // generics are specialized, never verified as-is
		}
		walkExpr(a.Body)
		walkExpr(a.Requires)
		walkExpr(a.Ensures)
	}
	return sites
}

// inferArgsFromCallArgs is a best-effort fallback for this core (which does
// not itself run type inference — that lives in the external front end):
// if a generic atom has exactly one type parameter and that parameter's
// declared base kind matches a literal's kind among the call's actual
// arguments, infer the type argument from the literal. More elaborate
// instantiation-site discovery belongs to the elaboration stage upstream;
// this core only needs *a* representative concrete instantiation per
// distinct argument-type tuple to monomorphize against.
func inferArgsFromCallArgs(generic *ast.Atom, args []ast.Expr) ([]ast.TypeRef, bool) {
	if len(generic.TypeParams) != 1 {
		return nil, false
	}
	tv := generic.TypeParams[0]
	for i, p := range generic.Params {
		if p.Type.Kind != ast.TRVar || p.Type.Name != tv {
			continue
		}
		if i >= len(args) {
			return nil, false
		}
		if lit, ok := args[i].(*ast.Literal); ok {
			switch lit.Kind {
			case ast.LitInt:
				return []ast.TypeRef{{Kind: ast.TRBase, Base: ast.I64}}, true
			case ast.LitFloat:
				return []ast.TypeRef{{Kind: ast.TRBase, Base: ast.F64}}, true
			case ast.LitBool:
				return []ast.TypeRef{{Kind: ast.TRBase, Base: ast.Bool}}, true
			}
		}
	}
	return nil, false
}

// checkBounds verifies every trait bound on generic's type parameters is
// satisfied by the concrete args, i.e. an `impl Trait for A` is registered
// for the concrete type substituted in for the bound's parameter.
func (m *Monomorphizer) checkBounds(generic *ast.Atom, args []ast.TypeRef) error {
	sub := substitutionOf(generic.TypeParams, args)
	for _, b := range generic.Bounds {
		concrete, ok := sub[b.TypeParam]
		if !ok {
			continue
		}
		if _, ok := m.src.LookupImpl(b.Trait, concrete); !ok {
			return errs.WrapReport(errs.New(errs.PhaseMono, errs.MONO001, generic.Name,
				fmt.Sprintf("unsatisfied trait bound: %s requires %s: %s, no impl %s for %s",
					generic.Name, b.TypeParam, b.Trait, b.Trait, concrete)))
		}
	}
	return nil
}

func substitutionOf(params []string, args []ast.TypeRef) map[string]ast.TypeRef {
	sub := make(map[string]ast.TypeRef, len(params))
	for i, p := range params {
		if i < len(args) {
			sub[p] = args[i]
		}
	}
	return sub
}

// specialize produces a concrete clone of generic with sub applied to its
// parameter types, requires/ensures, invariant, decreases, and body.
func (m *Monomorphizer) specialize(generic *ast.Atom, args []ast.TypeRef) *ast.Atom {
	sub := substitutionOf(generic.TypeParams, args)

	spec := *generic
	spec.Name = Mangle(generic.Name, args)
	spec.TypeParams = nil
	spec.Bounds = nil

	spec.Params = make([]ast.AtomParam, len(generic.Params))
	for i, p := range generic.Params {
		spec.Params[i] = ast.AtomParam{Name: p.Name, Flag: p.Flag, Type: p.Type.Substitute(sub), Pos: p.Pos}
	}

	spec.Requires = substituteExpr(generic.Requires, sub)
	spec.Ensures = substituteExpr(generic.Ensures, sub)
	spec.Body = substituteExpr(generic.Body, sub)
	spec.Invariant = substituteExpr(generic.Invariant, sub)
	spec.Decreases = substituteExpr(generic.Decreases, sub)

	return &spec
}

// substituteExpr applies a type substitution to an expression. Only a
// StructInit at the root of e whose TypeName is a substituted type variable
// is rewritten (as a copy); nested nodes are not visited, and every other
// node is returned as is, shared with the generic atom.
func substituteExpr(e ast.Expr, sub map[string]ast.TypeRef) ast.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.StructInit:
		if repl, ok := sub[n.TypeName]; ok {
			clone := *n
			clone.TypeName = repl.String()
			return &clone
		}
		return n
	default:
		return e
	}
}
