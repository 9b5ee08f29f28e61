package mono

import (
	"strings"
	"testing"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/env"
)

func tv(name string) ast.TypeRef { return ast.TypeRef{Kind: ast.TRVar, Name: name} }
func i64() ast.TypeRef           { return ast.TypeRef{Kind: ast.TRBase, Base: ast.I64} }

func TestMangleStable(t *testing.T) {
	got := Mangle("Stack", []ast.TypeRef{i64()})
	if got != "Stack__i64" {
		t.Fatalf("expected Stack__i64, got %s", got)
	}
}

func TestRunSpecializesGenericAtomFromCallSite(t *testing.T) {
	e := env.New()

	identity := &ast.Atom{
		Name:       "identity",
		TypeParams: []string{"T"},
		Params:     []ast.AtomParam{{Name: "x", Type: tv("T")}},
		Ensures: &ast.BinaryOp{
			Op:    "==",
			Left:  &ast.Identifier{Name: "result"},
			Right: &ast.Identifier{Name: "x"},
		},
		Body: &ast.Identifier{Name: "x"},
	}
	if err := e.AddAtom(identity); err != nil {
		t.Fatalf("AddAtom identity: %v", err)
	}

	caller := &ast.Atom{
		Name: "caller",
		Body: &ast.Call{Callee: "identity", Args: []ast.Expr{&ast.Literal{Kind: ast.LitInt, Int: 7}}},
	}
	if err := e.AddAtom(caller); err != nil {
		t.Fatalf("AddAtom caller: %v", err)
	}

	out, err := New(e).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := out.LookupAtom("caller"); !ok {
		t.Fatalf("expected non-generic atom caller to survive unchanged")
	}
	spec, ok := out.LookupAtom("identity__i64")
	if !ok {
		t.Fatalf("expected specialized atom identity__i64, got atoms: %v", out.Atoms())
	}
	if len(spec.TypeParams) != 0 {
		t.Fatalf("expected specialized atom to have no remaining type params")
	}
	if !spec.Params[0].Type.IsConcrete() {
		t.Fatalf("expected specialized parameter type to be concrete")
	}
	if _, ok := out.LookupAtom("identity"); ok {
		t.Fatalf("the unspecialized generic atom must not appear in monomorphized output")
	}
}

func TestRunRejectsUnsatisfiedTraitBound(t *testing.T) {
	e := env.New()
	generic := &ast.Atom{
		Name:       "maxOf",
		TypeParams: []string{"T"},
		Bounds:     []ast.TraitBound{{TypeParam: "T", Trait: "Comparable"}},
		Params:     []ast.AtomParam{{Name: "x", Type: tv("T")}},
		Body:       &ast.Identifier{Name: "x"},
	}
	if err := e.AddAtom(generic); err != nil {
		t.Fatalf("AddAtom: %v", err)
	}
	caller := &ast.Atom{
		Name: "caller",
		Body: &ast.Call{Callee: "maxOf", Args: []ast.Expr{&ast.Literal{Kind: ast.LitInt, Int: 1}}},
	}
	if err := e.AddAtom(caller); err != nil {
		t.Fatalf("AddAtom caller: %v", err)
	}
	// No impl Comparable for i64 registered.

	_, err := New(e).Run()
	if err == nil {
		t.Fatalf("expected unsatisfied trait bound error")
	}
	if !strings.Contains(err.Error(), "MONO001") {
		t.Fatalf("expected MONO001 code, got: %v", err)
	}
}

func TestRunAcceptsSatisfiedTraitBound(t *testing.T) {
	e := env.New()
	if err := e.AddImpl(&ast.Impl{TraitName: "Comparable", ForType: i64()}); err != nil {
		t.Fatalf("AddImpl: %v", err)
	}
	generic := &ast.Atom{
		Name:       "maxOf",
		TypeParams: []string{"T"},
		Bounds:     []ast.TraitBound{{TypeParam: "T", Trait: "Comparable"}},
		Params:     []ast.AtomParam{{Name: "x", Type: tv("T")}},
		Body:       &ast.Identifier{Name: "x"},
	}
	if err := e.AddAtom(generic); err != nil {
		t.Fatalf("AddAtom: %v", err)
	}
	caller := &ast.Atom{
		Name: "caller",
		Body: &ast.Call{Callee: "maxOf", Args: []ast.Expr{&ast.Literal{Kind: ast.LitInt, Int: 1}}},
	}
	if err := e.AddAtom(caller); err != nil {
		t.Fatalf("AddAtom caller: %v", err)
	}

	out, err := New(e).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := out.LookupAtom("maxOf__i64"); !ok {
		t.Fatalf("expected specialized maxOf__i64 atom")
	}
}

func TestRunNoGenericsPassesThrough(t *testing.T) {
	e := env.New()
	a := &ast.Atom{Name: "plain", Body: &ast.Literal{Kind: ast.LitInt, Int: 1}}
	if err := e.AddAtom(a); err != nil {
		t.Fatalf("AddAtom: %v", err)
	}
	out, err := New(e).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Atoms()) != 1 {
		t.Fatalf("expected exactly one atom to survive, got %d", len(out.Atoms()))
	}
}
