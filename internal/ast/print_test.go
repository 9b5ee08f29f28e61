package ast

import "testing"

func TestTypeRefSubstitute(t *testing.T) {
	v := TypeRef{Kind: TRVar, Name: "T"}
	generic := TypeRef{Kind: TRGeneric, GenericName: "List", Args: []TypeRef{v}}

	sub := map[string]TypeRef{"T": {Kind: TRBase, Base: I64}}
	got := generic.Substitute(sub)

	want := TypeRef{Kind: TRGeneric, GenericName: "List", Args: []TypeRef{{Kind: TRBase, Base: I64}}}
	if !got.Equal(want) {
		t.Fatalf("substitute: got %s, want %s", got, want)
	}
	if !got.IsConcrete() {
		t.Fatalf("expected substituted type to be concrete, got %s", got)
	}
}

func TestTypeRefIsConcrete(t *testing.T) {
	v := TypeRef{Kind: TRVar, Name: "T"}
	if v.IsConcrete() {
		t.Fatalf("a bare type variable must not be concrete")
	}
	base := TypeRef{Kind: TRBase, Base: Bool}
	if !base.IsConcrete() {
		t.Fatalf("a base type must be concrete")
	}
}

func TestEnumVariantIndex(t *testing.T) {
	e := &Enum{
		Name: "Option",
		Variants: []Variant{
			{Name: "None"},
			{Name: "Some", Fields: []TypeRef{{Kind: TRBase, Base: I64}}},
		},
	}
	idx, ok := e.VariantIndex("Some")
	if !ok || idx != 1 {
		t.Fatalf("expected Some at index 1, got %d (%v)", idx, ok)
	}
	if _, ok := e.VariantIndex("Nope"); ok {
		t.Fatalf("expected Nope to be absent")
	}
}

func TestPrintAtomDeterministic(t *testing.T) {
	a := &Atom{
		Name: "push",
		Params: []AtomParam{
			{Name: "top", Type: TypeRef{Kind: TRNamed, Name: "Nat"}},
		},
		Requires: &Literal{Kind: LitBool, Bool: true},
		Ensures:  &Literal{Kind: LitBool, Bool: true},
	}
	out1 := Print(a)
	out2 := Print(a)
	if out1 != out2 {
		t.Fatalf("Print must be deterministic across calls")
	}
	if out1 == "null" {
		t.Fatalf("expected non-null output")
	}
}
