package smt

import (
	"strings"
	"testing"

	"github.com/sunholo/ailang/internal/ast"
)

func TestTranslateArithmeticAndComparison(t *testing.T) {
	tr := NewTranslator()
	e := &ast.BinaryOp{
		Op:   ">=",
		Left: &ast.Identifier{Name: "x"},
		Right: &ast.BinaryOp{
			Op:    "+",
			Left:  &ast.Literal{Kind: ast.LitInt, Int: 1},
			Right: &ast.Literal{Kind: ast.LitInt, Int: 2},
		},
	}
	got := tr.Translate(e)
	want := "(>= x (+ 1 2))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTranslateDivisionRecordsObligation(t *testing.T) {
	tr := NewTranslator()
	e := &ast.BinaryOp{Op: "/", Left: &ast.Identifier{Name: "a"}, Right: &ast.Identifier{Name: "b"}}
	_ = tr.Translate(e)
	if len(tr.Obligations) != 1 || tr.Obligations[0].Kind != "division-by-zero" {
		t.Fatalf("expected a division-by-zero obligation, got %v", tr.Obligations)
	}
	if !strings.Contains(tr.Obligations[0].Formula, "(not (= b 0))") {
		t.Fatalf("unexpected obligation formula: %s", tr.Obligations[0].Formula)
	}
}

func TestTranslateIndexRecordsBoundsObligation(t *testing.T) {
	tr := NewTranslator()
	tr.ArrayLens["arr"] = "arr__len"
	e := &ast.Index{Array: &ast.Identifier{Name: "arr"}, Idx: &ast.Identifier{Name: "i"}}
	got := tr.Translate(e)
	if got != "(select arr i)" {
		t.Fatalf("got %q", got)
	}
	if len(tr.Obligations) != 1 || tr.Obligations[0].Kind != "array-bounds" {
		t.Fatalf("expected array-bounds obligation, got %v", tr.Obligations)
	}
	want := "(and (<= 0 i) (< i arr__len))"
	if tr.Obligations[0].Formula != want {
		t.Fatalf("got %q want %q", tr.Obligations[0].Formula, want)
	}
}

func TestTranslateIfAndNotEqual(t *testing.T) {
	tr := NewTranslator()
	e := &ast.IfExpr{
		Cond: &ast.BinaryOp{Op: "!=", Left: &ast.Identifier{Name: "x"}, Right: &ast.Literal{Kind: ast.LitInt, Int: 0}},
		Then: &ast.Literal{Kind: ast.LitBool, Bool: true},
		Else: &ast.Literal{Kind: ast.LitBool, Bool: false},
	}
	got := tr.Translate(e)
	want := "(ite (not (= x 0)) true false)"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTranslateQuantifierForall(t *testing.T) {
	tr := NewTranslator()
	e := &ast.Quantifier{
		Kind: ast.Forall,
		Var:  "i",
		Lo:   &ast.Literal{Kind: ast.LitInt, Int: 0},
		Hi:   &ast.Identifier{Name: "n"},
		Pred: &ast.BinaryOp{Op: ">=", Left: &ast.Identifier{Name: "i"}, Right: &ast.Literal{Kind: ast.LitInt, Int: 0}},
	}
	got := tr.Translate(e)
	want := "(forall ((i Int)) (=> (and (<= 0 i) (< i n)) (>= i 0)))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTranslateStructInitLetFlattensFields(t *testing.T) {
	tr := NewTranslator()
	e := &ast.LetExpr{
		Name: "p",
		Value: &ast.StructInit{TypeName: "Point", Fields: []ast.FieldInit{
			{Name: "x", Value: &ast.Literal{Kind: ast.LitInt, Int: 1}},
			{Name: "y", Value: &ast.Literal{Kind: ast.LitInt, Int: 2}},
		}},
		Rest: &ast.FieldAccess{Recv: &ast.Identifier{Name: "p"}, Field: "x"},
	}
	got := tr.Translate(e)
	if !strings.Contains(got, "(p__x 1)") || !strings.Contains(got, "(p__y 2)") {
		t.Fatalf("expected flattened field bindings, got %s", got)
	}
}

func TestTranslateCallIsOpaqueUninterpretedApplication(t *testing.T) {
	tr := NewTranslator()
	e := &ast.Call{Callee: "helper", Args: []ast.Expr{&ast.Identifier{Name: "x"}}}
	got := tr.Translate(e)
	if got != "(helper x)" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateMatchUsesEnumLookupForTags(t *testing.T) {
	en := &ast.Enum{Name: "Option", Variants: []ast.Variant{{Name: "None"}, {Name: "Some"}}}
	tr := NewTranslator()
	tr.EnumLookup = func(name string) (*ast.Enum, bool) {
		if name == "Option" {
			return en, true
		}
		return nil, false
	}
	m := &ast.Match{
		Scrutinee: &ast.Identifier{Name: "o"},
		Arms: []ast.MatchArm{
			{Pattern: &ast.VariantPattern{EnumName: "Option", VariantName: "None"}, Body: &ast.Literal{Kind: ast.LitInt, Int: 0}},
			{Pattern: &ast.VariantPattern{EnumName: "Option", VariantName: "Some"}, Body: &ast.Literal{Kind: ast.LitInt, Int: 1}},
		},
	}
	got := tr.Translate(m)
	if !strings.Contains(got, "(= o__tag 0)") || !strings.Contains(got, "(= o__tag 1)") {
		t.Fatalf("expected tag comparisons using declared VariantIndex, got %s", got)
	}
}

func TestTranslateMatchRecordsExhaustivenessObligation(t *testing.T) {
	en := &ast.Enum{Name: "Option", Variants: []ast.Variant{{Name: "None"}, {Name: "Some"}}}
	tr := NewTranslator()
	tr.EnumLookup = func(name string) (*ast.Enum, bool) {
		if name == "Option" {
			return en, true
		}
		return nil, false
	}
	m := &ast.Match{
		Scrutinee: &ast.Identifier{Name: "o"},
		Arms: []ast.MatchArm{
			{Pattern: &ast.VariantPattern{EnumName: "Option", VariantName: "None"}, Body: &ast.Literal{Kind: ast.LitInt, Int: 0}},
		},
	}
	_ = tr.Translate(m)
	if len(tr.Obligations) != 1 || tr.Obligations[0].Kind != "non-exhaustive-match" {
		t.Fatalf("expected one non-exhaustive-match obligation, got %v", tr.Obligations)
	}
	want := "(or (= o__tag 0))"
	if tr.Obligations[0].Formula != want {
		t.Fatalf("got %q want %q", tr.Obligations[0].Formula, want)
	}
}

func TestTranslateMatchEmptyArmsObligationIsUnconditionallyFalse(t *testing.T) {
	tr := NewTranslator()
	m := &ast.Match{Scrutinee: &ast.Identifier{Name: "o"}}
	_ = tr.Translate(m)
	if len(tr.Obligations) != 1 || tr.Obligations[0].Formula != "false" {
		t.Fatalf("expected a trivially-false coverage obligation for an empty match, got %v", tr.Obligations)
	}
}

func TestTranslateMatchBindsGuardToScrutineeValue(t *testing.T) {
	tr := NewTranslator()
	m := &ast.Match{
		Scrutinee: &ast.Identifier{Name: "n"},
		Arms: []ast.MatchArm{
			{
				Pattern: &ast.BindPattern{Name: "k"},
				Guard:   &ast.BinaryOp{Op: ">", Left: &ast.Identifier{Name: "k"}, Right: &ast.Literal{Kind: ast.LitInt, Int: 0}},
				Body:    &ast.Identifier{Name: "k"},
			},
			{Pattern: &ast.WildcardPattern{}, Body: &ast.Literal{Kind: ast.LitInt, Int: 0}},
		},
	}
	got := tr.Translate(m)
	if !strings.Contains(got, "(let ((k n)) (> k 0))") {
		t.Fatalf("expected the guard to bind k to the scrutinee n, got %s", got)
	}
	if !strings.Contains(got, "(let ((k n)) k)") {
		t.Fatalf("expected the body to bind k to the scrutinee n, got %s", got)
	}
}

func TestFormatRealAppendsDecimal(t *testing.T) {
	if got := formatReal(3); got != "3.0" {
		t.Fatalf("got %q", got)
	}
	if got := formatReal(-2.5); got != "(- 2.5)" {
		t.Fatalf("got %q", got)
	}
}
