package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/env"
	"github.com/sunholo/ailang/internal/errs"
	"github.com/sunholo/ailang/internal/smt"
)

// fakeSolver scripts CheckSat responses in call order, so gate logic can be
// tested without spawning a real z3 process.
type fakeSolver struct {
	asserts []string
	results []smt.CheckSatResult
	model   map[string]string
}

func (f *fakeSolver) DeclareConst(name string, sort smt.Sort) error { return nil }
func (f *fakeSolver) DeclareFun(name string, argSorts []smt.Sort, retSort smt.Sort) error {
	return nil
}
func (f *fakeSolver) Assert(formula string) error { f.asserts = append(f.asserts, formula); return nil }
func (f *fakeSolver) Push() error                 { return nil }
func (f *fakeSolver) Pop() error                  { return nil }
func (f *fakeSolver) CheckSat(ctx context.Context) (smt.CheckSatResult, error) {
	if len(f.results) == 0 {
		return smt.Unsat, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}
func (f *fakeSolver) GetModel() (map[string]string, error) { return f.model, nil }
func (f *fakeSolver) Close() error                         { return nil }

func intLit(n int64) *ast.Literal { return &ast.Literal{Kind: ast.LitInt, Int: n} }
func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

func TestGate0TrustLevelSkipsTrustedAtom(t *testing.T) {
	a := &ast.Atom{Name: "trusted_div", Trusted: true}
	skip, warn := gate0TrustLevel(a)
	if !skip || warn == nil || !warn.Warning {
		t.Fatalf("expected a skip with a warning report for a trusted atom")
	}
}

func TestGate3AsyncSuspensionSafetyFlagsAwaitUnderAcquire(t *testing.T) {
	a := &ast.Atom{
		Name:  "handler",
		Async: true,
		Body: &ast.Acquire{
			Resource: "conn",
			Body:     &ast.Await{X: &ast.Call{Callee: "fetch"}},
		},
	}
	reports := gate3AsyncSuspensionSafety(a)
	if len(reports) != 1 || reports[0].Code != "VER013" {
		t.Fatalf("expected one VER013 report, got %v", reports)
	}
}

func TestGate3AsyncSuspensionSafetyAllowsAwaitOutsideAcquire(t *testing.T) {
	a := &ast.Atom{
		Name:  "handler",
		Async: true,
		Body: &ast.Block{Exprs: []ast.Expr{
			&ast.Await{X: &ast.Call{Callee: "fetch"}},
			&ast.Acquire{Resource: "conn", Body: intLit(1)},
		}},
	}
	if reports := gate3AsyncSuspensionSafety(a); len(reports) != 0 {
		t.Fatalf("expected no reports, got %v", reports)
	}
}

func TestGate7LinearityFinalizationFlagsUseAfterConsume(t *testing.T) {
	a := &ast.Atom{
		Name:   "process",
		Params: []ast.AtomParam{{Name: "buf", Flag: ast.ParamOwned}},
		Body: &ast.Block{Exprs: []ast.Expr{
			&ast.Call{Callee: "consume", Args: []ast.Expr{ident("buf")}},
			&ast.Call{Callee: "consume_again", Args: []ast.Expr{ident("buf")}},
		}},
	}
	reports := gate7LinearityFinalization(env.New(), a)
	if len(reports) != 1 || reports[0].Code != "VER010" {
		t.Fatalf("expected one VER010 report, got %v", reports)
	}
}

func TestGate7LinearityFinalizationAllowsSingleConsume(t *testing.T) {
	a := &ast.Atom{
		Name:   "process",
		Params: []ast.AtomParam{{Name: "buf", Flag: ast.ParamOwned}},
		Body:   &ast.Call{Callee: "consume", Args: []ast.Expr{ident("buf")}},
	}
	if reports := gate7LinearityFinalization(env.New(), a); len(reports) != 0 {
		t.Fatalf("expected no reports, got %v", reports)
	}
}

func TestGate8TaintPropagationDowngradesReportsForUnverifiedCallee(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{Name: "risky", Unverified: true})
	a := &ast.Atom{Name: "wrapper", Body: &ast.Call{Callee: "risky"}}

	original := []*errs.Report{errs.New(errs.PhaseVerify, errs.VER002, "wrapper", "possible violation")}
	out := gate8TaintPropagation(e, a, original)

	if len(out) != 2 {
		t.Fatalf("expected a taint-note warning plus the downgraded original report, got %v", out)
	}
	for _, r := range out {
		if !r.Warning {
			t.Fatalf("expected every report to be downgraded to a warning, got %v", out)
		}
	}
}

func TestGate8TaintPropagationLeavesCleanAtomUntouched(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{Name: "safe"})
	a := &ast.Atom{Name: "wrapper", Body: &ast.Call{Callee: "safe"}}

	original := []*errs.Report{errs.New(errs.PhaseVerify, errs.VER002, "wrapper", "possible violation")}
	out := gate8TaintPropagation(e, a, original)
	if len(out) != 1 || out[0].Warning {
		t.Fatalf("expected the original report unchanged, got %v", out)
	}
}

func TestGate1ResourceHierarchyFlagsDecreasingPriority(t *testing.T) {
	e := env.New()
	_ = e.AddResource(&ast.Resource{Name: "lockA", Priority: 5})
	_ = e.AddResource(&ast.Resource{Name: "lockB", Priority: 1})
	a := &ast.Atom{
		Name: "transfer",
		Body: &ast.Acquire{Resource: "lockA", Body: &ast.Acquire{Resource: "lockB", Body: intLit(0)}},
	}
	_ = e.AddAtom(a)

	reports, err := gate1ResourceHierarchy(e)
	if err != nil {
		t.Fatalf("gate1ResourceHierarchy: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER012" {
		t.Fatalf("expected one VER012 report, got %v", reports)
	}
}

func TestGate5CallGraphCyclesFlagsUnrankedRecursion(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{Name: "a", Body: &ast.Call{Callee: "b"}})
	_ = e.AddAtom(&ast.Atom{Name: "b", Body: &ast.Call{Callee: "a"}})

	reports, err := gate5CallGraphCycles(e)
	if err != nil {
		t.Fatalf("gate5CallGraphCycles: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected both cycle members reported, got %v", reports)
	}
}

func TestGate6ContractDischargeChecksCalleePrecondition(t *testing.T) {
	e := env.New()
	callee := &ast.Atom{
		Name:     "double",
		Params:   []ast.AtomParam{{Name: "x"}},
		Requires: &ast.BinaryOp{Op: ">=", Left: ident("x"), Right: intLit(0)},
	}
	_ = e.AddAtom(callee)

	caller := &ast.Atom{
		Name:   "caller",
		Params: []ast.AtomParam{{Name: "y"}},
		Body:   &ast.Call{Callee: "double", Args: []ast.Expr{ident("y")}},
	}

	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat}, model: map[string]string{"y": "-1"}}
	tr := smt.NewTranslator()
	reports, err := gate6ContractDischarge(context.Background(), fs, tr, e, caller)
	if err != nil {
		t.Fatalf("gate6ContractDischarge: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER001" {
		t.Fatalf("expected one VER001 report, got %v", reports)
	}
}

func TestGate6ContractDischargeChecksOwnPostcondition(t *testing.T) {
	e := env.New()
	a := &ast.Atom{
		Name:    "negate",
		Ensures: &ast.BinaryOp{Op: ">", Left: ident("result"), Right: intLit(0)},
		Body:    intLit(-1),
	}
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat}, model: map[string]string{}}
	tr := smt.NewTranslator()
	reports, err := gate6ContractDischarge(context.Background(), fs, tr, e, a)
	if err != nil {
		t.Fatalf("gate6ContractDischarge: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER002" {
		t.Fatalf("expected one VER002 report, got %v", reports)
	}
}

func TestGate6ContractDischargePassesWhenUnsat(t *testing.T) {
	e := env.New()
	a := &ast.Atom{
		Name:    "one",
		Ensures: &ast.BinaryOp{Op: ">", Left: ident("result"), Right: intLit(0)},
		Body:    intLit(1),
	}
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Unsat}}
	tr := smt.NewTranslator()
	reports, err := gate6ContractDischarge(context.Background(), fs, tr, e, a)
	if err != nil {
		t.Fatalf("gate6ContractDischarge: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports, got %v", reports)
	}
}

func TestDischargeObligationsReportsDivisionByZero(t *testing.T) {
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat}, model: map[string]string{"b": "0"}}
	obligations := []smt.Obligation{{Kind: "division-by-zero", Formula: "(not (= b 0))"}}
	reports := dischargeObligations(context.Background(), fs, "divide", obligations, "body", "")
	if len(reports) != 1 || reports[0].Code != "VER006" {
		t.Fatalf("expected one VER006 report, got %v", reports)
	}
}

func TestDischargeObligationsReportsNonExhaustiveMatch(t *testing.T) {
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat}, model: map[string]string{"o__tag": "2"}}
	obligations := []smt.Obligation{{Kind: "non-exhaustive-match", Formula: "(or (= o__tag 0) (= o__tag 1))"}}
	reports := dischargeObligations(context.Background(), fs, "unwrap", obligations, "body", "")
	if len(reports) != 1 || reports[0].Code != "VER008" {
		t.Fatalf("expected one VER008 report, got %v", reports)
	}
}

func sumLoopAtom() *ast.Atom {
	return &ast.Atom{
		Name: "sum",
		Body: &ast.LetExpr{
			Name:  "s",
			Value: intLit(0),
			Rest: &ast.While{
				Cond:      &ast.BinaryOp{Op: "<", Left: ident("s"), Right: intLit(10)},
				Invariant: &ast.BinaryOp{Op: ">", Left: ident("s"), Right: intLit(0)},
				Body:      &ast.Assign{Name: "s", Value: &ast.BinaryOp{Op: "+", Left: ident("s"), Right: intLit(1)}},
			},
		},
	}
}

func TestGate4InductiveInvariantFlagsBadBaseCase(t *testing.T) {
	a := sumLoopAtom()
	// checkInvariantBase's CheckSat comes first, reporting the base-case
	// violation; checkInvariantPreservation's comes second and must stay
	// unsat so only the base-case report survives.
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat, smt.Unsat}, model: map[string]string{"s": "0"}}
	tr := smt.NewTranslator()
	reports, err := gate4InductiveInvariant(context.Background(), fs, tr, a)
	if err != nil {
		t.Fatalf("gate4InductiveInvariant: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER003" {
		t.Fatalf("expected one VER003 report for a bad base case, got %v", reports)
	}
	if !strings.Contains(reports[0].Message, "does not hold on entry") {
		t.Fatalf("expected a base-case message, got %q", reports[0].Message)
	}
}

func TestGate4InductiveInvariantFlagsBrokenPreservation(t *testing.T) {
	a := sumLoopAtom()
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Unsat, smt.Sat}, model: map[string]string{"s": "-1"}}
	tr := smt.NewTranslator()
	reports, err := gate4InductiveInvariant(context.Background(), fs, tr, a)
	if err != nil {
		t.Fatalf("gate4InductiveInvariant: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER003" {
		t.Fatalf("expected one VER003 report for broken preservation, got %v", reports)
	}
	if !strings.Contains(reports[0].Message, "not preserved") {
		t.Fatalf("expected a preservation message, got %q", reports[0].Message)
	}
}

func TestGate4InductiveInvariantPassesWhenBothHoldStraightLine(t *testing.T) {
	a := sumLoopAtom()
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Unsat, smt.Unsat}}
	tr := smt.NewTranslator()
	reports, err := gate4InductiveInvariant(context.Background(), fs, tr, a)
	if err != nil {
		t.Fatalf("gate4InductiveInvariant: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports when both checks are unsat, got %v", reports)
	}
}

func TestGate4InductiveInvariantHavocsBranchyBody(t *testing.T) {
	a := &ast.Atom{
		Name: "branchy",
		Body: &ast.LetExpr{
			Name:  "s",
			Value: intLit(0),
			Rest: &ast.While{
				Cond:      &ast.BinaryOp{Op: "<", Left: ident("s"), Right: intLit(10)},
				Invariant: &ast.BinaryOp{Op: ">=", Left: ident("s"), Right: intLit(0)},
				Body: &ast.IfExpr{
					Cond: &ast.BinaryOp{Op: ">", Left: ident("s"), Right: intLit(5)},
					Then: &ast.Assign{Name: "s", Value: intLit(0)},
					Else: &ast.Assign{Name: "s", Value: &ast.BinaryOp{Op: "+", Left: ident("s"), Right: intLit(1)}},
				},
			},
		},
	}
	// A branchy body can't be flattened, so checkInvariantPreservation must
	// fall back to havocing every written variable rather than panicking or
	// mis-translating the body.
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Unsat, smt.Unsat}}
	tr := smt.NewTranslator()
	reports, err := gate4InductiveInvariant(context.Background(), fs, tr, a)
	if err != nil {
		t.Fatalf("gate4InductiveInvariant: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected the havoc fallback to report nothing when unsat, got %v", reports)
	}
}

func TestGate6CheckBorrowAliasingFlagsAliasedRefMutParams(t *testing.T) {
	i64 := ast.TypeRef{Kind: ast.TRBase, Base: ast.I64}
	a := &ast.Atom{
		Name: "swap",
		Params: []ast.AtomParam{
			{Name: "p", Flag: ast.ParamRefMut, Type: i64},
			{Name: "q", Flag: ast.ParamRefMut, Type: i64},
		},
		Body: intLit(0),
	}
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat}, model: map[string]string{"p": "1", "q": "1"}}
	tr := smt.NewTranslator()
	reports, err := gate6ContractDischarge(context.Background(), fs, tr, env.New(), a)
	if err != nil {
		t.Fatalf("gate6ContractDischarge: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER011" {
		t.Fatalf("expected one VER011 report, got %v", reports)
	}
}

func TestGate6CheckBorrowAliasingAllowsDistinctRefMutParams(t *testing.T) {
	i64 := ast.TypeRef{Kind: ast.TRBase, Base: ast.I64}
	a := &ast.Atom{
		Name: "swap",
		Params: []ast.AtomParam{
			{Name: "p", Flag: ast.ParamRefMut, Type: i64},
			{Name: "q", Flag: ast.ParamRefMut, Type: i64},
		},
		Body: intLit(0),
	}
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Unsat}}
	tr := smt.NewTranslator()
	reports, err := gate6ContractDischarge(context.Background(), fs, tr, env.New(), a)
	if err != nil {
		t.Fatalf("gate6ContractDischarge: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports when aliasing is unsat, got %v", reports)
	}
}

func TestGate7LinearityFinalizationFlagsBorrowPassedToConsumingCallee(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{
		Name:   "sink",
		Params: []ast.AtomParam{{Name: "v", Flag: ast.ParamOwned}},
	})
	a := &ast.Atom{
		Name:   "caller",
		Params: []ast.AtomParam{{Name: "buf", Flag: ast.ParamRef}},
		Body:   &ast.Call{Callee: "sink", Args: []ast.Expr{ident("buf")}},
	}
	reports := gate7LinearityFinalization(e, a)
	if len(reports) != 1 || reports[0].Code != "VER011" {
		t.Fatalf("expected one VER011 report, got %v", reports)
	}
}

func TestGate7LinearityFinalizationAllowsBorrowPassedToBorrowingCallee(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{
		Name:   "peek",
		Params: []ast.AtomParam{{Name: "v", Flag: ast.ParamRef}},
	})
	a := &ast.Atom{
		Name:   "caller",
		Params: []ast.AtomParam{{Name: "buf", Flag: ast.ParamRef}},
		Body:   &ast.Call{Callee: "peek", Args: []ast.Expr{ident("buf")}},
	}
	if reports := gate7LinearityFinalization(e, a); len(reports) != 0 {
		t.Fatalf("expected no reports, got %v", reports)
	}
}

func eqTraitAndImpl(bodyOp string) (*ast.Trait, *ast.Impl) {
	trait := &ast.Trait{
		Name: "Eq",
		Methods: []ast.TraitMethod{
			{Name: "eq", Params: []ast.Field{{Name: "a"}, {Name: "b"}}, Returns: ast.TypeRef{Kind: ast.TRBase, Base: ast.Bool}},
		},
		Laws: []ast.Law{
			{Name: "reflexive", Body: &ast.Call{Callee: "eq", Args: []ast.Expr{ident("x"), ident("x")}}},
		},
	}
	impl := &ast.Impl{
		TraitName: "Eq",
		ForType:   ast.TypeRef{Kind: ast.TRNamed, Name: "Weird"},
		Methods: []ast.MethodBody{
			{Name: "eq", Params: []ast.Field{{Name: "a"}, {Name: "b"}},
				Body: &ast.BinaryOp{Op: bodyOp, Left: ident("a"), Right: ident("b")}},
		},
	}
	return trait, impl
}

func TestGate9LawVerificationFlagsViolatedLawAfterSubstitution(t *testing.T) {
	trait, impl := eqTraitAndImpl("!=")
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Sat}, model: map[string]string{"x": "0"}}
	tr := smt.NewTranslator()
	reports, err := gate9LawVerification(context.Background(), fs, tr, impl, trait)
	if err != nil {
		t.Fatalf("gate9LawVerification: %v", err)
	}
	if len(reports) != 1 || reports[0].Code != "VER009" {
		t.Fatalf("expected one VER009 report, got %v", reports)
	}
}

func TestGate9LawVerificationPassesForReflexiveImpl(t *testing.T) {
	trait, impl := eqTraitAndImpl("==")
	fs := &fakeSolver{results: []smt.CheckSatResult{smt.Unsat}}
	tr := smt.NewTranslator()
	reports, err := gate9LawVerification(context.Background(), fs, tr, impl, trait)
	if err != nil {
		t.Fatalf("gate9LawVerification: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports for a genuinely reflexive impl, got %v", reports)
	}
}

func TestExpandLawInlinesMethodBodyWithFormalsSubstituted(t *testing.T) {
	methods := map[string]*ast.MethodBody{
		"eq": {Name: "eq", Params: []ast.Field{{Name: "a"}, {Name: "b"}},
			Body: &ast.BinaryOp{Op: "==", Left: ident("a"), Right: ident("b")}},
	}
	law := &ast.Call{Callee: "eq", Args: []ast.Expr{ident("x"), ident("x")}}
	expanded := expandLaw(law, nil, methods, 0)
	bin, ok := expanded.(*ast.BinaryOp)
	if !ok {
		t.Fatalf("expected a BinaryOp after expansion, got %T", expanded)
	}
	left, ok := bin.Left.(*ast.Identifier)
	if !ok || left.Name != "x" {
		t.Fatalf("expected the left formal substituted with x, got %v", bin.Left)
	}
	right, ok := bin.Right.(*ast.Identifier)
	if !ok || right.Name != "x" {
		t.Fatalf("expected the right formal substituted with x, got %v", bin.Right)
	}
}
