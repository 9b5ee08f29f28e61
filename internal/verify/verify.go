// Package verify implements L6, the verifying compiler's core: ten
// independent proof gates (0-9) that discharge every Atom's contract
// against its body, plus the whole-program resource-hierarchy and
// call-graph checks that cannot be stated per atom.
//
// Gates 1 and 5 are evaluated once, up front, as Datalog queries
// (datalog.go) since spec.md §9 frames them as relations over names rather
// than ownership. Gates 0, 2, 3, 4, 6, 7, 8 run per atom (gates.go),
// sharing one SMT solver session per atom so push/pop scoping keeps each
// obligation's assertions isolated without paying a process-spawn cost per
// check. Gate 9 runs once per trait impl with laws, after the atoms, on its
// own solver session per impl. When a Config.Cache is set, an atom whose cache.Digest matches a
// stored entry (and that drew no whole-program Datalog report this run)
// skips the gate pipeline entirely and is reported verified straight away.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/cache"
	"github.com/sunholo/ailang/internal/env"
	"github.com/sunholo/ailang/internal/errs"
	"github.com/sunholo/ailang/internal/smt"
)

// Config controls one verification run: a flat struct of
// independently-toggleable options rather than functional options, since
// every field here is set once from mumei.yaml or CLI flags and never
// threaded through closures.
type Config struct {
	// SolverBinary is the path to an SMT-LIB2 process solver, "z3" by
	// default (on $PATH).
	SolverBinary string

	// Timeout bounds a single CheckSat call. Exceeding it produces a
	// VER014 report rather than blocking forever.
	Timeout time.Duration

	// MaxUnroll is the default Gate 2 bound for a While loop that does
	// not set its own MaxUnroll.
	MaxUnroll int

	// SkipGates, when non-empty, names gates to omit entirely (e.g.
	// ["9"] to skip law verification during a quick local check).
	SkipGates map[string]bool

	// Cache, when non-nil, is consulted before Gate 0 for each atom
	// (spec.md §4.6): a digest hit short-circuits straight to "verified"
	// without spending a solver session. Entries are stored on success
	// and purged on failure. Nil disables caching entirely (every atom
	// runs the full gate pipeline every time).
	Cache *cache.Cache

	Log *zap.Logger
}

// DefaultConfig returns the configuration `mumei verify` runs with when no
// mumei.yaml overrides are present.
func DefaultConfig() Config {
	return Config{
		SolverBinary: "z3",
		Timeout:      5 * time.Second,
		MaxUnroll:    16,
		SkipGates:    map[string]bool{},
		Log:          zap.NewNop(),
	}
}

// Result is one atom's verification outcome.
type Result struct {
	AtomName string
	Passed   bool
	Reports  []*errs.Report
	Duration time.Duration
}

// RunResult is the whole-run summary returned by VerifyAll: per-atom
// results plus per-phase timings in milliseconds, following the same PhaseTimings-as-milliseconds convention used
// elsewhere in this codebase's pipeline results.
type RunResult struct {
	Results      []Result
	PhaseTimings map[string]int64
	Passed       bool
}

// Verifier runs the gate pipeline against one ModuleEnv.
type Verifier struct {
	env *env.ModuleEnv
	cfg Config
}

// New returns a Verifier for e configured by cfg. A zero Config is
// replaced with DefaultConfig's values field by field where unset.
func New(e *env.ModuleEnv, cfg Config) *Verifier {
	if cfg.SolverBinary == "" {
		cfg.SolverBinary = "z3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxUnroll == 0 {
		cfg.MaxUnroll = 16
	}
	if cfg.SkipGates == nil {
		cfg.SkipGates = map[string]bool{}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Verifier{env: e, cfg: cfg}
}

// VerifyAll runs every gate over every atom in the environment, plus the
// whole-program Gates 1 and 5, and marks each passing atom verified in the
// environment. A per-atom failure does not stop verification of sibling
// atoms (spec.md §7's isolation policy); a solver start failure does,
// since no gate can run at all without one.
func (v *Verifier) VerifyAll(ctx context.Context) (RunResult, error) {
	run := RunResult{PhaseTimings: make(map[string]int64), Passed: true}
	log := v.cfg.Log.With(zap.Int("atoms", len(v.env.Atoms())))

	start := time.Now()
	globalReports := make(map[string][]*errs.Report)
	if !v.cfg.SkipGates["1"] {
		reports, err := gate1ResourceHierarchy(v.env)
		if err != nil {
			return run, fmt.Errorf("verify: gate 1: %w", err)
		}
		for _, r := range reports {
			globalReports[r.Atom] = append(globalReports[r.Atom], r)
		}
	}
	if !v.cfg.SkipGates["5"] {
		reports, err := gate5CallGraphCycles(v.env)
		if err != nil {
			return run, fmt.Errorf("verify: gate 5: %w", err)
		}
		for _, r := range reports {
			globalReports[r.Atom] = append(globalReports[r.Atom], r)
		}
	}
	run.PhaseTimings["datalog_gates"] = time.Since(start).Milliseconds()

	lawsByType := make(map[string][]*ast.Impl)
	for _, impl := range v.env.Impls() {
		lawsByType[impl.TraitName] = append(lawsByType[impl.TraitName], impl)
	}

	for _, a := range v.env.Atoms() {
		atomStart := time.Now()
		result, err := v.verifyAtom(ctx, a, globalReports[a.Name])
		if err != nil {
			return run, fmt.Errorf("verify: atom %s: %w", a.Name, err)
		}
		result.Duration = time.Since(atomStart)
		run.Results = append(run.Results, result)
		if result.Passed {
			v.env.MarkVerified(a.Name)
		} else {
			run.Passed = false
			v.env.Unverify(a.Name)
		}
		log.Debug("verified atom",
			zap.String("atom", a.Name),
			zap.Bool("passed", result.Passed),
			zap.Duration("took", result.Duration))
	}

	if !v.cfg.SkipGates["9"] {
		lawStart := time.Now()
		lawResults, err := v.verifyLaws(ctx)
		if err != nil {
			return run, fmt.Errorf("verify: gate 9: %w", err)
		}
		run.Results = append(run.Results, lawResults...)
		for _, r := range lawResults {
			if !r.Passed {
				run.Passed = false
			}
		}
		run.PhaseTimings["law_verification"] = time.Since(lawStart).Milliseconds()
	}

	return run, nil
}

func (v *Verifier) verifyAtom(ctx context.Context, a *ast.Atom, seeded []*errs.Report) (Result, error) {
	result := Result{AtomName: a.Name}
	collector := &errs.Collector{}
	for _, r := range seeded {
		collector.Add(r)
	}

	// A cache hit only short-circuits when nothing from the whole-program
	// Datalog gates flagged this atom this run; those can't be known to
	// the cache's per-atom digest and must still be reported even on an
	// otherwise-unchanged atom.
	digest := ""
	if v.cfg.Cache != nil {
		digest = cache.Digest(a)
		if len(seeded) == 0 && v.cfg.Cache.Hit(a.Name, digest) {
			result.Reports = collector.Reports()
			result.Passed = true
			return result, nil
		}
	}

	if skip, warn := gate0TrustLevel(a); skip {
		if warn != nil {
			collector.Add(warn)
		}
		result.Reports = collector.Reports()
		result.Passed = !collector.Fatal()
		return result, nil
	}

	if a.Body == nil {
		// Signature-only declaration: nothing to symbolically execute.
		result.Reports = collector.Reports()
		result.Passed = !collector.Fatal()
		return result, nil
	}

	atomCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	solver, err := smt.NewProcessSolver(atomCtx, v.cfg.SolverBinary, v.cfg.Log)
	if err != nil {
		return result, fmt.Errorf("starting solver: %w", err)
	}
	defer solver.Close()

	tr := smt.NewTranslator()
	tr.EnumLookup = v.env.LookupEnum
	declareParams(solver, a)

	if !v.cfg.SkipGates["3"] {
		for _, r := range gate3AsyncSuspensionSafety(a) {
			collector.Add(r)
		}
	}
	if !v.cfg.SkipGates["7"] {
		for _, r := range gate7LinearityFinalization(v.env, a) {
			collector.Add(r)
		}
	}
	if !v.cfg.SkipGates["2"] {
		reports, err := gate2BoundedModelCheck(atomCtx, solver, tr, a, v.cfg.MaxUnroll)
		if err != nil {
			return result, err
		}
		for _, r := range reports {
			collector.Add(r)
		}
	}
	if !v.cfg.SkipGates["4"] {
		reports, err := gate4InductiveInvariant(atomCtx, solver, tr, a)
		if err != nil {
			return result, err
		}
		for _, r := range reports {
			collector.Add(r)
		}
	}
	if !v.cfg.SkipGates["6"] {
		reports, err := gate6ContractDischarge(atomCtx, solver, tr, v.env, a)
		if err != nil {
			return result, err
		}
		for _, r := range reports {
			collector.Add(r)
		}
	}

	reports := gate8TaintPropagation(v.env, a, collector.Reports())
	if a.Unverified {
		for _, r := range reports {
			r.Warning = true
		}
	}
	result.Reports = reports
	result.Passed = true
	for _, r := range reports {
		if !r.Warning {
			result.Passed = false
			break
		}
	}

	if v.cfg.Cache != nil {
		if result.Passed {
			v.cfg.Cache.Store(a.Name, digest)
		} else {
			v.cfg.Cache.Purge(a.Name)
		}
	}

	return result, nil
}

// verifyLaws runs Gate 9 over every registered Impl with algebraic Laws and
// returns one Result per impl, named "impl <Trait> for <Type>" so a
// LawViolated report surfaces through the same Results/Passed path as every
// other gate's findings instead of only reaching a log line: a LawViolated
// is a non-warning error (spec.md §7), so it must flip run.Passed and the
// process's exit code like any other report.
func (v *Verifier) verifyLaws(ctx context.Context) ([]Result, error) {
	var out []Result
	for _, impl := range v.env.Impls() {
		trait, ok := v.env.LookupTrait(impl.TraitName)
		if !ok || len(trait.Laws) == 0 {
			continue
		}
		implStart := time.Now()
		lawCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
		solver, err := smt.NewProcessSolver(lawCtx, v.cfg.SolverBinary, v.cfg.Log)
		if err != nil {
			cancel()
			return out, fmt.Errorf("starting solver for impl %s for %s: %w", impl.TraitName, impl.ForType, err)
		}
		tr := smt.NewTranslator()
		tr.EnumLookup = v.env.LookupEnum
		reports, err := gate9LawVerification(lawCtx, solver, tr, impl, trait)
		solver.Close()
		cancel()
		if err != nil {
			return out, err
		}

		passed := true
		for _, r := range reports {
			if r.Warning {
				v.cfg.Log.Warn("law verification warning",
					zap.String("trait", impl.TraitName), zap.String("type", impl.ForType.String()), zap.String("message", r.Message))
				continue
			}
			passed = false
			v.cfg.Log.Error("law verification failure",
				zap.String("trait", impl.TraitName), zap.String("type", impl.ForType.String()), zap.String("message", r.Message))
		}
		out = append(out, Result{
			AtomName: fmt.Sprintf("impl %s for %s", impl.TraitName, impl.ForType),
			Passed:   passed,
			Reports:  reports,
			Duration: time.Since(implStart),
		})
	}
	return out, nil
}

func declareParams(s smt.Solver, a *ast.Atom) {
	for _, p := range a.Params {
		_ = s.DeclareConst(p.Name, smt.SortOf(baseKindOf(p.Type)))
	}
}

func baseKindOf(t ast.TypeRef) ast.BaseKind {
	if t.Kind == ast.TRBase {
		return t.Base
	}
	return ast.I64
}
