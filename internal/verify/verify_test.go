package verify

import (
	"context"
	"testing"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/cache"
	"github.com/sunholo/ailang/internal/env"
)

// These tests exercise only the paths that never spawn a solver process
// (trusted atoms, signature-only declarations, cache hits) so they run
// without a z3 binary on $PATH, matching internal/smt's own test style.

func TestVerifyAllPassesTrustedAtomWithoutSolver(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{Name: "legacy_div", Trusted: true, Body: intLit(1)})

	v := New(e, DefaultConfig())
	run, err := v.VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if !run.Passed {
		t.Fatalf("expected the run to pass, got %+v", run.Results)
	}
	if !e.IsVerified("legacy_div") {
		t.Fatalf("expected legacy_div to be marked verified")
	}
}

func TestVerifyAllPassesSignatureOnlyAtomWithoutSolver(t *testing.T) {
	e := env.New()
	_ = e.AddAtom(&ast.Atom{Name: "extern_sqrt"}) // Body is nil

	v := New(e, DefaultConfig())
	run, err := v.VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if !run.Passed {
		t.Fatalf("expected the run to pass, got %+v", run.Results)
	}
}

func TestVerifyAtomShortCircuitsOnCacheHit(t *testing.T) {
	e := env.New()
	a := &ast.Atom{Name: "pure_add", Body: intLit(1)}
	_ = e.AddAtom(a)

	c := cache.New("")
	c.Store("pure_add", cache.Digest(a))

	cfg := DefaultConfig()
	cfg.Cache = c
	v := New(e, cfg)

	result, err := v.verifyAtom(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("verifyAtom: %v", err)
	}
	if !result.Passed || len(result.Reports) != 0 {
		t.Fatalf("expected a clean cache-hit pass, got %+v", result)
	}
}

func TestVerifyAtomMissesCacheAfterBodyChanges(t *testing.T) {
	e := env.New()
	original := &ast.Atom{Name: "pure_add", Body: intLit(1)}

	c := cache.New("")
	c.Store("pure_add", cache.Digest(original))

	changed := &ast.Atom{Name: "pure_add", Body: intLit(2)}
	_ = e.AddAtom(changed)

	cfg := DefaultConfig()
	cfg.Cache = c
	v := New(e, cfg)

	if c.Hit(changed.Name, cache.Digest(changed)) {
		t.Fatalf("expected a changed body to miss the cache")
	}
}
