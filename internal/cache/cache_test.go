package cache

import (
	"path/filepath"
	"testing"

	"github.com/sunholo/ailang/internal/ast"
)

func atomWithBody(body ast.Expr) *ast.Atom {
	return &ast.Atom{
		Name: "sum",
		Params: []ast.AtomParam{
			{Name: "n", Type: ast.TypeRef{Kind: ast.TRBase, Base: ast.I64}},
		},
		Body: body,
	}
}

func TestDigestStableAcrossCalls(t *testing.T) {
	a := atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 1})
	if Digest(a) != Digest(a) {
		t.Fatalf("digest is not stable across repeated calls")
	}
}

func TestDigestChangesWithBody(t *testing.T) {
	a1 := atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 1})
	a2 := atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 2})
	if Digest(a1) == Digest(a2) {
		t.Fatalf("expected distinct digests for distinct bodies")
	}
}

func TestDigestCoversNestedMatchArms(t *testing.T) {
	m1 := &ast.Match{
		Scrutinee: &ast.Identifier{Name: "n"},
		Arms: []ast.MatchArm{
			{Pattern: &ast.LiteralPattern{Value: &ast.Literal{Kind: ast.LitInt, Int: 0}}, Body: &ast.Literal{Kind: ast.LitInt, Int: 1}},
			{Pattern: &ast.WildcardPattern{}, Body: &ast.Literal{Kind: ast.LitInt, Int: 2}},
		},
	}
	m2 := &ast.Match{
		Scrutinee: &ast.Identifier{Name: "n"},
		Arms: []ast.MatchArm{
			{Pattern: &ast.LiteralPattern{Value: &ast.Literal{Kind: ast.LitInt, Int: 0}}, Body: &ast.Literal{Kind: ast.LitInt, Int: 1}},
			{Pattern: &ast.WildcardPattern{}, Body: &ast.Literal{Kind: ast.LitInt, Int: 99}}, // different arm body
		},
	}
	if Digest(atomWithBody(m1)) == Digest(atomWithBody(m2)) {
		t.Fatalf("expected a changed match-arm body to change the digest")
	}
}

func TestCacheHitAfterStore(t *testing.T) {
	c := New("")
	d := Digest(atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 1}))
	if c.Hit("sum", d) {
		t.Fatalf("expected a miss before storing")
	}
	c.Store("sum", d)
	if !c.Hit("sum", d) {
		t.Fatalf("expected a hit after storing")
	}
	if c.Hit("sum", "different-digest") {
		t.Fatalf("expected a miss for a changed digest")
	}
}

func TestCachePurgeRemovesEntry(t *testing.T) {
	c := New("")
	d := Digest(atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 1}))
	c.Store("sum", d)
	c.Purge("sum")
	if c.Hit("sum", d) {
		t.Fatalf("expected a miss after purging")
	}
}

func TestCacheSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".mumei_cache")

	c := New(path)
	d := Digest(atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 1}))
	c.Store("sum", d)
	c.Store("push", Digest(atomWithBody(&ast.Literal{Kind: ast.LitInt, Int: 2})))

	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Hit("sum", d) {
		t.Fatalf("expected sum to round-trip through save/load")
	}
	names := loaded.Names()
	if len(names) != 2 || names[0] != "push" || names[1] != "sum" {
		t.Fatalf("expected [push sum], got %v", names)
	}
}

func TestCacheLoadMissingFileReturnsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope", ".mumei_cache"))
	if err != nil {
		t.Fatalf("Load of a missing file should not error, got %v", err)
	}
	if len(c.Names()) != 0 {
		t.Fatalf("expected an empty cache, got %v", c.Names())
	}
}
