// Package cache implements the per-atom on-disk proof cache: a file keyed
// by atom name to a SHA-256 digest of everything that could change that
// atom's verification outcome. A digest match lets the verifier skip
// Gate 0-9 entirely for that atom; any mismatch, or a missing entry, sends
// it back through full verification.
//
// Grounded on internal/manifest/manifest.go's Load/Save/atomic-rename shape
// and its sha256/hex digest convention; the atomic write-temp-then-rename
// step itself is plain Go practice, not reproduced from a single pack file,
// since no third-party atomic-file-replace library appears anywhere in the
// retrieval pack.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sunholo/ailang/internal/ast"
)

// DefaultPath is the verification cache file name (spec.md's
// .mumei_cache), relative to the project root.
const DefaultPath = ".mumei_cache"

// Entry is one atom's cache record: the digest it was last verified
// under, and the run ID that produced it (useful for diagnosing stale
// entries across incremental builds, not consulted for hit/miss decisions).
type Entry struct {
	Digest string `json:"digest"`
	RunID  string `json:"run_id,omitempty"`
}

// Cache is the in-memory form of .mumei_cache: atom name -> Entry.
// Safe for concurrent reads; writes are expected to come from the
// single-threaded verification core (spec.md's cooperative scheduling
// model), so Cache itself only guards against concurrent Load/Save races
// from, e.g., a `mumei serve` handler reading it mid-rebuild.
type Cache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
}

// New returns an empty cache bound to path (not yet loaded from disk).
func New(path string) *Cache {
	return &Cache{path: path, entries: make(map[string]Entry)}
}

// Load reads path from disk. A missing file is not an error: it means an
// empty cache, the state of a project's first build.
func Load(path string) (*Cache, error) {
	c := New(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("cache: reading %s: %w", path, err)
	}
	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cache: parsing %s: %w", path, err)
	}
	c.entries = raw
	return c, nil
}

// Save writes the cache to disk atomically: marshal to a temp file in the
// same directory, then rename over the destination. A crash mid-write
// leaves the previous file intact (spec.md §5's "no partial state on
// crash" requirement).
func (c *Cache) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("cache: marshaling: %w", err)
	}

	dir := filepath.Dir(c.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".mumei_cache.*.tmp")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("cache: renaming into place: %w", err)
	}
	return nil
}

// Digest computes the SHA-256 hash of everything about an atom that
// affects its verification outcome: name, requires, ensures, body,
// per-parameter consume/ref markers, decreases, invariant, max_unroll
// (spec.md §4.6's exact field list).
func Digest(a *ast.Atom) string {
	var b strings.Builder
	b.WriteString(a.Name)
	b.WriteByte('|')
	for _, p := range a.Params {
		b.WriteString(p.Name)
		b.WriteByte(':')
		b.WriteString(p.Flag.String())
		b.WriteByte(':')
		b.WriteString(p.Type.String())
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(canonical(a.Requires))
	b.WriteByte('|')
	b.WriteString(canonical(a.Ensures))
	b.WriteByte('|')
	b.WriteString(canonical(a.Body))
	b.WriteByte('|')
	b.WriteString(canonical(a.Invariant))
	b.WriteByte('|')
	b.WriteString(canonical(a.Decreases))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(a.MaxUnroll))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(a.Trusted))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(a.Unverified))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(a.Async))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonical renders an expression tree into a form stable across runs but
// sensitive to any change in its content, recursing fully into every node
// kind (unlike the individual Expr.String() methods, several of which
// print a shallow placeholder for brevity — Match's, for one).
func canonical(e ast.Expr) string {
	if e == nil {
		return "<nil>"
	}
	switch n := e.(type) {
	case *ast.Identifier:
		return "id:" + n.Name
	case *ast.SelfExpr:
		return "self"
	case *ast.Literal:
		return n.String()
	case *ast.UnaryOp:
		return fmt.Sprintf("(%s %s)", n.Op, canonical(n.X))
	case *ast.BinaryOp:
		return fmt.Sprintf("(%s %s %s)", canonical(n.Left), n.Op, canonical(n.Right))
	case *ast.IfExpr:
		return fmt.Sprintf("(if %s %s %s)", canonical(n.Cond), canonical(n.Then), canonical(n.Else))
	case *ast.LetExpr:
		return fmt.Sprintf("(let %s %s %s)", n.Name, canonical(n.Value), canonical(n.Rest))
	case *ast.Block:
		parts := make([]string, len(n.Exprs))
		for i, x := range n.Exprs {
			parts[i] = canonical(x)
		}
		return "(block " + strings.Join(parts, " ") + ")"
	case *ast.Assign:
		return fmt.Sprintf("(assign %s %s)", n.Name, canonical(n.Value))
	case *ast.While:
		return fmt.Sprintf("(while %s inv=%s dec=%s %s)",
			canonical(n.Cond), canonical(n.Invariant), canonical(n.Decreases), canonical(n.Body))
	case *ast.Match:
		arms := make([]string, len(n.Arms))
		for i, arm := range n.Arms {
			arms[i] = fmt.Sprintf("(arm %s guard=%s %s)", canonicalPattern(arm.Pattern), canonical(arm.Guard), canonical(arm.Body))
		}
		return fmt.Sprintf("(match %s %s)", canonical(n.Scrutinee), strings.Join(arms, " "))
	case *ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = canonical(a)
		}
		return fmt.Sprintf("(call %s %s)", n.Callee, strings.Join(args, " "))
	case *ast.Quantifier:
		kind := "forall"
		if n.Kind == ast.Exists {
			kind = "exists"
		}
		return fmt.Sprintf("(%s %s %s %s %s)", kind, n.Var, canonical(n.Lo), canonical(n.Hi), canonical(n.Pred))
	case *ast.Index:
		return fmt.Sprintf("(index %s %s)", canonical(n.Array), canonical(n.Idx))
	case *ast.StructInit:
		fields := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = fmt.Sprintf("%s=%s", f.Name, canonical(f.Value))
		}
		sort.Strings(fields)
		return fmt.Sprintf("(struct %s %s)", n.TypeName, strings.Join(fields, " "))
	case *ast.FieldAccess:
		return fmt.Sprintf("(field %s %s)", canonical(n.Recv), n.Field)
	case *ast.Acquire:
		return fmt.Sprintf("(acquire %s %s)", n.Resource, canonical(n.Body))
	case *ast.Await:
		return fmt.Sprintf("(await %s)", canonical(n.X))
	default:
		return fmt.Sprintf("%T:%v", e, e)
	}
}

// canonicalPattern is canonical's counterpart for match-arm patterns,
// which live on a separate ast.Pattern interface.
func canonicalPattern(p ast.Pattern) string {
	if p == nil {
		return "<nil>"
	}
	switch n := p.(type) {
	case *ast.LiteralPattern:
		return "lit:" + n.Value.String()
	case *ast.BindPattern:
		return "bind:" + n.Name
	case *ast.VariantPattern:
		fields := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = canonicalPattern(f)
		}
		return fmt.Sprintf("variant:%s::%s(%s)", n.EnumName, n.VariantName, strings.Join(fields, ","))
	case *ast.WildcardPattern:
		return "_"
	default:
		return fmt.Sprintf("%T:%v", p, p)
	}
}

// Hit reports whether name's current digest matches the cached one. A
// false return covers both "never verified" and "verified, but something
// changed" — callers don't need to distinguish the two.
func (c *Cache) Hit(name, digest string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return ok && e.Digest == digest
}

// Store records name as verified under digest, stamped with a fresh run
// ID (grounded on funvibe-funxy's use of google/uuid for run/request
// identifiers).
func (c *Cache) Store(name, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = Entry{Digest: digest, RunID: uuid.NewString()}
}

// Purge removes name's entry, used when an atom that previously verified
// now fails (spec.md §9's "a failing atom is removed from the
// verified-cache").
func (c *Cache) Purge(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Names returns every cached atom name, sorted.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
