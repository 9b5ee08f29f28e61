package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sunholo/ailang/internal/ast"
)

// fakeParse implements a tiny test-only textual format so these tests don't
// need the (external) real lexer/parser:
//   import <path> [as <alias>]
//   atom <name>
func fakeParse(path string, content []byte) (*ast.Program, error) {
	prog := &ast.Program{Path: path}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "import":
			imp := &ast.Import{Path: fields[1]}
			if len(fields) >= 4 && fields[2] == "as" {
				imp.Alias = fields[3]
			}
			prog.Imports = append(prog.Imports, imp)
		case "atom":
			prog.Atoms = append(prog.Atoms, &ast.Atom{Name: fields[1]})
		default:
			return nil, fmt.Errorf("fakeParse: unknown line %q", line)
		}
	}
	return prog, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveSimpleImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.mm"), "import util\natom main")
	writeFile(t, filepath.Join(root, "util.mm"), "atom helper")

	r := New(root, fakeParse, nil)
	e, err := r.Resolve(filepath.Join(root, "main.mm"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := e.LookupAtom("main"); !ok {
		t.Fatalf("expected main atom to be registered")
	}
	if _, ok := e.LookupAtom("helper"); !ok {
		t.Fatalf("expected transitively imported helper atom to be registered")
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mm"), "import b\natom a_fn")
	writeFile(t, filepath.Join(root, "b.mm"), "import a\natom b_fn")

	r := New(root, fakeParse, nil)
	_, err := r.Resolve(filepath.Join(root, "a.mm"))
	if err == nil {
		t.Fatalf("expected circular import error")
	}
	if !strings.Contains(err.Error(), "RES002") {
		t.Fatalf("expected RES002 cyclic import code, got: %v", err)
	}
}

func TestResolveMissingImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.mm"), "import nope\natom main")

	r := New(root, fakeParse, nil)
	_, err := r.Resolve(filepath.Join(root, "main.mm"))
	if err == nil {
		t.Fatalf("expected unresolved-import error")
	}
	if !strings.Contains(err.Error(), "RES001") {
		t.Fatalf("expected RES001 code, got: %v", err)
	}
}

func TestResolveDuplicateAtomAcrossImports(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.mm"), "import a\nimport b\natom main")
	writeFile(t, filepath.Join(root, "a.mm"), "atom shared")
	writeFile(t, filepath.Join(root, "b.mm"), "atom shared")

	r := New(root, fakeParse, nil)
	_, err := r.Resolve(filepath.Join(root, "main.mm"))
	if err == nil {
		t.Fatalf("expected duplicate atom name error across imports")
	}
	if !strings.Contains(err.Error(), "RES003") {
		t.Fatalf("expected RES003 code, got: %v", err)
	}
}

func TestResolveAliasing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.mm"), "import util as U\natom main")
	writeFile(t, filepath.Join(root, "util.mm"), "atom helper")

	r := New(root, fakeParse, nil)
	e, err := r.Resolve(filepath.Join(root, "main.mm"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := e.LookupAtom("helper"); !ok {
		t.Fatalf("expected unaliased name to remain resolvable")
	}
	if _, ok := e.LookupAtom("U::helper"); !ok {
		t.Fatalf("expected aliased name U::helper to be registered")
	}
}

func TestStdPathSearchViaEnvVar(t *testing.T) {
	stdRoot := t.TempDir()
	writeFile(t, filepath.Join(stdRoot, "prelude.mm"), "atom prelude_fn")
	t.Setenv("MUMEI_STD_PATH", stdRoot)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.mm"), "atom main")

	r := New(root, fakeParse, nil)
	e, err := r.Resolve(filepath.Join(root, "main.mm"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := e.LookupAtom("prelude_fn"); !ok {
		t.Fatalf("expected prelude to be auto-loaded from MUMEI_STD_PATH")
	}
}
