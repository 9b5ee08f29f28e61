// Package resolver implements L3: transitive import resolution, prelude
// auto-loading, circular-import detection, and std-path search, producing a
// fully-populated env.ModuleEnv. The surface tokenizer/parser is an
// external collaborator (spec.md §1); this package only needs a function
// that turns a file's bytes into an *ast.Program.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/env"
	"github.com/sunholo/ailang/internal/errs"
)

// ParseFunc parses one source file into its AST. Supplied by the external
// front-end; the resolver never tokenizes or parses itself.
type ParseFunc func(path string, content []byte) (*ast.Program, error)

const preludeImport = "std/prelude"

// color tags a node's DFS state for cycle detection (spec.md §4.2).
type color int

const (
	white color = iota
	grey
	black
)

// Resolver walks import declarations into a populated ModuleEnv.
type Resolver struct {
	Parse ParseFunc
	Log   *zap.Logger

	projectRoot string
	compilerDir string
	stdEnvPaths []string

	units  map[string]*unit // identity -> loaded unit
	colors map[string]color
	stack  []string
}

type unit struct {
	identity string
	filePath string
	program  *ast.Program
}

// New creates a Resolver rooted at projectRoot (the directory containing
// `base/std/`). A nil logger is replaced with zap.NewNop().
func New(projectRoot string, parse ParseFunc, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	compilerDir := "."
	if exe, err := os.Executable(); err == nil {
		compilerDir = filepath.Dir(exe)
	}
	var stdEnvPaths []string
	if v := os.Getenv("MUMEI_STD_PATH"); v != "" {
		stdEnvPaths = strings.Split(v, string(os.PathListSeparator))
	}
	return &Resolver{
		Parse:       parse,
		Log:         log,
		projectRoot: projectRoot,
		compilerDir: compilerDir,
		stdEnvPaths: stdEnvPaths,
		units:       make(map[string]*unit),
		colors:      make(map[string]color),
	}
}

// Resolve loads the prelude, then rootPath, then every transitively
// imported module, and populates a fresh env.ModuleEnv with the result.
func (r *Resolver) Resolve(rootPath string) (*env.ModuleEnv, error) {
	e := env.New()

	// The prelude is auto-loaded first, regardless of user imports.
	if preludePath, err := r.searchStd(preludeImport); err == nil {
		if _, err := r.load(preludeImport, preludePath); err != nil {
			return nil, err
		}
	} else {
		r.Log.Debug("no prelude found on std search path; continuing without it")
	}

	rootIdentity := identityFromPath(rootPath)
	if _, err := r.load(rootIdentity, rootPath); err != nil {
		return nil, err
	}

	// Populate the environment from every loaded unit, import-graph order
	// first (so aliasing below sees a stable dependency order), aliasing
	// resolved from each unit's own import list.
	for _, id := range r.loadOrder() {
		u := r.units[id]
		if err := r.populate(e, u); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// loadOrder returns loaded unit identities in the order they completed
// loading (dependencies before dependents), derived from the DFS stack
// discipline in load: a unit only turns black after all its imports have.
func (r *Resolver) loadOrder() []string {
	order := make([]string, 0, len(r.units))
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		u, ok := r.units[id]
		if !ok {
			return
		}
		for _, imp := range u.program.Imports {
			visit(identityFromImport(imp))
		}
		order = append(order, id)
	}
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}

func identityFromImport(imp *ast.Import) string {
	return identityFromPath(imp.Path)
}

func identityFromPath(p string) string {
	p = strings.TrimSuffix(p, ".mm")
	return strings.ReplaceAll(p, "\\", "/")
}

// load resolves, parses, and recursively loads importPath's dependencies,
// using identity (the normalized import path) as the cache and cycle key.
func (r *Resolver) load(identity, filePath string) (*unit, error) {
	if u, ok := r.units[identity]; ok {
		return u, nil
	}

	switch r.colors[identity] {
	case grey:
		cycle := append(append([]string{}, r.stack...), identity)
		return nil, errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES002, "",
			fmt.Sprintf("circular import: %s", strings.Join(cycle, " -> "))).
			WithData(map[string]any{"cycle": cycle}))
	case black:
		return r.units[identity], nil
	}

	r.colors[identity] = grey
	r.stack = append(r.stack, identity)
	defer func() {
		r.stack = r.stack[:len(r.stack)-1]
		r.colors[identity] = black
	}()

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES001, "",
			fmt.Sprintf("module not found: %s (%v)", identity, err)))
	}
	content = normalizeSource(content)

	prog, err := r.Parse(filePath, content)
	if err != nil {
		return nil, err
	}

	u := &unit{identity: identity, filePath: filePath, program: prog}
	r.units[identity] = u
	r.Log.Debug("loaded module", zap.String("identity", identity), zap.String("path", filePath))

	for _, imp := range prog.Imports {
		depIdentity := identityFromImport(imp)
		depPath, err := r.resolveImportPath(imp.Path, filePath)
		if err != nil {
			return nil, errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES001, "",
				fmt.Sprintf("unresolved import %q in %s: %v", imp.Path, identity, err)))
		}
		if _, err := r.load(depIdentity, depPath); err != nil {
			return nil, err
		}
	}

	return u, nil
}

// resolveImportPath resolves an import path relative to currentFile using
// the std search order; non-stdlib imports are first looked for alongside
// currentFile, then the project root.
func (r *Resolver) resolveImportPath(importPath, currentFile string) (string, error) {
	if strings.HasPrefix(importPath, "std/") {
		return r.searchStd(importPath)
	}

	rel := withExt(filepath.Join(filepath.Dir(currentFile), importPath))
	if _, err := os.Stat(rel); err == nil {
		return rel, nil
	}
	fromRoot := withExt(filepath.Join(r.projectRoot, importPath))
	if _, err := os.Stat(fromRoot); err == nil {
		return fromRoot, nil
	}
	return "", fmt.Errorf("not found on any search path")
}

// searchStd implements the std-path search order from spec.md §4.2: project
// root base/std/<x>.mm; directory of the compiler binary; current working
// directory; MUMEI_STD_PATH. First hit wins.
func (r *Resolver) searchStd(importPath string) (string, error) {
	rel := strings.TrimPrefix(importPath, "std/")
	candidates := []string{
		filepath.Join(r.projectRoot, "base", "std", rel),
		filepath.Join(r.compilerDir, "std", rel),
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "std", rel))
	}
	for _, root := range r.stdEnvPaths {
		candidates = append(candidates, filepath.Join(root, rel))
	}
	for _, c := range candidates {
		p := withExt(c)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("stdlib module not found: %s", importPath)
}

func withExt(p string) string {
	if strings.HasSuffix(p, ".mm") {
		return p
	}
	return p + ".mm"
}

// populate inserts a unit's declarations into e, honoring aliasing: an
// "as alias" import additionally registers the imported unit's atoms under
// "alias::name". Duplicate top-level names are rejected for atoms;
// identically redeclared refined types are tolerated by env.AddType.
func (r *Resolver) populate(e *env.ModuleEnv, u *unit) error {
	p := u.program
	for _, t := range p.Types {
		if err := e.AddType(t); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, t.Name, err.Error()))
		}
	}
	for _, s := range p.Structs {
		if err := e.AddStruct(s); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, s.Name, err.Error()))
		}
	}
	for _, en := range p.Enums {
		if err := e.AddEnum(en); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, en.Name, err.Error()))
		}
	}
	for _, tr := range p.Traits {
		if err := e.AddTrait(tr); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, tr.Name, err.Error()))
		}
	}
	for _, im := range p.Impls {
		if err := e.AddImpl(im); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, im.TraitName, err.Error()))
		}
	}
	for _, res := range p.Resources {
		if err := e.AddResource(res); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, res.Name, err.Error()))
		}
	}
	for _, a := range p.Atoms {
		if err := e.AddAtom(a); err != nil {
			return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, a.Name, err.Error()))
		}
	}

	// Aliasing: register this unit's atoms again under every alias an
	// importer assigned to it.
	for _, other := range r.units {
		for _, imp := range other.program.Imports {
			if imp.Alias == "" || identityFromImport(imp) != u.identity {
				continue
			}
			for _, a := range p.Atoms {
				aliased := *a
				aliased.Name = imp.Alias + "::" + a.Name
				if err := e.AddAtom(&aliased); err != nil {
					return errs.WrapReport(errs.New(errs.PhaseResolver, errs.RES003, aliased.Name, err.Error()))
				}
			}
		}
	}
	return nil
}
