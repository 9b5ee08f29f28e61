package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/resolver"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MaxUnroll != 0 || len(c.StdPath) != 0 {
		t.Fatalf("expected zero-value Config, got %+v", c)
	}
}

func TestLoadValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mumei.yaml")
	body := "std_path:\n  - /opt/mumei/std\nmax_unroll: 32\nsolver_binary: z3-custom\nsolver_timeout: 10s\ncache_path: build/.cache\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MaxUnroll != 32 || c.SolverBinary != "z3-custom" || c.SolverTimeout != "10s" {
		t.Fatalf("unexpected parse: %+v", c)
	}
	if len(c.StdPath) != 1 || c.StdPath[0] != "/opt/mumei/std" {
		t.Fatalf("unexpected std_path: %+v", c.StdPath)
	}
}

func TestLoadRejectsNegativeMaxUnroll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mumei.yaml")
	if err := os.WriteFile(path, []byte("max_unroll: -1\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a negative max_unroll")
	}
}

func TestLoadRejectsUnparsableSolverTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mumei.yaml")
	if err := os.WriteFile(path, []byte("solver_timeout: not-a-duration\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unparsable solver_timeout")
	}
}

func TestVerifyConfigKeepsDefaultsWhenUnset(t *testing.T) {
	c := &Config{}
	vc, err := c.VerifyConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vc.SolverBinary != "z3" || vc.MaxUnroll != 16 {
		t.Fatalf("expected untouched defaults, got %+v", vc)
	}
}

func TestVerifyConfigAppliesOverridesAndAttachesCache(t *testing.T) {
	c := &Config{
		SolverBinary:  "z3-custom",
		MaxUnroll:     8,
		SolverTimeout: "2s",
		CachePath:     filepath.Join(t.TempDir(), ".mumei_cache"),
	}
	vc, err := c.VerifyConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vc.SolverBinary != "z3-custom" || vc.MaxUnroll != 8 {
		t.Fatalf("expected overrides applied, got %+v", vc)
	}
	if vc.Cache == nil {
		t.Fatalf("expected a cache to be attached even though the path does not yet exist on disk")
	}
}

func TestNewResolverLeavesEnvironmentUnchangedAfterReturning(t *testing.T) {
	const envVar = "MUMEI_STD_PATH"
	prior, had := os.LookupEnv(envVar)
	t.Cleanup(func() {
		if had {
			os.Setenv(envVar, prior)
		} else {
			os.Unsetenv(envVar)
		}
	})
	os.Unsetenv(envVar)

	c := &Config{StdPath: []string{filepath.Join(t.TempDir(), "std")}}
	noopParse := resolver.ParseFunc(func(path string, content []byte) (*ast.Program, error) {
		return &ast.Program{}, nil
	})
	r := c.NewResolver(t.TempDir(), noopParse, zap.NewNop())
	if r == nil {
		t.Fatalf("expected a non-nil resolver")
	}
	if v := os.Getenv(envVar); v != "" {
		t.Fatalf("expected MUMEI_STD_PATH restored to unset, got %q", v)
	}
}
