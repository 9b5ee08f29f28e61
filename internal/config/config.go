// Package config loads mumei.yaml, the project-level configuration file
// overriding the defaults spec.md otherwise leaves to environment
// variables: standard-library search paths, the default loop-unrolling
// bound, the solver binary and its per-query timeout, and the cache file
// locations.
//
// Grounded on internal/eval_harness/spec.go's LoadSpec: read the whole
// file, yaml.Unmarshal into a flat struct, validate required invariants,
// return a structured error rather than panic.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sunholo/ailang/internal/cache"
	"github.com/sunholo/ailang/internal/resolver"
	"github.com/sunholo/ailang/internal/verify"
)

// DefaultFile is the project configuration file name looked for in the
// current working directory.
const DefaultFile = "mumei.yaml"

// Config is the parsed form of mumei.yaml. Every field is optional; a
// missing field keeps whatever default the consuming package already
// applies (verify.DefaultConfig, resolver's built-in search order, and
// so on) rather than this package inventing its own set of defaults.
type Config struct {
	// StdPath adds standard-library search roots ahead of the entries
	// already in MUMEI_STD_PATH, which the resolver searches last (after
	// project std/, binary dir and cwd).
	StdPath []string `yaml:"std_path,omitempty"`

	// MaxUnroll overrides the verifier's default Gate 2 bound for loops
	// that do not declare their own max_unroll.
	MaxUnroll int `yaml:"max_unroll,omitempty"`

	// SolverBinary overrides the SMT-LIB2 process solver invoked ("z3" by
	// default).
	SolverBinary string `yaml:"solver_binary,omitempty"`

	// SolverTimeout bounds a single CheckSat call, parsed from a Go
	// duration string (e.g. "5s").
	SolverTimeout string `yaml:"solver_timeout,omitempty"`

	// CachePath overrides the verification cache location
	// (spec.md §6's .mumei_cache).
	CachePath string `yaml:"cache_path,omitempty"`

	// BuildCachePath overrides the build cache location (.mumei_build_cache,
	// used when the full build pipeline ran rather than a bare verify).
	BuildCachePath string `yaml:"build_cache_path,omitempty"`
}

// Load reads and parses path. A missing file is not an error: it returns
// a zero-value Config, with which VerifyConfig leaves every downstream default
// untouched.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.MaxUnroll < 0 {
		return fmt.Errorf("max_unroll must be non-negative, got %d", c.MaxUnroll)
	}
	if c.SolverTimeout != "" {
		if _, err := time.ParseDuration(c.SolverTimeout); err != nil {
			return fmt.Errorf("solver_timeout: %w", err)
		}
	}
	return nil
}

// VerifyConfig builds a verify.Config seeded from DefaultConfig and
// overridden field by field with whatever this project file set, and
// always attaches the cache that cache.Load returns for CachePath (or
// cache.DefaultPath).
func (c *Config) VerifyConfig() (verify.Config, error) {
	vc := verify.DefaultConfig()
	if c.SolverBinary != "" {
		vc.SolverBinary = c.SolverBinary
	}
	if c.MaxUnroll > 0 {
		vc.MaxUnroll = c.MaxUnroll
	}
	if c.SolverTimeout != "" {
		d, err := time.ParseDuration(c.SolverTimeout)
		if err != nil {
			return vc, fmt.Errorf("solver_timeout: %w", err)
		}
		vc.Timeout = d
	}

	cachePath := c.CachePath
	if cachePath == "" {
		cachePath = cache.DefaultPath
	}
	loaded, err := cache.Load(cachePath)
	if err != nil {
		return vc, fmt.Errorf("loading cache at %s: %w", cachePath, err)
	}
	vc.Cache = loaded

	return vc, nil
}

// NewResolver constructs a resolver.Resolver with this project file's
// StdPath entries prepended ahead of whatever MUMEI_STD_PATH already
// holds. The resolver has no options struct of its own: it reads
// MUMEI_STD_PATH from the OS environment once, inside New itself, so
// this is the only injection point available — the environment variable
// is set for the duration of the New call and restored immediately
// after, leaving the surrounding process environment untouched.
func (c *Config) NewResolver(projectRoot string, parse resolver.ParseFunc, log *zap.Logger) *resolver.Resolver {
	if len(c.StdPath) == 0 {
		return resolver.New(projectRoot, parse, log)
	}

	const envVar = "MUMEI_STD_PATH"
	prior, had := os.LookupEnv(envVar)

	combined := strings.Join(c.StdPath, string(os.PathListSeparator))
	if had && prior != "" {
		combined = combined + string(os.PathListSeparator) + prior
	}
	os.Setenv(envVar, combined)
	defer func() {
		if had {
			os.Setenv(envVar, prior)
		} else {
			os.Unsetenv(envVar)
		}
	}()

	return resolver.New(projectRoot, parse, log)
}
