package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sunholo/ailang/internal/config"
	"github.com/sunholo/ailang/internal/env"
	"github.com/sunholo/ailang/internal/errs"
	"github.com/sunholo/ailang/internal/mono"
	"github.com/sunholo/ailang/internal/verify"
)

// pipeline bundles the configuration and logger every subcommand needs to
// run resolve -> monomorphize -> verify over one root file.
type pipeline struct {
	cfg *config.Config
	log *zap.Logger
}

func newPipeline() (*pipeline, error) {
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		return nil, err
	}
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	return &pipeline{cfg: cfg, log: log}, nil
}

// resolveAndMono runs the shared resolve+monomorphize prefix every
// subcommand needs, returning a fully concrete ModuleEnv.
func (p *pipeline) resolveAndMono(rootPath string) (*env.ModuleEnv, error) {
	res := p.cfg.NewResolver(filepath.Dir(rootPath), unwiredParser, p.log)
	e, err := res.Resolve(rootPath)
	if err != nil {
		return nil, err
	}
	mon := mono.New(e)
	return mon.Run()
}

// verify runs the full gate pipeline over e.
func (p *pipeline) verify(e *env.ModuleEnv) (verify.RunResult, error) {
	vc, err := p.cfg.VerifyConfig()
	if err != nil {
		return verify.RunResult{}, err
	}
	vc.Log = p.log
	v := verify.New(e, vc)
	return v.VerifyAll(context.Background())
}

func printReports(reports []*errs.Report) {
	for _, r := range reports {
		marker := red("✗")
		if r.Warning {
			marker = yellow("!")
		}
		fmt.Printf("  %s [%s/%s] %s: %s\n", marker, cyan(r.Phase), r.Code, r.Atom, r.Message)
	}
}

func printRun(run verify.RunResult) {
	for _, res := range run.Results {
		status := green("PASS")
		if !res.Passed {
			status = red("FAIL")
		}
		fmt.Printf("%s %-30s %s\n", status, res.AtomName, res.Duration)
		printReports(res.Reports)
	}
	fmt.Println()
	if run.Passed {
		fmt.Printf("%s all atoms verified\n", green("✓"))
	} else {
		fmt.Printf("%s one or more atoms failed verification\n", red("✗"))
	}
}
