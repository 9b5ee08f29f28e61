package main

import (
	"fmt"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/resolver"
)

// unwiredParser is the resolver.ParseFunc this binary ships with until a
// real mumei surface parser (tokenizer + grammar) is wired in. spec.md §1
// leaves that front end as an external collaborator; internal/resolver
// already takes it as an injected function rather than importing a
// concrete parser package, so this is the one seam that needs a
// placeholder rather than a real implementation. It fails loudly and
// immediately rather than silently returning an empty program.
func unwiredParser(path string, content []byte) (*ast.Program, error) {
	return nil, fmt.Errorf("mumei: no surface parser wired for %s; this binary implements the post-parse pipeline only (resolve, monomorphize, verify, emit) and expects resolver.ParseFunc to be supplied by the front end", path)
}

var _ resolver.ParseFunc = unwiredParser
