// Package smt translates verification obligations into SMT-LIB2 and drives
// an external solver process to discharge them. No Go SMT binding appears
// anywhere in the retrieval pack, so this package shells out the same way
// the formal-verification reference material does: build an SMT-LIB2
// string, hand it to the solver binary over stdin, and parse its response.
package smt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sunholo/ailang/internal/ast"
)

// Sort is an SMT-LIB2 sort name.
type Sort string

const (
	SortInt  Sort = "Int"
	SortReal Sort = "Real"
	SortBool Sort = "Bool"
)

// SortOf maps a base kind to the theory it is modeled in. u64/i64 are both
// modeled as Int; no u64 >= 0 constraint is asserted for u64 symbols. f64
// is modeled as Real; no sign-propagation lemmas are asserted for it.
func SortOf(b ast.BaseKind) Sort {
	switch b {
	case ast.F64:
		return SortReal
	case ast.Bool:
		return SortBool
	default:
		return SortInt
	}
}

// ArraySort names the SMT-LIB2 array-of-element-sort theory type.
func ArraySort(elem Sort) string {
	return fmt.Sprintf("(Array Int %s)", elem)
}

// Obligation is one proof goal discovered while translating an expression:
// a human-readable description, the SMT-LIB2 formula that must be valid
// (i.e. whose negation must be unsat), and the source position it came
// from, for error reporting.
type Obligation struct {
	Kind    string // e.g. "array-bounds", "division-by-zero"
	Formula string
	Pos     ast.Pos
}

// Translator turns ast.Expr trees into SMT-LIB2 terms, flattening struct
// field access and enum variant access into individually declared symbols
// the way the caller (the verifier) has already declared them, and
// collecting bounds/safety side-obligations as it walks array indexing and
// division.
//
// Calls into other atoms are treated as opaque: compositional verification
// summarizes a callee by its contract (requires discharged at the call
// site, ensures assumed as a fact about the result), so Call nodes become
// uninterpreted function applications rather than inlined bodies.
type Translator struct {
	// ArrayLens maps an in-scope array parameter's symbol name to the
	// symbol name holding its length, for bounds-obligation generation.
	ArrayLens map[string]string

	// EnumLookup resolves an enum name to its declaration, used to derive
	// the real VariantIndex tag for match translation. A nil EnumLookup
	// falls back to a translation-local numbering (still sound within one
	// match, but not guaranteed to agree with emit/runtime tag values).
	EnumLookup func(name string) (*ast.Enum, bool)

	Obligations []Obligation
}

// NewTranslator returns a Translator with no array-length bindings.
func NewTranslator() *Translator {
	return &Translator{ArrayLens: make(map[string]string)}
}

// Translate renders e as an SMT-LIB2 term. Struct field access and enum
// discriminant/field access flatten to "recv__field" symbols; the caller is
// responsible for having declared those symbols (env setup is the
// verifier's job, not this package's).
func (t *Translator) Translate(e ast.Expr) string {
	switch n := e.(type) {
	case nil:
		return "true"

	case *ast.Identifier:
		return SanitizeSymbol(n.Name)

	case *ast.SelfExpr:
		return "self"

	case *ast.Literal:
		switch n.Kind {
		case ast.LitInt:
			return fmt.Sprintf("%d", n.Int)
		case ast.LitFloat:
			return formatReal(n.Float)
		default:
			if n.Bool {
				return "true"
			}
			return "false"
		}

	case *ast.UnaryOp:
		x := t.Translate(n.X)
		switch n.Op {
		case "!":
			return fmt.Sprintf("(not %s)", x)
		default:
			return fmt.Sprintf("(- %s)", x)
		}

	case *ast.BinaryOp:
		return t.translateBinary(n)

	case *ast.IfExpr:
		return fmt.Sprintf("(ite %s %s %s)", t.Translate(n.Cond), t.Translate(n.Then), t.Translate(n.Else))

	case *ast.LetExpr:
		// A struct-valued let flattens to one binding per field instead of
		// a single opaque symbol, so later FieldAccess nodes resolve to
		// plain symbols rather than needing a separate select.
		if si, ok := n.Value.(*ast.StructInit); ok {
			binds := make([]string, 0, len(si.Fields))
			for _, f := range si.Fields {
				sym := SanitizeSymbol(n.Name) + "__" + f.Name
				binds = append(binds, fmt.Sprintf("(%s %s)", sym, t.Translate(f.Value)))
			}
			return fmt.Sprintf("(let (%s) %s)", strings.Join(binds, " "), t.Translate(n.Rest))
		}
		return fmt.Sprintf("(let ((%s %s)) %s)", SanitizeSymbol(n.Name), t.Translate(n.Value), t.Translate(n.Rest))

	case *ast.Block:
		if len(n.Exprs) == 0 {
			return "true"
		}
		return t.Translate(n.Exprs[len(n.Exprs)-1])

	case *ast.Quantifier:
		bound := fmt.Sprintf("(and (<= %s %s) (< %s %s))", t.Translate(n.Lo), SanitizeSymbol(n.Var), SanitizeSymbol(n.Var), t.Translate(n.Hi))
		body := t.Translate(n.Pred)
		if n.Kind == ast.Forall {
			return fmt.Sprintf("(forall ((%s Int)) (=> %s %s))", SanitizeSymbol(n.Var), bound, body)
		}
		return fmt.Sprintf("(exists ((%s Int)) (and %s %s))", SanitizeSymbol(n.Var), bound, body)

	case *ast.Index:
		arrSym := t.Translate(n.Array)
		idx := t.Translate(n.Idx)
		if lenSym, ok := t.ArrayLens[arrSym]; ok {
			t.Obligations = append(t.Obligations, Obligation{
				Kind:    "array-bounds",
				Formula: fmt.Sprintf("(and (<= 0 %s) (< %s %s))", idx, idx, lenSym),
				Pos:     n.Pos,
			})
		}
		return fmt.Sprintf("(select %s %s)", arrSym, idx)

	case *ast.FieldAccess:
		return SanitizeSymbol(t.Translate(n.Recv)) + "__" + n.Field

	case *ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = t.Translate(a)
		}
		if len(args) == 0 {
			return SanitizeSymbol(n.Callee)
		}
		return fmt.Sprintf("(%s %s)", SanitizeSymbol(n.Callee), strings.Join(args, " "))

	case *ast.Acquire:
		return t.Translate(n.Body)

	case *ast.Await:
		return t.Translate(n.X)

	case *ast.Match:
		return t.translateMatch(n)

	default:
		return "true"
	}
}

func (t *Translator) translateBinary(n *ast.BinaryOp) string {
	left := t.Translate(n.Left)
	right := t.Translate(n.Right)
	if n.Op == "/" || n.Op == "%" {
		t.Obligations = append(t.Obligations, Obligation{
			Kind:    "division-by-zero",
			Formula: fmt.Sprintf("(not (= %s 0))", right),
			Pos:     n.Pos,
		})
	}
	op, ok := binOps[n.Op]
	if !ok {
		op = n.Op
	}
	if n.Op == "!=" {
		return fmt.Sprintf("(not (= %s %s))", left, right)
	}
	return fmt.Sprintf("(%s %s %s)", op, left, right)
}

var binOps = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "div", "%": "mod",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"==": "=", "&&": "and", "||": "or", "=>": "=>",
}

// translateMatch lowers a pattern match into a nested ite chain keyed on
// the scrutinee's flattened "<expr>__tag" discriminant symbol, and records
// an exhaustiveness Obligation whose Formula is the disjunction of every
// arm's (pattern && guard) condition: if its negation is satisfiable, some
// scrutinee value falls through every arm and the model is a counter-example
// of the uncovered case (an empty match records "false", so it is always
// flagged). Variant field bindings are expected to already be declared by
// the caller as "<scrutinee>__<fieldIndex>" symbols (the verifier declares
// these per in-scope variant before translating the arm bodies).
func (t *Translator) translateMatch(m *ast.Match) string {
	scrutinee := t.Translate(m.Scrutinee)
	clauses := make([]string, 0, len(m.Arms)*2)
	disjuncts := make([]string, 0, len(m.Arms))
	tags := make(map[string]bool)

	for _, arm := range m.Arms {
		cond := t.patternCond(scrutinee, arm.Pattern, tags)
		bind := bindingName(arm.Pattern)

		guardCond := cond
		body := t.Translate(arm.Body)
		if arm.Guard != nil {
			guard := t.Translate(arm.Guard)
			if bind != "" {
				guard = fmt.Sprintf("(let ((%s %s)) %s)", SanitizeSymbol(bind), scrutinee, guard)
				body = fmt.Sprintf("(let ((%s %s)) %s)", SanitizeSymbol(bind), scrutinee, body)
			}
			guardCond = fmt.Sprintf("(and %s %s)", cond, guard)
		} else if bind != "" {
			body = fmt.Sprintf("(let ((%s %s)) %s)", SanitizeSymbol(bind), scrutinee, body)
		}

		clauses = append(clauses, guardCond, body)
		disjuncts = append(disjuncts, guardCond)
	}

	coverage := "false"
	if len(disjuncts) > 0 {
		coverage = fmt.Sprintf("(or %s)", strings.Join(disjuncts, " "))
	}
	t.Obligations = append(t.Obligations, Obligation{
		Kind:    "non-exhaustive-match",
		Formula: coverage,
		Pos:     m.Pos,
	})

	// The fallback value below is unreachable once Gate 6 has discharged the
	// exhaustiveness obligation above; it only keeps the ite chain total so
	// translation of an enclosing expression never sees an empty term.
	result := "true"
	for i := len(clauses) - 2; i >= 0; i -= 2 {
		result = fmt.Sprintf("(ite %s %s %s)", clauses[i], clauses[i+1], result)
	}
	return result
}

// bindingName returns the name a pattern binds the (sub-)scrutinee to, or
// "" for a pattern that introduces no name (a literal, wildcard, or variant
// pattern with no top-level binding).
func bindingName(p ast.Pattern) string {
	if b, ok := p.(*ast.BindPattern); ok {
		return b.Name
	}
	return ""
}

func (t *Translator) patternCond(scrutinee string, p ast.Pattern, tags map[string]bool) string {
	switch pat := p.(type) {
	case *ast.WildcardPattern, *ast.BindPattern:
		return "true"
	case *ast.LiteralPattern:
		return fmt.Sprintf("(= %s %s)", scrutinee, t.Translate(pat.Value))
	case *ast.VariantPattern:
		return fmt.Sprintf("(= %s__tag %s)", scrutinee, t.variantTagSymbol(pat.EnumName, pat.VariantName, tags))
	default:
		return "true"
	}
}

// variantTagSymbol returns the declared VariantIndex when EnumLookup
// resolves pat's enum, falling back to a stable per-match ordinal over the
// distinct variant names seen so far.
func (t *Translator) variantTagSymbol(enumName, variantName string, tags map[string]bool) string {
	if t.EnumLookup != nil {
		if en, ok := t.EnumLookup(enumName); ok {
			if idx, ok := en.VariantIndex(variantName); ok {
				return fmt.Sprintf("%d", idx)
			}
		}
	}
	tags[variantName] = true
	names := make([]string, 0, len(tags))
	for n := range tags {
		names = append(names, n)
	}
	sort.Strings(names)
	for i, n := range names {
		if n == variantName {
			return fmt.Sprintf("%d", i)
		}
	}
	return "0"
}

// SanitizeSymbol rewrites a surface-language name into a valid SMT-LIB2
// symbol. Exported so internal/verify can produce identical symbol names
// when it builds obligations outside of Translate itself (call-site let
// bindings, loop-local havoc symbols).
func SanitizeSymbol(s string) string {
	return strings.NewReplacer("::", "_", ".", "_").Replace(s)
}

func formatReal(f float64) string {
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	if strings.HasPrefix(s, "-") {
		return fmt.Sprintf("(- %s)", strings.TrimPrefix(s, "-"))
	}
	return s
}
