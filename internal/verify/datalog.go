package verify

import (
	"bytes"
	"fmt"

	"github.com/google/mangle/analysis"
	mangleast "github.com/google/mangle/ast"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// DatalogEngine is a thin wrapper around google/mangle for the two gates
// spec.md §9 describes as "relations over names, not ownership": resource
// acquisition ordering (Gate 1) and call-graph cycle detection (Gate 5) are
// both naturally small fact/rule programs, not symbolic-execution
// obligations, so they run here instead of through internal/smt. Grounded
// on the schema-load / analyze / eval-with-stats / get-facts pattern used
// throughout theRebelliousNerd/codenerd's internal/mangle engine wrapper.
type DatalogEngine struct {
	store       factstore.FactStore
	programInfo *analysis.ProgramInfo
}

// NewDatalogEngine parses and analyzes a Mangle schema (decls plus rules)
// and returns an engine with an empty fact store ready for AddFact/Eval.
func NewDatalogEngine(schema string) (*DatalogEngine, error) {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return nil, fmt.Errorf("verify: parsing datalog schema: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(parse.SourceUnit{Clauses: unit.Clauses, Decls: unit.Decls}, nil)
	if err != nil {
		return nil, fmt.Errorf("verify: analyzing datalog schema: %w", err)
	}
	return &DatalogEngine{
		store:       factstore.NewSimpleInMemoryStore(),
		programInfo: programInfo,
	}, nil
}

// AddFact asserts predicate(args...) as a base fact, args given as plain
// strings (identifiers, e.g. atom and resource names) or integers.
func (e *DatalogEngine) AddFact(predicate string, args ...interface{}) error {
	terms := make([]mangleast.BaseTerm, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case int:
			terms[i] = mangleast.Number(int64(v))
		case int64:
			terms[i] = mangleast.Number(v)
		case string:
			terms[i] = mangleast.String(v)
		default:
			return fmt.Errorf("verify: unsupported datalog term type %T", a)
		}
	}
	atom := mangleast.NewAtom(predicate, terms...)
	if !e.store.Add(atom) {
		return fmt.Errorf("verify: duplicate fact %s", atom)
	}
	return nil
}

// Eval runs the fixpoint computation over every loaded rule.
func (e *DatalogEngine) Eval() error {
	_, err := mengine.EvalProgramWithStats(e.programInfo, e.store)
	if err != nil {
		return fmt.Errorf("verify: evaluating datalog program: %w", err)
	}
	return nil
}

// Query returns every derived fact for predicate/arity, each as its
// argument list in textual form.
func (e *DatalogEngine) Query(predicate string, arity int) ([][]string, error) {
	var rows [][]string
	query := mangleast.Atom{Predicate: mangleast.PredicateSym{Symbol: predicate, Arity: arity}}
	err := e.store.GetFacts(query, func(a mangleast.Atom) error {
		row := make([]string, len(a.Args))
		for i, arg := range a.Args {
			row[i] = fmt.Sprint(arg)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify: querying %s/%d: %w", predicate, arity, err)
	}
	return rows, nil
}

// resourceOrderSchema backs Gate 1: within one atom, nested `acquire`
// blocks must name strictly increasing resource priorities, the standard
// total-order discipline for deadlock avoidance. acquire_order(Atom,
// Resource, SeqIndex, Priority) records each acquire in the order it is
// entered; out_of_order(Atom) fires when a later acquire's priority is not
// strictly greater than an earlier one's.
const resourceOrderSchema = `
Decl acquire_order(atom, resource, seq, priority)
  bound[/string, /string, /number, /number].
Decl out_of_order(atom)
  bound[/string].

out_of_order(Atom) :-
  acquire_order(Atom, _, I1, P1),
  acquire_order(Atom, _, I2, P2),
  :lt(I1, I2),
  :le(P2, P1).
`

// callGraphSchema backs Gate 5: calls(Caller, Callee) facts closed under
// reachability; cycle(X) fires when X can reach itself.
const callGraphSchema = `
Decl calls(caller, callee)
  bound[/string, /string].
Decl reaches(from, to)
  bound[/string, /string].
Decl cycle(atom)
  bound[/string].

reaches(X, Y) :- calls(X, Y).
reaches(X, Z) :- calls(X, Y), reaches(Y, Z).
cycle(X) :- reaches(X, X).
`
