package smt

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CheckSatResult is the three-valued outcome of a (check-sat) call.
type CheckSatResult int

const (
	Unsat CheckSatResult = iota
	Sat
	Unknown
)

func (r CheckSatResult) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Solver is the minimal interactive SMT-LIB2 protocol the verifier needs:
// incremental assertion under push/pop scopes, context-aware check-sat (so
// a gate can bound solver time per obligation), and model extraction for
// counterexample reporting.
type Solver interface {
	DeclareConst(name string, sort Sort) error
	DeclareFun(name string, argSorts []Sort, retSort Sort) error
	Assert(formula string) error
	Push() error
	Pop() error
	CheckSat(ctx context.Context) (CheckSatResult, error)
	GetModel() (map[string]string, error)
	Close() error
}

// ProcessSolver drives an external SMT-LIB2 solver binary (z3 by
// convention) over stdin/stdout, the same external-process shape the
// verification reference material uses for Z3Path, generalized from a
// one-shot simulate-and-return into a real incremental session.
type ProcessSolver struct {
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdout *bufio.Reader
	log    *zap.Logger
	mu     sync.Mutex
}

// NewProcessSolver starts binaryPath (e.g. "z3") with the flags needed for
// an interactive stdin/stdout session.
func NewProcessSolver(ctx context.Context, binaryPath string, log *zap.Logger) (*ProcessSolver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cmd := exec.CommandContext(ctx, binaryPath, "-in", "-smt2")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("smt: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("smt: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("smt: starting %s: %w", binaryPath, err)
	}
	s := &ProcessSolver{
		cmd:    cmd,
		stdin:  bufio.NewWriter(stdin),
		stdout: bufio.NewReader(stdout),
		log:    log,
	}
	if err := s.send("(set-option :produce-models true)"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ProcessSolver) send(cmd string) error {
	if _, err := s.stdin.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("smt: write: %w", err)
	}
	return s.stdin.Flush()
}

// DeclareConst emits (declare-const name sort).
func (s *ProcessSolver) DeclareConst(name string, sort Sort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(fmt.Sprintf("(declare-const %s %s)", name, sort))
}

// DeclareFun emits (declare-fun name (argSorts...) retSort), used to
// introduce the uninterpreted function symbols that stand in for opaque
// calls to other atoms.
func (s *ProcessSolver) DeclareFun(name string, argSorts []Sort, retSort Sort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, len(argSorts))
	for i, a := range argSorts {
		parts[i] = string(a)
	}
	return s.send(fmt.Sprintf("(declare-fun %s (%s) %s)", name, strings.Join(parts, " "), retSort))
}

// Assert emits (assert formula).
func (s *ProcessSolver) Assert(formula string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(fmt.Sprintf("(assert %s)", formula))
}

// Push opens a new assertion scope.
func (s *ProcessSolver) Push() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send("(push 1)")
}

// Pop discards the innermost assertion scope.
func (s *ProcessSolver) Pop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send("(pop 1)")
}

// CheckSat issues (check-sat) and reads the single-line verdict. ctx
// cancellation is honored on the read: when ctx is already done, CheckSat
// returns Unknown with ctx.Err() rather than blocking, matching the Gate 9
// "SolverTimeout" contract (spec.md §7).
func (s *ProcessSolver) CheckSat(ctx context.Context) (CheckSatResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Unknown, err
	}
	if err := s.send("(check-sat)"); err != nil {
		return Unknown, err
	}

	type readResult struct {
		line string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := s.stdout.ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return Unknown, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return Unknown, fmt.Errorf("smt: reading check-sat result: %w", r.err)
		}
		return parseCheckSatResult(r.line)
	}
}

func parseCheckSatResult(line string) (CheckSatResult, error) {
	switch strings.TrimSpace(line) {
	case "sat":
		return Sat, nil
	case "unsat":
		return Unsat, nil
	case "unknown":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("smt: unrecognized check-sat response: %q", strings.TrimSpace(line))
	}
}

// GetModel issues (get-model) and parses the resulting define-fun blocks
// into a flat symbol -> value map, suitable for attaching to a
// errs.Report.Counterexample.
func (s *ProcessSolver) GetModel() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.send("(get-model)"); err != nil {
		return nil, err
	}

	var raw strings.Builder
	depth := 0
	started := false
	for {
		line, err := s.stdout.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("smt: reading model: %w", err)
		}
		raw.WriteString(line)
		for _, c := range line {
			switch c {
			case '(':
				depth++
				started = true
			case ')':
				depth--
			}
		}
		if started && depth <= 0 {
			break
		}
	}
	return parseModel(raw.String())
}

var defineFunRe = regexp.MustCompile(`\(define-fun\s+([^\s(]+)\s*\(\)\s*[^\s]+\s+([^)]+)\)`)

func parseModel(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, m := range defineFunRe.FindAllStringSubmatch(raw, -1) {
		out[m[1]] = strings.TrimSpace(m[2])
	}
	return out, nil
}

// Close terminates the solver process.
func (s *ProcessSolver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.send("(exit)")
	if s.cmd.Process != nil {
		_ = s.cmd.Wait()
	}
	return nil
}
