package errs

import (
	"encoding/json"
	"errors"

	"github.com/sunholo/ailang/internal/ast"
	"github.com/sunholo/ailang/internal/sid"
)

// Report is the canonical structured error value produced by every gate in
// the verifier, the resolver, and the monomorphizer. Builders return
// *Report directly, or wrap it with WrapReport to return it as an error.
type Report struct {
	Schema  string         `json:"schema"` // always "mumei.error/v1"
	Code    string         `json:"code"`
	Phase   string         `json:"phase"`
	Atom    string         `json:"atom,omitempty"`
	Message string         `json:"message"`
	Pos     *ast.Pos       `json:"pos,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// Counterexample holds a concrete model witnessing the failure, when
	// the solver returned sat on a negated obligation.
	Counterexample map[string]any `json:"counterexample,omitempty"`

	// Warning marks a downgraded error (trusted/unverified atoms, taint
	// propagation). A Warning Report never fails the compilation.
	Warning bool `json:"warning,omitempty"`
}

// ReportError wraps a Report so it survives errors.As unwrapping while
// still satisfying the error interface.
type ReportError struct {
	Rep *Report
}

func (e *ReportError) Error() string {
	if e.Rep == nil {
		return "unknown error"
	}
	return e.Rep.Code + ": " + e.Rep.Message
}

// AsReport extracts a Report from an error chain.
func AsReport(err error) (*Report, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Rep, true
	}
	return nil, false
}

// WrapReport wraps a Report as an error. Returns nil for a nil Report so
// call sites can write `return errs.WrapReport(r)` unconditionally.
func WrapReport(r *Report) error {
	if r == nil {
		return nil
	}
	return &ReportError{Rep: r}
}

// ToJSON renders the report as deterministic JSON.
func (r *Report) ToJSON(compact bool) (string, error) {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const schemaV1 = "mumei.error/v1"

// New builds a Report with the schema field already set.
func New(phase, code, atom, message string) *Report {
	return &Report{Schema: schemaV1, Phase: phase, Code: code, Atom: atom, Message: message}
}

// WithPos attaches a source position and derives a stable node identifier
// from it, so a report can be tracked across reruns even as unrelated
// edits shift its line/column.
func (r *Report) WithPos(p ast.Pos) *Report {
	r.Pos = &p
	r.NodeID = string(sid.New(p.File, p.Line, p.Column, r.Phase+"/"+r.Code))
	return r
}

// WithData attaches structured context data (sorted on encode by
// encoding/json's default map-key ordering).
func (r *Report) WithData(data map[string]any) *Report {
	r.Data = data
	return r
}

// WithCounterexample attaches a concrete model witnessing the failure.
func (r *Report) WithCounterexample(model map[string]any) *Report {
	r.Counterexample = model
	return r
}

// AsWarning marks the report as a non-fatal warning (Gate 0 downgrade,
// Gate 8 taint propagation).
func (r *Report) AsWarning() *Report {
	r.Warning = true
	return r
}
