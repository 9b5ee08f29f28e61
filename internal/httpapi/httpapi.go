// Package httpapi implements `mumei serve`, a chi-routed HTTP front door
// onto the same three core pipeline operations the CLI runs: build,
// verify, and check. It adds no verification semantics of its own — every
// handler is a thin JSON wrapper around resolver.Resolve, mono.New(...).Run,
// verify.New(...).VerifyAll, and emit.Build.
//
// Grounded on ternarybob-iter/internal/api/router.go's chi.Router setup
// (middleware.RequestID/RealIP/Logger/Recoverer, go-chi/cors.Handler) and
// handlers.go's writeJSON/writeError helpers and flat request/response
// struct conventions.
package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sunholo/ailang/internal/emit"
	"github.com/sunholo/ailang/internal/env"
	"github.com/sunholo/ailang/internal/errs"
	"github.com/sunholo/ailang/internal/mono"
	"github.com/sunholo/ailang/internal/resolver"
	"github.com/sunholo/ailang/internal/verify"
)

// Version is set from cmd/mumei's -ldflags build info, mirroring the
// teacher pack's SetVersion convention.
var Version = "dev"

// Server wires the pipeline collaborators a handler needs. Parse is the
// pluggable seam onto the external surface parser (spec.md §1 leaves
// parsing out of scope); every request names a root file path on the
// server's own filesystem for Parse and resolver.Resolve to read.
type Server struct {
	Parse     resolver.ParseFunc
	VerifyCfg verify.Config
	Log       *zap.Logger

	router chi.Router
}

// NewServer builds a Server and its chi router. A nil Log is replaced
// with zap.NewNop().
func NewServer(parse resolver.ParseFunc, verifyCfg verify.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{Parse: parse, VerifyCfg: verifyCfg, Log: log}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Post("/build", s.handleBuild)
	r.Post("/verify", s.handleVerify)
	r.Post("/check", s.handleCheck)

	s.router = r
}

// Handler returns the configured http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PipelineRequest is the body every pipeline endpoint accepts: the root
// file the resolver should start loading from.
type PipelineRequest struct {
	Path string `json:"path"`
}

// CheckResponse is /check's payload: whether every atom's obligations
// would discharge, without running the (slower) law-verification gate.
type CheckResponse struct {
	Passed  bool           `json:"passed"`
	Reports []*errs.Report `json:"reports,omitempty"`
}

// VerifyResponse is /verify's payload: the full per-atom verification
// run, gates 0-9 included.
type VerifyResponse struct {
	Passed       bool             `json:"passed"`
	Results      []verify.Result  `json:"results"`
	PhaseTimings map[string]int64 `json:"phase_timings"`
}

// BuildResponse is /build's payload: the emitted handoff Program, only
// present when every atom verified.
type BuildResponse struct {
	Passed  bool           `json:"passed"`
	Program *emit.Program  `json:"program,omitempty"`
	Reports []*errs.Report `json:"reports,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: Version, Service: "mumei"})
}

// resolveAndMono runs the shared prefix every pipeline endpoint needs:
// resolve imports, then monomorphize. Reported as an *errs.Report when the
// failure already carries one (resolver/mono errors always do), otherwise
// as a plain 500.
func (s *Server) resolveAndMono(w http.ResponseWriter, r *http.Request) (*env.ModuleEnv, bool) {
	var req PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return nil, false
	}

	res := resolver.New(filepath.Dir(req.Path), s.Parse, s.Log)
	e, err := res.Resolve(req.Path)
	if err != nil {
		writeReportOrError(w, http.StatusUnprocessableEntity, err)
		return nil, false
	}

	mon := mono.New(e)
	e, err = mon.Run()
	if err != nil {
		writeReportOrError(w, http.StatusUnprocessableEntity, err)
		return nil, false
	}
	return e, true
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	e, ok := s.resolveAndMono(w, r)
	if !ok {
		return
	}

	cfg := s.VerifyCfg
	cfg.SkipGates = mergeSkip(cfg.SkipGates, "9")
	v := verify.New(e, cfg)

	run, err := v.VerifyAll(r.Context())
	if err != nil {
		writeReportOrError(w, http.StatusInternalServerError, err)
		return
	}

	var reports []*errs.Report
	for _, res := range run.Results {
		reports = append(reports, res.Reports...)
	}
	writeJSON(w, http.StatusOK, CheckResponse{Passed: run.Passed, Reports: reports})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	e, ok := s.resolveAndMono(w, r)
	if !ok {
		return
	}

	v := verify.New(e, s.VerifyCfg)
	run, err := v.VerifyAll(r.Context())
	if err != nil {
		writeReportOrError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		Passed:       run.Passed,
		Results:      run.Results,
		PhaseTimings: run.PhaseTimings,
	})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	e, ok := s.resolveAndMono(w, r)
	if !ok {
		return
	}

	v := verify.New(e, s.VerifyCfg)
	run, err := v.VerifyAll(r.Context())
	if err != nil {
		writeReportOrError(w, http.StatusInternalServerError, err)
		return
	}

	var reports []*errs.Report
	for _, res := range run.Results {
		reports = append(reports, res.Reports...)
	}
	if !run.Passed {
		writeJSON(w, http.StatusUnprocessableEntity, BuildResponse{Passed: false, Reports: reports})
		return
	}

	program := emit.Build(e)
	writeJSON(w, http.StatusOK, BuildResponse{Passed: true, Program: program, Reports: reports})
}

func mergeSkip(skip map[string]bool, gates ...string) map[string]bool {
	out := make(map[string]bool, len(skip)+len(gates))
	for k, v := range skip {
		out[k] = v
	}
	for _, g := range gates {
		out[g] = true
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeReportOrError(w http.ResponseWriter, status int, err error) {
	if rep, ok := errs.AsReport(err); ok {
		writeJSON(w, status, CheckResponse{Passed: false, Reports: []*errs.Report{rep}})
		return
	}
	writeError(w, status, err.Error())
}
