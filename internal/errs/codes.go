// Package errs provides the centralized structured error taxonomy for the
// mumei verification core. Every error code follows the phase-prefixed
// convention below so tooling can route, count, and suppress by kind
// without parsing free text.
package errs

// Error code constants, grouped by the phase that raises them. See spec.md
// §7 for the authoritative kind -> meaning table this mirrors.
const (
	// ============================================================
	// Resolver errors (RES###)
	// ============================================================

	// RES001 indicates an import path could not be found on any search path.
	RES001 = "RES001"
	// RES002 indicates a cyclic import chain was detected.
	RES002 = "RES002"
	// RES003 indicates a non-identical duplicate top-level name across imports.
	RES003 = "RES003"

	// ============================================================
	// Monomorphizer errors (MONO###)
	// ============================================================

	// MONO001 indicates a generic instantiation has no registered impl for a required trait bound.
	MONO001 = "MONO001"

	// ============================================================
	// Verifier errors (VER###)
	// ============================================================

	// VER001 indicates a callee's precondition was not proved at a call site.
	VER001 = "VER001"
	// VER002 indicates an atom body may violate its postcondition.
	VER002 = "VER002"
	// VER003 indicates a loop invariant fails its base or preservation proof.
	VER003 = "VER003"
	// VER004 indicates a `decreases` term is not bounded-below or not strictly decreasing.
	VER004 = "VER004"
	// VER006 indicates a divisor may be zero.
	VER006 = "VER006"
	// VER007 indicates an array index proof obligation is unprovable.
	VER007 = "VER007"
	// VER008 indicates a match expression has an uncovered case.
	VER008 = "VER008"
	// VER009 indicates an impl does not satisfy one of its trait's laws.
	VER009 = "VER009"
	// VER010 indicates an owned value was used after being consumed, or consumed twice.
	VER010 = "VER010"
	// VER011 indicates a `ref mut` parameter was aliased, or a `ref` parameter was consumed.
	VER011 = "VER011"
	// VER012 indicates resource-acquisition order may permit deadlock.
	VER012 = "VER012"
	// VER013 indicates an `await` occurred while a resource was held.
	VER013 = "VER013"
	// VER014 indicates the solver returned "unknown" (timeout) for an obligation.
	VER014 = "VER014"
	// VER015 is a non-fatal warning: a safety obligation depends on an `unverified` value.
	VER015 = "VER015"
	// VER016 indicates `len` was requested on a body-local, non-parameter array.
	VER016 = "VER016"
)

// Phase names used in Report.Phase.
const (
	PhaseResolver = "resolver"
	PhaseMono     = "monomorphize"
	PhaseVerify   = "verify"
	PhaseCache    = "cache"
)
