// Package lockstate implements the Lock entity: identity, parameters, the
// acquisition state machine, and timing telemetry.
//
// The primary type is [Lock], constructed via [NewReader] or [NewWriter] and
// always created in the Acquiring state. Transitions are driven by the
// adapter and the coordinator, never by the caller directly; illegal
// transitions return an error wrapping [ErrIllegalTransition] rather than
// mutating state.
package lockstate
