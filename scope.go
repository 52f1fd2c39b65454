package datamodel

import "time"

// scopeWait records the single WaitStep a Scope is currently suspended on.
// A scope has at most one active wait at a time: stepping is synchronous
// between suspensions, so there is never a need to track more than one
// (spec §4.5 Scope: "the set of active waits" is a set of size 0 or 1 in
// this engine, since a scope only ever blocks on the step it is paused at).
type scopeWait struct {
	nodeID  Identifier
	nodeRef string
	op      CompareOp
	rhsExpr Expr
}

// CompletionResult is delivered to a Scope's completion callback when it
// finishes, fails, or is cancelled after having already returned an
// Accepted acknowledgement (spec GLOSSARY "Deferred completion").
type CompletionResult struct {
	Values []Value
	Err    error
}

// Scope is an active or suspended execution instance of a CompositeMethod
// (spec GLOSSARY "Scope"): the method reference, the frame, the program
// counter, and (if suspended) the active wait. Representing suspension as
// explicit state rather than a goroutine/coroutine makes it inspectable and
// cancellable (spec §9 design note).
type Scope struct {
	ID     ScopeID
	Method *CompositeMethod
	Frame  Frame
	PC     int

	Wait *scopeWait

	onComplete func(CompletionResult)

	// deadline is the absolute wall-clock time by which the scope must
	// finish stepping, checked synchronously at each step boundary in
	// Engine.drive (spec §5 "an invocation-supplied deadline evaluated at
	// each step boundary"). Zero means no deadline.
	deadline time.Time
}
