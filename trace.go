package datamodel

// TraceHook observes model activity without participating in it: none of
// its methods return a value or error, and a nil TraceHook (the zero value
// used throughout this package) disables tracing entirely at effectively no
// cost. Grounded in the teacher's hook-injection style (VariableHooks,
// MethodHooks) generalized to cross-cutting observability instead of
// per-node business logic.
type TraceHook interface {
	OnRead(ref NodeRef, value Value, err error)
	OnWrite(ref NodeRef, value Value, err error)
	OnNotify(n Notification)
	OnStepAdvance(scope ScopeID, pc int)
	OnScopeSuspend(scope ScopeID, waitingOn Identifier)
	OnScopeResume(scope ScopeID)
}

// NoopTrace implements TraceHook with empty methods; embed it to satisfy
// TraceHook while overriding only the events a particular tracer cares
// about.
type NoopTrace struct{}

var _ TraceHook = NoopTrace{}

func (NoopTrace) OnRead(NodeRef, Value, error)           {}
func (NoopTrace) OnWrite(NodeRef, Value, error)          {}
func (NoopTrace) OnNotify(Notification)                 {}
func (NoopTrace) OnStepAdvance(ScopeID, int)             {}
func (NoopTrace) OnScopeSuspend(ScopeID, Identifier)     {}
func (NoopTrace) OnScopeResume(ScopeID)                  {}
