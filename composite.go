package datamodel

import (
	"context"
	"time"

	"github.com/glacier-project/machine-data-model/internal/xtime"
	"github.com/rs/zerolog"
)

// InvokeOutcome is what driving a scope one step further produces: either it
// ran to completion (Completed, with Values), failed (Err set), or
// suspended on a WaitStep (neither set, but ScopeID is always populated so
// the caller can correlate a deferred Accepted acknowledgement).
type InvokeOutcome struct {
	Completed bool
	Values    []Value
	ScopeID   ScopeID
	Err       error
}

// Engine drives CompositeMethod scopes: stepping synchronously between
// suspensions, registering/re-checking WaitStep predicates, and tearing
// scopes down on completion, failure, explicit cancellation, or the removal
// of a node they depend on (spec §4.5, §3 lifecycle). It is the single
// consumer of Tree's OnNodeRemoved/OnWriteCommitted hooks for composite
// scheduling concerns. Deadline enforcement is a synchronous check inside
// drive's step loop and before a suspended scope's wait is re-evaluated in
// handleWriteCommitted, rather than a background timer: a scope's internal state
// (waitsByNode, allScopes, advancedTick, the owning method's scopes map) is
// mutated with no locking, since the engine is only ever entered from the
// manager's single dispatch goroutine (spec §5), and a timer callback firing
// on its own goroutine would race against that.
type Engine struct {
	tree   *Tree
	logger zerolog.Logger
	clock  xtime.Clock
	trace  TraceHook

	waitsByNode  map[Identifier]map[ScopeID]*Scope
	allScopes    map[ScopeID]*Scope
	tick         int
	advancedTick map[ScopeID]int
}

// NewEngine builds an Engine bound to tree, registering its resume and
// dependency-loss hooks.
func NewEngine(tree *Tree, logger zerolog.Logger, clock xtime.Clock) *Engine {
	e := &Engine{
		tree:         tree,
		logger:       logger,
		clock:        clock,
		waitsByNode:  make(map[Identifier]map[ScopeID]*Scope),
		allScopes:    make(map[ScopeID]*Scope),
		advancedTick: make(map[ScopeID]int),
	}
	tree.OnNodeRemoved(e.handleNodeRemoved)
	tree.OnWriteCommitted(e.handleWriteCommitted)
	return e
}

// BeginDispatch marks the start of a new inbound-request tick. The manager
// calls this once per request it processes to quiescence (spec §5); it
// bounds "any given scope advances at most once per originating write" to
// one dispatch rather than to a single nested write, since §5 treats the
// whole dispatch as the unit of ordering.
func (e *Engine) BeginDispatch() { e.tick++ }

// Invoke allocates a new scope for cm, binds its argument frame, and drives
// it until it completes, fails, or suspends. onComplete is retained for a
// later deferred delivery if the scope suspends and resumes/fails/cancels
// after this call returns (spec GLOSSARY "Deferred completion"); it is never
// invoked for the outcome Invoke itself returns.
func (e *Engine) Invoke(ctx context.Context, cm *CompositeMethod, args []Value, onComplete func(CompletionResult), deadline time.Duration) InvokeOutcome {
	resolved, err := resolveArgs(cm.Params, args)
	if err != nil {
		return InvokeOutcome{Err: err}
	}
	frame := make(Frame, len(cm.Params))
	for i, p := range cm.Params {
		frame.Set(p.Name, resolved[i])
	}

	sc := &Scope{ID: ScopeID(newIdentifier()), Method: cm, Frame: frame, onComplete: onComplete}
	if deadline > 0 {
		sc.deadline = e.clock.Now().Add(deadline)
	}
	cm.scopes[sc.ID] = sc
	e.allScopes[sc.ID] = sc

	e.logger.Debug().Str("scope", string(sc.ID)).Str("method", cm.Name()).Time("at", e.clock.Now()).Msg("composite scope started")
	return e.drive(sc)
}

// Cancel tears down an active or suspended scope with reason as its
// terminal error, delivering it via the scope's completion callback if it
// had already returned Accepted. Cancelling a scope that no longer exists
// (already completed, failed, or previously cancelled) is a no-op (spec
// §4.5 Cancellation).
func (e *Engine) Cancel(id ScopeID, reason *Error) bool {
	sc := e.allScopes[id]
	if sc == nil {
		return false
	}
	outcome := e.terminate(sc, nil, reason)
	e.deliverTerminal(sc, outcome)
	return true
}

// drive steps sc synchronously until it runs off the end of its graph,
// fails, or suspends on a WaitStep whose predicate does not currently hold.
func (e *Engine) drive(sc *Scope) InvokeOutcome {
	for sc.PC < len(sc.Method.Steps) {
		if !sc.deadline.IsZero() && !e.clock.Now().Before(sc.deadline) {
			return e.terminate(sc, nil, NewError(CodeCancelled, "composite method deadline exceeded"))
		}
		if e.trace != nil {
			e.trace.OnStepAdvance(sc.ID, sc.PC)
		}
		step := sc.Method.Steps[sc.PC]
		switch step.Kind {

		case StepWrite:
			val, err := step.ValueExpr(sc.Frame)
			if err == nil {
				err = e.tree.WriteVariable(step.Target, val)
			}
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			sc.PC++

		case StepRead:
			val, err := e.tree.ReadVariable(step.Source)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			sc.Frame.Set(step.StoreAs, val)
			sc.PC++

		case StepWait:
			node, err := e.tree.Resolve(step.Source)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			variable, ok := node.(Variable)
			if !ok {
				return e.terminate(sc, nil, NewError(CodeTypeMismatch, "WaitStep target is not a variable"))
			}
			rhs, err := step.RHSExpr(sc.Frame)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			holds, err := step.Op.evaluate(variable.currentValue(), rhs)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			if holds {
				// A scope already resumed in this dispatch tick advances at
				// most once per originating write: even a holding WaitStep
				// suspends it until a write in a later tick.
				if t, resumed := e.advancedTick[sc.ID]; !resumed || t != e.tick {
					sc.PC++
					continue
				}
			}
			e.suspend(sc, node.ID(), step)
			e.logger.Debug().Str("scope", string(sc.ID)).Msg("composite scope suspended on WaitStep")
			if e.trace != nil {
				e.trace.OnScopeSuspend(sc.ID, node.ID())
			}
			return InvokeOutcome{ScopeID: sc.ID}

		case StepCallAsync:
			node, err := e.tree.Resolve(step.Method)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			am, ok := node.(*AsyncMethod)
			if !ok {
				return e.terminate(sc, nil, NewError(CodeTypeMismatch, "CallAsyncStep target is not an AsyncMethod"))
			}
			callArgs := make([]Value, len(step.ArgsExpr))
			for i, ex := range step.ArgsExpr {
				v, err := ex(sc.Frame)
				if err != nil {
					return e.terminate(sc, nil, err)
				}
				callArgs[i] = v
			}
			handle, err := am.Invoke(context.Background(), callArgs)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			if step.StoreReturnsAs != "" {
				sc.Frame.Set(step.StoreReturnsAs, StringValue(string(handle)))
			}
			sc.PC++

		case StepBranch:
			cond, err := step.Predicate(sc.Frame)
			if err != nil {
				return e.terminate(sc, nil, err)
			}
			b, ok := cond.Bool()
			if !ok {
				return e.terminate(sc, nil, NewError(CodeTypeMismatch, "branch predicate must be Bool"))
			}
			if b {
				sc.PC = step.IfTrueIndex
			} else {
				sc.PC = step.IfFalseIndex
			}
		}
	}

	values := make([]Value, len(sc.Method.Returns))
	for i, r := range sc.Method.Returns {
		v, ok := sc.Frame.Get(r.Name)
		if !ok {
			if r.Default == nil {
				return e.terminate(sc, nil, NewError(CodeTypeMismatch, "missing return binding "+r.Name))
			}
			v = *r.Default
		}
		values[i] = v
	}
	return e.terminate(sc, values, nil)
}

// handleWriteCommitted re-checks every scope currently waiting on nodeID
// against the newly written value, strictly after the write's own
// subscription notifications have already completed (spec §4.5: "Resume is
// performed inline on the writer's notification pass, after subscription
// notifications complete").
func (e *Engine) handleWriteCommitted(nodeID Identifier, value Value) {
	waiters := e.waitsByNode[nodeID]
	if len(waiters) == 0 {
		return
	}
	snapshot := make([]*Scope, 0, len(waiters))
	for _, sc := range waiters {
		snapshot = append(snapshot, sc)
	}

	for _, sc := range snapshot {
		if sc.Wait == nil || sc.Wait.nodeID != nodeID {
			continue // already resumed or cancelled earlier in this same pass
		}
		if e.advancedTick[sc.ID] == e.tick {
			// Already advanced once for this dispatch; a scope advances at
			// most once per originating write (spec §9). It stays suspended
			// and will be re-checked on the next write to this node.
			continue
		}
		if !sc.deadline.IsZero() && !e.clock.Now().Before(sc.deadline) {
			e.deliverTerminal(sc, e.terminate(sc, nil, NewError(CodeCancelled, "composite method deadline exceeded")))
			continue
		}

		rhs, err := sc.Wait.rhsExpr(sc.Frame)
		if err != nil {
			e.deliverTerminal(sc, e.terminate(sc, nil, err))
			continue
		}
		holds, err := sc.Wait.op.evaluate(value, rhs)
		if err != nil {
			e.deliverTerminal(sc, e.terminate(sc, nil, err))
			continue
		}
		if !holds {
			continue
		}

		e.advancedTick[sc.ID] = e.tick
		e.clearWait(sc)
		sc.PC++
		if e.trace != nil {
			e.trace.OnScopeResume(sc.ID)
		}
		e.deliverTerminal(sc, e.drive(sc))
	}
}

// handleNodeRemoved cancels every scope waiting on id with DEPENDENCY_LOST
// (spec §3 lifecycle).
func (e *Engine) handleNodeRemoved(id Identifier) {
	waiters := e.waitsByNode[id]
	if len(waiters) == 0 {
		return
	}
	snapshot := make([]*Scope, 0, len(waiters))
	for _, sc := range waiters {
		snapshot = append(snapshot, sc)
	}
	for _, sc := range snapshot {
		outcome := e.terminate(sc, nil, NewError(CodeDependencyLost, "watched node was removed from the tree"))
		e.deliverTerminal(sc, outcome)
	}
}

// suspend registers sc as waiting on nodeID, remembering the WaitStep's
// comparison so handleWriteCommitted can re-evaluate it without re-reading
// sc.Method.Steps.
func (e *Engine) suspend(sc *Scope, nodeID Identifier, step Step) {
	sc.Wait = &scopeWait{nodeID: nodeID, op: step.Op, rhsExpr: step.RHSExpr}
	if e.waitsByNode[nodeID] == nil {
		e.waitsByNode[nodeID] = make(map[ScopeID]*Scope)
	}
	e.waitsByNode[nodeID][sc.ID] = sc
}

func (e *Engine) clearWait(sc *Scope) {
	if sc.Wait == nil {
		return
	}
	if m, ok := e.waitsByNode[sc.Wait.nodeID]; ok {
		delete(m, sc.ID)
		if len(m) == 0 {
			delete(e.waitsByNode, sc.Wait.nodeID)
		}
	}
	sc.Wait = nil
}

// terminate retires sc — clearing any active wait and removing it from both
// the owning method's scope registry and the engine's global index — and
// packages the result as an InvokeOutcome.
func (e *Engine) terminate(sc *Scope, values []Value, err error) InvokeOutcome {
	e.clearWait(sc)
	delete(sc.Method.scopes, sc.ID)
	delete(e.allScopes, sc.ID)

	if err != nil {
		e.logger.Debug().Str("scope", string(sc.ID)).Err(err).Msg("composite scope failed")
		return InvokeOutcome{ScopeID: sc.ID, Err: err}
	}
	e.logger.Debug().Str("scope", string(sc.ID)).Msg("composite scope completed")
	return InvokeOutcome{Completed: true, Values: values, ScopeID: sc.ID}
}

// deliverTerminal invokes sc's completion callback if outcome is terminal.
// A non-terminal outcome (the scope suspended again while resuming) is
// silently ignored: the scope remains registered and will be revisited by a
// later write or cancellation.
func (e *Engine) deliverTerminal(sc *Scope, outcome InvokeOutcome) {
	if !outcome.Completed && outcome.Err == nil {
		return
	}
	if sc.onComplete != nil {
		sc.onComplete(CompletionResult{Values: outcome.Values, Err: outcome.Err})
	}
}
