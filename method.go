package datamodel

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// MethodCallback is the user-bound implementation backing a Method or
// AsyncMethod (spec §3, §6 bind_method_callback).
type MethodCallback func(ctx context.Context, args []Value) ([]Value, error)

// resolveArgs matches positional args against a parameter template,
// applying declared defaults for missing trailing arguments. The engine
// supports at least positional matching (spec §9 Open Question); named
// argument matching, if a deployment wants it, is a thin translation layer
// in front of this function.
func resolveArgs(params []ParamSpec, args []Value) ([]Value, error) {
	if len(args) > len(params) {
		return nil, NewError(CodeTypeMismatch, "too many arguments")
	}
	resolved := make([]Value, len(params))
	for i, p := range params {
		switch {
		case i < len(args):
			if args[i].Kind() != p.Kind {
				return nil, NewError(CodeTypeMismatch,
					fmt.Sprintf("argument %d (%s): expected %s, got %s", i, p.Name, p.Kind, args[i].Kind()))
			}
			resolved[i] = args[i]
		case p.Default != nil:
			resolved[i] = *p.Default
		default:
			return nil, NewError(CodeTypeMismatch, "missing required argument "+p.Name)
		}
	}
	return resolved, nil
}

// --- Method ---------------------------------------------------------------

// Method is a synchronous, user-bound operation: invocation returns when
// the bound callback completes (spec §3).
type Method struct {
	base
	Params  []ParamSpec
	Returns []ParamSpec
	hooks   MethodHooks
	fn      MethodCallback
}

var _ Node = (*Method)(nil)

// NewMethod constructs an unbound Method; call Bind before invoking it.
func NewMethod(name, description string, params, returns []ParamSpec) *Method {
	return &Method{base: newBase(variantMethod, name, description), Params: params, Returns: returns}
}

// SetHooks installs the method's pre/post invocation hooks.
func (m *Method) SetHooks(h MethodHooks) { m.hooks = h }

// Bind attaches the callback implementing the method (spec §6
// bind_method_callback). A Method is not invocable until bound.
func (m *Method) Bind(fn MethodCallback) { m.fn = fn }

// Invoke runs the method's full pre-invoke/callback/post-invoke sequence
// (spec §4.5 step 1, §4.4).
func (m *Method) Invoke(ctx context.Context, args []Value) ([]Value, error) {
	if m.fn == nil {
		return nil, NewError(CodeUnboundCallback, "method "+m.name+" has no bound callback")
	}
	resolved, err := resolveArgs(m.Params, args)
	if err != nil {
		return nil, err
	}
	if m.hooks.PreInvoke != nil {
		if err := safeVoid(func() { m.hooks.PreInvoke(resolved) }); err != nil {
			return nil, err
		}
	}
	result, err := m.fn(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if m.hooks.PostInvoke != nil {
		if err := safeVoid(func() { m.hooks.PostInvoke(result) }); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// --- AsyncMethod ------------------------------------------------------------

// AsyncHandle acknowledges an AsyncMethod invocation (spec §3, §4.5
// CallAsyncStep: "binds its immediate acknowledgement / handle").
type AsyncHandle string

// AsyncMethod is a user-bound operation that acknowledges synchronously
// (spec §3). Under this module's cooperative, single-threaded scheduling
// model (spec §5) the bound callback still runs to completion before
// Invoke returns — there is no background goroutine to hand it off to —
// but the value handed back to the caller is only the acknowledgement
// handle, not the callback's result; a deployment that needs the result
// observes it through the tree (the callback's own writes) rather than
// through Invoke's return value.
type AsyncMethod struct {
	base
	Params  []ParamSpec
	Returns []ParamSpec
	hooks   MethodHooks
	fn      MethodCallback
}

var _ Node = (*AsyncMethod)(nil)

// NewAsyncMethod constructs an unbound AsyncMethod; call Bind before invoking it.
func NewAsyncMethod(name, description string, params, returns []ParamSpec) *AsyncMethod {
	return &AsyncMethod{base: newBase(variantAsyncMethod, name, description), Params: params, Returns: returns}
}

// SetHooks installs the method's pre/post invocation hooks.
func (m *AsyncMethod) SetHooks(h MethodHooks) { m.hooks = h }

// Bind attaches the callback implementing the method.
func (m *AsyncMethod) Bind(fn MethodCallback) { m.fn = fn }

// Invoke runs the bound callback and returns an acknowledgement handle.
func (m *AsyncMethod) Invoke(ctx context.Context, args []Value) (AsyncHandle, error) {
	if m.fn == nil {
		return "", NewError(CodeUnboundCallback, "async method "+m.name+" has no bound callback")
	}
	resolved, err := resolveArgs(m.Params, args)
	if err != nil {
		return "", err
	}
	if m.hooks.PreInvoke != nil {
		if err := safeVoid(func() { m.hooks.PreInvoke(resolved) }); err != nil {
			return "", err
		}
	}
	handle := AsyncHandle(newIdentifier())
	result, err := m.fn(ctx, resolved)
	if err != nil {
		return "", err
	}
	if m.hooks.PostInvoke != nil {
		if err := safeVoid(func() { m.hooks.PostInvoke(result) }); err != nil {
			return "", err
		}
	}
	return handle, nil
}

// --- CompositeMethod --------------------------------------------------------

// ScopeID identifies an active or suspended composite-method invocation
// (spec GLOSSARY "Scope").
type ScopeID string

// CompositeMethod carries a control-flow graph and the registry of its
// currently active scopes (spec §3, §4.5).
type CompositeMethod struct {
	base
	Params  []ParamSpec
	Returns []ParamSpec
	Steps   []Step
	scopes  map[ScopeID]*Scope
}

var _ Node = (*CompositeMethod)(nil)

// NewCompositeMethod constructs a CompositeMethod with the given parameter
// template, return template, and control-flow graph.
func NewCompositeMethod(name, description string, params, returns []ParamSpec, steps []Step) *CompositeMethod {
	return &CompositeMethod{
		base:    newBase(variantComposite, name, description),
		Params:  params,
		Returns: returns,
		Steps:   steps,
		scopes:  make(map[ScopeID]*Scope),
	}
}

// ActiveScopes returns the ids of currently registered (running or
// suspended) scopes.
func (m *CompositeMethod) ActiveScopes() []ScopeID {
	return lo.Keys(m.scopes)
}
