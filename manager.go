package datamodel

import (
	"context"

	"github.com/glacier-project/machine-data-model/internal/xtime"
	"github.com/rs/zerolog"
)

// Manager is the single entry point a protocol front-end drives: it
// resolves a Request against the tree, dispatches to the right
// node/operation, and queues any Events or deferred completions the
// dispatch produces for the transport layer to drain (spec §4.6, §5). It
// processes one Request to quiescence before accepting the next — there is
// no internal concurrency to guard against, following the single-threaded
// cooperative model spec §5 describes.
type Manager struct {
	tree   *Tree
	engine *Engine
	logger zerolog.Logger
	clock  xtime.Clock
	trace  TraceHook

	outbox []OutboundMessage
}

// OutboundKind tags an OutboundMessage's payload.
type OutboundKind uint8

// Outbound message kinds.
const (
	OutboundEvent OutboundKind = iota
	OutboundDeferred
)

// OutboundMessage is something the manager produced that was not the direct
// reply to the Request that caused it: either a subscription Event, or a
// deferred Success/Error completing a previously Accepted composite method
// call.
type OutboundMessage struct {
	Kind     OutboundKind
	Event    *EventMessage
	Deferred *Response
}

// NewManager builds a Manager over tree, logging through logger and
// stamping composite-scope debug entries via clock.
func NewManager(tree *Tree, logger zerolog.Logger, clock xtime.Clock) *Manager {
	tree.SetLogger(logger)
	return &Manager{
		tree:   tree,
		engine: NewEngine(tree, logger, clock),
		logger: logger,
		clock:  clock,
	}
}

// Engine exposes the manager's composite-method engine, e.g. for a
// transport layer that wants to log active scope counts.
func (m *Manager) Engine() *Engine { return m.engine }

// SetTrace installs a TraceHook for observability; pass nil to disable it.
func (m *Manager) SetTrace(t TraceHook) {
	m.trace = t
	m.engine.trace = t
}

// DrainOutbound returns and clears every Event/deferred-completion message
// queued since the last call (spec GLOSSARY "Deferred completion", §4.6
// Event). A transport layer calls this after Handle returns to pick up
// anything besides the direct reply.
func (m *Manager) DrainOutbound() []OutboundMessage {
	out := m.outbox
	m.outbox = nil
	return out
}

func (m *Manager) enqueueEvent(subscriberID string, n Notification) {
	m.outbox = append(m.outbox, OutboundMessage{
		Kind: OutboundEvent,
		Event: &EventMessage{
			Kind:         KindEvent,
			SubscriberID: subscriberID,
			Notification: n,
			Timestamp:    m.clock.Now(),
		},
	})
}

func (m *Manager) enqueueDeferred(requestID string, scopeID ScopeID, result CompletionResult) {
	resp := &Response{RequestID: requestID, ScopeID: scopeID}
	if result.Err != nil {
		resp.Kind = KindError
		resp.Error = AsError(result.Err)
	} else {
		resp.Kind = KindSuccess
		resp.Values = result.Values
	}
	m.outbox = append(m.outbox, OutboundMessage{Kind: OutboundDeferred, Deferred: resp})
}

// Handle dispatches req to completion, running every subscriber
// notification and composite-engine resume it triggers before returning
// (spec §5). Use DrainOutbound afterward to collect any Events or deferred
// completions produced along the way.
func (m *Manager) Handle(ctx context.Context, req Request) Response {
	m.engine.BeginDispatch()

	switch req.Operation {
	case OpVariableRead:
		return m.handleRead(req)
	case OpVariableWrite:
		return m.handleWrite(req)
	case OpVariableWriteFields:
		return m.handleWriteFields(req)
	case OpVariableSubscribe:
		return m.handleSubscribe(req)
	case OpVariableUnsubscribe:
		return m.handleUnsubscribe(req)
	case OpMethodCall:
		return m.handleMethodCall(ctx, req)
	case OpCompositeMethodCancel:
		return m.handleCancel(req)
	default:
		return m.errorResponse(req.ID, NewError(CodeMalformedModel, "unknown operation "+string(req.Operation)))
	}
}

func (m *Manager) handleRead(req Request) Response {
	val, err := m.tree.ReadVariable(req.Target)
	if m.trace != nil {
		m.trace.OnRead(req.Target, val, err)
	}
	if err != nil {
		return m.errorResponse(req.ID, err)
	}
	m.logger.Debug().Str("request", req.ID).Str("path", string(req.Target.Path)).Msg("variable read")
	return Response{RequestID: req.ID, Kind: KindSuccess, Values: []Value{val}, Timestamp: m.clock.Now()}
}

func (m *Manager) handleWrite(req Request) Response {
	if len(req.Args) != 1 {
		return m.errorResponse(req.ID, NewError(CodeTypeMismatch, "Variable.Write takes exactly one value"))
	}
	err := m.tree.WriteVariable(req.Target, req.Args[0])
	if m.trace != nil {
		m.trace.OnWrite(req.Target, req.Args[0], err)
	}
	if err != nil {
		return m.errorResponse(req.ID, err)
	}
	m.logger.Debug().Str("request", req.ID).Str("path", string(req.Target.Path)).Msg("variable write")
	return Response{RequestID: req.ID, Kind: KindSuccess}
}

func (m *Manager) handleWriteFields(req Request) Response {
	fieldErrors, err := m.tree.WriteObjectFields(req.Target, req.Fields)
	if err != nil {
		resp := m.errorResponse(req.ID, err)
		resp.FieldErrors = fieldErrors
		return resp
	}
	return Response{RequestID: req.ID, Kind: KindSuccess, FieldErrors: fieldErrors}
}

func (m *Manager) handleSubscribe(req Request) Response {
	node, err := m.tree.Resolve(req.Target)
	if err != nil {
		return m.errorResponse(req.ID, err)
	}
	variable, ok := node.(Variable)
	if !ok {
		return m.errorResponse(req.ID, NewError(CodeTypeMismatch, "target is not a variable"))
	}
	subscriberID := req.SubscriberID
	subID, err := variable.Subscribe(subscriberID, req.Filter, func(n Notification) {
		if m.trace != nil {
			m.trace.OnNotify(n)
		}
		m.enqueueEvent(subscriberID, n)
	})
	if err != nil {
		return m.errorResponse(req.ID, err)
	}
	return Response{RequestID: req.ID, Kind: KindSuccess, SubscriptionID: subID}
}

func (m *Manager) handleUnsubscribe(req Request) Response {
	node, err := m.tree.Resolve(req.Target)
	if err != nil {
		return m.errorResponse(req.ID, err)
	}
	variable, ok := node.(Variable)
	if !ok {
		return m.errorResponse(req.ID, NewError(CodeTypeMismatch, "target is not a variable"))
	}
	var removed bool
	if req.SubscriptionID != "" {
		removed = variable.UnsubscribeByID(req.SubscriptionID)
	} else {
		removed = variable.Unsubscribe(req.SubscriberID)
	}
	if !removed {
		return m.errorResponse(req.ID, NewError(CodeNotFound, "no matching subscription"))
	}
	return Response{RequestID: req.ID, Kind: KindSuccess}
}

func (m *Manager) handleMethodCall(ctx context.Context, req Request) Response {
	node, err := m.tree.Resolve(req.Target)
	if err != nil {
		return m.errorResponse(req.ID, err)
	}

	switch target := node.(type) {
	case *Method:
		values, err := target.Invoke(ctx, req.Args)
		if err != nil {
			return m.errorResponse(req.ID, err)
		}
		return Response{RequestID: req.ID, Kind: KindSuccess, Values: values}

	case *AsyncMethod:
		handle, err := target.Invoke(ctx, req.Args)
		if err != nil {
			return m.errorResponse(req.ID, err)
		}
		return Response{RequestID: req.ID, Kind: KindSuccess, Values: []Value{StringValue(string(handle))}}

	case *CompositeMethod:
		requestID := req.ID
		// onComplete only ever fires after Invoke has returned (a scope never
		// completes synchronously through this path once it has suspended
		// once), so capturing scopeID by reference and assigning it from
		// outcome below is safe: every call the closure makes sees the final
		// value.
		var scopeID ScopeID
		outcome := m.engine.Invoke(ctx, target, req.Args, func(result CompletionResult) {
			m.enqueueDeferred(requestID, scopeID, result)
		}, req.Deadline)
		scopeID = outcome.ScopeID

		if outcome.Err != nil {
			return m.errorResponse(req.ID, outcome.Err)
		}
		if outcome.Completed {
			return Response{RequestID: req.ID, Kind: KindSuccess, Values: outcome.Values, ScopeID: outcome.ScopeID}
		}
		return Response{RequestID: req.ID, Kind: KindAccepted, ScopeID: outcome.ScopeID}

	default:
		return m.errorResponse(req.ID, NewError(CodeTypeMismatch, "target is not invocable"))
	}
}

func (m *Manager) handleCancel(req Request) Response {
	if !m.engine.Cancel(req.ScopeID, NewError(CodeCancelled, "cancelled by request")) {
		return m.errorResponse(req.ID, NewError(CodeNotFound, "no such active scope"))
	}
	return Response{RequestID: req.ID, Kind: KindSuccess}
}

func (m *Manager) errorResponse(requestID string, err error) Response {
	modelErr := AsError(err)
	m.logger.Error().Str("request", requestID).Str("code", string(modelErr.Code)).Msg(modelErr.Message)
	return Response{RequestID: requestID, Kind: KindError, Error: modelErr}
}
