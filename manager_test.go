package datamodel

import (
	"context"
	"testing"
	"time"

	"github.com/glacier-project/machine-data-model/internal/xtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildManagerTestTree(t *testing.T) (*Tree, *Manager, *NumericVariable) {
	t.Helper()
	root := NewFolder("root", "")
	temp, err := NewNumericVariable("temperature", "", 20, "C", nil, nil)
	require.NoError(t, err)
	require.NoError(t, root.AddChild(temp))

	method := NewMethod("reset", "", nil, []ParamSpec{{Name: "ok", Kind: KindBool}})
	method.Bind(func(ctx context.Context, args []Value) ([]Value, error) {
		return []Value{BoolValue(true)}, nil
	})
	require.NoError(t, root.AddChild(method))

	async := NewAsyncMethod("ping", "", nil, nil)
	async.Bind(func(ctx context.Context, args []Value) ([]Value, error) { return nil, nil })
	require.NoError(t, root.AddChild(async))

	composite := NewCompositeMethod("waitHot", "", nil,
		[]ParamSpec{{Name: "result", Kind: KindNumber}},
		[]Step{
			WaitStepOf(ByPath("temperature"), OpGE, ConstExpr(NumberValue(100))),
			ReadStepOf(ByPath("temperature"), "result"),
		},
	)
	require.NoError(t, root.AddChild(composite))

	tree, err := LoadTree(root)
	require.NoError(t, err)

	mgr := NewManager(tree, zerolog.Nop(), xtime.RealClock{})
	return tree, mgr, temp
}

func TestManager_HandleVariableReadWrite(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	ctx := context.Background()

	writeResp := mgr.Handle(ctx, Request{ID: "1", Operation: OpVariableWrite, Target: ByPath("temperature"), Args: []Value{NumberValue(55)}})
	require.Equal(t, KindSuccess, writeResp.Kind)

	readResp := mgr.Handle(ctx, Request{ID: "2", Operation: OpVariableRead, Target: ByPath("temperature")})
	require.Equal(t, KindSuccess, readResp.Kind)
	f, _ := readResp.Values[0].Float64()
	assert.Equal(t, 55.0, f)
}

func TestManager_HandleVariableReadStampsTimestamp(t *testing.T) {
	t.Parallel()
	root := NewFolder("root", "")
	temp, err := NewNumericVariable("temperature", "", 20, "C", nil, nil)
	require.NoError(t, err)
	require.NoError(t, root.AddChild(temp))
	tree, err := LoadTree(root)
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mgr := NewManager(tree, zerolog.Nop(), xtime.Fixed(at))

	resp := mgr.Handle(context.Background(), Request{ID: "1", Operation: OpVariableRead, Target: ByPath("temperature")})
	require.Equal(t, KindSuccess, resp.Kind)
	assert.True(t, resp.Timestamp.Equal(at))
}

func TestManager_HandleVariableWriteWrongArgCount(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	resp := mgr.Handle(context.Background(), Request{ID: "1", Operation: OpVariableWrite, Target: ByPath("temperature")})
	assert.Equal(t, KindError, resp.Kind)
	assert.Equal(t, CodeTypeMismatch, resp.Error.Code)
}

func TestManager_HandleSubscribeAndDrainEvent(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	ctx := context.Background()

	subResp := mgr.Handle(ctx, Request{
		ID: "1", Operation: OpVariableSubscribe, Target: ByPath("temperature"),
		SubscriberID: "client-a", Filter: AllFilter(),
	})
	require.Equal(t, KindSuccess, subResp.Kind)
	require.NotEmpty(t, subResp.SubscriptionID)

	mgr.Handle(ctx, Request{ID: "2", Operation: OpVariableWrite, Target: ByPath("temperature"), Args: []Value{NumberValue(99)}})

	outbox := mgr.DrainOutbound()
	require.Len(t, outbox, 1)
	assert.Equal(t, OutboundEvent, outbox[0].Kind)
	assert.Equal(t, "client-a", outbox[0].Event.SubscriberID)
	assert.False(t, outbox[0].Event.Timestamp.IsZero())

	// Draining again returns nothing new.
	assert.Empty(t, mgr.DrainOutbound())
}

func TestManager_HandleUnsubscribeByIDAndBySubscriber(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	ctx := context.Background()

	subResp := mgr.Handle(ctx, Request{
		ID: "1", Operation: OpVariableSubscribe, Target: ByPath("temperature"),
		SubscriberID: "client-a", Filter: AllFilter(),
	})

	unsubResp := mgr.Handle(ctx, Request{
		ID: "2", Operation: OpVariableUnsubscribe, Target: ByPath("temperature"),
		SubscriptionID: subResp.SubscriptionID,
	})
	assert.Equal(t, KindSuccess, unsubResp.Kind)

	missingResp := mgr.Handle(ctx, Request{
		ID: "3", Operation: OpVariableUnsubscribe, Target: ByPath("temperature"),
		SubscriptionID: subResp.SubscriptionID,
	})
	assert.Equal(t, KindError, missingResp.Kind)
	assert.Equal(t, CodeNotFound, missingResp.Error.Code)

	mgr.Handle(ctx, Request{
		ID: "4", Operation: OpVariableSubscribe, Target: ByPath("temperature"),
		SubscriberID: "client-b", Filter: AllFilter(),
	})
	bySubscriberResp := mgr.Handle(ctx, Request{
		ID: "5", Operation: OpVariableUnsubscribe, Target: ByPath("temperature"),
		SubscriberID: "client-b",
	})
	assert.Equal(t, KindSuccess, bySubscriberResp.Kind)
}

func TestManager_HandleMethodCallSynchronous(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	resp := mgr.Handle(context.Background(), Request{ID: "1", Operation: OpMethodCall, Target: ByPath("reset")})
	require.Equal(t, KindSuccess, resp.Kind)
	b, _ := resp.Values[0].Bool()
	assert.True(t, b)
}

func TestManager_HandleMethodCallAsync(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	resp := mgr.Handle(context.Background(), Request{ID: "1", Operation: OpMethodCall, Target: ByPath("ping")})
	require.Equal(t, KindSuccess, resp.Kind)
	require.Len(t, resp.Values, 1)
	handle, ok := resp.Values[0].String()
	require.True(t, ok)
	assert.NotEmpty(t, handle)
}

func TestManager_HandleCompositeMethodAcceptedThenDeferredCompletion(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	ctx := context.Background()

	acceptResp := mgr.Handle(ctx, Request{ID: "1", Operation: OpMethodCall, Target: ByPath("waitHot")})
	require.Equal(t, KindAccepted, acceptResp.Kind)
	require.NotEmpty(t, acceptResp.ScopeID)

	writeResp := mgr.Handle(ctx, Request{ID: "2", Operation: OpVariableWrite, Target: ByPath("temperature"), Args: []Value{NumberValue(150)}})
	require.Equal(t, KindSuccess, writeResp.Kind)

	outbox := mgr.DrainOutbound()
	require.Len(t, outbox, 1)
	assert.Equal(t, OutboundDeferred, outbox[0].Kind)
	assert.Equal(t, "1", outbox[0].Deferred.RequestID)
	assert.Equal(t, KindSuccess, outbox[0].Deferred.Kind)
	f, _ := outbox[0].Deferred.Values[0].Float64()
	assert.Equal(t, 150.0, f)
}

func TestManager_HandleCancel(t *testing.T) {
	t.Parallel()
	_, mgr, _ := buildManagerTestTree(t)
	ctx := context.Background()

	acceptResp := mgr.Handle(ctx, Request{ID: "1", Operation: OpMethodCall, Target: ByPath("waitHot")})
	require.Equal(t, KindAccepted, acceptResp.Kind)

	cancelResp := mgr.Handle(ctx, Request{ID: "2", Operation: OpCompositeMethodCancel, ScopeID: acceptResp.ScopeID})
	assert.Equal(t, KindSuccess, cancelResp.Kind)

	outbox := mgr.DrainOutbound()
	require.Len(t, outbox, 1)
	assert.Equal(t, KindError, outbox[0].Deferred.Kind)
	assert.Equal(t, CodeCancelled, outbox[0].Deferred.Error.Code)

	missingResp := mgr.Handle(ctx, Request{ID: "3", Operation: OpCompositeMethodCancel, ScopeID: acceptResp.ScopeID})
	assert.Equal(t, KindError, missingResp.Kind)
	assert.Equal(t, CodeNotFound, missingResp.Error.Code)
}
