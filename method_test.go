package datamodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveArgs_DefaultsAndMismatch(t *testing.T) {
	t.Parallel()
	def := NumberValue(7)
	params := []ParamSpec{
		{Name: "a", Kind: KindNumber},
		{Name: "b", Kind: KindNumber, Default: &def},
	}

	resolved, err := resolveArgs(params, []Value{NumberValue(1)})
	require.NoError(t, err)
	assert.Len(t, resolved, 2)
	f, _ := resolved[1].Float64()
	assert.Equal(t, 7.0, f)

	_, err = resolveArgs(params, []Value{StringValue("nope")})
	assert.True(t, HasCode(err, CodeTypeMismatch))

	_, err = resolveArgs([]ParamSpec{{Name: "a", Kind: KindNumber}}, nil)
	assert.True(t, HasCode(err, CodeTypeMismatch))

	_, err = resolveArgs(nil, []Value{NumberValue(1)})
	assert.True(t, HasCode(err, CodeTypeMismatch))
}

func TestMethod_InvokeUnboundReturnsError(t *testing.T) {
	t.Parallel()
	m := NewMethod("doThing", "", nil, nil)
	_, err := m.Invoke(context.Background(), nil)
	assert.True(t, HasCode(err, CodeUnboundCallback))
}

func TestMethod_InvokeHookSequencing(t *testing.T) {
	t.Parallel()
	var order []string
	m := NewMethod("doThing", "", []ParamSpec{{Name: "x", Kind: KindNumber}}, nil)
	m.SetHooks(MethodHooks{
		PreInvoke:  func([]Value) { order = append(order, "pre") },
		PostInvoke: func([]Value) { order = append(order, "post") },
	})
	m.Bind(func(ctx context.Context, args []Value) ([]Value, error) {
		order = append(order, "call")
		return nil, nil
	})

	_, err := m.Invoke(context.Background(), []Value{NumberValue(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "call", "post"}, order)
}

func TestAsyncMethod_InvokeReturnsOnlyHandle(t *testing.T) {
	t.Parallel()
	var callbackResult []Value
	m := NewAsyncMethod("doAsync", "", nil, nil)
	m.Bind(func(ctx context.Context, args []Value) ([]Value, error) {
		callbackResult = []Value{NumberValue(42)}
		return callbackResult, nil
	})

	handle, err := m.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	// The callback ran synchronously to completion even though only the
	// acknowledgement handle is returned to the caller.
	assert.Equal(t, []Value{NumberValue(42)}, callbackResult)
}

func TestCompositeMethod_ActiveScopesReflectsRegisteredScopes(t *testing.T) {
	t.Parallel()
	cm := NewCompositeMethod("flow", "", nil, nil, []Step{})
	assert.Empty(t, cm.ActiveScopes())

	cm.scopes["s1"] = &Scope{ID: "s1", Method: cm}
	assert.Equal(t, []ScopeID{"s1"}, cm.ActiveScopes())
}
