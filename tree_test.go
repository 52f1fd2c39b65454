package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestTree(t *testing.T) (*Tree, *BooleanVariable, *NumericVariable) {
	t.Helper()
	root := NewFolder("root", "")
	plant := NewFolder("plant", "")
	require.NoError(t, root.AddChild(plant))

	running := NewBooleanVariable("running", "", false)
	require.NoError(t, plant.AddChild(running))

	temp, err := NewNumericVariable("temperature", "", 20, "C", nil, nil)
	require.NoError(t, err)
	require.NoError(t, plant.AddChild(temp))

	tree, err := LoadTree(root)
	require.NoError(t, err)
	return tree, running, temp
}

func TestTree_ResolveByPathAndID(t *testing.T) {
	t.Parallel()
	tree, running, _ := buildTestTree(t)

	byPath, err := tree.Resolve(ByPath("plant/running"))
	require.NoError(t, err)
	assert.Equal(t, running.ID(), byPath.ID())

	byID, err := tree.Resolve(ByID(running.ID()))
	require.NoError(t, err)
	assert.Equal(t, running.Name(), byID.Name())

	both, err := tree.Resolve(NodeRef{Path: "plant/running", ID: running.ID()})
	require.NoError(t, err)
	assert.Equal(t, running.ID(), both.ID())

	_, err = tree.Resolve(NodeRef{Path: "plant/temperature", ID: running.ID()})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeAddressMismatch))
}

func TestTree_ResolveMissingPath(t *testing.T) {
	t.Parallel()
	tree, _, _ := buildTestTree(t)

	_, err := tree.Resolve(ByPath("plant/nonexistent"))
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeNotFound))
}

func TestTree_RemoveCascadesSubscriptionsAndIndex(t *testing.T) {
	t.Parallel()
	tree, running, _ := buildTestTree(t)

	var fired int
	_, err := running.Subscribe("client-1", AllFilter(), func(Notification) { fired++ })
	require.NoError(t, err)

	require.NoError(t, tree.Remove(ByPath("plant/running")))

	_, err = tree.Resolve(ByID(running.ID()))
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeNotFound))

	// The variable is detached; writing to it directly must not panic, and
	// its (now torn down) subscription must not fire.
	assert.NoError(t, running.Write(BoolValue(true)))
	assert.Equal(t, 0, fired)
}

func TestTree_WriteObjectFieldsFiresWriteCommittedForNestedLeaves(t *testing.T) {
	t.Parallel()
	root := NewFolder("root", "")

	inner := NewObjectVariable("inner", "")
	setpoint, err := NewNumericVariable("setpoint", "", 0, "C", nil, nil)
	require.NoError(t, err)
	require.NoError(t, inner.AddProperty(setpoint))

	outer := NewObjectVariable("outer", "")
	require.NoError(t, outer.AddProperty(inner))
	require.NoError(t, root.AddChild(outer))

	tree, err := LoadTree(root)
	require.NoError(t, err)

	committed := make(map[Identifier]bool)
	tree.OnWriteCommitted(func(id Identifier, _ Value) { committed[id] = true })

	results, err := tree.WriteObjectFields(ByPath("outer"), map[string]Value{
		"inner": ObjectValue(map[string]Value{
			"setpoint": NumberValue(42),
		}),
	})
	require.NoError(t, err)
	require.Nil(t, results["inner"])

	assert.True(t, committed[setpoint.ID()], "write-committed hook must fire for the grandchild leaf")
	assert.True(t, committed[inner.ID()])
	assert.True(t, committed[outer.ID()])
}

func TestTree_InsertChildIndexesSubtree(t *testing.T) {
	t.Parallel()
	tree, _, _ := buildTestTree(t)

	extra := NewFolder("extra", "")
	nested := NewBooleanVariable("flag", "", true)
	require.NoError(t, extra.AddChild(nested))

	require.NoError(t, tree.InsertChild(ByPath("plant"), extra))

	found, err := tree.Resolve(ByID(nested.ID()))
	require.NoError(t, err)
	assert.Equal(t, "flag", found.Name())
}
