package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataChangeFilter_RejectsNegativeDeadband(t *testing.T) {
	t.Parallel()
	_, err := NewDataChangeFilter(-1)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidFilter))
}

func TestNewRangeFilter_RejectsInvertedBounds(t *testing.T) {
	t.Parallel()
	_, err := NewRangeFilter(10, 5, RangeOnBoth)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidFilter))
}

func TestFilter_ShouldFireDataChange_NumericDeadband(t *testing.T) {
	t.Parallel()
	f, err := NewDataChangeFilter(0.5)
	require.NoError(t, err)

	assert.False(t, f.shouldFireDataChange(NumberValue(10), NumberValue(10.3)))
	assert.True(t, f.shouldFireDataChange(NumberValue(10), NumberValue(10.6)))
}

func TestFilter_ShouldFireDataChange_ZeroDeadbandNonNumericAlwaysFires(t *testing.T) {
	t.Parallel()
	f, err := NewDataChangeFilter(0)
	require.NoError(t, err)

	// Same value, zero deadband: still fires (deadband=0 collapses to All).
	assert.True(t, f.shouldFireDataChange(StringValue("on"), StringValue("on")))
}

func TestFilter_ShouldFireRange_Transitions(t *testing.T) {
	t.Parallel()
	f, err := NewRangeFilter(0, 10, RangeOnExit)
	require.NoError(t, err)

	assert.False(t, f.shouldFireRange(true, true))   // still inside
	assert.True(t, f.shouldFireRange(true, false))   // exit
	assert.False(t, f.shouldFireRange(false, false)) // still outside
	assert.False(t, f.shouldFireRange(false, true))  // enter, but mode is on-exit
}
