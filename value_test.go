package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_AccessorsMatchKind(t *testing.T) {
	t.Parallel()

	b := BoolValue(true)
	assert.Equal(t, KindBool, b.Kind())
	v, ok := b.Bool()
	assert.True(t, ok)
	assert.True(t, v)
	_, ok = b.Float64()
	assert.False(t, ok)

	n := NumberValueWithUnit(3.5, "m/s")
	assert.Equal(t, KindNumber, n.Kind())
	assert.EqualValues(t, "m/s", n.Unit())
	f, ok := n.Float64()
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)

	s := StringValue("hi")
	str, ok := s.String()
	assert.True(t, ok)
	assert.Equal(t, "hi", str)

	o := ObjectValue(map[string]Value{"a": BoolValue(false)})
	props, ok := o.Object()
	assert.True(t, ok)
	assert.Len(t, props, 1)
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	assert.True(t, NumberValue(1).Equal(NumberValue(1)))
	assert.False(t, NumberValue(1).Equal(NumberValue(2)))
	assert.False(t, NumberValue(1).Equal(StringValue("1")))
	assert.True(t, BoolValue(true).Equal(BoolValue(true)))

	left := ObjectValue(map[string]Value{"x": NumberValue(1), "y": StringValue("a")})
	right := ObjectValue(map[string]Value{"x": NumberValue(1), "y": StringValue("a")})
	assert.True(t, left.Equal(right))

	differentShape := ObjectValue(map[string]Value{"x": NumberValue(1)})
	assert.False(t, left.Equal(differentShape))
}
