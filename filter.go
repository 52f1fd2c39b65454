package datamodel

import "golang.org/x/exp/constraints"

// absDiff returns the absolute difference between a and b. Generic over any
// floating-point type, mirroring the teacher's numeric-operator package use
// of constraints.Float for bound/magnitude comparisons (operator_math.go's
// Clamp/Min/Max).
func absDiff[T constraints.Float](a, b T) T {
	if a < b {
		return b - a
	}
	return a - b
}

// FilterKind selects the subscription filter variant (spec §4.3).
type FilterKind uint8

// Filter kinds.
const (
	FilterAll FilterKind = iota
	FilterDataChange
	FilterRange
)

// RangeMode controls which boundary transitions a Range filter fires on.
type RangeMode uint8

// Range modes.
const (
	RangeOnEnter RangeMode = iota
	RangeOnExit
	RangeOnBoth
)

// Filter parameterizes a Subscription. Zero value is FilterAll.
type Filter struct {
	Kind     FilterKind
	Deadband float64
	Low      float64
	High     float64
	Mode     RangeMode
}

// AllFilter notifies on every accepted write.
func AllFilter() Filter {
	return Filter{Kind: FilterAll}
}

// NewDataChangeFilter builds a DataChange filter. deadband must be >= 0.
func NewDataChangeFilter(deadband float64) (Filter, error) {
	if deadband < 0 {
		return Filter{}, NewError(CodeInvalidFilter, "deadband must be >= 0")
	}
	return Filter{Kind: FilterDataChange, Deadband: deadband}, nil
}

// NewRangeFilter builds a Range filter over the closed boundary [low, high]
// (both ends inclusive) with the given transition mode.
func NewRangeFilter(low, high float64, mode RangeMode) (Filter, error) {
	if low > high {
		return Filter{}, NewError(CodeInvalidFilter, "range low must be <= high")
	}
	return Filter{Kind: FilterRange, Low: low, High: high, Mode: mode}, nil
}

// inRange reports whether v is inside [Low, High].
func (f Filter) inRange(v float64) bool {
	return v >= f.Low && v <= f.High
}

// shouldFireRange applies the Range filter's transition rule given whether
// the value was and now is inside the boundary.
func (f Filter) shouldFireRange(wasIn, isIn bool) bool {
	if wasIn == isIn {
		return false // interior-to-interior or exterior-to-exterior: no transition
	}
	switch f.Mode {
	case RangeOnEnter:
		return isIn
	case RangeOnExit:
		return !isIn
	case RangeOnBoth:
		return true
	}
	panic("datamodel: unreachable RangeMode")
}

// shouldFireDataChange applies the DataChange filter's deadband rule. For
// numerics it compares |new - last_reported| against the deadband. For
// strings/booleans, a deadband of 0 collapses to All (spec §4.3: fire
// unconditionally); any other deadband on a non-numeric value falls back to
// plain change detection, since a deadband has no numeric meaning there.
func (f Filter) shouldFireDataChange(last, next Value) bool {
	if nf, nOK := next.Float64(); nOK {
		if lf, lOK := last.Float64(); lOK {
			return absDiff(nf, lf) > f.Deadband
		}
	}
	if f.Deadband == 0 {
		return true
	}
	return !last.Equal(next)
}
