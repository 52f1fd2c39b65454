package datamodel

// Frame holds a scope's parameter bindings plus named intermediate reads
// (spec GLOSSARY "Frame"). It is the environment an Expr evaluates against.
type Frame map[string]Value

// Get looks up a binding by name.
func (f Frame) Get(name string) (Value, bool) {
	v, ok := f[name]
	return v, ok
}

// Set installs or overwrites a binding.
func (f Frame) Set(name string, v Value) {
	f[name] = v
}

// Clone returns an independent copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Expr evaluates to a Value against a scope's current Frame. This is the
// generalization of bassosimone-nop's Func[A,B] (a single-method callable
// interface) to the composite engine's narrower need: every step operand is
// "given the frame, produce a value or fail", so a plain function type
// serves in place of an interface plus adapter.
type Expr func(frame Frame) (Value, error)

// ConstExpr returns an Expr that ignores the frame and always yields v.
func ConstExpr(v Value) Expr {
	return func(Frame) (Value, error) { return v, nil }
}

// BindingExpr returns an Expr that looks up name in the frame, failing with
// CodeTypeMismatch if it is unbound.
func BindingExpr(name string) Expr {
	return func(f Frame) (Value, error) {
		v, ok := f.Get(name)
		if !ok {
			return Value{}, NewError(CodeTypeMismatch, "no frame binding named "+name)
		}
		return v, nil
	}
}

// CompareOp is a WaitStep's relational operator (spec §4.5).
type CompareOp uint8

// Comparison operators.
const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// evaluate applies op to (lhs, rhs). Equality/inequality work on any Value
// kind via Value.Equal; ordering operators require both sides numeric.
func (op CompareOp) evaluate(lhs, rhs Value) (bool, error) {
	switch op {
	case OpEQ:
		return lhs.Equal(rhs), nil
	case OpNE:
		return !lhs.Equal(rhs), nil
	}

	lf, lok := lhs.Float64()
	rf, rok := rhs.Float64()
	if !lok || !rok {
		return false, NewError(CodeTypeMismatch, "ordering operator requires numeric operands")
	}
	switch op {
	case OpLT:
		return lf < rf, nil
	case OpLE:
		return lf <= rf, nil
	case OpGT:
		return lf > rf, nil
	case OpGE:
		return lf >= rf, nil
	}
	panic("datamodel: unreachable CompareOp")
}

// StepKind tags the control-flow step variant (spec §4.5). Modeled as a
// tagged variant rather than an interface hierarchy, following the same
// "sum type with a common header" design note spec §9 applies to Node.
type StepKind uint8

// Step kinds.
const (
	StepWrite StepKind = iota
	StepRead
	StepWait
	StepCallAsync
	StepBranch
)

// Step is one entry in a CompositeMethod's control-flow graph.
type Step struct {
	Kind StepKind

	// WriteStep fields.
	Target    NodeRef
	ValueExpr Expr

	// ReadStep fields (Source is reused by WaitStep).
	Source  NodeRef
	StoreAs string

	// WaitStep fields.
	Op      CompareOp
	RHSExpr Expr

	// CallAsyncStep fields.
	Method         NodeRef
	ArgsExpr       []Expr
	StoreReturnsAs string

	// BranchStep fields.
	Predicate    Expr
	IfTrueIndex  int
	IfFalseIndex int
}

// WriteStepOf builds a WriteStep: evaluate valueExpr against the frame, then
// write it to target (spec §4.5).
func WriteStepOf(target NodeRef, valueExpr Expr) Step {
	return Step{Kind: StepWrite, Target: target, ValueExpr: valueExpr}
}

// ReadStepOf builds a ReadStep: read source, bind the result under storeAs.
func ReadStepOf(source NodeRef, storeAs string) Step {
	return Step{Kind: StepRead, Source: source, StoreAs: storeAs}
}

// WaitStepOf builds a WaitStep: advance if source op rhsExpr holds,
// otherwise suspend until a write to source makes it hold.
func WaitStepOf(source NodeRef, op CompareOp, rhsExpr Expr) Step {
	return Step{Kind: StepWait, Source: source, Op: op, RHSExpr: rhsExpr}
}

// CallAsyncStepOf builds a CallAsyncStep: invoke an AsyncMethod, optionally
// binding its acknowledgement handle under storeReturnsAs (empty to
// discard). Does not by itself block (spec §4.5).
func CallAsyncStepOf(method NodeRef, argsExpr []Expr, storeReturnsAs string) Step {
	return Step{Kind: StepCallAsync, Method: method, ArgsExpr: argsExpr, StoreReturnsAs: storeReturnsAs}
}

// BranchStepOf builds a BranchStep: a non-linear advance within the graph.
func BranchStepOf(predicate Expr, ifTrueIndex, ifFalseIndex int) Step {
	return Step{Kind: StepBranch, Predicate: predicate, IfTrueIndex: ifTrueIndex, IfFalseIndex: ifFalseIndex}
}
