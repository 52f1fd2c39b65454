package datamodel

import "github.com/samber/lo"

// Variable is the common read/subscribe surface shared by every variable
// node (Boolean, String, Numeric, Object). Write is deliberately not part of
// this interface: ObjectVariable's write is a field-wise merge with a
// different signature (spec §4.2), so scalar variables instead implement
// the separate Writable interface.
type Variable interface {
	Node
	Read() (Value, error)
	Subscribe(subscriberID string, filter Filter, callback func(Notification)) (SubscriptionID, error)
	Unsubscribe(subscriberID string) bool
	UnsubscribeByID(id SubscriptionID) bool

	// currentValue samples the raw stored value without invoking hooks. It
	// backs ObjectVariable's composite value and hierarchical propagation,
	// which must not re-trigger sibling/parent hooks on every write.
	currentValue() Value
}

// Writable is implemented by the scalar variable types, whose Write accepts
// and assigns a single value atomically (spec §4.2), unlike ObjectVariable.
type Writable interface {
	Variable
	Write(x Value) error
}

// variableCore factors out the Read/Write/notify machinery shared by
// Boolean/String/Numeric variables. ObjectVariable does not embed it: its
// read recurses into properties and its write has field-wise-merge
// semantics with no single current value to assign atomically.
type variableCore struct {
	value Value
	subs  subscriberSet
	hooks VariableHooks
}

// read runs the pre-read/sample/post-read sequence (spec §4.2).
func (c *variableCore) read() (Value, error) {
	if err := safeVoid(c.hooks.PreRead); err != nil {
		return Value{}, err
	}
	return safePostRead(c.hooks.PostRead, c.value)
}

// commitWrite runs the pre-update/assign/post-update/notify sequence (spec
// §4.2), rolling back to the previous value if the post-update hook vetoes
// or panics.
func (c *variableCore) commitWrite(node Node, proposed Value) error {
	ok, err := safePreUpdate(c.hooks.PreUpdate, proposed)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(CodeVetoed, "pre-update hook vetoed write to "+node.Name())
	}

	previous := c.value
	c.value = proposed

	keep, err := safePostUpdate(c.hooks.PostUpdate, previous, proposed)
	if err != nil {
		c.value = previous
		return err
	}
	if !keep {
		c.value = previous
		return NewError(CodePostVetoed, "post-update hook reverted write to "+node.Name())
	}

	c.subs.notify(string(node.ID()), proposed)
	propagateToParent(node.Parent())
	return nil
}

// propagateToParent implements the hierarchical notification cascade (spec
// §4.3): after a variable notifies its own subscribers, its parent
// ObjectVariable (if any) re-evaluates its own subscriptions against the
// composite current value of its properties, then recurses to its own
// parent. Folders do not participate and stop the recursion.
func propagateToParent(parent Node) {
	obj, ok := parent.(*ObjectVariable)
	if !ok {
		return
	}
	composite := obj.currentValue()
	obj.subs.notify(string(obj.ID()), composite)
	propagateToParent(obj.Parent())
}

// rejectRangeFilter is shared by the non-numeric variable types, for which
// a Range filter has no meaning.
func rejectRangeFilter(filter Filter) error {
	if filter.Kind == FilterRange {
		return NewError(CodeInvalidFilter, "Range filter requires a numeric value")
	}
	return nil
}

// --- BooleanVariable ---------------------------------------------------

// BooleanVariable is a leaf variable holding a boolean value (spec §3).
type BooleanVariable struct {
	base
	core variableCore
}

var (
	_ Node     = (*BooleanVariable)(nil)
	_ Variable = (*BooleanVariable)(nil)
	_ Writable = (*BooleanVariable)(nil)
)

// NewBooleanVariable constructs a BooleanVariable with the given initial value.
func NewBooleanVariable(name, description string, initial bool) *BooleanVariable {
	return &BooleanVariable{
		base: newBase(variantBoolean, name, description),
		core: variableCore{value: BoolValue(initial)},
	}
}

// SetHooks installs the variable's read/update hooks.
func (v *BooleanVariable) SetHooks(h VariableHooks) { v.core.hooks = h }

// Read implements Variable.
func (v *BooleanVariable) Read() (Value, error) { return v.core.read() }

// Write implements Writable.
func (v *BooleanVariable) Write(x Value) error {
	if _, ok := x.Bool(); !ok {
		return NewError(CodeTypeMismatch, "expected Bool for "+v.name)
	}
	return v.core.commitWrite(v, x)
}

// Subscribe implements Variable.
func (v *BooleanVariable) Subscribe(subscriberID string, filter Filter, callback func(Notification)) (SubscriptionID, error) {
	if err := rejectRangeFilter(filter); err != nil {
		return "", err
	}
	return v.core.subs.subscribe(subscriberID, filter, v.core.value, callback), nil
}

// Unsubscribe implements Variable.
func (v *BooleanVariable) Unsubscribe(subscriberID string) bool {
	return v.core.subs.unsubscribeBySubscriber(subscriberID)
}

// UnsubscribeByID implements Variable.
func (v *BooleanVariable) UnsubscribeByID(id SubscriptionID) bool {
	return v.core.subs.unsubscribeByID(id)
}

func (v *BooleanVariable) currentValue() Value { return v.core.value }

// --- StringVariable ------------------------------------------------------

// StringVariable is a leaf variable holding a string value (spec §3).
type StringVariable struct {
	base
	core variableCore
}

var (
	_ Node     = (*StringVariable)(nil)
	_ Variable = (*StringVariable)(nil)
	_ Writable = (*StringVariable)(nil)
)

// NewStringVariable constructs a StringVariable with the given initial value.
func NewStringVariable(name, description string, initial string) *StringVariable {
	return &StringVariable{
		base: newBase(variantString, name, description),
		core: variableCore{value: StringValue(initial)},
	}
}

// SetHooks installs the variable's read/update hooks.
func (v *StringVariable) SetHooks(h VariableHooks) { v.core.hooks = h }

// Read implements Variable.
func (v *StringVariable) Read() (Value, error) { return v.core.read() }

// Write implements Writable.
func (v *StringVariable) Write(x Value) error {
	if _, ok := x.String(); !ok {
		return NewError(CodeTypeMismatch, "expected String for "+v.name)
	}
	return v.core.commitWrite(v, x)
}

// Subscribe implements Variable.
func (v *StringVariable) Subscribe(subscriberID string, filter Filter, callback func(Notification)) (SubscriptionID, error) {
	if err := rejectRangeFilter(filter); err != nil {
		return "", err
	}
	return v.core.subs.subscribe(subscriberID, filter, v.core.value, callback), nil
}

// Unsubscribe implements Variable.
func (v *StringVariable) Unsubscribe(subscriberID string) bool {
	return v.core.subs.unsubscribeBySubscriber(subscriberID)
}

// UnsubscribeByID implements Variable.
func (v *StringVariable) UnsubscribeByID(id SubscriptionID) bool {
	return v.core.subs.unsubscribeByID(id)
}

func (v *StringVariable) currentValue() Value { return v.core.value }

// --- NumericVariable -------------------------------------------------------

// NumericVariable is a leaf variable holding a floating-point value, with an
// optional physical unit and optional inclusive bounds (spec §3).
type NumericVariable struct {
	base
	core  variableCore
	unit  Unit
	lower *float64
	upper *float64
}

var (
	_ Node     = (*NumericVariable)(nil)
	_ Variable = (*NumericVariable)(nil)
	_ Writable = (*NumericVariable)(nil)
)

// NewNumericVariable constructs a NumericVariable. lower/upper may be nil for
// an unbounded side; if both are set, lower must be <= upper (spec §3
// invariant), otherwise CodeMalformedModel is returned.
func NewNumericVariable(name, description string, initial float64, unit Unit, lower, upper *float64) (*NumericVariable, error) {
	if lower != nil && upper != nil && *lower > *upper {
		return nil, NewError(CodeMalformedModel, "NumericVariable "+name+": lower must be <= upper")
	}
	return &NumericVariable{
		base:  newBase(variantNumeric, name, description),
		core:  variableCore{value: NumberValueWithUnit(initial, unit)},
		unit:  unit,
		lower: lower,
		upper: upper,
	}, nil
}

// SetHooks installs the variable's read/update hooks.
func (v *NumericVariable) SetHooks(h VariableHooks) { v.core.hooks = h }

// Unit returns the variable's physical unit tag, if any.
func (v *NumericVariable) Unit() Unit { return v.unit }

// Bounds returns the variable's inclusive lower/upper bounds, if set.
func (v *NumericVariable) Bounds() (lower, upper *float64) { return v.lower, v.upper }

// Read implements Variable.
func (v *NumericVariable) Read() (Value, error) { return v.core.read() }

// Write implements Writable. Range-checks x against the declared bounds
// before the hook/assign sequence (spec §4.2: "range-check for numerics").
func (v *NumericVariable) Write(x Value) error {
	f, ok := x.Float64()
	if !ok {
		return NewError(CodeTypeMismatch, "expected Number for "+v.name)
	}
	if v.lower != nil && f < *v.lower {
		return NewError(CodeOutOfRange, "value below lower bound for "+v.name)
	}
	if v.upper != nil && f > *v.upper {
		return NewError(CodeOutOfRange, "value above upper bound for "+v.name)
	}
	return v.core.commitWrite(v, NumberValueWithUnit(f, v.unit))
}

// Subscribe implements Variable.
func (v *NumericVariable) Subscribe(subscriberID string, filter Filter, callback func(Notification)) (SubscriptionID, error) {
	return v.core.subs.subscribe(subscriberID, filter, v.core.value, callback), nil
}

// Unsubscribe implements Variable.
func (v *NumericVariable) Unsubscribe(subscriberID string) bool {
	return v.core.subs.unsubscribeBySubscriber(subscriberID)
}

// UnsubscribeByID implements Variable.
func (v *NumericVariable) UnsubscribeByID(id SubscriptionID) bool {
	return v.core.subs.unsubscribeByID(id)
}

func (v *NumericVariable) currentValue() Value { return v.core.value }

// --- ObjectVariable --------------------------------------------------------

// ObjectVariable is an ordered mapping of name to property variable. It has
// no scalar value of its own: its value is the composition of its
// properties' values, and it forwards child notifications upward (spec
// §3). Only PreRead/PostRead hooks apply at the object level; per-property
// hooks run for each individual property write performed by WriteFields.
type ObjectVariable struct {
	base
	order      []string
	properties map[string]Variable
	subs       subscriberSet
	hooks      VariableHooks
	// ReadOnly restricts WriteFields to always fail, for deployments that
	// want ObjectVariable to be read-only (spec §9 Open Question).
	ReadOnly bool
}

var (
	_ Node     = (*ObjectVariable)(nil)
	_ Variable = (*ObjectVariable)(nil)
)

// NewObjectVariable constructs an empty ObjectVariable. Use AddProperty to
// populate it.
func NewObjectVariable(name, description string) *ObjectVariable {
	return &ObjectVariable{
		base:       newBase(variantObject, name, description),
		properties: make(map[string]Variable),
	}
}

// SetHooks installs the object's PreRead/PostRead hooks. PreUpdate/PostUpdate
// are not invoked at the object level: writes fan out per-property and each
// property's own hooks apply there.
func (v *ObjectVariable) SetHooks(h VariableHooks) { v.hooks = h }

// Properties returns the object's properties in insertion order.
func (v *ObjectVariable) Properties() []Variable {
	return lo.Map(v.order, func(name string, _ int) Variable { return v.properties[name] })
}

// Property looks up an immediate property by name.
func (v *ObjectVariable) Property(name string) (Variable, bool) {
	p, ok := v.properties[name]
	return p, ok
}

// AddProperty inserts a property variable, making v its parent. Fails with
// CodeMalformedModel if the name is already used.
func (v *ObjectVariable) AddProperty(prop Variable) error {
	if _, exists := v.properties[prop.Name()]; exists {
		return NewError(CodeMalformedModel, "duplicate property name "+prop.Name())
	}
	v.properties[prop.Name()] = prop
	v.order = append(v.order, prop.Name())
	prop.setParent(v)
	return nil
}

// RemoveProperty detaches and returns the named property, if present. As
// with Folder.RemoveChild, cascading id-index/subscription cleanup is the
// caller's (Tree's) responsibility.
func (v *ObjectVariable) RemoveProperty(name string) (Variable, bool) {
	p, ok := v.properties[name]
	if !ok {
		return nil, false
	}
	delete(v.properties, name)
	for i, candidate := range v.order {
		if candidate == name {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	p.setParent(nil)
	return p, true
}

// currentValue composes the object's value from its properties' raw stored
// values, without invoking any property's hooks (used for propagation and
// as the DataChange/subscribe baseline).
func (v *ObjectVariable) currentValue() Value {
	props := make(map[string]Value, len(v.order))
	for _, name := range v.order {
		props[name] = v.properties[name].currentValue()
	}
	return ObjectValue(props)
}

// Read implements Variable: it recurses into every property's own Read
// (invoking each property's hooks), assembling a name→value mapping (spec
// §4.2).
func (v *ObjectVariable) Read() (Value, error) {
	if err := safeVoid(v.hooks.PreRead); err != nil {
		return Value{}, err
	}
	props := make(map[string]Value, len(v.order))
	for _, name := range v.order {
		val, err := v.properties[name].Read()
		if err != nil {
			return Value{}, err
		}
		props[name] = val
	}
	return safePostRead(v.hooks.PostRead, ObjectValue(props))
}

// WriteFields performs the field-wise merge write defined by spec §4.2: for
// each (k, v') in proposed, write v' into property k individually. There is
// no cross-property transaction: a failure on one property does not roll
// back properties already written. The per-property outcome is returned as
// a map; the second return value aggregates every failure (via
// hashicorp/go-multierror when more than one property failed) so a caller
// checking only the error still learns that something went wrong.
func (v *ObjectVariable) WriteFields(proposed map[string]Value) (map[string]error, error) {
	results := make(map[string]error, len(proposed))

	if v.ReadOnly {
		for name := range proposed {
			results[name] = NewError(CodeVetoed, "ObjectVariable "+v.name+" is read-only")
		}
		return results, aggregateErrors(results)
	}

	for name, proposedValue := range proposed {
		prop, ok := v.properties[name]
		if !ok {
			results[name] = NewError(CodeNotFound, "no such property "+name)
			continue
		}

		if nestedObj, isObj := prop.(*ObjectVariable); isObj {
			nestedFields, isObjValue := proposedValue.Object()
			if !isObjValue {
				results[name] = NewError(CodeTypeMismatch, "expected Object value for nested property "+name)
				continue
			}
			_, nestedErr := nestedObj.WriteFields(nestedFields)
			results[name] = nestedErr
			continue
		}

		writable, isWritable := prop.(Writable)
		if !isWritable {
			results[name] = NewError(CodeTypeMismatch, "property "+name+" is not writable")
			continue
		}
		results[name] = writable.Write(proposedValue)
	}

	return results, aggregateErrors(results)
}

// Subscribe implements Variable. Range filters are rejected: an object's
// composite value has no single numeric reading to compare against bounds.
func (v *ObjectVariable) Subscribe(subscriberID string, filter Filter, callback func(Notification)) (SubscriptionID, error) {
	if err := rejectRangeFilter(filter); err != nil {
		return "", err
	}
	return v.subs.subscribe(subscriberID, filter, v.currentValue(), callback), nil
}

// Unsubscribe implements Variable.
func (v *ObjectVariable) Unsubscribe(subscriberID string) bool {
	return v.subs.unsubscribeBySubscriber(subscriberID)
}

// UnsubscribeByID implements Variable.
func (v *ObjectVariable) UnsubscribeByID(id SubscriptionID) bool {
	return v.subs.unsubscribeByID(id)
}
