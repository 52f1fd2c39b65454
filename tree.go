package datamodel

import "github.com/rs/zerolog"

// Tree owns the node graph rooted at a Folder and the id index used for
// ByID addressing (spec §3, §4.1). It is the single chokepoint every write
// and removal passes through, so cross-cutting concerns that need to react
// to those events — the composite engine's resume/dependency-loss logic —
// register hooks here instead of every variable type knowing about the
// engine.
type Tree struct {
	root   *Folder
	byID   map[Identifier]Node
	logger zerolog.Logger

	nodeRemovedHooks    []func(Identifier)
	writeCommittedHooks []func(Identifier, Value)
}

// NewTree indexes root and everything already attached beneath it. Mutation
// logging is a no-op until SetLogger installs a real sink.
func NewTree(root *Folder) (*Tree, error) {
	t := &Tree{root: root, byID: make(map[Identifier]Node), logger: zerolog.Nop()}
	if err := t.indexSubtree(root); err != nil {
		return nil, err
	}
	return t, nil
}

// SetLogger installs the logger used for tree-mutation debug entries
// (InsertChild/Remove). NewManager calls this with its own
// logger so tree and dispatch logging share one sink.
func (t *Tree) SetLogger(logger zerolog.Logger) {
	t.logger = logger
}

// LoadTree is the declarative entry point for standing up a tree from a
// pre-built root Folder (spec §4.1 load_tree): construct the node graph with
// the ordinary constructors/AddChild/AddProperty calls, then hand the
// finished root to LoadTree once to validate and index it.
func LoadTree(root *Folder) (*Tree, error) {
	return NewTree(root)
}

// Root returns the tree's root folder.
func (t *Tree) Root() *Folder { return t.root }

// OnNodeRemoved registers a hook invoked once for every node (the removed
// node itself and each descendant) torn out of the tree by Remove.
func (t *Tree) OnNodeRemoved(fn func(Identifier)) {
	t.nodeRemovedHooks = append(t.nodeRemovedHooks, fn)
}

// OnWriteCommitted registers a hook invoked after a write through
// WriteVariable or WriteObjectFields has been accepted (hooks run, value
// assigned, subscribers notified). The composite engine uses this to
// re-check WaitStep predicates strictly after ordinary subscription
// notifications complete (spec §4.5).
func (t *Tree) OnWriteCommitted(fn func(Identifier, Value)) {
	t.writeCommittedHooks = append(t.writeCommittedHooks, fn)
}

func (t *Tree) fireWriteCommitted(id Identifier, value Value) {
	for _, hook := range t.writeCommittedHooks {
		hook(id, value)
	}
}

// Resolve addresses a node by path, by id, or both, reporting
// CodeAddressMismatch if both are given and disagree (spec §4.1). A NodeRef
// with neither set addresses the root.
func (t *Tree) Resolve(ref NodeRef) (Node, error) {
	hasPath := ref.Path != ""
	hasID := ref.ID != ""

	if !hasPath && !hasID {
		return t.root, nil
	}

	var byPath, byID Node
	var pathErr, idErr error
	if hasPath {
		byPath, pathErr = t.LookupPath(ref.Path)
	}
	if hasID {
		byID, idErr = t.LookupID(ref.ID)
	}

	switch {
	case hasPath && hasID:
		if pathErr != nil {
			return nil, pathErr
		}
		if idErr != nil {
			return nil, idErr
		}
		if byPath.ID() != byID.ID() {
			return nil, NewError(CodeAddressMismatch, "path and id refer to different nodes")
		}
		return byPath, nil
	case hasPath:
		return byPath, pathErr
	default:
		return byID, idErr
	}
}

// LookupPath walks from the root through each path segment, descending into
// Folder children or ObjectVariable properties as addressed.
func (t *Tree) LookupPath(path Path) (Node, error) {
	var cur Node = t.root
	for _, seg := range path.Segments() {
		switch container := cur.(type) {
		case *Folder:
			child, ok := container.Child(seg)
			if !ok {
				return nil, NewError(CodeNotFound, "no such path segment "+seg)
			}
			cur = child
		case *ObjectVariable:
			prop, ok := container.Property(seg)
			if !ok {
				return nil, NewError(CodeNotFound, "no such path segment "+seg)
			}
			cur = prop
		default:
			return nil, NewError(CodeNotFound, "path segment "+seg+" addresses into a leaf node")
		}
	}
	return cur, nil
}

// LookupID looks up a node by its opaque Identifier.
func (t *Tree) LookupID(id Identifier) (Node, error) {
	n, ok := t.byID[id]
	if !ok {
		return nil, NewError(CodeNotFound, "no node with id "+string(id))
	}
	return n, nil
}

// InsertChild attaches child under the Folder addressed by parentRef and
// indexes the whole subtree child brings with it.
func (t *Tree) InsertChild(parentRef NodeRef, child Node) error {
	parent, err := t.Resolve(parentRef)
	if err != nil {
		return err
	}
	folder, ok := parent.(*Folder)
	if !ok {
		return NewError(CodeTypeMismatch, "parent is not a Folder")
	}
	if err := folder.AddChild(child); err != nil {
		return err
	}
	if err := t.indexSubtree(child); err != nil {
		return err
	}
	t.logger.Debug().Str("parent", string(folder.ID())).Str("child", string(child.ID())).Msg("child inserted")
	return nil
}

// InsertProperty attaches prop under the ObjectVariable addressed by objRef
// and indexes the subtree it brings with it.
func (t *Tree) InsertProperty(objRef NodeRef, prop Variable) error {
	parent, err := t.Resolve(objRef)
	if err != nil {
		return err
	}
	obj, ok := parent.(*ObjectVariable)
	if !ok {
		return NewError(CodeTypeMismatch, "parent is not an ObjectVariable")
	}
	if err := obj.AddProperty(prop); err != nil {
		return err
	}
	return t.indexSubtree(prop)
}

// Remove detaches the node addressed by ref from its parent, deregisters its
// subscriptions, removes its id (and every descendant's) from the index, and
// fires the node-removed hooks for the node and each descendant (spec §3
// lifecycle: removal "deregisters them from any subscription engine" and
// "cancels any composite-method scope that depends on them").
func (t *Tree) Remove(ref NodeRef) error {
	node, err := t.Resolve(ref)
	if err != nil {
		return err
	}
	switch parent := node.Parent().(type) {
	case *Folder:
		parent.RemoveChild(node.Name())
	case *ObjectVariable:
		parent.RemoveProperty(node.Name())
	case nil:
		return NewError(CodeMalformedModel, "cannot remove the root")
	default:
		return NewError(CodeMalformedModel, "unsupported parent type")
	}
	t.logger.Debug().Str("id", string(node.ID())).Str("name", node.Name()).Msg("node removed")
	t.deindexAndTeardown(node)
	return nil
}

// ReadVariable resolves ref and runs its Read sequence.
func (t *Tree) ReadVariable(ref NodeRef) (Value, error) {
	node, err := t.Resolve(ref)
	if err != nil {
		return Value{}, err
	}
	v, ok := node.(Variable)
	if !ok {
		return Value{}, NewError(CodeTypeMismatch, "not a variable")
	}
	return v.Read()
}

// WriteVariable resolves ref, writes value through it, and — if accepted —
// fires the write-committed hooks (spec §4.5 WaitStep resume point).
// ObjectVariable is rejected here: its write is the field-wise
// WriteObjectFields, not a single value assignment.
func (t *Tree) WriteVariable(ref NodeRef, value Value) error {
	node, err := t.Resolve(ref)
	if err != nil {
		return err
	}
	w, ok := node.(Writable)
	if !ok {
		if _, isObj := node.(*ObjectVariable); isObj {
			return NewError(CodeTypeMismatch, "ObjectVariable requires WriteObjectFields, not Write")
		}
		return NewError(CodeTypeMismatch, "node is not writable")
	}
	if err := w.Write(value); err != nil {
		return err
	}
	t.fireWriteCommitted(node.ID(), value)
	return nil
}

// WriteObjectFields resolves ref to an ObjectVariable and performs the
// field-wise merge write, firing write-committed hooks for every property
// that was actually written plus the object itself (its composite value).
func (t *Tree) WriteObjectFields(ref NodeRef, fields map[string]Value) (map[string]error, error) {
	node, err := t.Resolve(ref)
	if err != nil {
		return nil, err
	}
	obj, ok := node.(*ObjectVariable)
	if !ok {
		return nil, NewError(CodeTypeMismatch, "node is not an ObjectVariable")
	}
	results, aggregate := obj.WriteFields(fields)
	t.fireWriteCommittedFields(obj, fields, results)
	return results, aggregate
}

// fireWriteCommittedFields fires the write-committed hook for every property
// WriteFields reported as successfully written, recursing into nested
// ObjectVariable properties to match WriteFields's own nested-object
// recursion (variable.go) — otherwise a CompositeMethod WaitStep suspended
// on a two-level-deep property would never see the hook that resumes it. A
// nil error for a nested property means WriteFields's recursive call into it
// succeeded for every field at every depth, so every leaf named in
// nestedFields was in fact committed.
func (t *Tree) fireWriteCommittedFields(obj *ObjectVariable, fields map[string]Value, results map[string]error) {
	for name, fieldErr := range results {
		if fieldErr != nil {
			continue
		}
		prop, ok := obj.Property(name)
		if !ok {
			continue
		}
		if nestedObj, isObj := prop.(*ObjectVariable); isObj {
			if nestedFields, isObjValue := fields[name].Object(); isObjValue {
				nestedResults := make(map[string]error, len(nestedFields))
				for nestedName := range nestedFields {
					nestedResults[nestedName] = nil
				}
				t.fireWriteCommittedFields(nestedObj, nestedFields, nestedResults)
			}
			continue
		}
		t.fireWriteCommitted(prop.ID(), prop.currentValue())
	}
	t.fireWriteCommitted(obj.ID(), obj.currentValue())
}

func (t *Tree) indexSubtree(n Node) error {
	if _, exists := t.byID[n.ID()]; exists {
		return NewError(CodeMalformedModel, "duplicate node id")
	}
	t.byID[n.ID()] = n
	switch x := n.(type) {
	case *Folder:
		for _, c := range x.Children() {
			if err := t.indexSubtree(c); err != nil {
				return err
			}
		}
	case *ObjectVariable:
		for _, c := range x.Properties() {
			if err := t.indexSubtree(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) deindexAndTeardown(n Node) {
	delete(t.byID, n.ID())
	teardownSubscriptions(n)
	for _, hook := range t.nodeRemovedHooks {
		hook(n.ID())
	}
	switch x := n.(type) {
	case *Folder:
		for _, c := range x.Children() {
			t.deindexAndTeardown(c)
		}
	case *ObjectVariable:
		for _, c := range x.Properties() {
			t.deindexAndTeardown(c)
		}
	}
}

func teardownSubscriptions(n Node) {
	switch x := n.(type) {
	case *BooleanVariable:
		x.core.subs.teardownAll()
	case *StringVariable:
		x.core.subs.teardownAll()
	case *NumericVariable:
		x.core.subs.teardownAll()
	case *ObjectVariable:
		x.subs.teardownAll()
	}
}
