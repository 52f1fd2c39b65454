package datamodel

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Identifier is a globally unique, opaque token assigned at node
// construction time; it is stable for the node's lifetime (spec §3).
type Identifier string

// newIdentifier mints a fresh Identifier. Grounded in the teacher/pack
// convention (bassosimone-nop, cuemby-warren) of using google/uuid for
// opaque identifiers rather than a monotonic counter, which would force the
// tree to coordinate identifier allocation across concurrent loaders.
func newIdentifier() Identifier {
	return Identifier(uuid.NewString())
}

// Path is a slash-separated sequence of node names descending from the
// root (spec §3). Root itself has the empty Path.
type Path string

// Segments splits a Path into its component names.
func (p Path) Segments() []string {
	s := strings.Trim(string(p), "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

// NodeRef addresses a node by path, by id, or both. If both are set they
// must agree (spec §4.1); Resolve reports ADDRESS_MISMATCH otherwise.
type NodeRef struct {
	Path Path
	ID   Identifier
}

// ByPath builds a NodeRef addressing by path only.
func ByPath(path string) NodeRef {
	return NodeRef{Path: Path(path)}
}

// ByID builds a NodeRef addressing by id only.
func ByID(id Identifier) NodeRef {
	return NodeRef{ID: id}
}

// variant tags the concrete shape of a Node, dispatched on instead of using
// an inheritance chain (spec §9 design note: "model as a tagged variant").
type variant uint8

const (
	variantFolder variant = iota
	variantBoolean
	variantString
	variantNumeric
	variantObject
	variantMethod
	variantAsyncMethod
	variantComposite
)

// Node is the common shape of every element in the tree: folders,
// variables, and methods. Concrete behavior is reached via type assertion
// to the variant-specific type (*Folder, *BooleanVariable, ...), following
// the teacher's "interface for the public shape, concrete struct for the
// implementation" split (samber/ro's Observable/Subscriber duality).
type Node interface {
	ID() Identifier
	Name() string
	Description() string
	// Parent returns the lookup-only back-reference to the owning Folder or
	// ObjectVariable, or nil for the root. The parent never owns the node it
	// points to from this side of the relation (spec §9).
	Parent() Node

	variant() variant
	setParent(Node)
}

// base is embedded by every concrete node type, providing the fields common
// to the Node interface.
type base struct {
	id          Identifier
	name        string
	description string
	parent      Node
	kind        variant
}

func newBase(kind variant, name, description string) base {
	return base{id: newIdentifier(), name: name, description: description, kind: kind}
}

// ID implements Node.
func (b *base) ID() Identifier { return b.id }

// Name implements Node.
func (b *base) Name() string { return b.name }

// Description implements Node.
func (b *base) Description() string { return b.description }

// Parent implements Node.
func (b *base) Parent() Node { return b.parent }

func (b *base) variant() variant { return b.kind }

func (b *base) setParent(p Node) { b.parent = p }

// Folder is an ordered mapping of name to child node. Children are
// exclusively owned by the Folder (spec §3); Parent back-references into a
// Folder are lookup-only.
type Folder struct {
	base
	order    []string
	children map[string]Node
}

var _ Node = (*Folder)(nil)

// NewFolder constructs an empty Folder. Use AddChild to populate it.
func NewFolder(name, description string) *Folder {
	return &Folder{
		base:     newBase(variantFolder, name, description),
		children: make(map[string]Node),
	}
}

// Children returns the folder's children in insertion order.
func (f *Folder) Children() []Node {
	return lo.Map(f.order, func(name string, _ int) Node { return f.children[name] })
}

// Child looks up an immediate child by name.
func (f *Folder) Child(name string) (Node, bool) {
	n, ok := f.children[name]
	return n, ok
}

// AddChild inserts a child under this folder. It fails with
// CodeMalformedModel if a sibling already uses the same name.
func (f *Folder) AddChild(n Node) error {
	if _, exists := f.children[n.Name()]; exists {
		return NewError(CodeMalformedModel, "duplicate child name "+n.Name())
	}
	f.children[n.Name()] = n
	f.order = append(f.order, n.Name())
	n.setParent(f)
	return nil
}

// RemoveChild detaches and returns the named child, if present. The caller
// (Tree.Remove) is responsible for cascading id-index and subscription
// cleanup; RemoveChild itself only mutates the ordered mapping.
func (f *Folder) RemoveChild(name string) (Node, bool) {
	n, ok := f.children[name]
	if !ok {
		return nil, false
	}
	delete(f.children, name)
	for i, candidate := range f.order {
		if candidate == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	n.setParent(nil)
	return n, true
}

// ParamSpec is a typed variable template used for method parameter and
// return lists (spec §3 "each a typed variable template with optional
// default").
type ParamSpec struct {
	Name    string
	Kind    Kind
	Unit    Unit
	Default *Value
}
