package stub

import (
	"slices"
)

// Tree is one file's immutable stub hierarchy. Nodes live in a flat arena and
// refer to their parent by id; node 0 is always the File root.
type Tree struct {
	header FileHeader
	nodes  []Node
}

func (t *Tree) Root() NodeID {
	return 0
}

func (t *Tree) Header() FileHeader {
	h := t.header
	h.PartNames = slices.Clone(t.header.PartNames)
	return h
}

func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

func (t *Tree) valid(id NodeID) bool {
	return t != nil && id >= 0 && int(id) < len(t.nodes)
}

// Node returns a copy of the node envelope.
func (t *Tree) Node(id NodeID) (Node, bool) {
	if !t.valid(id) {
		return Node{}, false
	}
	n := t.nodes[id]
	n.children = slices.Clone(n.children)
	return n, true
}

func (t *Tree) Kind(id NodeID) Kind {
	if !t.valid(id) {
		return KindInvalid
	}
	return t.nodes[id].Kind
}

func (t *Tree) Name(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	return t.nodes[id].Name
}

func (t *Tree) FqName(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	return t.nodes[id].FqName
}

func (t *Tree) TopLevel(id NodeID) bool {
	if !t.valid(id) {
		return false
	}
	return t.nodes[id].TopLevel
}

func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return NoNode
	}
	return t.nodes[id].parent
}

// Children returns the ordered child ids. The slice must not be modified.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].children
}

func (t *Tree) ChildrenOfKind(id NodeID, kind Kind) []NodeID {
	var out []NodeID
	for _, child := range t.Children(id) {
		if t.nodes[child].Kind == kind {
			out = append(out, child)
		}
	}
	return out
}

func (t *Tree) FirstChildOfKind(id NodeID, kind Kind) NodeID {
	for _, child := range t.Children(id) {
		if t.nodes[child].Kind == kind {
			return child
		}
	}
	return NoNode
}

func (t *Tree) Payload(id NodeID) Payload {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].Payload
}

// PayloadOf returns the node's payload as T. Nodes built without a payload
// report the zero T for their kind.
func PayloadOf[T Payload](t *Tree, id NodeID) (T, bool) {
	var zero T
	if !t.valid(id) {
		return zero, false
	}
	n := t.nodes[id]
	if n.Payload == nil {
		return zero, zero.accepts(n.Kind)
	}
	p, ok := n.Payload.(T)
	return p, ok
}

// Modifiers returns the keywords of the node's modifier list child, if any.
func (t *Tree) Modifiers(id NodeID) []string {
	ml := t.FirstChildOfKind(id, KindModifierList)
	if ml == NoNode {
		return nil
	}
	p, _ := PayloadOf[ModifierListPayload](t, ml)
	return p.Modifiers
}

func (t *Tree) HasModifier(id NodeID, modifier string) bool {
	return slices.Contains(t.Modifiers(id), modifier)
}

// ContainingFile walks parents up to the nearest File node.
func (t *Tree) ContainingFile(id NodeID) NodeID {
	for p := t.Parent(id); p != NoNode; p = t.Parent(p) {
		if t.nodes[p].Kind == KindFile {
			return p
		}
	}
	return NoNode
}

// Imports returns the import directives directly under the root.
func (t *Tree) Imports() []NodeID {
	return t.ChildrenOfKind(t.Root(), KindImportDirective)
}

// ImportsByAlias returns the import directives of file whose alias equals alias.
func (t *Tree) ImportsByAlias(file NodeID, alias string) []NodeID {
	var out []NodeID
	for _, imp := range t.ChildrenOfKind(file, KindImportDirective) {
		p, _ := PayloadOf[ImportPayload](t, imp)
		if p.AliasName != "" && p.AliasName == alias {
			out = append(out, imp)
		}
	}
	return out
}

// Walk visits nodes depth-first in declaration order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(fn func(id NodeID, depth int) bool) {
	if t.Len() == 0 {
		return
	}
	t.walk(t.Root(), 0, fn)
}

func (t *Tree) walk(id NodeID, depth int, fn func(NodeID, int) bool) {
	if !fn(id, depth) {
		return
	}
	for _, child := range t.nodes[id].children {
		t.walk(child, depth+1, fn)
	}
}
