package stub

import (
	"fmt"
	"slices"

	"stubindex/internal/core/errors"
)

// Builder assembles a Tree. The first invalid Add is remembered and reported
// by Build; later calls are ignored.
type Builder struct {
	tree *Tree
	err  error
}

func NewBuilder(header FileHeader) *Builder {
	header.PartNames = slices.Clone(header.PartNames)
	return &Builder{
		tree: &Tree{
			header: header,
			nodes:  []Node{{Kind: KindFile, parent: NoNode}},
		},
	}
}

func (b *Builder) Root() NodeID {
	return 0
}

// Add appends n under parent and returns its id, or NoNode after an error.
func (b *Builder) Add(parent NodeID, n Node) NodeID {
	if b.err != nil {
		return NoNode
	}
	if !b.tree.valid(parent) {
		b.err = errors.Newf(errors.CodeValidationError, "parent %d does not exist", parent)
		return NoNode
	}
	if n.Kind == KindFile {
		b.err = errors.New(errors.CodeValidationError, "file node must be the unique root")
		return NoNode
	}
	if n.Kind == KindInvalid || n.Kind > KindImportDirective {
		b.err = errors.Newf(errors.CodeValidationError, "invalid node kind %d", n.Kind)
		return NoNode
	}
	if n.Payload != nil && !n.Payload.accepts(n.Kind) {
		b.err = errors.Newf(errors.CodeValidationError, "payload %T does not fit %s node", n.Payload, n.Kind)
		return NoNode
	}

	n.parent = parent
	n.children = nil
	id := NodeID(len(b.tree.nodes))
	b.tree.nodes = append(b.tree.nodes, n)
	b.tree.nodes[parent].children = append(b.tree.nodes[parent].children, id)
	return id
}

// AddModifiers attaches a modifier list to owner. Empty lists are skipped.
func (b *Builder) AddModifiers(owner NodeID, modifiers ...string) NodeID {
	if len(modifiers) == 0 {
		return NoNode
	}
	return b.Add(owner, Node{
		Kind:    KindModifierList,
		Payload: ModifierListPayload{Modifiers: slices.Clone(modifiers)},
	})
}

func (b *Builder) AddImport(fqName, alias string) NodeID {
	return b.Add(b.Root(), Node{
		Kind:    KindImportDirective,
		Payload: ImportPayload{AliasName: alias, ImportedFqName: fqName},
	})
}

func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, fmt.Errorf("build stub tree: %w", b.err)
	}
	t := b.tree
	b.tree = nil
	b.err = errors.New(errors.CodeValidationError, "builder already used")
	return t, nil
}
