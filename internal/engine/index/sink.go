package index

import (
	"sort"

	"stubindex/internal/engine/stub"
)

// Sink receives occurrence facts. Calls are independent and order-insensitive.
type Sink interface {
	Occurrence(id ID, key string)
}

// Extensions is the delegated capability invoked at fixed points of emission.
type Extensions interface {
	IndexExtensionInObject(t *stub.Tree, node stub.NodeID, sink Sink)
	IndexTopLevelExtension(t *stub.Tree, node stub.NodeID, sink Sink)
	IndexInternals(t *stub.Tree, node stub.NodeID, sink Sink)
	IndexTypeAliasExpansion(t *stub.Tree, node stub.NodeID, sink Sink)
	IndexJvmNameAnnotation(t *stub.Tree, node stub.NodeID, sink Sink)
}

// NopExtensions ignores every delegated call.
type NopExtensions struct{}

func (NopExtensions) IndexExtensionInObject(*stub.Tree, stub.NodeID, Sink)  {}
func (NopExtensions) IndexTopLevelExtension(*stub.Tree, stub.NodeID, Sink)  {}
func (NopExtensions) IndexInternals(*stub.Tree, stub.NodeID, Sink)          {}
func (NopExtensions) IndexTypeAliasExpansion(*stub.Tree, stub.NodeID, Sink) {}
func (NopExtensions) IndexJvmNameAnnotation(*stub.Tree, stub.NodeID, Sink)  {}

// Occurrence is one (index, key) fact.
type Occurrence struct {
	Index ID
	Key   string
}

// Collector is a Sink that deduplicates occurrences for one file.
type Collector struct {
	seen map[Occurrence]struct{}
}

func NewCollector() *Collector {
	return &Collector{seen: make(map[Occurrence]struct{})}
}

func (c *Collector) Occurrence(id ID, key string) {
	c.seen[Occurrence{Index: id, Key: key}] = struct{}{}
}

func (c *Collector) Len() int {
	return len(c.seen)
}

func (c *Collector) Has(id ID, key string) bool {
	_, ok := c.seen[Occurrence{Index: id, Key: key}]
	return ok
}

// Sorted returns the collected set ordered by index then key.
func (c *Collector) Sorted() []Occurrence {
	out := make([]Occurrence, 0, len(c.seen))
	for occ := range c.seen {
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Key < out[j].Key
	})
	return out
}
