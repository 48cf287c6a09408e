// Package extension is the default implementation of the delegated index
// capability: receiver-type, internal-member, alias-expansion and JvmName
// indices.
package extension

import (
	"strings"

	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
)

// JvmNameAnnotation is the annotation whose argument renames a JVM class or member.
const JvmNameAnnotation = "JvmName"

// Indexer implements index.Extensions.
type Indexer struct{}

var _ index.Extensions = Indexer{}

// ReceiverKey joins a receiver type and a callable name as stored in the
// receiver-type indices.
func ReceiverKey(receiverType, name string) string {
	return ReceiverShortName(receiverType) + "\n" + name
}

// ReceiverShortName reduces "kotlin.collections.List<T>?" to "List".
func ReceiverShortName(typ string) string {
	typ = strings.TrimSpace(typ)
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	typ = strings.TrimSuffix(strings.TrimSpace(typ), "?")
	return stub.ShortName(typ)
}

func (Indexer) IndexExtensionInObject(t *stub.Tree, node stub.NodeID, sink index.Sink) {
	indexReceiver(t, node, sink, index.ExtensionsInObjectsByReceiverTypeIndex)
}

func (Indexer) IndexTopLevelExtension(t *stub.Tree, node stub.NodeID, sink index.Sink) {
	indexReceiver(t, node, sink, index.TopLevelExtensionsByReceiverTypeIndex)
}

func indexReceiver(t *stub.Tree, node stub.NodeID, sink index.Sink, id index.ID) {
	p, ok := stub.PayloadOf[stub.CallablePayload](t, node)
	name := t.Name(node)
	if !ok || name == "" || ReceiverShortName(p.ReceiverType) == "" {
		return
	}
	sink.Occurrence(id, ReceiverKey(p.ReceiverType, name))
}

// IndexInternals records internal members that a subclass in another module
// could still override.
func (Indexer) IndexInternals(t *stub.Tree, node stub.NodeID, sink index.Sink) {
	name := t.Name(node)
	if name == "" || t.TopLevel(node) || !t.HasModifier(node, stub.ModInternal) {
		return
	}
	if t.HasModifier(node, stub.ModOpen) || t.HasModifier(node, stub.ModAbstract) || t.HasModifier(node, stub.ModOverride) {
		sink.Occurrence(index.OverridableInternalMembersShortNameIndex, name)
	}
}

func (Indexer) IndexTypeAliasExpansion(t *stub.Tree, node stub.NodeID, sink index.Sink) {
	p, ok := stub.PayloadOf[stub.TypeAliasPayload](t, node)
	if !ok || p.ExpansionShortName == "" {
		return
	}
	sink.Occurrence(index.TypeAliasByExpansionShortNameIndex, p.ExpansionShortName)
}

func (Indexer) IndexJvmNameAnnotation(t *stub.Tree, node stub.NodeID, sink index.Sink) {
	p, ok := stub.PayloadOf[stub.AnnotationPayload](t, node)
	if !ok || p.ShortName != JvmNameAnnotation || p.Argument == "" {
		return
	}
	sink.Occurrence(index.JvmNameAnnotationIndex, p.Argument)
}
