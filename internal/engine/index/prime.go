package index

import "stubindex/internal/engine/stub"

// IsPrime reports whether a named declaration is visible at package level:
// declared directly in the file, in a top-level object, or in the companion
// of a top-level class, and neither private nor an override.
func IsPrime(t *stub.Tree, node stub.NodeID) bool {
	if t.Name(node) == "" {
		return false
	}
	if t.HasModifier(node, stub.ModPrivate) || t.HasModifier(node, stub.ModOverride) {
		return false
	}

	parent := t.Parent(node)
	switch t.Kind(parent) {
	case stub.KindFile:
		return true
	case stub.KindObject:
		if t.TopLevel(parent) {
			return true
		}
		obj, _ := stub.PayloadOf[stub.ClassPayload](t, parent)
		grand := t.Parent(parent)
		return obj.Companion && t.Kind(grand) == stub.KindClass && t.TopLevel(grand)
	}
	return false
}
