package stub

import "strings"

// Kind discriminates the declaration shapes a stub tree can hold.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFile
	KindClass
	KindObject
	KindFunction
	KindProperty
	KindParameter
	KindTypeAlias
	KindAnnotation
	KindScript
	KindModifierList
	KindImportDirective
)

var kindNames = [...]string{
	KindInvalid:         "invalid",
	KindFile:            "file",
	KindClass:           "class",
	KindObject:          "object",
	KindFunction:        "function",
	KindProperty:        "property",
	KindParameter:       "parameter",
	KindTypeAlias:       "typealias",
	KindAnnotation:      "annotation",
	KindScript:          "script",
	KindModifierList:    "modifierlist",
	KindImportDirective: "import",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// ParseKind maps a kind name back to its Kind. Unknown names return KindInvalid.
func ParseKind(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k)
		}
	}
	return KindInvalid
}

// IsClassLike reports whether k carries a ClassPayload.
func (k Kind) IsClassLike() bool {
	return k == KindClass || k == KindObject
}

// IsCallable reports whether k carries a CallablePayload.
func (k Kind) IsCallable() bool {
	return k == KindFunction || k == KindProperty
}

// NodeID addresses a node inside its tree's arena.
type NodeID int32

// NoNode is the parent of the root and the result of failed lookups.
const NoNode NodeID = -1

// Modifier keywords consulted by the indexer.
const (
	ModPrivate   = "private"
	ModOverride  = "override"
	ModInternal  = "internal"
	ModOpen      = "open"
	ModAbstract  = "abstract"
	ModEnum      = "enum"
	ModCompanion = "companion"
)

// Payload is the kind-specific part of a node. The set of implementations is closed.
type Payload interface {
	accepts(k Kind) bool
}

// ClassPayload describes classes and objects.
type ClassPayload struct {
	SuperNames      []string
	Interface       bool
	Enum            bool
	AnnotationClass bool
	ObjectLiteral   bool
	Companion       bool
}

// CallablePayload describes functions and properties. ReturnsBottomType is a
// syntactic guess; MayHaveContract only applies to functions.
type CallablePayload struct {
	ReturnsBottomType bool
	MayHaveContract   bool
	ReceiverType      string
}

type ParameterPayload struct {
	DeclaresProperty bool
}

// TypeAliasPayload: ClassID is only set for aliases nested in a class.
type TypeAliasPayload struct {
	ClassID            string
	ExpansionShortName string
}

type AnnotationPayload struct {
	ShortName string
	Argument  string
}

type ModifierListPayload struct {
	Modifiers []string
}

type ImportPayload struct {
	AliasName      string
	ImportedFqName string
}

func (ClassPayload) accepts(k Kind) bool        { return k.IsClassLike() }
func (CallablePayload) accepts(k Kind) bool     { return k.IsCallable() }
func (ParameterPayload) accepts(k Kind) bool    { return k == KindParameter }
func (TypeAliasPayload) accepts(k Kind) bool    { return k == KindTypeAlias }
func (AnnotationPayload) accepts(k Kind) bool   { return k == KindAnnotation }
func (ModifierListPayload) accepts(k Kind) bool { return k == KindModifierList }
func (ImportPayload) accepts(k Kind) bool       { return k == KindImportDirective }

// Node is the shared envelope of every stub. Empty Name and FqName mean absent.
type Node struct {
	Kind     Kind
	Name     string
	FqName   string
	TopLevel bool
	Payload  Payload

	parent   NodeID
	children []NodeID
}

// FileHeader holds the per-file fields persisted by the summary codec.
// PackageFqName is never absent: the root package is the empty string.
type FileHeader struct {
	PackageFqName  string
	Script         bool
	FacadeFqName   *string
	PartSimpleName *string
	PartNames      []*string
}

// Ref returns a pointer to s, for the optional header fields.
func Ref(s string) *string {
	return &s
}

// Equal compares headers by value. Nil and empty part lists are equal.
func (h FileHeader) Equal(o FileHeader) bool {
	if h.PackageFqName != o.PackageFqName || h.Script != o.Script {
		return false
	}
	if !equalRef(h.FacadeFqName, o.FacadeFqName) || !equalRef(h.PartSimpleName, o.PartSimpleName) {
		return false
	}
	if len(h.PartNames) != len(o.PartNames) {
		return false
	}
	for i := range h.PartNames {
		if !equalRef(h.PartNames[i], o.PartNames[i]) {
			return false
		}
	}
	return true
}

func equalRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
