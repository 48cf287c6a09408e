package index

import (
	"fmt"
	"strings"
)

// ID names one inverted index. The set is closed.
type ID uint8

const (
	invalidID ID = iota
	PackageIndex
	ScriptFqnIndex
	FacadeByFqNameIndex
	FacadeByShortNameIndex
	FacadeByPackageIndex
	FilePartClassIndex
	MultifileClassPartIndex
	ClassShortNameIndex
	FullClassNameIndex
	TopLevelClassByPackageIndex
	SuperClassIndex
	SubclassObjectNameIndex
	FunctionShortNameIndex
	PropertyShortNameIndex
	ProbablyNothingFunctionShortNameIndex
	ProbablyNothingPropertyShortNameIndex
	ProbablyContractedFunctionShortNameIndex
	TopLevelFunctionFqnNameIndex
	TopLevelFunctionByPackageIndex
	TopLevelPropertyFqnNameIndex
	TopLevelPropertyByPackageIndex
	TypeAliasShortNameIndex
	TopLevelTypeAliasFqNameIndex
	TopLevelTypeAliasByPackageIndex
	InnerTypeAliasClassIdIndex
	AnnotationsShortNameIndex
	PrimeSymbolNameIndex

	// Written only by the default Extensions implementation.
	ExtensionsInObjectsByReceiverTypeIndex
	TopLevelExtensionsByReceiverTypeIndex
	OverridableInternalMembersShortNameIndex
	TypeAliasByExpansionShortNameIndex
	JvmNameAnnotationIndex

	idCount
)

var idNames = [idCount]string{
	invalidID:                                "",
	PackageIndex:                             "PackageIndex",
	ScriptFqnIndex:                           "ScriptFqnIndex",
	FacadeByFqNameIndex:                      "FacadeByFqNameIndex",
	FacadeByShortNameIndex:                   "FacadeByShortNameIndex",
	FacadeByPackageIndex:                     "FacadeByPackageIndex",
	FilePartClassIndex:                       "FilePartClassIndex",
	MultifileClassPartIndex:                  "MultifileClassPartIndex",
	ClassShortNameIndex:                      "ClassShortNameIndex",
	FullClassNameIndex:                       "FullClassNameIndex",
	TopLevelClassByPackageIndex:              "TopLevelClassByPackageIndex",
	SuperClassIndex:                          "SuperClassIndex",
	SubclassObjectNameIndex:                  "SubclassObjectNameIndex",
	FunctionShortNameIndex:                   "FunctionShortNameIndex",
	PropertyShortNameIndex:                   "PropertyShortNameIndex",
	ProbablyNothingFunctionShortNameIndex:    "ProbablyNothingFunctionShortNameIndex",
	ProbablyNothingPropertyShortNameIndex:    "ProbablyNothingPropertyShortNameIndex",
	ProbablyContractedFunctionShortNameIndex: "ProbablyContractedFunctionShortNameIndex",
	TopLevelFunctionFqnNameIndex:             "TopLevelFunctionFqnNameIndex",
	TopLevelFunctionByPackageIndex:           "TopLevelFunctionByPackageIndex",
	TopLevelPropertyFqnNameIndex:             "TopLevelPropertyFqnNameIndex",
	TopLevelPropertyByPackageIndex:           "TopLevelPropertyByPackageIndex",
	TypeAliasShortNameIndex:                  "TypeAliasShortNameIndex",
	TopLevelTypeAliasFqNameIndex:             "TopLevelTypeAliasFqNameIndex",
	TopLevelTypeAliasByPackageIndex:          "TopLevelTypeAliasByPackageIndex",
	InnerTypeAliasClassIdIndex:               "InnerTypeAliasClassIdIndex",
	AnnotationsShortNameIndex:                "AnnotationsShortNameIndex",
	PrimeSymbolNameIndex:                     "PrimeSymbolNameIndex",

	ExtensionsInObjectsByReceiverTypeIndex:   "ExtensionsInObjectsByReceiverTypeIndex",
	TopLevelExtensionsByReceiverTypeIndex:    "TopLevelExtensionsByReceiverTypeIndex",
	OverridableInternalMembersShortNameIndex: "OverridableInternalMembersShortNameIndex",
	TypeAliasByExpansionShortNameIndex:       "TypeAliasByExpansionShortNameIndex",
	JvmNameAnnotationIndex:                   "JvmNameAnnotationIndex",
}

func (id ID) String() string {
	if id.Valid() {
		return idNames[id]
	}
	return "InvalidIndex"
}

func (id ID) Valid() bool {
	return id > invalidID && id < idCount
}

// ParseID resolves an index name, case-insensitively and with or without the
// "Index" suffix.
func ParseID(name string) (ID, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalidID, false
	}
	for id := invalidID + 1; id < idCount; id++ {
		n := idNames[id]
		if strings.EqualFold(n, name) || strings.EqualFold(strings.TrimSuffix(n, "Index"), name) {
			return id, true
		}
	}
	return invalidID, false
}

// All lists every valid index id in declaration order.
func All() []ID {
	out := make([]ID, 0, idCount-1)
	for id := invalidID + 1; id < idCount; id++ {
		out = append(out, id)
	}
	return out
}

func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid index id %d", uint8(id))
	}
	return []byte(idNames[id]), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, ok := ParseID(string(text))
	if !ok {
		return fmt.Errorf("unknown index %q", text)
	}
	*id = parsed
	return nil
}
