package stub

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"stubindex/internal/core/errors"
)

// Document is the JSON dump format accepted from external stub producers
// (files ending in .stub.json). Declarations nest through Children.
type Document struct {
	Package           string      `json:"package"`
	FileName          string      `json:"fileName,omitempty"`
	Script            bool        `json:"script,omitempty"`
	ScriptFqName      string      `json:"scriptFqName,omitempty"`
	Facade            *string     `json:"facade,omitempty"`
	Part              *string     `json:"part,omitempty"`
	Parts             []*string   `json:"parts,omitempty"`
	JvmName           string      `json:"jvmName,omitempty"`
	JvmMultifileClass bool        `json:"jvmMultifileClass,omitempty"`
	Imports           []ImportDoc `json:"imports,omitempty"`
	Declarations      []DeclDoc   `json:"declarations,omitempty"`
}

type ImportDoc struct {
	FqName string `json:"fqName"`
	Alias  string `json:"alias,omitempty"`
}

// DeclDoc is one declaration. TopLevel defaults to "parent is the file".
type DeclDoc struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name,omitempty"`
	FqName    string   `json:"fqName,omitempty"`
	TopLevel  *bool    `json:"topLevel,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`

	Supers          []string `json:"supers,omitempty"`
	Interface       bool     `json:"interface,omitempty"`
	Enum            bool     `json:"enum,omitempty"`
	AnnotationClass bool     `json:"annotationClass,omitempty"`
	ObjectLiteral   bool     `json:"objectLiteral,omitempty"`
	Companion       bool     `json:"companion,omitempty"`

	ReturnsNothing bool   `json:"returnsNothing,omitempty"`
	Contract       bool   `json:"contract,omitempty"`
	Receiver       string `json:"receiver,omitempty"`

	ValOrVar bool `json:"valOrVar,omitempty"`

	ClassID   string `json:"classId,omitempty"`
	Expansion string `json:"expansion,omitempty"`

	ShortName string `json:"shortName,omitempty"`
	Argument  string `json:"argument,omitempty"`

	Children []DeclDoc `json:"children,omitempty"`
}

func DecodeDocument(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "decode stub document")
	}
	return &doc, nil
}

// Header returns the file header exactly as the document states it.
func (d *Document) Header() FileHeader {
	return FileHeader{
		PackageFqName:  d.Package,
		Script:         d.Script,
		FacadeFqName:   d.Facade,
		PartSimpleName: d.Part,
		PartNames:      slices.Clone(d.Parts),
	}
}

// HasTopLevelCallables reports whether any top-level declaration is a function or property.
func (d *Document) HasTopLevelCallables() bool {
	for _, decl := range d.Declarations {
		k := ParseKind(decl.Kind)
		if k.IsCallable() && (decl.TopLevel == nil || *decl.TopLevel) {
			return true
		}
	}
	return false
}

// Build converts the document into a tree using header. Script declarations
// are placed under the Script node.
func (d *Document) Build(header FileHeader) (*Tree, error) {
	b := NewBuilder(header)
	for _, imp := range d.Imports {
		b.AddImport(imp.FqName, imp.Alias)
	}

	parent := b.Root()
	if d.Script {
		parent = b.Add(parent, Node{Kind: KindScript, FqName: d.ScriptFqName})
	}
	for i := range d.Declarations {
		if err := addDecl(b, parent, !d.Script, &d.Declarations[i]); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func addDecl(b *Builder, parent NodeID, parentIsFile bool, decl *DeclDoc) error {
	kind := ParseKind(decl.Kind)
	if kind == KindInvalid || kind == KindFile || kind == KindScript || kind == KindModifierList || kind == KindImportDirective {
		return errors.Newf(errors.CodeValidationError, "unsupported declaration kind %q", decl.Kind)
	}

	topLevel := parentIsFile
	if decl.TopLevel != nil {
		topLevel = *decl.TopLevel
	}

	n := Node{Kind: kind, Name: decl.Name, FqName: decl.FqName, TopLevel: topLevel}
	switch {
	case kind.IsClassLike():
		n.Payload = ClassPayload{
			SuperNames:      slices.Clone(decl.Supers),
			Interface:       decl.Interface,
			Enum:            decl.Enum,
			AnnotationClass: decl.AnnotationClass,
			ObjectLiteral:   decl.ObjectLiteral,
			Companion:       decl.Companion,
		}
	case kind.IsCallable():
		n.Payload = CallablePayload{
			ReturnsBottomType: decl.ReturnsNothing,
			MayHaveContract:   decl.Contract,
			ReceiverType:      decl.Receiver,
		}
	case kind == KindParameter:
		n.Payload = ParameterPayload{DeclaresProperty: decl.ValOrVar}
	case kind == KindTypeAlias:
		n.Payload = TypeAliasPayload{ClassID: decl.ClassID, ExpansionShortName: decl.Expansion}
	case kind == KindAnnotation:
		short := decl.ShortName
		if short == "" {
			short = decl.Name
		}
		n.Payload = AnnotationPayload{ShortName: short, Argument: decl.Argument}
	}

	id := b.Add(parent, n)
	if id == NoNode {
		_, err := b.Build()
		return err
	}
	b.AddModifiers(id, decl.Modifiers...)
	for i := range decl.Children {
		if err := addDecl(b, id, false, &decl.Children[i]); err != nil {
			return fmt.Errorf("%s %q: %w", kind, decl.Name, err)
		}
	}
	return nil
}
