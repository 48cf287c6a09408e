// # internal/engine/javastub/parser.go

// Package javastub builds stub trees from Java sources with tree-sitter.
//
// Java has no top-level callables, objects or type aliases, so the trees only
// ever hold classes, their members, parameters, modifiers and annotations.
package javastub

import (
	"log/slog"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"stubindex/internal/core/errors"
	"stubindex/internal/engine/stub"
)

const overrideAnnotation = "Override"

// Parser turns Java compilation units into stub trees. Safe for concurrent use.
type Parser struct {
	pool *parserPool
}

func NewParser() *Parser {
	return &Parser{pool: newParserPool(javaLanguage())}
}

// Parse builds the stub tree of one Java file. Syntax errors do not fail the
// parse; whatever tree-sitter recovered is indexed.
func (p *Parser) Parse(path string, source []byte) (*stub.Tree, error) {
	sp := p.pool.get()
	defer p.pool.put(sp)

	tree := sp.Parse(source, nil)
	if tree == nil {
		err := errors.New(errors.CodeInternal, "tree-sitter returned no tree")
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		slog.Debug("java source has syntax errors", "path", path)
	}

	w := &walker{src: source}
	header := stub.FileHeader{PackageFqName: w.packageName(root)}
	w.b = stub.NewBuilder(header)
	w.file(root, header.PackageFqName)

	t, err := w.b.Build()
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return t, nil
}

type walker struct {
	src []byte
	b   *stub.Builder
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start >= end || end > uint(len(w.src)) {
		return ""
	}
	return strings.TrimSpace(string(w.src[start:end]))
}

func (w *walker) packageName(root *sitter.Node) string {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		n := root.NamedChild(i)
		if n == nil || n.Kind() != "package_declaration" {
			continue
		}
		for j := uint(0); j < n.NamedChildCount(); j++ {
			ch := n.NamedChild(j)
			if ch != nil && (ch.Kind() == "scoped_identifier" || ch.Kind() == "identifier") {
				return compact(w.text(ch))
			}
		}
	}
	return ""
}

func (w *walker) file(root *sitter.Node, pkg string) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		n := root.NamedChild(i)
		if n == nil {
			continue
		}
		switch n.Kind() {
		case "import_declaration":
			w.importDecl(n)
		default:
			if isTypeDecl(n.Kind()) {
				w.typeDecl(w.b.Root(), n, pkg, true)
			}
		}
	}
}

// importDecl records single-type and static member imports. On-demand
// imports name no declaration and are skipped.
func (w *walker) importDecl(n *sitter.Node) {
	var fq string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		ch := n.NamedChild(i)
		if ch == nil {
			continue
		}
		switch ch.Kind() {
		case "asterisk":
			return
		case "scoped_identifier", "identifier":
			fq = compact(w.text(ch))
		}
	}
	if fq != "" {
		w.b.AddImport(fq, "")
	}
}

func isTypeDecl(kind string) bool {
	switch kind {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"annotation_type_declaration", "record_declaration":
		return true
	}
	return false
}

func (w *walker) typeDecl(parent stub.NodeID, n *sitter.Node, outerFq string, topLevel bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	payload := stub.ClassPayload{SuperNames: w.superNames(n)}
	switch n.Kind() {
	case "interface_declaration":
		payload.Interface = true
	case "enum_declaration":
		payload.Enum = true
	case "annotation_type_declaration":
		payload.AnnotationClass = true
	}

	fq := stub.Child(outerFq, name)
	id := w.b.Add(parent, stub.Node{
		Kind:     stub.KindClass,
		Name:     name,
		FqName:   fq,
		TopLevel: topLevel,
		Payload:  payload,
	})
	if id == stub.NoNode {
		return
	}
	w.modifiers(id, n)

	if n.Kind() == "record_declaration" {
		w.parameters(id, n.ChildByFieldName("parameters"), true)
	}
	w.body(id, fq, n.ChildByFieldName("body"))
}

func (w *walker) superNames(n *sitter.Node) []string {
	var out []string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		ch := n.NamedChild(i)
		if ch == nil {
			continue
		}
		switch ch.Kind() {
		case "superclass", "super_interfaces", "extends_interfaces":
			out = w.collectTypes(ch, out)
		}
	}
	return out
}

func (w *walker) collectTypes(n *sitter.Node, out []string) []string {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		ch := n.NamedChild(i)
		if ch == nil {
			continue
		}
		if ch.Kind() == "type_list" {
			out = w.collectTypes(ch, out)
			continue
		}
		if name := typeShortName(w.text(ch)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// typeShortName reduces "java.util.Comparator<String>" to "Comparator".
func typeShortName(typ string) string {
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	return stub.ShortName(compact(typ))
}

func (w *walker) body(owner stub.NodeID, ownerFq string, body *sitter.Node) {
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		n := body.NamedChild(i)
		if n == nil {
			continue
		}
		switch kind := n.Kind(); {
		case kind == "method_declaration" || kind == "annotation_type_element_declaration":
			w.method(owner, ownerFq, n)
		case kind == "field_declaration" || kind == "constant_declaration":
			w.fields(owner, ownerFq, n)
		case kind == "enum_body_declarations":
			w.body(owner, ownerFq, n)
		case isTypeDecl(kind):
			w.typeDecl(owner, n, ownerFq, false)
		}
	}
}

func (w *walker) method(owner stub.NodeID, ownerFq string, n *sitter.Node) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	id := w.b.Add(owner, stub.Node{
		Kind:    stub.KindFunction,
		Name:    name,
		FqName:  stub.Child(ownerFq, name),
		Payload: stub.CallablePayload{},
	})
	if id == stub.NoNode {
		return
	}
	w.modifiers(id, n)
	w.parameters(id, n.ChildByFieldName("parameters"), false)
}

func (w *walker) fields(owner stub.NodeID, ownerFq string, n *sitter.Node) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		decl := n.NamedChild(i)
		if decl == nil || decl.Kind() != "variable_declarator" {
			continue
		}
		name := w.text(decl.ChildByFieldName("name"))
		if name == "" {
			continue
		}
		id := w.b.Add(owner, stub.Node{
			Kind:    stub.KindProperty,
			Name:    name,
			FqName:  stub.Child(ownerFq, name),
			Payload: stub.CallablePayload{},
		})
		if id != stub.NoNode {
			w.modifiers(id, n)
		}
	}
}

func (w *walker) parameters(owner stub.NodeID, params *sitter.Node, declaresProperty bool) {
	if params == nil {
		return
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		var name string
		switch p.Kind() {
		case "formal_parameter":
			name = w.text(p.ChildByFieldName("name"))
		case "spread_parameter":
			name = w.spreadName(p)
		default:
			continue
		}
		id := w.b.Add(owner, stub.Node{
			Kind:    stub.KindParameter,
			Name:    name,
			Payload: stub.ParameterPayload{DeclaresProperty: declaresProperty},
		})
		if id != stub.NoNode {
			w.modifiers(id, p)
		}
	}
}

// spreadName finds the name of a varargs parameter across grammar revisions.
func (w *walker) spreadName(p *sitter.Node) string {
	if n := p.ChildByFieldName("name"); n != nil {
		return w.text(n)
	}
	for i := uint(0); i < p.NamedChildCount(); i++ {
		ch := p.NamedChild(i)
		if ch == nil {
			continue
		}
		switch ch.Kind() {
		case "variable_declarator":
			return w.text(ch.ChildByFieldName("name"))
		case "identifier":
			return w.text(ch)
		}
	}
	return ""
}

// modifiers attaches the keyword modifiers and annotations of decl to owner.
// @Override is mirrored as the override keyword.
func (w *walker) modifiers(owner stub.NodeID, decl *sitter.Node) {
	var mods *sitter.Node
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		if ch := decl.NamedChild(i); ch != nil && ch.Kind() == "modifiers" {
			mods = ch
			break
		}
	}
	if mods == nil {
		return
	}

	var keywords []string
	var annotations []stub.AnnotationPayload
	for i := uint(0); i < mods.ChildCount(); i++ {
		ch := mods.Child(i)
		if ch == nil {
			continue
		}
		switch ch.Kind() {
		case "marker_annotation", "annotation":
			a := stub.AnnotationPayload{
				ShortName: stub.ShortName(compact(w.text(ch.ChildByFieldName("name")))),
				Argument:  w.annotationArgument(ch.ChildByFieldName("arguments")),
			}
			if a.ShortName == overrideAnnotation {
				keywords = append(keywords, stub.ModOverride)
			}
			annotations = append(annotations, a)
		default:
			if !ch.IsNamed() {
				keywords = append(keywords, w.text(ch))
			}
		}
	}

	w.b.AddModifiers(owner, keywords...)
	for _, a := range annotations {
		w.b.Add(owner, stub.Node{Kind: stub.KindAnnotation, Name: a.ShortName, Payload: a})
	}
}

// annotationArgument returns the value of a single string-literal argument.
func (w *walker) annotationArgument(args *sitter.Node) string {
	if args == nil || args.NamedChildCount() != 1 {
		return ""
	}
	lit := args.NamedChild(0)
	if lit == nil || lit.Kind() != "string_literal" {
		return ""
	}
	return strings.Trim(w.text(lit), `"`)
}

// compact drops the whitespace tree-sitter keeps inside qualified names.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
