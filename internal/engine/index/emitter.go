package index

import (
	stderrors "errors"

	"stubindex/internal/core/errors"
	"stubindex/internal/engine/stub"
)

// DefaultImplsName is the class generated for interface default methods.
const DefaultImplsName = "DefaultImpls"

// Synthetic supertypes of enum and annotation classes.
const (
	enumSuperName       = "Enum"
	annotationSuperName = "Annotation"
)

// Emitter turns a stub tree into occurrence facts. It holds no per-file state
// and may be shared between goroutines.
type Emitter struct {
	ext Extensions
}

func NewEmitter(ext Extensions) *Emitter {
	if ext == nil {
		ext = NopExtensions{}
	}
	return &Emitter{ext: ext}
}

// Emit writes every occurrence of t to sink. Subtrees with impossible nesting
// are skipped and reported together in the returned MALFORMED_STUB error; the
// rest of the file is still emitted.
func (e *Emitter) Emit(t *stub.Tree, sink Sink) error {
	if t.Len() == 0 || t.Kind(t.Root()) != stub.KindFile {
		return errors.New(errors.CodeMalformedStub, "stub tree has no file root")
	}

	e.indexFile(t, sink)

	var errs []error
	for _, child := range t.Children(t.Root()) {
		e.visit(t, child, sink, &errs)
	}
	return stderrors.Join(errs...)
}

func (e *Emitter) visit(t *stub.Tree, id stub.NodeID, sink Sink, errs *[]error) {
	if err := checkPlacement(t, id); err != nil {
		*errs = append(*errs, err)
		return
	}

	switch t.Kind(id) {
	case stub.KindClass, stub.KindObject:
		e.indexClassOrObject(t, id, sink)
	case stub.KindFunction:
		e.indexFunction(t, id, sink)
	case stub.KindProperty:
		e.indexProperty(t, id, sink)
	case stub.KindParameter:
		e.indexParameter(t, id, sink)
	case stub.KindTypeAlias:
		e.indexTypeAlias(t, id, sink)
	case stub.KindAnnotation:
		e.indexAnnotation(t, id, sink)
	case stub.KindScript:
		// Declarations inside a script body are not indexed.
		e.indexScript(t, id, sink)
		return
	}

	for _, child := range t.Children(id) {
		e.visit(t, child, sink, errs)
	}
}

func checkPlacement(t *stub.Tree, id stub.NodeID) error {
	kind := t.Kind(id)
	parent := t.Parent(id)
	switch kind {
	case stub.KindInvalid, stub.KindFile:
		return malformed(id, kind, "node kind cannot appear below the file root")
	case stub.KindImportDirective, stub.KindScript:
		if t.Kind(parent) != stub.KindFile {
			return malformed(id, kind, "must be a direct child of the file")
		}
	case stub.KindParameter:
		if !hasDeclarationAncestor(t, id) {
			return malformed(id, kind, "parameter outside any declaration")
		}
	}
	return nil
}

func hasDeclarationAncestor(t *stub.Tree, id stub.NodeID) bool {
	for p := t.Parent(id); p != stub.NoNode; p = t.Parent(p) {
		switch t.Kind(p) {
		case stub.KindFunction, stub.KindProperty, stub.KindClass, stub.KindObject:
			return true
		case stub.KindFile, stub.KindScript:
			return false
		}
	}
	return false
}

func malformed(id stub.NodeID, kind stub.Kind, msg string) error {
	err := errors.New(errors.CodeMalformedStub, kind.String()+" "+msg)
	return errors.AddContext(err, errors.CtxNode, int(id))
}

func (e *Emitter) indexFile(t *stub.Tree, sink Sink) {
	h := t.Header()
	sink.Occurrence(PackageIndex, h.PackageFqName)
	if h.Script {
		return
	}

	if h.FacadeFqName != nil {
		facade := *h.FacadeFqName
		sink.Occurrence(FacadeByFqNameIndex, facade)
		sink.Occurrence(FacadeByShortNameIndex, stub.ShortName(facade))
		sink.Occurrence(FacadeByPackageIndex, h.PackageFqName)
	}
	if h.PartSimpleName != nil {
		sink.Occurrence(FilePartClassIndex, stub.Child(h.PackageFqName, *h.PartSimpleName))
	}
	for _, part := range h.PartNames {
		if part == nil {
			continue
		}
		sink.Occurrence(MultifileClassPartIndex, stub.Child(h.PackageFqName, *part))
	}
}

func (e *Emitter) indexScript(t *stub.Tree, id stub.NodeID, sink Sink) {
	if fq := t.FqName(id); fq != "" {
		sink.Occurrence(ScriptFqnIndex, fq)
	}
}

func (e *Emitter) indexClassOrObject(t *stub.Tree, id stub.NodeID, sink Sink) {
	name, fq := t.Name(id), t.FqName(id)
	p, _ := stub.PayloadOf[stub.ClassPayload](t, id)

	if name != "" {
		sink.Occurrence(ClassShortNameIndex, name)
	}
	if fq != "" {
		sink.Occurrence(FullClassNameIndex, fq)
		if t.TopLevel(id) {
			sink.Occurrence(TopLevelClassByPackageIndex, stub.ParentPackage(fq))
		}
	}
	if p.Interface {
		sink.Occurrence(ClassShortNameIndex, DefaultImplsName)
	}

	for _, super := range p.SuperNames {
		sink.Occurrence(SuperClassIndex, super)
	}
	if t.Kind(id) == stub.KindClass {
		if p.Enum {
			sink.Occurrence(SuperClassIndex, enumSuperName)
		}
		if p.AnnotationClass {
			sink.Occurrence(SuperClassIndex, annotationSuperName)
		}
	}

	if t.Kind(id) == stub.KindObject && name != "" && !p.ObjectLiteral && len(p.SuperNames) > 0 {
		sink.Occurrence(SubclassObjectNameIndex, name)
	}

	if IsPrime(t, id) {
		sink.Occurrence(PrimeSymbolNameIndex, name)
	}
}

// callableIndices keeps the function/property rules in one place.
type callableIndices struct {
	shortName       ID
	probablyNothing ID
	topLevelFqName  ID
	topLevelPackage ID
	checkContract   bool
}

var (
	functionIndices = callableIndices{
		shortName:       FunctionShortNameIndex,
		probablyNothing: ProbablyNothingFunctionShortNameIndex,
		topLevelFqName:  TopLevelFunctionFqnNameIndex,
		topLevelPackage: TopLevelFunctionByPackageIndex,
		checkContract:   true,
	}
	propertyIndices = callableIndices{
		shortName:       PropertyShortNameIndex,
		probablyNothing: ProbablyNothingPropertyShortNameIndex,
		topLevelFqName:  TopLevelPropertyFqnNameIndex,
		topLevelPackage: TopLevelPropertyByPackageIndex,
	}
)

func (e *Emitter) indexFunction(t *stub.Tree, id stub.NodeID, sink Sink) {
	e.indexCallable(t, id, sink, functionIndices)
}

func (e *Emitter) indexProperty(t *stub.Tree, id stub.NodeID, sink Sink) {
	e.indexCallable(t, id, sink, propertyIndices)
}

func (e *Emitter) indexCallable(t *stub.Tree, id stub.NodeID, sink Sink, idx callableIndices) {
	p, _ := stub.PayloadOf[stub.CallablePayload](t, id)

	if name := t.Name(id); name != "" {
		sink.Occurrence(idx.shortName, name)
		if t.Kind(t.Parent(id)) == stub.KindObject {
			e.ext.IndexExtensionInObject(t, id, sink)
		}
		if p.ReturnsBottomType {
			sink.Occurrence(idx.probablyNothing, name)
		}
		if idx.checkContract && p.MayHaveContract {
			sink.Occurrence(ProbablyContractedFunctionShortNameIndex, name)
		}
		if IsPrime(t, id) {
			sink.Occurrence(PrimeSymbolNameIndex, name)
		}
	}

	// Visibility only gates the prime entry; private top-level callables still
	// land in the FQ and package indices.
	if fq := t.FqName(id); t.TopLevel(id) && fq != "" {
		sink.Occurrence(idx.topLevelFqName, fq)
		sink.Occurrence(idx.topLevelPackage, stub.ParentPackage(fq))
		e.ext.IndexTopLevelExtension(t, id, sink)
	}

	e.ext.IndexInternals(t, id, sink)
}

func (e *Emitter) indexParameter(t *stub.Tree, id stub.NodeID, sink Sink) {
	p, _ := stub.PayloadOf[stub.ParameterPayload](t, id)
	if name := t.Name(id); name != "" && p.DeclaresProperty {
		sink.Occurrence(PropertyShortNameIndex, name)
	}
}

func (e *Emitter) indexTypeAlias(t *stub.Tree, id stub.NodeID, sink Sink) {
	p, _ := stub.PayloadOf[stub.TypeAliasPayload](t, id)

	if name := t.Name(id); name != "" {
		sink.Occurrence(TypeAliasShortNameIndex, name)
		if IsPrime(t, id) {
			sink.Occurrence(PrimeSymbolNameIndex, name)
		}
		e.ext.IndexTypeAliasExpansion(t, id, sink)
	}

	if fq := t.FqName(id); t.TopLevel(id) && fq != "" {
		sink.Occurrence(TopLevelTypeAliasFqNameIndex, fq)
		sink.Occurrence(TopLevelTypeAliasByPackageIndex, stub.ParentPackage(fq))
	}
	if !t.TopLevel(id) && p.ClassID != "" {
		sink.Occurrence(InnerTypeAliasClassIdIndex, p.ClassID)
	}
}

func (e *Emitter) indexAnnotation(t *stub.Tree, id stub.NodeID, sink Sink) {
	p, _ := stub.PayloadOf[stub.AnnotationPayload](t, id)
	if p.ShortName == "" {
		return
	}
	sink.Occurrence(AnnotationsShortNameIndex, p.ShortName)

	if file := t.ContainingFile(id); file != stub.NoNode {
		for _, imp := range t.ImportsByAlias(file, p.ShortName) {
			ip, _ := stub.PayloadOf[stub.ImportPayload](t, imp)
			if ip.ImportedFqName != "" {
				sink.Occurrence(AnnotationsShortNameIndex, stub.ShortName(ip.ImportedFqName))
			}
		}
	}

	e.ext.IndexJvmNameAnnotation(t, id, sink)
}
