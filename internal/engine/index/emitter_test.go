package index

import (
	"reflect"
	"testing"

	"stubindex/internal/core/errors"
	"stubindex/internal/engine/stub"
)

func emit(t *testing.T, tree *stub.Tree, ext Extensions) *Collector {
	t.Helper()
	c := NewCollector()
	if err := NewEmitter(ext).Emit(tree, c); err != nil {
		t.Fatalf("emit: %v", err)
	}
	return c
}

func mustBuild(t *testing.T, b *stub.Builder) *stub.Tree {
	t.Helper()
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return tree
}

func requireOccurrences(t *testing.T, c *Collector, want ...Occurrence) {
	t.Helper()
	for _, occ := range want {
		if !c.Has(occ.Index, occ.Key) {
			t.Errorf("missing %s(%q); got %v", occ.Index, occ.Key, c.Sorted())
		}
	}
}

func TestEmitEndToEnd(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "com.example"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindFunction, Name: "foo", FqName: "com.example.foo", TopLevel: true})
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{PackageIndex, "com.example"},
		Occurrence{FunctionShortNameIndex, "foo"},
		Occurrence{TopLevelFunctionFqnNameIndex, "com.example.foo"},
		Occurrence{TopLevelFunctionByPackageIndex, "com.example"},
		Occurrence{PrimeSymbolNameIndex, "foo"},
	)
	if c.Len() != 5 {
		t.Fatalf("expected exactly 5 occurrences, got %v", c.Sorted())
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{
		PackageFqName:  "a.b",
		FacadeFqName:   stub.Ref("a.b.UtilKt"),
		PartSimpleName: stub.Ref("UtilKt"),
	})
	cls := b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "C", FqName: "a.b.C", TopLevel: true,
		Payload: stub.ClassPayload{SuperNames: []string{"Base", "Iface"}}})
	b.Add(cls, stub.Node{Kind: stub.KindProperty, Name: "p"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindTypeAlias, Name: "T", FqName: "a.b.T", TopLevel: true})
	tree := mustBuild(t, b)

	first := emit(t, tree, nil).Sorted()
	second := emit(t, tree, nil).Sorted()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("emission differs between runs:\n%v\n%v", first, second)
	}
}

func TestEmitPrivateTopLevelFunction(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	bar := b.Add(b.Root(), stub.Node{Kind: stub.KindFunction, Name: "bar", FqName: "p.bar", TopLevel: true})
	b.AddModifiers(bar, stub.ModPrivate)
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{TopLevelFunctionFqnNameIndex, "p.bar"},
		Occurrence{TopLevelFunctionByPackageIndex, "p"},
	)
	if c.Has(PrimeSymbolNameIndex, "bar") {
		t.Fatal("private function must not be prime")
	}
}

func TestEmitInterfaceAddsDefaultImpls(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "Talker", FqName: "p.Talker", TopLevel: true,
		Payload: stub.ClassPayload{Interface: true}})
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{ClassShortNameIndex, "Talker"},
		Occurrence{ClassShortNameIndex, DefaultImplsName},
		Occurrence{FullClassNameIndex, "p.Talker"},
		Occurrence{TopLevelClassByPackageIndex, "p"},
	)
}

func TestEmitObjectLiteralIsNotSubclassObject(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	holder := b.Add(b.Root(), stub.Node{Kind: stub.KindProperty, Name: "cmp", FqName: "p.cmp", TopLevel: true})
	b.Add(holder, stub.Node{Kind: stub.KindObject, Name: "Anon",
		Payload: stub.ClassPayload{SuperNames: []string{"Comparator"}, ObjectLiteral: true}})
	b.Add(b.Root(), stub.Node{Kind: stub.KindObject, Name: "Singleton", FqName: "p.Singleton", TopLevel: true,
		Payload: stub.ClassPayload{SuperNames: []string{"Runnable"}}})
	c := emit(t, mustBuild(t, b), nil)

	if c.Has(SubclassObjectNameIndex, "Anon") {
		t.Fatal("object literal must not be indexed as subclass object")
	}
	requireOccurrences(t, c,
		Occurrence{SuperClassIndex, "Comparator"},
		Occurrence{SubclassObjectNameIndex, "Singleton"},
	)
}

func TestEmitEnumAndAnnotationSupers(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: ""})
	b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "Color", FqName: "Color", TopLevel: true,
		Payload: stub.ClassPayload{Enum: true}})
	b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "Marker", FqName: "Marker", TopLevel: true,
		Payload: stub.ClassPayload{AnnotationClass: true}})
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{PackageIndex, ""},
		Occurrence{SuperClassIndex, "Enum"},
		Occurrence{SuperClassIndex, "Annotation"},
		Occurrence{TopLevelClassByPackageIndex, ""},
	)
}

func TestEmitEnumSuperOnlyForClasses(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindObject, Name: "Odd", FqName: "p.Odd", TopLevel: true,
		Payload: stub.ClassPayload{Enum: true, AnnotationClass: true}})
	c := emit(t, mustBuild(t, b), nil)

	if c.Has(SuperClassIndex, "Enum") || c.Has(SuperClassIndex, "Annotation") {
		t.Fatalf("object must not get synthetic supers, got %v", c.Sorted())
	}
	requireOccurrences(t, c,
		Occurrence{PackageIndex, "p"},
		Occurrence{ClassShortNameIndex, "Odd"},
		Occurrence{FullClassNameIndex, "p.Odd"},
		Occurrence{TopLevelClassByPackageIndex, "p"},
		Occurrence{PrimeSymbolNameIndex, "Odd"},
	)
}

func TestEmitAnnotationAlias(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	b.AddImport("foo.Bar", "Baz")
	b.AddImport("foo.Other", "")
	cls := b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "C", FqName: "p.C", TopLevel: true})
	b.Add(cls, stub.Node{Kind: stub.KindAnnotation, Payload: stub.AnnotationPayload{ShortName: "Baz"}})
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{AnnotationsShortNameIndex, "Baz"},
		Occurrence{AnnotationsShortNameIndex, "Bar"},
	)
	if c.Has(AnnotationsShortNameIndex, "Other") {
		t.Fatal("unaliased import must not match")
	}
}

func TestEmitFileFacadeAndParts(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{
		PackageFqName:  "a.b",
		FacadeFqName:   stub.Ref("a.b.Utils"),
		PartSimpleName: stub.Ref("Utils__StringsKt"),
		PartNames:      []*string{stub.Ref("Utils__StringsKt"), nil, stub.Ref("Utils__ListsKt")},
	})
	c := emit(t, mustBuild(t, b), nil)

	want := []Occurrence{
		{PackageIndex, "a.b"},
		{FacadeByFqNameIndex, "a.b.Utils"},
		{FacadeByShortNameIndex, "Utils"},
		{FacadeByPackageIndex, "a.b"},
		{FilePartClassIndex, "a.b.Utils__StringsKt"},
		{MultifileClassPartIndex, "a.b.Utils__StringsKt"},
		{MultifileClassPartIndex, "a.b.Utils__ListsKt"},
	}
	requireOccurrences(t, c, want...)
	if c.Len() != len(want) {
		t.Fatalf("unexpected extra occurrences: %v", c.Sorted())
	}
}

func TestEmitScriptSkipsFacadeAndBody(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "s", Script: true, FacadeFqName: stub.Ref("s.Ignored")})
	script := b.Add(b.Root(), stub.Node{Kind: stub.KindScript, FqName: "s.Build"})
	b.Add(script, stub.Node{Kind: stub.KindFunction, Name: "task"})
	c := emit(t, mustBuild(t, b), nil)

	want := []Occurrence{{PackageIndex, "s"}, {ScriptFqnIndex, "s.Build"}}
	requireOccurrences(t, c, want...)
	if c.Len() != len(want) {
		t.Fatalf("script body or facade leaked: %v", c.Sorted())
	}
}

func TestEmitTypeAliasAndParameters(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	cls := b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "Box", FqName: "p.Box", TopLevel: true})
	b.Add(cls, stub.Node{Kind: stub.KindParameter, Name: "size", Payload: stub.ParameterPayload{DeclaresProperty: true}})
	b.Add(cls, stub.Node{Kind: stub.KindParameter, Name: "plain"})
	b.Add(cls, stub.Node{Kind: stub.KindTypeAlias, Name: "Inner",
		Payload: stub.TypeAliasPayload{ClassID: "p/Box.Inner"}})
	b.Add(b.Root(), stub.Node{Kind: stub.KindTypeAlias, Name: "Top", FqName: "p.Top", TopLevel: true,
		Payload: stub.TypeAliasPayload{ClassID: "ignored"}})
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{PropertyShortNameIndex, "size"},
		Occurrence{TypeAliasShortNameIndex, "Inner"},
		Occurrence{InnerTypeAliasClassIdIndex, "p/Box.Inner"},
		Occurrence{TypeAliasShortNameIndex, "Top"},
		Occurrence{TopLevelTypeAliasFqNameIndex, "p.Top"},
		Occurrence{TopLevelTypeAliasByPackageIndex, "p"},
		Occurrence{PrimeSymbolNameIndex, "Top"},
	)
	if c.Has(PropertyShortNameIndex, "plain") || c.Has(InnerTypeAliasClassIdIndex, "ignored") {
		t.Fatalf("unexpected occurrences: %v", c.Sorted())
	}
	if c.Has(PrimeSymbolNameIndex, "Inner") {
		t.Fatal("nested type alias must not be prime")
	}
}

func TestEmitCallableFlags(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindFunction, Name: "fail", FqName: "p.fail", TopLevel: true,
		Payload: stub.CallablePayload{ReturnsBottomType: true, MayHaveContract: true}})
	b.Add(b.Root(), stub.Node{Kind: stub.KindProperty, Name: "never", FqName: "p.never", TopLevel: true,
		Payload: stub.CallablePayload{ReturnsBottomType: true, MayHaveContract: true}})
	c := emit(t, mustBuild(t, b), nil)

	requireOccurrences(t, c,
		Occurrence{ProbablyNothingFunctionShortNameIndex, "fail"},
		Occurrence{ProbablyContractedFunctionShortNameIndex, "fail"},
		Occurrence{ProbablyNothingPropertyShortNameIndex, "never"},
		Occurrence{TopLevelPropertyFqnNameIndex, "p.never"},
		Occurrence{TopLevelPropertyByPackageIndex, "p"},
	)
	if c.Has(ProbablyContractedFunctionShortNameIndex, "never") {
		t.Fatal("properties are never contract candidates")
	}
}

type call struct {
	op   string
	name string
}

type recordingExtensions struct {
	calls []call
}

func (r *recordingExtensions) record(op string, t *stub.Tree, id stub.NodeID) {
	r.calls = append(r.calls, call{op: op, name: t.Name(id)})
}

func (r *recordingExtensions) IndexExtensionInObject(t *stub.Tree, id stub.NodeID, _ Sink) {
	r.record("inObject", t, id)
}
func (r *recordingExtensions) IndexTopLevelExtension(t *stub.Tree, id stub.NodeID, _ Sink) {
	r.record("topLevel", t, id)
}
func (r *recordingExtensions) IndexInternals(t *stub.Tree, id stub.NodeID, _ Sink) {
	r.record("internals", t, id)
}
func (r *recordingExtensions) IndexTypeAliasExpansion(t *stub.Tree, id stub.NodeID, _ Sink) {
	r.record("alias", t, id)
}
func (r *recordingExtensions) IndexJvmNameAnnotation(t *stub.Tree, id stub.NodeID, _ Sink) {
	r.record("jvmName", t, id)
}

func TestEmitDelegatesAtFixedPoints(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindFunction, Name: "top", FqName: "p.top", TopLevel: true})
	obj := b.Add(b.Root(), stub.Node{Kind: stub.KindObject, Name: "O", FqName: "p.O", TopLevel: true})
	b.Add(obj, stub.Node{Kind: stub.KindProperty, Name: "member"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindTypeAlias, Name: "A", FqName: "p.A", TopLevel: true})
	b.Add(obj, stub.Node{Kind: stub.KindAnnotation, Name: "JvmName",
		Payload: stub.AnnotationPayload{ShortName: "JvmName", Argument: "x"}})

	rec := &recordingExtensions{}
	emit(t, mustBuild(t, b), rec)

	want := []call{
		{"topLevel", "top"},
		{"internals", "top"},
		{"inObject", "member"},
		{"internals", "member"},
		{"jvmName", "JvmName"},
		{"alias", "A"},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("delegation calls = %v, want %v", rec.calls, want)
	}
}

func TestEmitDelegatesCompanionMembersAsInObject(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	outer := b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "Outer", FqName: "p.Outer", TopLevel: true})
	b.Add(outer, stub.Node{Kind: stub.KindFunction, Name: "member",
		Payload: stub.CallablePayload{ReceiverType: "String"}})
	companion := b.Add(outer, stub.Node{Kind: stub.KindObject, Name: "Companion", FqName: "p.Outer.Companion",
		Payload: stub.ClassPayload{Companion: true}})
	b.Add(companion, stub.Node{Kind: stub.KindFunction, Name: "ext",
		Payload: stub.CallablePayload{ReceiverType: "String"}})

	rec := &recordingExtensions{}
	emit(t, mustBuild(t, b), rec)

	want := []call{
		{"internals", "member"},
		{"inObject", "ext"},
		{"internals", "ext"},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("delegation calls = %v, want %v", rec.calls, want)
	}
}

func TestEmitSkipsMalformedSubtree(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	orphan := b.Add(b.Root(), stub.Node{Kind: stub.KindParameter, Name: "orphan",
		Payload: stub.ParameterPayload{DeclaresProperty: true}})
	b.Add(orphan, stub.Node{Kind: stub.KindClass, Name: "Hidden"})
	b.Add(b.Root(), stub.Node{Kind: stub.KindFunction, Name: "ok", FqName: "p.ok", TopLevel: true})
	tree := mustBuild(t, b)

	c := NewCollector()
	err := NewEmitter(nil).Emit(tree, c)
	if !errors.IsCode(err, errors.CodeMalformedStub) {
		t.Fatalf("expected malformed stub error, got %v", err)
	}
	if c.Has(PropertyShortNameIndex, "orphan") || c.Has(ClassShortNameIndex, "Hidden") {
		t.Fatalf("malformed subtree leaked: %v", c.Sorted())
	}
	if !c.Has(FunctionShortNameIndex, "ok") {
		t.Fatal("well-formed siblings must still be emitted")
	}
}

func TestEmitRejectsNestedImport(t *testing.T) {
	b := stub.NewBuilder(stub.FileHeader{PackageFqName: "p"})
	cls := b.Add(b.Root(), stub.Node{Kind: stub.KindClass, Name: "C", FqName: "p.C", TopLevel: true})
	b.Add(cls, stub.Node{Kind: stub.KindImportDirective, Payload: stub.ImportPayload{ImportedFqName: "x.Y"}})

	err := NewEmitter(nil).Emit(mustBuild(t, b), NewCollector())
	if !errors.IsCode(err, errors.CodeMalformedStub) {
		t.Fatalf("expected malformed stub error, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	for _, name := range []string{"ClassShortNameIndex", "classshortname", " CLASSSHORTNAMEINDEX "} {
		id, ok := ParseID(name)
		if !ok || id != ClassShortNameIndex {
			t.Fatalf("ParseID(%q) = %v, %v", name, id, ok)
		}
	}
	if _, ok := ParseID("nope"); ok {
		t.Fatal("expected unknown index name to fail")
	}
	if got := len(All()); got != int(idCount)-1 {
		t.Fatalf("All() returned %d ids", got)
	}
	for _, id := range All() {
		if !id.Valid() || id.String() == "" {
			t.Fatalf("id %d has no name", id)
		}
	}
}
