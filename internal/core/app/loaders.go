package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"

	"stubindex/internal/core/errors"
	"stubindex/internal/core/ports"
	"stubindex/internal/engine/facade"
	"stubindex/internal/engine/javastub"
	"stubindex/internal/engine/stub"
	"stubindex/internal/shared/observability"
)

const (
	documentExt = ".stub.json"
	javaExt     = ".java"
	// sourceExt is assumed for documents that do not name their source file.
	sourceExt = ".kt"
)

func defaultLoaders() []ports.StubLoader {
	return []ports.StubLoader{documentLoader{}, &javaLoader{parser: javastub.NewParser()}}
}

// documentLoader reads stub dumps produced by external front ends.
type documentLoader struct{}

func (documentLoader) Extensions() []string { return []string{documentExt} }

func (documentLoader) Load(path string, content []byte) (*stub.Tree, error) {
	defer observeBuild("document", time.Now())

	doc, err := stub.DecodeDocument(bytes.NewReader(content))
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}

	header := doc.Header()
	facade.Apply(&header, facade.Input{
		PackageFqName: header.PackageFqName,
		FileName:      documentSourceName(path, doc.FileName),
		JvmName:       doc.JvmName,
		Multifile:     doc.JvmMultifileClass,
	}, doc.HasTopLevelCallables())

	tree, err := doc.Build(header)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return tree, nil
}

// documentSourceName is the source file a document describes: its fileName
// field, or the dump's name without the document suffix.
func documentSourceName(path, declared string) string {
	if declared != "" {
		return declared
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.HasSuffix(strings.ToLower(base), documentExt) {
		name = base[:len(base)-len(documentExt)]
	}
	if filepath.Ext(name) == "" {
		name += sourceExt
	}
	return name
}

type javaLoader struct {
	parser *javastub.Parser
}

func (*javaLoader) Extensions() []string { return []string{javaExt} }

func (l *javaLoader) Load(path string, content []byte) (*stub.Tree, error) {
	defer observeBuild("java", time.Now())
	return l.parser.Parse(path, content)
}

func observeBuild(loader string, started time.Time) {
	observability.StubBuildDuration.WithLabelValues(loader).Observe(time.Since(started).Seconds())
}
