// Package facade derives the JVM facade class of a single source file.
// Cross-file part lists are never derived here.
package facade

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"stubindex/internal/engine/stub"
)

const (
	partSuffix     = "Kt"
	partSeparator  = "__"
	emptyPartStart = "_"
)

// Input describes one file for facade derivation.
type Input struct {
	PackageFqName string
	FileName      string
	// JvmName is the @file:JvmName value, if any.
	JvmName string
	// Multifile reports @file:JvmMultifileClass.
	Multifile bool
}

// Facade is the derived facade identity of a file.
type Facade struct {
	FqName   string
	PartName string
}

// FilePartName is the class name a file's top-level callables compile into
// when nothing renames it: "util-strings.kt" becomes "Util_stringsKt".
func FilePartName(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		return emptyPartStart + partSuffix
	}
	return capitalize(sanitize(base)) + partSuffix
}

func Derive(in Input) Facade {
	filePart := FilePartName(in.FileName)

	short := filePart
	if in.JvmName != "" {
		short = in.JvmName
	}

	part := short
	if in.Multifile {
		part = short + partSeparator + filePart
	}
	return Facade{FqName: stub.Child(in.PackageFqName, short), PartName: part}
}

// Apply fills the facade fields of h when the file has top-level callables and
// the producer did not supply a facade. Script files never get one.
func Apply(h *stub.FileHeader, in Input, hasTopLevelCallables bool) {
	if h.Script || !hasTopLevelCallables || h.FacadeFqName != nil {
		return
	}
	f := Derive(in)
	h.FacadeFqName = stub.Ref(f.FqName)
	if h.PartSimpleName == nil {
		h.PartSimpleName = stub.Ref(f.PartName)
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
