package stub

import "strings"

// ShortName returns the last dot-separated segment of fq.
func ShortName(fq string) string {
	if i := strings.LastIndexByte(fq, '.'); i >= 0 {
		return fq[i+1:]
	}
	return fq
}

// ParentPackage returns fq without its last segment; top-level names in the
// root package have the empty parent.
func ParentPackage(fq string) string {
	if i := strings.LastIndexByte(fq, '.'); i >= 0 {
		return fq[:i]
	}
	return ""
}

// Child appends name to pkg, treating the empty package as the root.
func Child(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}
