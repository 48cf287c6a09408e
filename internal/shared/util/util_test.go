package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePatternPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty", input: "", expected: ""},
		{name: "Dot", input: ".", expected: ""},
		{name: "Trim", input: "  ./foo/bar  ", expected: "foo/bar"},
		{name: "Relative", input: "foo/../bar", expected: "bar"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePatternPath(tc.input); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestHasPathPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		path     string
		prefix   string
		expected bool
	}{
		{name: "Exact", path: "foo/bar", prefix: "foo/bar", expected: true},
		{name: "Nested", path: "foo/bar/baz", prefix: "foo/bar", expected: true},
		{name: "Neighbor", path: "foo/barista", prefix: "foo/bar", expected: false},
		{name: "Shorter", path: "foo", prefix: "foo/bar", expected: false},
		{name: "MixedSeparators", path: `foo\bar\baz`, prefix: "foo/bar", expected: true},
		{name: "RelativePrefix", path: "./foo/bar/baz", prefix: "foo/bar", expected: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HasPathPrefix(tc.path, tc.prefix); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestHasAnySuffix(t *testing.T) {
	t.Parallel()

	suffixes := []string{".json", ".stub.json", ".java"}
	cases := []struct {
		name     string
		value    string
		expected string
		ok       bool
	}{
		{name: "Longest", value: "Foo.stub.json", expected: ".stub.json", ok: true},
		{name: "Plain", value: "data.json", expected: ".json", ok: true},
		{name: "UpperCase", value: "Main.JAVA", expected: ".java", ok: true},
		{name: "Unknown", value: "main.kt", expected: "", ok: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := HasAnySuffix(tc.value, suffixes)
			if got != tc.expected || ok != tc.ok {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tc.expected, tc.ok, got, ok)
			}
		})
	}
}

func TestSortedStringKeys(t *testing.T) {
	t.Parallel()

	m := map[string]int{"b": 2, "a": 1, "c": 3}
	keys := SortedStringKeys(m)
	expected := []string{"a", "b", "c"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %d keys, got %d", len(expected), len(keys))
	}
	for i, key := range expected {
		if keys[i] != key {
			t.Fatalf("expected %q at %d, got %q", key, i, keys[i])
		}
	}
}

func TestEnsureParentDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deeper", "index.db")
	if err := EnsureParentDir(path); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected parent directory to exist")
	}
}

func TestOpenSQLiteRejectsDirectory(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(t.TempDir(), 0); err == nil {
		t.Fatal("expected error when the sqlite path is a directory")
	}
}

func TestWithRetryStopsOnNonLockError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry("op", func() error {
		calls++
		return errors.New("syntax error")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected a single failing call, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = WithRetry("op", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after lock retries, got calls=%d err=%v", calls, err)
	}
}

func TestContentHash(t *testing.T) {
	t.Parallel()

	a := ContentHash([]byte("package a"))
	if len(a) != 16 {
		t.Fatalf("expected 16 hex digits, got %q", a)
	}
	if a != ContentHash([]byte("package a")) {
		t.Fatal("expected stable hash")
	}
	if a == ContentHash([]byte("package b")) {
		t.Fatal("expected different content to hash differently")
	}
	if got := ContentHash(nil); got != "ef46db3751d8e999" {
		t.Fatalf("unexpected hash of empty input %q", got)
	}
}
