// Package files defines the immutable, directory-scoped file sets that flow
// through a pipeline, and the Builder that produces them.
//
// A Files value never changes after Build. Plugs that want a different set
// build a new one.
package files

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/justapithecus/plug/paths"
)

// ErrBuilderSealed is returned by every Builder operation after Build.
var ErrBuilderSealed = errors.New("files builder already built")

// Files is an immutable set of paths relative to a directory.
// Paths are unique and sorted.
type Files struct {
	directory paths.AbsolutePath
	list      []string
}

// Directory returns the base directory of the set.
func (f *Files) Directory() paths.AbsolutePath { return f.directory }

// Len returns the number of paths in the set.
func (f *Files) Len() int { return len(f.list) }

// Paths returns a copy of the relative paths, sorted.
func (f *Files) Paths() []string { return slices.Clone(f.list) }

// Absolute returns the absolute paths of the set, sorted by relative path.
func (f *Files) Absolute() []paths.AbsolutePath {
	out := make([]paths.AbsolutePath, 0, len(f.list))
	for _, rel := range f.list {
		out = append(out, f.abs(rel))
	}
	return out
}

// All iterates relative and absolute paths in sorted order.
func (f *Files) All() iter.Seq2[string, paths.AbsolutePath] {
	return func(yield func(string, paths.AbsolutePath) bool) {
		for _, rel := range f.list {
			if !yield(rel, f.abs(rel)) {
				return
			}
		}
	}
}

// Has reports whether the relative path is part of the set.
func (f *Files) Has(rel string) bool {
	_, found := slices.BinarySearch(f.list, filepath.Clean(rel))
	return found
}

func (f *Files) abs(rel string) paths.AbsolutePath {
	// Containment was checked on the way in.
	return paths.AbsolutePath(filepath.Join(string(f.directory), rel))
}

// Builder accumulates paths under a directory and freezes them into Files.
// A Builder is single-use: after Build every operation fails with
// ErrBuilderSealed.
type Builder struct {
	directory paths.AbsolutePath
	set       map[string]struct{}
	sealed    bool
}

// NewBuilder returns an empty Builder rooted at directory.
func NewBuilder(directory paths.AbsolutePath) *Builder {
	return &Builder{
		directory: directory,
		set:       make(map[string]struct{}),
	}
}

// Directory returns the builder's base directory.
func (b *Builder) Directory() paths.AbsolutePath { return b.directory }

// Add registers a path. Relative paths are taken relative to the builder's
// directory; absolute paths must be inside it.
func (b *Builder) Add(p string) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	rel, err := b.relativize(p)
	if err != nil {
		return err
	}
	b.set[rel] = struct{}{}
	return nil
}

// Write writes data to p under the builder's directory, creating parent
// directories as needed, and registers the path.
func (b *Builder) Write(p string, data []byte) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	rel, err := b.relativize(p)
	if err != nil {
		return err
	}

	target := filepath.Join(string(b.directory), rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("cannot create directory for %q: %w", target, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %q: %w", target, err)
	}

	b.set[rel] = struct{}{}
	return nil
}

// Merge absorbs the paths of other Files values, re-relativizing each one
// against the builder's directory. The caller picks a directory that is a
// common ancestor of every merged set.
func (b *Builder) Merge(others ...*Files) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	for _, other := range others {
		if other == nil {
			continue
		}
		for _, abs := range other.All() {
			rel, err := paths.AssertRelativeChild(b.directory, abs)
			if err != nil {
				return err
			}
			b.set[rel] = struct{}{}
		}
	}
	return nil
}

// Build freezes the accumulated paths. The builder is unusable afterwards.
func (b *Builder) Build() (*Files, error) {
	if b.sealed {
		return nil, ErrBuilderSealed
	}
	b.sealed = true

	list := make([]string, 0, len(b.set))
	for rel := range b.set {
		list = append(list, rel)
	}
	slices.Sort(list)
	b.set = nil

	return &Files{directory: b.directory, list: list}, nil
}

func (b *Builder) relativize(p string) (string, error) {
	abs, err := paths.Resolve(b.directory, p)
	if err != nil {
		return "", err
	}
	rel, err := paths.AssertRelativeChild(b.directory, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", &paths.PathError{Op: "add", Path: p, Msg: "path is the builder directory itself"}
	}
	return rel, nil
}

// From builds a Files value from a directory and relative paths.
func From(directory paths.AbsolutePath, list ...string) (*Files, error) {
	b := NewBuilder(directory)
	for _, p := range list {
		if err := b.Add(p); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
