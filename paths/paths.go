// Package paths provides the absolute-path type used by every path-bearing
// field in plug, plus containment and common-ancestor helpers.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AbsolutePath is a cleaned, OS-absolute path.
// Values are only produced by the constructors in this package.
type AbsolutePath string

// PathError reports a violated absoluteness or containment invariant.
type PathError struct {
	Op   string
	Path string
	Msg  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Msg)
}

// Abs validates that p is absolute and returns it cleaned.
func Abs(p string) (AbsolutePath, error) {
	if !filepath.IsAbs(p) {
		return "", &PathError{Op: "abs", Path: p, Msg: "path is not absolute"}
	}
	return AbsolutePath(filepath.Clean(p)), nil
}

// MustAbs is Abs for paths known to be absolute. It panics otherwise.
func MustAbs(p string) AbsolutePath {
	abs, err := Abs(p)
	if err != nil {
		panic(err)
	}
	return abs
}

// Cwd returns the process working directory.
func Cwd() (AbsolutePath, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	return Abs(wd)
}

// String returns the path as a plain string.
func (p AbsolutePath) String() string { return string(p) }

// Dir returns the parent directory. The root is its own parent.
func (p AbsolutePath) Dir() AbsolutePath {
	return AbsolutePath(filepath.Dir(string(p)))
}

// Resolve joins segments onto base and normalizes the result.
// An absolute segment discards everything before it, as with a shell cd.
func Resolve(base AbsolutePath, segments ...string) (AbsolutePath, error) {
	resolved := string(base)
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if filepath.IsAbs(segment) {
			resolved = segment
			continue
		}
		resolved = filepath.Join(resolved, segment)
	}

	if !filepath.IsAbs(resolved) {
		return "", &PathError{Op: "resolve", Path: resolved, Msg: "resolved path is not absolute"}
	}
	return AbsolutePath(filepath.Clean(resolved)), nil
}

// RelativeChild returns the path of p relative to base when p is base itself
// (".") or one of its descendants. The boolean is false otherwise.
func RelativeChild(base, p AbsolutePath) (string, bool) {
	rel, err := filepath.Rel(string(base), string(p))
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// AssertRelativeChild is RelativeChild for callers where escaping base is a
// programming error.
func AssertRelativeChild(base, p AbsolutePath) (string, error) {
	rel, ok := RelativeChild(base, p)
	if !ok {
		return "", &PathError{
			Op:   "relative",
			Path: string(p),
			Msg:  fmt.Sprintf("path is not a child of %q", base),
		}
	}
	return rel, nil
}

// CommonAncestor returns the deepest directory that is an ancestor of, or
// equal to, every given path. A single path is returned unchanged.
func CommonAncestor(first AbsolutePath, rest ...AbsolutePath) AbsolutePath {
	common := splitPath(first)
	for _, p := range rest {
		segments := splitPath(p)
		n := min(len(common), len(segments))
		i := 0
		for i < n && common[i] == segments[i] {
			i++
		}
		common = common[:i]
	}
	return joinPath(first, common)
}

// splitPath splits p into its volume-relative segments.
func splitPath(p AbsolutePath) []string {
	s := string(p)
	rest := strings.TrimPrefix(s[len(filepath.VolumeName(s)):], string(filepath.Separator))
	if rest == "" {
		return nil
	}
	return strings.Split(rest, string(filepath.Separator))
}

func joinPath(like AbsolutePath, segments []string) AbsolutePath {
	root := filepath.VolumeName(string(like)) + string(filepath.Separator)
	return AbsolutePath(filepath.Join(append([]string{root}, segments...)...))
}
