package vfs

import "strings"

// Path handling for the virtual filesystem.
//
// Paths are plain slash-delimited keys, not POSIX paths: there are no
// directory inodes, no symlinks, and `.`/`..` are rejected outright rather
// than resolved. Normalization collapses repeated slashes and produces a
// canonical form that always begins with exactly one "/". Directory paths
// additionally always end with "/", which lets prefix scans distinguish
// "/a/b" from "/a/bc".

// NormalizeFilePath validates and canonicalizes a path naming a file.
//
// The empty string and paths ending in "/" are rejected (a file must have a
// name). Returns the canonical form: leading "/", no trailing "/", no empty
// segments.
func NormalizeFilePath(path string) (string, error) {
	if len(path) == 0 {
		return "", errorf(ErrInvalidPath, "File must have a name.")
	}
	if path[len(path)-1] == '/' {
		return "", pathError(ErrInvalidPath, "File path may not end with /.", path)
	}
	parts, err := splitPath(path)
	if err != nil {
		return "", err
	}
	return "/" + strings.Join(parts, "/"), nil
}

// NormalizeDirPath validates and canonicalizes a path naming a directory.
//
// The empty string maps to "/". The canonical form always carries a single
// trailing "/".
func NormalizeDirPath(path string) (string, error) {
	if len(path) == 0 {
		return "/", nil
	}
	parts, err := splitPath(path)
	if err != nil {
		return "", err
	}
	normalized := "/" + strings.Join(parts, "/")
	if normalized[len(normalized)-1] != '/' {
		normalized += "/"
	}
	return normalized, nil
}

// Depth returns the number of path segments in a normalized file path.
//
// "/a" has depth 1, "/a/b/c" has depth 3. Quota checks compare this against
// a filesystem's max_depth limit.
func Depth(normalizedFilePath string) int {
	return strings.Count(normalizedFilePath, "/")
}

// splitPath splits on "/", drops empty segments, and rejects dot segments.
func splitPath(path string) ([]string, error) {
	parts := make([]string, 0, 8)
	for _, part := range strings.Split(path, "/") {
		if part == "." || part == ".." {
			return nil, pathError(ErrInvalidPath, ". and .. are not valid in paths.", path)
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts, nil
}
