package corekit

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath enforces the path rules from spec §6: absolute, UTF-8, NFC,
// forward-slash delimited, no "." / ".." segments, no NUL bytes, no
// backslashes, no runs of "/". Directory paths must end in "/".
//
// Unicode normalization follows the same norm.Form.String() call the
// mesh-identity resolver in the retrieved networking reference uses to
// canonicalize untrusted strings before treating them as map keys.
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}
	if strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	if strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	if !strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}

	normalized := norm.NFC.String(p)

	isDir := strings.HasSuffix(normalized, "/")

	segments := strings.Split(normalized, "/")
	clean := make([]string, 0, len(segments))
	for i, seg := range segments {
		if seg == "" {
			// Leading slash and (for directories) trailing slash produce
			// exactly one empty segment each; any other empty segment is
			// a "//" run, which is invalid.
			if i == 0 || (isDir && i == len(segments)-1) {
				continue
			}
			return "", ErrInvalidPath
		}
		if seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
		clean = append(clean, seg)
	}

	result := "/" + strings.Join(clean, "/")
	if isDir && result != "/" {
		result += "/"
	}
	if isDir && result == "/" {
		result = "/"
	}
	return result, nil
}

// IsDirectoryPath reports whether a normalized path identifies a directory.
func IsDirectoryPath(p string) bool {
	return strings.HasSuffix(p, "/")
}

// ParentOf returns the parent directory path of a normalized path.
func ParentOf(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

// BaseName returns the final path component (file or directory name).
func BaseName(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[idx+1:]
}
