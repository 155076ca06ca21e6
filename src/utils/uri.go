package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.lsp.dev/uri"
)

const fileURIPrefix = uri.FileScheme + "://"

// IsFileURI reports whether s uses the file:// scheme
func IsFileURI(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), fileURIPrefix)
}

// URIToFilePath converts a file:// URI to a file system path.
// Anything that is not a file URI is returned unchanged.
func URIToFilePath(s string) string {
	if !IsFileURI(s) {
		return s
	}
	s = fileURIPrefix + s[len(fileURIPrefix):]
	if _, err := url.ParseRequestURI(s); err != nil {
		// Unescaped characters such as spaces; fall back to the raw path
		p := strings.TrimPrefix(s, fileURIPrefix)
		if decoded, derr := url.PathUnescape(p); derr == nil {
			p = decoded
		}
		return filepath.FromSlash(p)
	}
	return uri.URI(s).Filename()
}

// FilePathToURI converts a file system path to a percent-encoded file:// URI
func FilePathToURI(path string) string {
	return string(uri.File(path))
}

// NormalizeURI returns the canonical spelling of a document identifier so that
// equivalent inputs share one map key. Plain paths become file URIs, file URIs
// are re-encoded, other schemes are left untouched.
func NormalizeURI(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if IsFileURI(s) {
		return FilePathToURI(URIToFilePath(s))
	}
	if strings.Contains(s, ":") && !filepath.IsAbs(s) && !looksLikeDrivePath(s) {
		// untitled:, jdt://, etc.
		return s
	}
	return FilePathToURI(s)
}

// ToDocumentURI normalizes s and returns it as an LSP document URI
func ToDocumentURI(s string) uri.URI {
	return uri.URI(NormalizeURI(s))
}

// WorkspaceRootURI normalizes a workspace root given as a path or file URI.
// The returned path is the file system form of the same root.
func WorkspaceRootURI(root string) (rootURI string, rootPath string, err error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", "", fmt.Errorf("workspace root is empty")
	}
	if !IsFileURI(root) && strings.Contains(root, "://") {
		return "", "", fmt.Errorf("workspace root must be a file path or file:// URI: %s", root)
	}
	rootURI = NormalizeURI(root)
	rootPath = URIToFilePath(rootURI)
	return rootURI, rootPath, nil
}

func looksLikeDrivePath(s string) bool {
	return len(s) >= 3 && s[1] == ':' && (s[2] == '\\' || s[2] == '/') &&
		((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}
