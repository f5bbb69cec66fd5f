// Package source derives the stable sourceFile label stored with each chunk.
package source

import (
	"path/filepath"
	"strings"
)

// Label returns the sourceFile for path relative to the documents root.
// Files under root are labeled by their slash-separated relative path, so a
// top-level file is labeled by its base name. Files outside root fall back
// to their base name. Same path always yields the same label.
func Label(root, path string) string {
	clean := filepath.Clean(path)
	if root != "" {
		if absRoot, err := filepath.Abs(root); err == nil {
			if absPath, err := filepath.Abs(clean); err == nil {
				if rel, err := filepath.Rel(absRoot, absPath); err == nil && rel != "." && !escapes(rel) {
					return filepath.ToSlash(rel)
				}
			}
		}
	}
	return filepath.Base(clean)
}

// Path resolves a label back to a path under root. ok is false when the
// label would escape root.
func Path(root, label string) (string, bool) {
	rel := filepath.FromSlash(label)
	if label == "" || filepath.IsAbs(rel) || escapes(filepath.Clean(rel)) {
		return "", false
	}
	return filepath.Join(root, rel), true
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
