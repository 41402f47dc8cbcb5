// Package media holds the rules for addressing, typing and slicing stored
// media files. It performs no I/O.
package media

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for filenames that are empty, absolute, hidden or
// that would resolve outside the media root.
var ErrInvalidPath = errors.New("invalid media path")

// CleanKey validates a decoded filename and returns its canonical
// slash-separated form relative to the media root. Nested names such as
// "ab/clip.mp4" are allowed.
func CleanKey(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) || strings.ContainsRune(name, '\\') {
		return "", ErrInvalidPath
	}
	if path.IsAbs(name) {
		return "", ErrInvalidPath
	}

	key := path.Clean(name)
	if key == "." {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(key, "/") {
		// covers ".." as well as dot-prefixed temp files
		if strings.HasPrefix(seg, ".") {
			return "", ErrInvalidPath
		}
	}
	return key, nil
}

// ResolvePath returns the physical location of name under root.
func ResolvePath(root, name string) (string, error) {
	key, err := CleanKey(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(key)), nil
}
