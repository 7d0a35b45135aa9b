package urlqueue

import (
	"net/url"
	"path"
	"strings"
)

// FileName is the last path segment of rawURL, query dropped.
func FileName(rawURL string) string {
	rawURL = strings.ReplaceAll(rawURL, `\`, "/")
	if u, err := url.Parse(rawURL); err == nil {
		rawURL = u.Path
	} else if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	name := path.Base(rawURL)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Extension picks the image extension for a cover saved from rawURL.
// PNG covers are stored as .jpg; unknown extensions default to .jpg.
func Extension(rawURL string) string {
	ext := strings.ToLower(path.Ext(FileName(rawURL)))
	switch ext {
	case ".png", "":
		return ".jpg"
	case ".jpeg", ".jpg", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
