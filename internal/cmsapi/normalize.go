package cmsapi

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeRemotePath converts a local relative path into the canonical
// remote form: NFC-normalized, forward slashes, no leading slash, cleaned.
// macOS reports decomposed (NFD) names from the file system; the remote
// side stores NFC.
func NormalizeRemotePath(p string) string {
	p = norm.NFC.String(strings.ReplaceAll(p, "\\", "/"))
	p = path.Clean("/" + p)

	return strings.TrimPrefix(p, "/")
}

// escapePath percent-encodes each segment of a remote path while keeping
// the separators.
func escapePath(p string) string {
	segs := strings.Split(NormalizeRemotePath(p), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}

	return strings.Join(segs, "/")
}
