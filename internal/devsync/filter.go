package devsync

import (
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnoreLines are always excluded from watching and upload.
var defaultIgnoreLines = []string{
	".git/",
	"node_modules/",
	".DS_Store",
	"Thumbs.db",
	"*.swp",
	"*.swx",
	"*~",
	".#*",
	"hsproject.json",
}

// Filter decides which paths are watched and which changes may enter the
// standby buffer.
type Filter struct {
	ignore     *ignore.GitIgnore
	extensions map[string]bool
	logger     *slog.Logger
}

// NewFilter compiles the ignore file (gitignore syntax) at ignorePath on top
// of the built-in patterns. A missing ignore file is not an error. An empty
// extension list allows every extension.
func NewFilter(ignorePath string, allowedExtensions []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}

	lines := append([]string(nil), defaultIgnoreLines...)
	if ignorePath != "" {
		lines = append(lines, filepath.Base(ignorePath))
	}

	gi, err := ignore.CompileIgnoreFileAndLines(ignorePath, lines...)
	if err != nil {
		logger.Debug("no ignore file found, using built-in patterns",
			slog.String("path", ignorePath),
		)

		gi = ignore.CompileIgnoreLines(lines...)
	} else {
		logger.Debug("loaded ignore file", slog.String("path", ignorePath))
	}

	exts := make(map[string]bool, len(allowedExtensions))
	for _, e := range allowedExtensions {
		exts[strings.ToLower(e)] = true
	}

	return &Filter{ignore: gi, extensions: exts, logger: logger}
}

// ShouldIgnore reports whether a path (relative to the source root, forward
// slashes) matches an ignore rule.
func (f *Filter) ShouldIgnore(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}

	p := relPath
	if isDir {
		p += "/"
	}

	return f.ignore.MatchesPath(p)
}

// IsAllowedExtension reports whether the file's extension is in the allow
// list.
func (f *Filter) IsAllowedExtension(relPath string) bool {
	if len(f.extensions) == 0 {
		return true
	}

	return f.extensions[strings.ToLower(path.Ext(relPath))]
}

// Allows decides whether ev may enter the standby buffer. Ignored paths
// never do. Only additions and modifications are held to the extension
// allow list; deletions always pass so remote copies get removed.
func (f *Filter) Allows(ev ChangeEvent) bool {
	if f.ShouldIgnore(ev.RemotePath, ev.Kind == ChangeDirectoryRemoved) {
		f.logger.Debug("change ignored", slog.String("path", ev.RemotePath))

		return false
	}

	if ev.Kind != ChangeAdded && ev.Kind != ChangeModified {
		return true
	}

	if !f.IsAllowedExtension(ev.RemotePath) {
		f.logger.Debug("change skipped: extension not allowed", slog.String("path", ev.RemotePath))

		return false
	}

	return true
}
