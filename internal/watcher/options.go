package watcher

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Options configures the file watcher behavior.
type Options struct {
	// Extensions restricts ready events to files with these lowercase
	// extensions (".epub", ".txt", ...). Empty means every file. Removal
	// events are never filtered: a deleted directory carries no extension
	// but still takes its books with it.
	Extensions []string

	// IgnorePatterns are glob patterns matched against base names.
	IgnorePatterns []string

	// SettleDelay is how long a file must stay unchanged before the
	// fallback backend reports it. The inotify backend does not need one.
	SettleDelay time.Duration

	// IgnoreHidden skips dotfiles and dot-directories.
	IgnoreHidden bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 100 * time.Millisecond
	}

	// Default ignore set only when the caller did not choose one (nil, not
	// just empty). Explicit patterns also mean the caller decides about
	// hidden files.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"*.temp",
			"*.part",
			"*.crdownload",
			"Thumbs.db",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks if a path matches the ignore rules.
func (o *Options) shouldIgnore(path string) bool {
	// Check if hidden and we're ignoring hidden files.
	if o.IgnoreHidden {
		parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
		for _, part := range parts {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	// Check against ignore patterns.
	base := filepath.Base(path)
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// wantsFile reports whether a ready file passes the extension filter.
func (o *Options) wantsFile(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	return slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(path)))
}
