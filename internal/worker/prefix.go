package worker

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"tgz2objects/internal/archive"
)

// ErrUnsafeEntryName is returned for entry names that resolve outside the
// destination prefix
var ErrUnsafeEntryName = errors.New("entry name escapes the destination prefix")

// DestinationPrefix extends targetPrefix with parts of the source key.
// extraRootDir is matched case-insensitively: "dirname" appends the key's
// directory and "basename" appends its file name without the archive
// extension. Both may be requested.
func DestinationPrefix(targetPrefix, sourceKey, extraRootDir string) string {
	key := toSlash(sourceKey)

	ext := path.Ext(key)
	if strings.HasSuffix(key, ".tar.gz") {
		ext = ".tar.gz"
	}
	base := strings.TrimSuffix(path.Base(key), ext)
	dir := path.Dir(key)

	parts := []string{toSlash(targetPrefix)}
	mode := strings.ToLower(extraRootDir)
	if strings.Contains(mode, "dirname") && dir != "." {
		parts = append(parts, dir)
	}
	if strings.Contains(mode, "basename") && base != "" {
		parts = append(parts, base)
	}

	return joinKey(parts...)
}

// DestinationKey joins the task prefix with an entry name. A trailing slash
// on the name is kept, so "dir/" maps to the folder marker "prefix/dir/".
func DestinationKey(prefix, entryName string) string {
	name := toSlash(entryName)
	key := joinKey(prefix, name)
	if key != "" && strings.HasSuffix(name, "/") && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return key
}

// entryKey is the destination key of an archive entry. Directories always
// end with a slash, even when the archive stored them without one.
func entryKey(prefix string, entry archive.Entry) string {
	name := toSlash(entry.Name)
	if entry.IsDir() && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return DestinationKey(prefix, name)
}

// checkEntryName rejects names such as "../x" that would leave the prefix
func checkEntryName(name string) error {
	clean := path.Clean(toSlash(name))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrUnsafeEntryName, name)
	}
	return nil
}

func joinKey(parts ...string) string {
	joined := path.Join(parts...)
	if joined == "." {
		return ""
	}
	return joined
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
