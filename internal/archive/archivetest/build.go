// Package archivetest builds tar and tar.gz fixtures in memory.
package archivetest

import (
	"archive/tar"
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// File is one fixture member. Dirs and links ignore Body.
type File struct {
	Name string
	Body string
	Dir  bool
	// Link makes the member a symlink pointing at Link
	Link string
	// DeclaredSize overrides the header size and leaves the body unwritten,
	// producing a header that claims more content than the archive carries.
	DeclaredSize int64
}

// Tar builds an uncompressed tar stream
func Tar(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	writeTar(t, &buf, files)
	return buf.Bytes()
}

// TarGz builds a gzip-compressed tar stream
func TarGz(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	writeTar(t, gw, files)
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func writeTar(t testing.TB, w interface{ Write([]byte) (int, error) }, files []File) {
	t.Helper()

	tw := tar.NewWriter(w)
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    0o644,
			ModTime: modTime,
			Format:  tar.FormatPAX,
		}
		switch {
		case f.Dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case f.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = f.Link
		case f.DeclaredSize > 0:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = f.DeclaredSize
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(f.Body))
		}

		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", f.Name, err)
		}
		if f.DeclaredSize > 0 {
			// The writer refuses to close with unwritten content, so the
			// stream simply ends after this header.
			return
		}
		if !f.Dir && f.Link == "" {
			if _, err := tw.Write([]byte(f.Body)); err != nil {
				t.Fatalf("write body %s: %v", f.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
}
