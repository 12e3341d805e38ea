// Package archive demultiplexes a (optionally gzip-compressed) tar stream
// into its entries.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ErrEmptyArchive is returned for a zero-length source stream
var ErrEmptyArchive = errors.New("archive: empty stream")

// Entry describes one archive member
type Entry struct {
	Name    string
	Size    int64
	Type    byte
	ModTime time.Time
}

// IsHeaderOnly reports whether the entry type never carries a body:
// directories, links, devices and FIFOs
func (e Entry) IsHeaderOnly() bool {
	switch e.Type {
	case tar.TypeLink, tar.TypeSymlink, tar.TypeChar, tar.TypeBlock, tar.TypeDir, tar.TypeFifo:
		return true
	}
	return false
}

// IsDir reports whether the entry is a directory
func (e Entry) IsDir() bool {
	return e.Type == tar.TypeDir
}

// Reader yields archive entries one at a time. The body of an entry is only
// valid until the next call to Next, so the caller must finish with it first.
type Reader struct {
	gz *gzip.Reader
	tr *tar.Reader
}

// NewReader detects gzip compression by its magic bytes and falls back to a
// plain tar stream otherwise
func NewReader(r io.Reader) (*Reader, error) {
	buf := bufio.NewReaderSize(r, 32*1024)

	magic, err := buf.Peek(len(gzipMagic))
	if err != nil {
		if errors.Is(err, io.EOF) && len(magic) == 0 {
			return nil, ErrEmptyArchive
		}
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read archive header: %w", err)
		}
	}

	if !bytes.Equal(magic, gzipMagic) {
		return &Reader{tr: tar.NewReader(buf)}, nil
	}

	gz, err := gzip.NewReader(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}

	return &Reader{gz: gz, tr: tar.NewReader(gz)}, nil
}

// Next advances to the next entry. It returns io.EOF once the archive is
// exhausted.
func (r *Reader) Next() (Entry, io.Reader, error) {
	hdr, err := r.tr.Next()
	if err == io.EOF {
		return Entry{}, nil, io.EOF
	}
	// Non-local names come with a valid header; callers decide on them
	if err != nil && !(hdr != nil && errors.Is(err, tar.ErrInsecurePath)) {
		return Entry{}, nil, fmt.Errorf("corrupt archive: %w", err)
	}

	return Entry{
		Name:    hdr.Name,
		Size:    hdr.Size,
		Type:    hdr.Typeflag,
		ModTime: hdr.ModTime,
	}, r.tr, nil
}

// Close releases the decompressor. It does not close the source stream.
func (r *Reader) Close() error {
	if r.gz != nil {
		return r.gz.Close()
	}
	return nil
}
