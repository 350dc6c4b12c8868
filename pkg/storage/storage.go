// Package storage keeps downloaded PDFs on disk under content-stable names.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

type Storage struct {
	dir string
}

// FileStats holds metadata about a file without reading its contents.
type FileStats struct {
	SizeBytes int64
	ModTime   time.Time
}

// Saved describes a file written by Save.
type Saved struct {
	Path string
	Hash string // hex sha256 of the content
	Size int64
}

// New returns a Storage rooted at dir, creating it if needed.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage root.
func (s *Storage) Dir() string {
	return s.dir
}

// PathFor returns where the document downloaded from rawURL is stored. The
// name keeps the URL's file name, prefixed by a short hash of the URL so that
// equal names from different folders do not collide.
func (s *Storage) PathFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	prefix := hex.EncodeToString(sum[:])[:12]

	base := ""
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	base = sanitize(base)
	if base == "" || base == "." || base == "/" {
		return filepath.Join(s.dir, prefix+".pdf")
	}
	if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base += ".pdf"
	}
	return filepath.Join(s.dir, prefix+"-"+base)
}

func sanitize(name string) string {
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
}

// Save streams r to the file for rawURL. The file is written to a temporary
// name first and renamed, so a failed download never leaves a partial PDF.
func (s *Storage) Save(rawURL string, r io.Reader) (*Saved, error) {
	dest := s.PathFor(rawURL)
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("error saving file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("error saving file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("error saving file: %w", err)
	}
	return &Saved{Path: dest, Hash: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// HashFile returns the sha256 and size of an existing file.
func HashFile(filePath string) (string, int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("error reading file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("error hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// HasFile reports whether the document for rawURL was already downloaded.
func (s *Storage) HasFile(rawURL string) bool {
	return fileExists(s.PathFor(rawURL))
}

// GetFileStats returns metadata about a file using os.Stat (no I/O overhead).
func (s *Storage) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}

	return &FileStats{
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}
