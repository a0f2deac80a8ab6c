// Package storage manages files the service writes: retained leaf images,
// scratch copies of voice questions and short-lived answer audio.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyFilename   = errors.New("empty filename")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidName     = errors.New("invalid file name")
)

// allowedExtensions lists the image types the classifier accepts.
var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
}

// AllowedFile reports whether filename has an accepted image extension.
// The comparison ignores case.
func AllowedFile(filename string) bool {
	_, ok := allowedExtensions[extension(filename)]
	return ok
}

func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SecureFilename reduces a client supplied name to a safe ASCII base name:
// accents are folded, path separators and whitespace become underscores,
// and anything outside [A-Za-z0-9_.-] is dropped. A name left without a
// stem becomes "upload.<ext>".
func SecureFilename(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}
	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)
	folded = strings.Join(strings.Fields(folded), "_")

	var b strings.Builder
	for _, r := range folded {
		if r == '_' || r == '.' || r == '-' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), "._")

	if !strings.Contains(clean, ".") {
		if ext := extension(name); ext != "" && AllowedFile(name) {
			return "upload." + ext
		}
		if clean == "" {
			return "upload"
		}
	}
	return clean
}

// Asset is a stored upload.
type Asset struct {
	Name     string // generated file name
	DiskPath string // location on disk
	WebPath  string // "uploads/<name>", relative to the static root
	Size     int64
}

// Uploads stores accepted images under unique names. Files are retained.
type Uploads struct {
	dir string
}

func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Dir returns the upload directory.
func (u *Uploads) Dir() string {
	return u.dir
}

// Save writes data as "<32 hex>_<secure filename>". Existing files are
// never overwritten.
func (u *Uploads) Save(filename string, data []byte) (*Asset, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}
	if !AllowedFile(filename) {
		return nil, ErrUnsupportedType
	}

	id := uuid.New()
	name := fmt.Sprintf("%x_%s", id[:], SecureFilename(filename))
	path := filepath.Join(u.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}

	return &Asset{
		Name:     name,
		DiskPath: path,
		WebPath:  "uploads/" + name,
		Size:     int64(len(data)),
	}, nil
}

// Path resolves a stored name for serving. Names with path components are
// rejected.
func (u *Uploads) Path(name string) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	path := filepath.Join(u.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", os.ErrNotExist
	}
	return path, nil
}

func validName(name string) bool {
	return name != "" &&
		name != "." && name != ".." &&
		filepath.Base(name) == name &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}
