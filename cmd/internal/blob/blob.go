// Package blob stores uploaded files under feature- and owner-scoped keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

var (
	ErrInvalidKey = errors.New("invalid blob key")
	ErrTooLarge   = errors.New("blob too large")
)

// Features that may own uploads.
var Features = map[string]bool{
	"lostFound": true,
	"materials": true,
	"profiles":  true,
	"notices":   true,
}

const maxNameRunes = 80

// Store uploads bytes under a key and returns a URL the portal can render.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (url string, err error)
}

// Key builds feature/ownerID/<unix millis>_<sanitized filename>.
func Key(feature, ownerID, filename string, now time.Time) (string, error) {
	feature = strings.TrimSpace(feature)
	ownerID = strings.TrimSpace(ownerID)
	if !Features[feature] || !safeSegment(ownerID) {
		return "", fmt.Errorf("blob.Key: %w", ErrInvalidKey)
	}
	return path.Join(feature, ownerID, fmt.Sprintf("%d_%s", now.UnixMilli(), SanitizeName(filename))), nil
}

// SanitizeName keeps letters, digits, dot, dash and underscore; everything else
// becomes '_'. An empty result becomes "file".
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n >= maxNameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		n++
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// DirStore writes blobs below Root and serves them from PublicBase.
type DirStore struct {
	Root       string
	PublicBase string
	MaxBytes   int64
}

// NewDirStore constructs a DirStore. maxBytes <= 0 means 10 MiB.
func NewDirStore(root, publicBase string, maxBytes int64) (*DirStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("blob: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &DirStore{Root: root, PublicBase: strings.TrimRight(publicBase, "/"), MaxBytes: maxBytes}, nil
}

// Put writes r to key atomically (temp file + rename). Keys must be relative and clean.
func (s *DirStore) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean(key)
	if key == "" || clean != key || path.IsAbs(key) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("blob.Put: %w", ErrInvalidKey)
	}

	dst := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("blob.Put: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob.Put: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(r, s.MaxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("blob.Put: %w", err)
	}
	if n > s.MaxBytes {
		return "", fmt.Errorf("blob.Put: %w", ErrTooLarge)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("blob.Put: %w", err)
	}
	return s.PublicBase + "/" + clean, nil
}

var _ Store = (*DirStore)(nil)
