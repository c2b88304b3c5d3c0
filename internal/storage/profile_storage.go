// Package storage owns every filesystem interaction for profile images:
// naming, writing, deleting and listing files under the upload directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/suuu1021/file-upload/internal/apperrors"
)

// PublicPrefix is the web path under which stored images are served.
const PublicPrefix = "/uploads/profiles/"

const timestampLayout = "20060102_150405"

// StoredFile describes a file found in the upload directory.
type StoredFile struct {
	Name       string
	PublicPath string
	Size       int64
	ModTime    time.Time
}

// ProfileStorage writes profile images to a single local directory.
// It is safe for concurrent use.
type ProfileStorage struct {
	dir   string
	now   func() time.Time
	token func() string

	mu     sync.Mutex
	stamp  string
	issued map[string]struct{}
}

// Option customizes a ProfileStorage.
type Option func(*ProfileStorage)

// WithClock overrides the time source used for filename timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ProfileStorage) { s.now = now }
}

// WithTokenSource overrides the random token generator.
func WithTokenSource(token func() string) Option {
	return func(s *ProfileStorage) { s.token = token }
}

// NewProfileStorage creates a ProfileStorage rooted at dir.
func NewProfileStorage(dir string, opts ...Option) *ProfileStorage {
	s := &ProfileStorage{
		dir:    dir,
		now:    time.Now,
		token:  randomToken,
		issued: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the filesystem directory images are stored in.
func (s *ProfileStorage) Dir() string { return s.dir }

// EnsureDir creates the upload directory and any parents. Idempotent.
func (s *ProfileStorage) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.dir, err)
	}
	return nil
}

// Store writes content under a freshly generated unique name and returns the
// public path of the new file, e.g. /uploads/profiles/20250721_143022_1a2b3c4d.png.
func (s *ProfileStorage) Store(ctx context.Context, content io.Reader, originalFilename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.EnsureDir(); err != nil {
		return "", apperrors.Storage("failed to prepare upload directory", err)
	}

	ext := Extension(originalFilename)

	var (
		f    *os.File
		name string
		err  error
	)
	// A name can only clash with a file written by another process; retry with a new token.
	for attempt := 0; attempt < 3; attempt++ {
		name = s.UniqueFilename(ext)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil || !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", apperrors.Storage("failed to write profile image", err)
	}

	fullPath := f.Name()
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		_ = os.Remove(fullPath)
		return "", apperrors.Storage("failed to write profile image", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", apperrors.Storage("failed to write profile image", err)
	}

	log.Debug().Str("file", fullPath).Msg("Stored profile image")
	return PublicPath(name), nil
}

// Delete removes the file referenced by a public path. An empty path or a
// file that is already gone is not an error.
func (s *ProfileStorage) Delete(ctx context.Context, publicPath string) error {
	if publicPath == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := FilenameFromPath(publicPath)
	if name == "" {
		return nil
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Storage("failed to delete profile image", err)
	}
	return nil
}

// List returns the regular files in the upload directory, oldest first.
// A missing directory yields an empty list.
func (s *ProfileStorage) List(ctx context.Context) ([]StoredFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.Storage("failed to list profile images", err)
	}

	files := make([]StoredFile, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		files = append(files, StoredFile{
			Name:       e.Name(),
			PublicPath: PublicPath(e.Name()),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

// Usage reports disk usage for the filesystem holding the upload directory.
func (s *ProfileStorage) Usage(ctx context.Context) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, s.dir)
}

// UniqueFilename builds "{yyyyMMdd_HHmmss}_{8 hex}{ext}". Names handed out by
// this instance never repeat within the same second.
func (s *ProfileStorage) UniqueFilename(ext string) string {
	stamp := s.now().Format(timestampLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if stamp != s.stamp {
		s.stamp = stamp
		s.issued = make(map[string]struct{})
	}
	tok := s.token()
	for i := 0; i < 16; i++ {
		if _, dup := s.issued[tok]; !dup {
			break
		}
		tok = s.token()
	}
	s.issued[tok] = struct{}{}
	return stamp + "_" + tok + ext
}

// Extension returns the suffix of filename starting at its last '.', or ""
// when there is none. Directory components are ignored.
func Extension(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	i := strings.LastIndex(filename, ".")
	if i == -1 {
		return ""
	}
	return filename[i:]
}

// PublicPath maps a stored filename to its web path.
func PublicPath(name string) string {
	return PublicPrefix + name
}

// FilenameFromPath extracts the segment after the last '/' of a public path.
func FilenameFromPath(publicPath string) string {
	name := publicPath[strings.LastIndex(publicPath, "/")+1:]
	if name == "." || name == ".." || strings.ContainsRune(name, '\\') {
		return ""
	}
	return name
}

func randomToken() string {
	return uuid.NewString()[:8]
}
