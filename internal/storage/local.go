package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	securejoin "github.com/cyphar/filepath-securejoin"

	"streamify/internal/media"
)

// localStorage keeps media as plain files under a single root directory.
// Files are never modified after the rename that publishes them, so any
// number of goroutines may read them concurrently without locking.
type localStorage struct {
	root string
}

// NewLocal creates a filesystem-backed Storage rooted at root, creating the
// directory when it is missing.
func NewLocal(root string) (Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &localStorage{root: abs}, nil
}

// resolve maps key to a path inside the root. Symlinks are evaluated
// within the root, so a link pointing elsewhere cannot be followed out.
func (l *localStorage) resolve(key string) (string, string, error) {
	clean, err := media.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	p, err := securejoin.SecureJoin(l.root, filepath.FromSlash(clean))
	if err != nil {
		return "", "", fmt.Errorf("resolve %q: %w", clean, err)
	}
	return clean, p, nil
}

// Put writes to a dot-prefixed temp file next to the target and renames it
// into place once fully written.
func (l *localStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	clean, p, err := l.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("write file: %w", err)
	}
	if opt.Size > 0 && opt.Size != n {
		return ObjectInfo{}, fmt.Errorf("write file: got %d bytes, expected %d", n, opt.Size)
	}
	if err := tmp.Sync(); err != nil {
		return ObjectInfo{}, fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return ObjectInfo{}, fmt.Errorf("publish file: %w", err)
	}
	committed = true

	st, err := os.Stat(p)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return l.info(clean, st), nil
}

func (l *localStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	clean, p, err := l.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return ObjectInfo{}, mapFSError(err)
	}
	if !st.Mode().IsRegular() {
		return ObjectInfo{}, ErrNotFound
	}
	return l.info(clean, st), nil
}

// Get opens a fresh handle per call. The returned reader is an
// io.SectionReader over the file, so it reads incrementally and can seek.
func (l *localStorage) Get(ctx context.Context, key string, rng *Range) (io.ReadCloser, ObjectInfo, error) {
	clean, p, err := l.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, mapFSError(err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	if !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, ObjectInfo{}, ErrNotFound
	}

	off, n := int64(0), st.Size()
	if rng != nil {
		if rng.Start < 0 || rng.End >= st.Size() || rng.Start > rng.End {
			_ = f.Close()
			return nil, ObjectInfo{}, fmt.Errorf("range %d-%d outside object of %d bytes: %w",
				rng.Start, rng.End, st.Size(), media.ErrRangeNotSatisfiable)
		}
		off, n = rng.Start, rng.Length()
	}
	return &fileSection{SectionReader: io.NewSectionReader(f, off, n), f: f}, l.info(clean, st), nil
}

func (l *localStorage) Delete(ctx context.Context, key string) error {
	_, p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return mapFSError(err)
	}
	return nil
}

func (l *localStorage) Ping(ctx context.Context) error {
	st, err := os.Stat(l.root)
	if err != nil {
		return fmt.Errorf("media root: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("media root %s is not a directory", l.root)
	}
	return nil
}

func (l *localStorage) info(key string, st fs.FileInfo) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  media.ContentTypeFor(key),
		LastModified: st.ModTime(),
	}
}

func mapFSError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	// a path component that is a regular file
	if errors.Is(err, syscall.ENOTDIR) {
		return ErrNotFound
	}
	return err
}

type fileSection struct {
	*io.SectionReader
	f *os.File
}

func (s *fileSection) Close() error {
	return s.f.Close()
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
