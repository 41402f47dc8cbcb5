package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamify/internal/media"
)

func sampleBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func newTestLocal(t *testing.T) (Storage, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewLocal(root)
	require.NoError(t, err)
	return s, root
}

func TestNewLocal_RequiresRoot(t *testing.T) {
	_, err := NewLocal("")
	assert.Error(t, err)
}

func TestNewLocal_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media", "videos")
	s, err := NewLocal(root)
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
	assert.DirExists(t, root)
}

func TestLocal_PutStatGet(t *testing.T) {
	s, root := newTestLocal(t)
	ctx := context.Background()
	data := sampleBytes(10000)

	info, err := s.Put(ctx, "clip.mp4", bytes.NewReader(data), PutObjectOptions{Size: int64(len(data))})
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", info.Key)
	assert.Equal(t, int64(10000), info.Size)
	assert.Equal(t, "video/mp4", info.ContentType)

	// no temp files left behind
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "clip.mp4", entries[0].Name())

	st, err := s.Stat(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), st.Size)

	rc, gi, err := s.Get(ctx, "clip.mp4", nil)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(10000), gi.Size)
}

func TestLocal_GetRange(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()
	data := sampleBytes(10000)
	_, err := s.Put(ctx, "clip.mp4", bytes.NewReader(data), PutObjectOptions{})
	require.NoError(t, err)

	rc, info, err := s.Get(ctx, "clip.mp4", &Range{Start: 9000, End: 9999})
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data[9000:], got)
	assert.Equal(t, int64(10000), info.Size)

	_, ok := rc.(io.Seeker)
	assert.True(t, ok, "local reader should be seekable")

	_, _, err = s.Get(ctx, "clip.mp4", &Range{Start: 0, End: 10000})
	assert.ErrorIs(t, err, media.ErrRangeNotSatisfiable)
}

func TestLocal_ConcurrentRanges(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()
	data := sampleBytes(64 * 1024)
	_, err := s.Put(ctx, "clip.mp4", bytes.NewReader(data), PutObjectOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := int64(i * 4096)
			end := start + 4095
			rc, _, err := s.Get(ctx, "clip.mp4", &Range{Start: start, End: end})
			if !assert.NoError(t, err) {
				return
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			assert.NoError(t, err)
			assert.Equal(t, data[start:end+1], got)
		}(i)
	}
	wg.Wait()
}

func TestLocal_NotFound(t *testing.T) {
	s, root := newTestLocal(t)
	ctx := context.Background()

	_, err := s.Stat(ctx, "missing.mp4")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Get(ctx, "missing.mp4", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "missing.mp4"), ErrNotFound)

	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	_, err = s.Stat(ctx, "sub")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.Get(ctx, "sub", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(root, "file.mp4"), []byte("x"), 0o644))
	_, err = s.Stat(ctx, "file.mp4/clip.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_InvalidKey(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"../secret.txt", "", "/etc/passwd", ".upload-1"} {
		_, err := s.Stat(ctx, key)
		assert.ErrorIs(t, err, media.ErrInvalidPath, key)
		_, _, err = s.Get(ctx, key, nil)
		assert.ErrorIs(t, err, media.ErrInvalidPath, key)
		_, err = s.Put(ctx, key, strings.NewReader("x"), PutObjectOptions{})
		assert.ErrorIs(t, err, media.ErrInvalidPath, key)
	}
}

func TestLocal_SymlinkStaysInRoot(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))

	s, root := newTestLocal(t)
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.mp4")))

	_, _, err := s.Get(context.Background(), "link.mp4", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_PutSizeMismatch(t *testing.T) {
	s, root := newTestLocal(t)

	_, err := s.Put(context.Background(), "clip.mp4", strings.NewReader("short"), PutObjectOptions{Size: 100})
	assert.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_PutCanceled(t *testing.T) {
	s, root := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "clip.mp4", strings.NewReader("data"), PutObjectOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_Delete(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()
	_, err := s.Put(ctx, "ab/clip.webm", strings.NewReader("data"), PutObjectOptions{})
	require.NoError(t, err)

	info, err := s.Stat(ctx, "ab/clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "video/webm", info.ContentType)

	require.NoError(t, s.Delete(ctx, "ab/clip.webm"))
	_, err = s.Stat(ctx, "ab/clip.webm")
	assert.ErrorIs(t, err, ErrNotFound)
}
