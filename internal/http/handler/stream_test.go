package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"streamify/internal/auth"
	"streamify/internal/http/middleware"
	"streamify/internal/logger"
	"streamify/internal/service"
	serviceMocks "streamify/internal/service/mocks"
	"streamify/internal/storage"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	bytes    int64
}

func (o *recordingObserver) ObserveStream(outcome string, n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.bytes += n
}

func (o *recordingObserver) snapshot() ([]string, int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...), o.bytes
}

func clipBytes() []byte {
	b := make([]byte, 10000)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

type streamFixture struct {
	app  *fiber.App
	data []byte
	logs *bytes.Buffer
	obs  *recordingObserver
}

// newStreamFixture serves <tmp>/media/clip.mp4 and keeps <tmp>/secret.txt just outside the root.
func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "media")
	data := clipBytes()
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clip.mp4"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("top secret"), 0o644))

	store, err := storage.NewLocal(root)
	require.NoError(t, err)

	f := &streamFixture{data: data, logs: &bytes.Buffer{}, obs: &recordingObserver{}}
	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	f.app.Use(middleware.RequestID())
	f.app.Get("/videos/*", StreamVideo(service.NewStreamService(store), StreamOptions{
		Log:         logger.NewWithWriter(f.logs, "info", "json", time.UTC),
		IdleTimeout: 5 * time.Second,
		Observer:    f.obs,
	}))
	return f
}

func (f *streamFixture) get(t *testing.T, path, rangeHeader string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestStreamVideo_FullAndRanges(t *testing.T) {
	f := newStreamFixture(t)

	tests := []struct {
		name         string
		rangeHeader  string
		status       int
		contentRange string
		start, end   int
	}{
		{name: "no range", status: http.StatusOK, start: 0, end: 9999},
		{name: "first kilobyte", rangeHeader: "bytes=0-999", status: http.StatusPartialContent, contentRange: "bytes 0-999/10000", start: 0, end: 999},
		{name: "middle slice", rangeHeader: "bytes=4000-4999", status: http.StatusPartialContent, contentRange: "bytes 4000-4999/10000", start: 4000, end: 4999},
		{name: "open ended", rangeHeader: "bytes=9000-", status: http.StatusPartialContent, contentRange: "bytes 9000-9999/10000", start: 9000, end: 9999},
		{name: "last byte", rangeHeader: "bytes=9999-9999", status: http.StatusPartialContent, contentRange: "bytes 9999-9999/10000", start: 9999, end: 9999},
		{name: "malformed served in full", rangeHeader: "bytes=abc-", status: http.StatusOK, start: 0, end: 9999},
		{name: "multi range served in full", rangeHeader: "bytes=0-1,4-5", status: http.StatusOK, start: 0, end: 9999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.get(t, "/videos/clip.mp4", tt.rangeHeader)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
			assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
			assert.Equal(t, tt.contentRange, resp.Header.Get("Content-Range"))
			assert.Equal(t, int64(tt.end-tt.start+1), resp.ContentLength)
			assert.Equal(t, f.data[tt.start:tt.end+1], body)
		})
	}
}

func TestStreamVideo_Unsatisfiable(t *testing.T) {
	f := newStreamFixture(t)

	for _, h := range []string{"bytes=10000-", "bytes=5000-10000", "bytes=900-100"} {
		t.Run(h, func(t *testing.T) {
			resp, body := f.get(t, "/videos/clip.mp4", h)

			assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
			assert.Equal(t, "bytes */10000", resp.Header.Get("Content-Range"))
			assert.Empty(t, body)
		})
	}
}

func TestStreamVideo_Errors(t *testing.T) {
	f := newStreamFixture(t)

	t.Run("encoded traversal is rejected", func(t *testing.T) {
		resp, body := f.get(t, "/videos/..%2Fsecret.txt", "")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.NotContains(t, string(body), "top secret")
		var res errorPayload
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Equal(t, "INVALID_PATH", res.Error.Code)
	})

	t.Run("bad escape", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil)
		req.RequestURI = "/videos/clip%zz.mp4"
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, "INVALID_PATH", res.Error.Code)
	})

	t.Run("empty name", func(t *testing.T) {
		resp, _ := f.get(t, "/videos/", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing file", func(t *testing.T) {
		resp, body := f.get(t, "/videos/missing.mp4", "")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		assert.Contains(t, res.Error.Message, "missing.mp4")
		assert.NotEmpty(t, res.RequestID)
	})

	t.Run("missing file with range", func(t *testing.T) {
		resp, _ := f.get(t, "/videos/missing.mp4", "bytes=0-10")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStreamVideo_Head(t *testing.T) {
	f := newStreamFixture(t)

	req := httptest.NewRequest(http.MethodHead, "/videos/clip.mp4", nil)
	req.Header.Set("Range", "bytes=100-199")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 100-199/10000", resp.Header.Get("Content-Range"))
	assert.Equal(t, int64(100), resp.ContentLength)

	outcomes, _ := f.obs.snapshot()
	assert.Empty(t, outcomes, "HEAD must not open the file")
}

func TestStreamVideo_ConcurrentRanges(t *testing.T) {
	f := newStreamFixture(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start, end := i*1250, i*1250+1249
			req := httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil)
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
			resp, err := f.app.Test(req, -1)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs <- err
				return
			}
			if resp.StatusCode != http.StatusPartialContent || !bytes.Equal(body, f.data[start:end+1]) {
				errs <- fmt.Errorf("range %d-%d: status %d, %d bytes", start, end, resp.StatusCode, len(body))
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestStreamVideo_SequentialChunksRoundTrip(t *testing.T) {
	f := newStreamFixture(t)

	var got []byte
	for start := 0; start < len(f.data); start += 3000 {
		h := fmt.Sprintf("bytes=%d-", start)
		if end := start + 2999; end < len(f.data)-1 {
			h = fmt.Sprintf("bytes=%d-%d", start, end)
		}
		resp, body := f.get(t, "/videos/clip.mp4", h)
		require.Equal(t, http.StatusPartialContent, resp.StatusCode)
		got = append(got, body...)
	}
	assert.Equal(t, f.data, got)
}

func TestStreamVideo_LogsAndObserves(t *testing.T) {
	f := newStreamFixture(t)

	f.get(t, "/videos/clip.mp4", "bytes=0-99")
	f.get(t, "/videos/missing.mp4", "")

	outcomes, n := f.obs.snapshot()
	assert.Equal(t, []string{outcomeCompleted}, outcomes)
	assert.Equal(t, int64(100), n)

	logs := f.logs.String()
	assert.Contains(t, logs, `"msg":"video_stream"`)
	assert.Contains(t, logs, `"msg":"stream_completed"`)
	assert.Contains(t, logs, `"status":404`)
}

func TestStreamVideo_ServiceFailure(t *testing.T) {
	svc := new(serviceMocks.MockStreamService)
	svc.On("Open", mock.Anything, "clip.mp4", "").Return(nil, errors.New("disk on fire")).Once()

	app := fiber.New()
	app.Get("/videos/*", StreamVideo(svc, StreamOptions{Log: logger.Discard()}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var res errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "INTERNAL_ERROR", res.Error.Code)
	assert.NotContains(t, res.Error.Message, "disk on fire")
	svc.AssertExpectations(t)
}

type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestStreamVideo_LengthOutOfRange(t *testing.T) {
	body := &closeCounter{Reader: bytes.NewReader(nil)}
	svc := new(serviceMocks.MockStreamService)
	svc.On("Open", mock.Anything, "clip.mp4", "").Return(&service.Stream{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		TotalSize:   -1,
		Body:        body,
	}, nil).Once()

	app := fiber.New()
	app.Get("/videos/*", StreamVideo(svc, StreamOptions{Log: logger.Discard()}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Range"))
	var res errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "INTERNAL_ERROR", res.Error.Code)
	assert.Equal(t, 1, body.closed)
	svc.AssertExpectations(t)
}

func TestBodyLength(t *testing.T) {
	tests := []struct {
		name   string
		in     int64
		want   int
		wantOK bool
	}{
		{name: "zero", in: 0, want: 0, wantOK: true},
		{name: "small", in: 10000, want: 10000, wantOK: true},
		{name: "int32 max", in: math.MaxInt32, want: math.MaxInt32, wantOK: true},
		{name: "negative", in: -1, wantOK: false},
		{name: "int64 max", in: math.MaxInt64, want: math.MaxInt, wantOK: strconv.IntSize == 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bodyLength(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

type deadlineConn struct {
	net.Conn
	mu        sync.Mutex
	deadlines []time.Time
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

type failingReader struct {
	r     io.Reader
	after int
	n     int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n >= f.after {
		return 0, errors.New("read failed")
	}
	n, err := f.r.Read(p[:min(len(p), f.after-f.n)])
	f.n += n
	return n, err
}

func TestTrackedBody(t *testing.T) {
	data := clipBytes()

	t.Run("completed", func(t *testing.T) {
		obs := &recordingObserver{}
		conn := &deadlineConn{}
		b := &trackedBody{
			r:        io.NopCloser(bytes.NewReader(data)),
			conn:     conn,
			idle:     time.Second,
			expected: int64(len(data)),
			log:      logger.Discard(),
			observer: obs,
		}
		n, err := io.Copy(io.Discard, b)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		outcomes, total := obs.snapshot()
		assert.Equal(t, []string{outcomeCompleted}, outcomes)
		assert.Equal(t, int64(len(data)), total)

		require.NotEmpty(t, conn.deadlines)
		assert.True(t, conn.deadlines[len(conn.deadlines)-1].IsZero(), "deadline is cleared on close")
		assert.False(t, conn.deadlines[0].IsZero())
	})

	t.Run("client went away", func(t *testing.T) {
		obs := &recordingObserver{}
		b := &trackedBody{
			r:        io.NopCloser(bytes.NewReader(data)),
			expected: int64(len(data)),
			log:      logger.Discard(),
			observer: obs,
		}
		buf := make([]byte, 512)
		_, err := b.Read(buf)
		require.NoError(t, err)
		require.NoError(t, b.CloseWithError(errors.New("broken pipe")))

		outcomes, total := obs.snapshot()
		assert.Equal(t, []string{outcomeAborted}, outcomes)
		assert.Equal(t, int64(512), total)
	})

	t.Run("read failure mid stream", func(t *testing.T) {
		var logs bytes.Buffer
		obs := &recordingObserver{}
		b := &trackedBody{
			r:        io.NopCloser(&failingReader{r: bytes.NewReader(data), after: 4096}),
			expected: int64(len(data)),
			log:      logger.NewWithWriter(&logs, "info", "json", time.UTC),
			observer: obs,
		}
		_, err := io.Copy(io.Discard, b)
		require.Error(t, err)
		require.NoError(t, b.Close())

		outcomes, total := obs.snapshot()
		assert.Equal(t, []string{outcomeAborted}, outcomes)
		assert.Equal(t, int64(4096), total)
		assert.Contains(t, logs.String(), `"msg":"stream_aborted"`)
		assert.Contains(t, logs.String(), "read failed")
	})
}

func TestMediaAccess(t *testing.T) {
	const secret = "test-secret"
	authMw := middleware.NewAuth(secret)
	owner, err := auth.Issue(secret, "owner", "", time.Hour)
	require.NoError(t, err)

	newApp := func(gate StreamGate) *fiber.App {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
		app.Use(middleware.RequestID())
		app.Get("/videos/*", authMw.OptionalAuth(), MediaAccess(gate, logger.Discard()), func(c *fiber.Ctx) error {
			return c.SendStatus(http.StatusTeapot)
		})
		return app
	}

	t.Run("private video hidden from anonymous viewer", func(t *testing.T) {
		gate := new(serviceMocks.MockVideoService)
		gate.On("StreamAllowed", mock.Anything, "clip.mp4", "").Return(false, nil).Once()

		resp, err := newApp(gate).Test(httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil), -1)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		gate.AssertExpectations(t)
	})

	t.Run("owner passes with header token", func(t *testing.T) {
		gate := new(serviceMocks.MockVideoService)
		gate.On("StreamAllowed", mock.Anything, "clip.mp4", "owner").Return(true, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil)
		req.Header.Set("Authorization", "Bearer "+owner)
		resp, err := newApp(gate).Test(req, -1)
		require.NoError(t, err)

		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
		gate.AssertExpectations(t)
	})

	t.Run("gate failure", func(t *testing.T) {
		gate := new(serviceMocks.MockVideoService)
		gate.On("StreamAllowed", mock.Anything, "clip.mp4", "").Return(false, errors.New("db down")).Once()

		resp, err := newApp(gate).Test(httptest.NewRequest(http.MethodGet, "/videos/clip.mp4", nil), -1)
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		gate.AssertExpectations(t)
	})

	t.Run("invalid names skip the lookup", func(t *testing.T) {
		gate := new(serviceMocks.MockVideoService)

		resp, err := newApp(gate).Test(httptest.NewRequest(http.MethodGet, "/videos/..%2Fsecret.txt", nil), -1)
		require.NoError(t, err)

		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
		gate.AssertNotCalled(t, "StreamAllowed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("owner streams through query token", func(t *testing.T) {
		data := clipBytes()
		store, err := storage.NewLocal(t.TempDir())
		require.NoError(t, err)
		_, err = store.Put(context.Background(), "clip.mp4", bytes.NewReader(data), storage.PutObjectOptions{Size: int64(len(data))})
		require.NoError(t, err)

		gate := new(serviceMocks.MockVideoService)
		gate.On("StreamAllowed", mock.Anything, "clip.mp4", "owner").Return(true, nil).Once()

		app := fiber.New()
		app.Get("/videos/*", authMw.OptionalAuth(), MediaAccess(gate, logger.Discard()),
			StreamVideo(service.NewStreamService(store), StreamOptions{Log: logger.Discard()}))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/videos/clip.mp4?token="+owner, nil), -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, data, body)
		gate.AssertExpectations(t)
	})
}
