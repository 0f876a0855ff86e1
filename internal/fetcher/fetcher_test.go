package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen-api/internal/media"
)

// noSleep records requested delays without waiting.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

type failingTransport struct {
	calls atomic.Int32
}

func (t *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return nil, errors.New("dial tcp: connection refused")
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.Contains(t, r.Header.Get("Accept"), "video/")
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("real video bytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "out.mp4")
	f := New()

	out := f.Fetch(context.Background(), server.URL+"/clip.mp4", dest, media.KindVideo)

	assert.False(t, out.Placeholder)
	assert.Equal(t, 1, out.Attempts)
	assert.NoError(t, out.LastErr)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "real video bytes", string(data))
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("denied"))
			return
		}
		_, _ = w.Write([]byte("png"))
	}))
	defer server.Close()

	var delays []time.Duration
	f := New()
	f.sleep = noSleep(&delays)

	dest := filepath.Join(t.TempDir(), "out.png")
	out := f.Fetch(context.Background(), server.URL, dest, media.KindImage)

	assert.False(t, out.Placeholder)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays, "delay grows linearly")
}

func TestFetch_NonOKWritesPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such object"))
	}))
	defer server.Close()

	var delays []time.Duration
	f := New()
	f.sleep = noSleep(&delays)

	dest := filepath.Join(t.TempDir(), "out.mp4")
	out := f.Fetch(context.Background(), server.URL, dest, media.KindVideo)

	assert.True(t, out.Placeholder)
	assert.Equal(t, 3, out.Attempts)
	assert.ErrorIs(t, out.LastErr, ErrBadStatus)
	assert.Contains(t, out.LastErr.Error(), "no such object")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, media.Placeholder(media.KindVideo), data)
}

func TestFetch_NetworkFailuresNeverFail(t *testing.T) {
	transport := &failingTransport{}
	var delays []time.Duration
	f := New(WithHTTPClient(&http.Client{Transport: transport}))
	f.sleep = noSleep(&delays)

	dest := filepath.Join(t.TempDir(), "missing-dir", "out.png")
	out := f.Fetch(context.Background(), "https://cdn.example.com/a.png", dest, media.KindImage)

	assert.True(t, out.Placeholder)
	assert.NoError(t, out.WriteErr)
	assert.Equal(t, int32(3), transport.calls.Load())
	_, err := os.Stat(dest)
	assert.NoError(t, err, "destination must exist after exhausting attempts")
}

func TestFetch_PlaceholderURLSkipsNetwork(t *testing.T) {
	transport := &failingTransport{}
	f := New(WithHTTPClient(&http.Client{Transport: transport}))

	dest := filepath.Join(t.TempDir(), "out.mp4")
	out := f.Fetch(context.Background(), media.PlaceholderURL(media.KindVideo), dest, media.KindVideo)

	assert.True(t, out.Placeholder)
	assert.Equal(t, 0, out.Attempts)
	assert.ErrorIs(t, out.LastErr, ErrPlaceholderSource)
	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestFetch_CancelledContextStillWritesPlaceholder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(WithMaxAttempts(5))
	dest := filepath.Join(t.TempDir(), "out.png")
	out := f.Fetch(ctx, "https://cdn.example.com/a.png", dest, media.KindImage)

	assert.True(t, out.Placeholder)
	assert.Equal(t, 1, out.Attempts, "no retries once the context is done")
	_, err := os.Stat(dest)
	assert.NoError(t, err)
}

func TestFetch_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	f := New()
	out := f.Fetch(context.Background(), "https://cdn.example.com/a.png", filepath.Join(blocker, "out.png"), media.KindImage)

	assert.Error(t, out.WriteErr)
}
