package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen-api/internal/media"
)

func testServices() map[string]Service {
	return map[string]Service{
		"video-fast": {EndpointURL: "https://tools.example/video", Kind: media.KindVideo, DisplayName: "Fast Video"},
		"image-hd":   {EndpointURL: "https://tools.example/image", Kind: media.KindImage, DisplayName: "HD Image"},
		"image-alt":  {EndpointURL: "https://tools.example/alt", Kind: media.KindImage, DisplayName: "Alt Image"},
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := New(testServices())

	svc, err := r.Resolve("video-fast")
	require.NoError(t, err)
	assert.Equal(t, "video-fast", svc.ID)
	assert.Equal(t, "https://tools.example/video", svc.EndpointURL)
	assert.Equal(t, media.KindVideo, svc.Kind)

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestRegistry_SwapCopiesInput(t *testing.T) {
	services := testServices()
	r := New(services)

	delete(services, "video-fast")

	_, err := r.Resolve("video-fast")
	assert.NoError(t, err, "registry must not alias the caller's map")
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_Swap(t *testing.T) {
	r := New(testServices())

	r.Swap(map[string]Service{
		"only": {EndpointURL: "https://other", Kind: media.KindVideo},
	})

	_, err := r.Resolve("video-fast")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	svc, err := r.Resolve("only")
	require.NoError(t, err)
	assert.Equal(t, "only", svc.ID)
}

func TestRegistry_DefaultFor(t *testing.T) {
	t.Run("first by id when no default configured", func(t *testing.T) {
		r := New(testServices())
		svc, err := r.DefaultFor(media.KindImage)
		require.NoError(t, err)
		assert.Equal(t, "image-alt", svc.ID)
	})

	t.Run("configured default wins", func(t *testing.T) {
		r := New(testServices(), WithDefault(media.KindImage, "image-hd"))
		svc, err := r.DefaultFor(media.KindImage)
		require.NoError(t, err)
		assert.Equal(t, "image-hd", svc.ID)
	})

	t.Run("configured default missing", func(t *testing.T) {
		r := New(testServices(), WithDefault(media.KindVideo, "gone"))
		_, err := r.DefaultFor(media.KindVideo)
		assert.ErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("no service of kind", func(t *testing.T) {
		r := New(map[string]Service{"v": {EndpointURL: "u", Kind: media.KindVideo}})
		_, err := r.DefaultFor(media.KindImage)
		assert.ErrorIs(t, err, ErrNoServiceForKind)
	})
}

func TestRegistry_ConcurrentReadsDuringSwap(t *testing.T) {
	r := New(testServices())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = r.Resolve("video-fast")
				_, _ = r.DefaultFor(media.KindImage)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		r.Swap(testServices())
	}
	wg.Wait()
}

func TestParse(t *testing.T) {
	t.Run("yaml document", func(t *testing.T) {
		doc := []byte(`
services:
  seedance-video:
    url: https://tools.example/mcp
    kind: Video
    name: Seedance
  flux:
    url: https://tools.example/flux
    kind: image
`)
		services, err := Parse(doc)
		require.NoError(t, err)
		require.Len(t, services, 2)
		assert.Equal(t, media.KindVideo, services["seedance-video"].Kind)
		assert.Equal(t, "Seedance", services["seedance-video"].DisplayName)
		assert.Equal(t, "flux", services["flux"].DisplayName)
	})

	t.Run("json document", func(t *testing.T) {
		doc := []byte(`{"services":{"a":{"url":"https://a","kind":"image"}}}`)
		services, err := Parse(doc)
		require.NoError(t, err)
		assert.Equal(t, "https://a", services["a"].EndpointURL)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := Parse([]byte("services:\n  a:\n    kind: image\n"))
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Parse([]byte("services:\n  a:\n    url: u\n    kind: audio\n"))
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Parse([]byte("services: [unterminated"))
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})
}

func TestRegistry_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  v:\n    url: https://v\n    kind: video\n"), 0o600))

	r := New(nil)
	require.NoError(t, r.Reload(path))
	_, err := r.Resolve("v")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("services: [broken"), 0o600))
	assert.Error(t, r.Reload(path))

	_, err = r.Resolve("v")
	assert.NoError(t, err, "failed reload must keep the previous table")

	assert.Error(t, r.Reload(filepath.Join(t.TempDir(), "absent.yaml")))
}
