package icon

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/appimage-installer/internal/model"
)

func requirePNG(t *testing.T, data []byte, size int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, size, img.Bounds().Dx())
	assert.Equal(t, size, img.Bounds().Dy())
}

func TestResolveEmbedded(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithSize(48))
	res, err := r.Resolve(context.Background(), Request{
		Name:     "Foo",
		Embedded: model.IconCandidate{Bytes: pngBytes(t, 16, 16, color.White), Provenance: model.ProvenanceEmbedded, Origin: "foo.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceEmbedded, res.Provenance)
	assert.Equal(t, "foo.png", res.Origin)
	requirePNG(t, res.PNG, 48)
}

func TestResolveCorruptEmbeddedFallsBackToCategoryDefault(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithSize(32))
	res, err := r.Resolve(context.Background(), Request{
		Name:       "Foo",
		Categories: []string{"AudioVideo", "Player"},
		Embedded:   model.IconCandidate{Bytes: []byte("garbage"), Provenance: model.ProvenanceEmbedded, Origin: "foo.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceCategoryDefault, res.Provenance)
	assert.Equal(t, CategoryMultimedia, res.Category)
	requirePNG(t, res.PNG, 32)
}

func TestResolveOversizedEmbeddedFallsBackToCategoryDefault(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithSize(32))
	res, err := r.Resolve(context.Background(), Request{
		Name:       "Foo",
		Categories: []string{"Development"},
		Embedded:   model.IconCandidate{Bytes: oversizedPNG(t, 40000, 40000), Provenance: model.ProvenanceEmbedded, Origin: "foo.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceCategoryDefault, res.Provenance)
	requirePNG(t, res.PNG, 32)
}

func TestResolveThemeLookup(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	p := filepath.Join(root, "hicolor", "128x128", "apps", "org.example.Foo.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, pngBytes(t, 128, 128, color.Black), 0o644))

	r := NewResolver(WithTheme(NewThemeIndex([]string{root})), WithSize(64))
	res, err := r.Resolve(context.Background(), Request{Name: "Foo", IconName: "org.example.Foo"})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceThemeLookup, res.Provenance)
	assert.Equal(t, p, res.Origin)
	requirePNG(t, res.PNG, 64)
}

func TestResolveSkipsUndecodableThemeFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	p := filepath.Join(root, "hicolor", "scalable", "apps", "foo.svg")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("not svg"), 0o644))

	r := NewResolver(WithTheme(NewThemeIndex([]string{root})))
	res, err := r.Resolve(context.Background(), Request{Name: "foo"})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceCategoryDefault, res.Provenance)
}

func TestResolveRemoteFallback(t *testing.T) {
	t.Parallel()
	payload := []byte(testSVG)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/foo.svg" {
			_, _ = w.Write(payload)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	remote := NewRemote([]string{srv.URL + "/{name}.svg"}, 2*time.Second, "test")
	r := NewResolver(WithRemote(remote), WithSize(32))
	res, err := r.Resolve(context.Background(), Request{Name: "Foo"})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceRemoteFallback, res.Provenance)
	assert.Equal(t, srv.URL+"/foo.svg", res.Origin)
	requirePNG(t, res.PNG, 32)
}

func TestResolveRemoteSkipsUndecodableHit(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/foo.svg":
			_, _ = w.Write([]byte("<html><body>Not Found</body></html>"))
		case "/foo-app.svg":
			_, _ = w.Write([]byte(testSVG))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	remote := NewRemote([]string{srv.URL + "/{name}.svg"}, 2*time.Second, "test")
	r := NewResolver(WithRemote(remote), WithSize(32))
	res, err := r.Resolve(context.Background(), Request{Name: "Foo App", IconName: "foo"})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceRemoteFallback, res.Provenance)
	assert.Equal(t, srv.URL+"/foo-app.svg", res.Origin)
	requirePNG(t, res.PNG, 32)
}

func TestResolveOfflineNeverTouchesNetwork(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	remote := NewRemote([]string{srv.URL + "/{name}.svg"}, time.Second, "test")
	r := NewResolver(WithRemote(remote), WithOffline(true))
	res, err := r.Resolve(context.Background(), Request{Name: "Foo", Categories: []string{"Development"}})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceCategoryDefault, res.Provenance)
	assert.Equal(t, CategoryDevelopment, res.Category)
	assert.Zero(t, hits.Load())
}

func TestResolveCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewResolver(WithRemote(NewRemote([]string{srv.URL + "/{name}"}, time.Second, "test")))
	_, err := r.Resolve(ctx, Request{Name: "Foo"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookupNames(t *testing.T) {
	t.Parallel()
	got := lookupNames(Request{Name: "My Tool", IconName: "/abs/icon.png", DesktopID: "org.example.MyTool"})
	assert.Equal(t, []string{"org.example.MyTool", "My Tool", "my-tool"}, got)

	got = lookupNames(Request{Name: "foo", IconName: "foo", DesktopID: ""})
	assert.Equal(t, []string{"foo"}, got)
}

func TestInferCategory(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CategoryGraphics, InferCategory([]string{"Qt", "Graphics"}))
	assert.Equal(t, CategoryOther, InferCategory(nil))
	assert.Equal(t, CategoryOther, InferCategory([]string{"X-Custom"}))
}
