package icon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeThemeFile(t *testing.T, root, rel string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestThemeLookupExactBeforeFolded(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	exact := writeThemeFile(t, root, "hicolor/48x48/apps/Krita.png")
	folded := writeThemeFile(t, root, "hicolor/256x256/apps/krita.png")

	got := NewThemeIndex([]string{root}).Lookup([]string{"Krita"})
	require.NotEmpty(t, got)
	assert.Equal(t, exact, got[0])
	assert.NotContains(t, got, folded)

	got = NewThemeIndex([]string{root}).Lookup([]string{"KRITA"})
	assert.ElementsMatch(t, []string{exact, folded}, got)
	assert.Equal(t, folded, got[0], "larger size ranks first")
}

func TestThemeLookupPrefersScalable(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeThemeFile(t, root, "hicolor/512x512/apps/inkscape.png")
	svg := writeThemeFile(t, root, "hicolor/scalable/apps/inkscape.svg")

	got := NewThemeIndex([]string{root}).Lookup([]string{"inkscape"})
	require.Len(t, got, 2)
	assert.Equal(t, svg, got[0])
}

func TestThemeLookupTokenPrefix(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	want := writeThemeFile(t, root, "hicolor/64x64/apps/blender-launcher.png")
	writeThemeFile(t, root, "hicolor/64x64/apps/blenderish.png")

	got := NewThemeIndex([]string{root}).Lookup([]string{"Blender 4.2"})
	assert.Equal(t, []string{want}, got)
}

func TestThemeLookupShortTokenHasNoPrefixMatch(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeThemeFile(t, root, "hicolor/64x64/apps/vi-improved.png")

	assert.Empty(t, NewThemeIndex([]string{root}).Lookup([]string{"vi"}))
}

func TestThemeLookupSkipsInstalledIcons(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeThemeFile(t, root, "hicolor/256x256/apps/"+InstalledPrefix+"foo.png")

	assert.Empty(t, NewThemeIndex([]string{root}).Lookup([]string{InstalledPrefix + "foo", "foo"}))
}

func TestThemeLookupNameBeforeSizeAndRootBeforeSize(t *testing.T) {
	t.Parallel()
	user, system := t.TempDir(), t.TempDir()
	byIconName := writeThemeFile(t, system, "hicolor/48x48/apps/org.example.Foo.png")
	bySlug := writeThemeFile(t, user, "hicolor/scalable/apps/foo.svg")
	userSmall := writeThemeFile(t, user, "hicolor/32x32/apps/org.example.Foo.png")

	got := NewThemeIndex([]string{user, system}).Lookup([]string{"org.example.Foo", "foo"})
	assert.Equal(t, []string{userSmall, byIconName, bySlug}, got)
}

func TestThemeLookupIgnoresMissingRoots(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	want := writeThemeFile(t, root, "pixmaps/gimp.png")

	idx := NewThemeIndex([]string{filepath.Join(root, "nope"), filepath.Join(root, "pixmaps")})
	assert.Equal(t, []string{want}, idx.Lookup([]string{"gimp"}))
}

func TestDefaultThemeRoots(t *testing.T) {
	t.Parallel()
	got := DefaultThemeRoots("/home/u/.local/share", []string{"/usr/local/share", "/usr/share"}, "/home/u")
	assert.Equal(t, []string{
		"/home/u/.local/share/icons",
		"/home/u/.icons",
		"/usr/local/share/icons",
		"/usr/share/icons",
		"/usr/local/share/pixmaps",
		"/usr/share/pixmaps",
	}, got)
}

func TestSizeRank(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		"/i/hicolor/scalable/apps/a.svg": 1 << 16,
		"/i/hicolor/48x48/apps/a.png":    48,
		"/i/hicolor/32x32@2/apps/a.png":  64,
		"/i/pixmaps/a.png":               0,
	}
	for p, want := range cases {
		assert.Equal(t, want, sizeRank(p), p)
	}
}
