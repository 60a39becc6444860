package archivetest

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/appimage-installer/internal/archive"
)

func TestRuntimeIsAcceptedByImageOffset(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	image := append([]byte("hsqs"), make([]byte, 92)...)
	require.NoError(t, archive.Assemble(&buf, Runtime(), bytes.NewReader(image)))

	off, err := archive.ImageOffset(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, int64(64), off)
}

func TestSolidPNG(t *testing.T) {
	t.Parallel()
	data, err := SolidPNG(8, color.White)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 8, img.Bounds().Dx())
}
