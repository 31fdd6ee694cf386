package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 200, A: 255})
		}
	}
	return img
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageNotFound))

	_, err = LoadMat(filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errors.Is(err, ErrImageNotFound))
}

func TestLoadDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.True(t, errors.Is(err, ErrImageNotFound))
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))
	_, err := Load(path)
	assert.True(t, errors.Is(err, ErrImageNotFound))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.png")
	src := testImage()
	require.NoError(t, Save(path, src))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), loaded.Bounds())

	r, g, b, _ := loaded.At(10, 5).RGBA()
	assert.Equal(t, uint32(60), r>>8)
	assert.Equal(t, uint32(40), g>>8)
	assert.Equal(t, uint32(200), b>>8)
}

func TestSaveUnsupportedFormat(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "sheet.webp"), testImage())
	assert.Error(t, err)
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a.PNG"))
	assert.True(t, IsSupportedFormat("dir/b.jpeg"))
	assert.True(t, IsSupportedFormat("scan.tiff"))
	assert.False(t, IsSupportedFormat("notes.txt"))
	assert.False(t, IsSupportedFormat("noext"))
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))

	img, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())

	_, err = Decode(bytes.NewReader([]byte("garbage")))
	assert.Error(t, err)
}

func TestToMatFromMat(t *testing.T) {
	src := testImage()
	mat, err := ToMat(src)
	require.NoError(t, err)
	defer mat.Close()

	assert.Equal(t, 30, mat.Rows())
	assert.Equal(t, 40, mat.Cols())
	assert.Equal(t, 3, mat.Channels())
	// BGR order
	assert.Equal(t, uint8(200), mat.GetUCharAt(5, 10*3+0))
	assert.Equal(t, uint8(40), mat.GetUCharAt(5, 10*3+1))
	assert.Equal(t, uint8(60), mat.GetUCharAt(5, 10*3+2))

	back, err := FromMat(mat)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, back.(*image.RGBA).Pix)
}

func TestToMatOffsetBounds(t *testing.T) {
	sub := testImage().SubImage(image.Rect(10, 10, 20, 15))
	mat, err := ToMat(sub)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, 5, mat.Rows())
	assert.Equal(t, 10, mat.Cols())
	assert.Equal(t, uint8(60), mat.GetUCharAt(0, 2))
}

func TestFromMatGray(t *testing.T) {
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(77, 0, 0, 0), 8, 6, gocv.MatTypeCV8UC1)
	defer gray.Close()

	img, err := FromMat(gray)
	require.NoError(t, err)
	g, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(77), g.GrayAt(3, 3).Y)
}

func TestConversionErrors(t *testing.T) {
	_, err := ToMat(nil)
	assert.Error(t, err)
	_, err = ToMat(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = FromMat(empty)
	assert.Error(t, err)
}

func TestSaveMatLoadMat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mat.png")
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 12, 16, gocv.MatTypeCV8UC3)
	defer mat.Close()
	require.NoError(t, SaveMat(path, mat))

	loaded, err := LoadMat(path)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, 12, loaded.Rows())
	assert.Equal(t, uint8(10), loaded.GetUCharAt(0, 0))
	assert.Equal(t, uint8(30), loaded.GetUCharAt(0, 2))
}
