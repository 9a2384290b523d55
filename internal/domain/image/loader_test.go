package image

import (
	"bytes"
	"encoding/base64"
	stdimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoader_LoadEncodesWholeFile(t *testing.T) {
	data := pngFixture(t, 12, 7)
	path := writeFile(t, "leaf.png", data)

	res, err := NewLoader(Options{}).Load(path)
	require.NoError(t, err)
	require.True(t, res.Found())

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), res.Image.Base64)
	assert.Equal(t, int64(len(data)), res.Image.Size)
	assert.Equal(t, "png", res.Image.Format)
	assert.Equal(t, 12, res.Image.Width)
	assert.Equal(t, 7, res.Image.Height)
}

func TestLoader_DeclaresJPEGRegardlessOfFormat(t *testing.T) {
	path := writeFile(t, "leaf.png", pngFixture(t, 2, 2))

	res, err := NewLoader(Options{}).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", res.Image.MIMEType)
	assert.True(t, strings.HasPrefix(res.Image.DataURI(), "data:image/jpeg;base64,"))
}

func TestLoader_UnknownBytesStillEncoded(t *testing.T) {
	data := []byte("not really an image")
	path := writeFile(t, "blob.jpg", data)

	res, err := NewLoader(Options{MIMEType: "image/png"}).Load(path)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Image.Format)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data), res.Image.DataURI())
}

func TestLoader_MissingFileIsTaggedNotFound(t *testing.T) {
	res, err := NewLoader(Options{}).Load("/no/such/file.jpg")
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, res.Status)
	assert.False(t, res.Found())
	assert.Equal(t, "/no/such/file.jpg", res.Path)
	assert.Empty(t, res.Image.Base64)
}

func TestLoader_DirectoryIsAnError(t *testing.T) {
	_, err := NewLoader(Options{}).Load(t.TempDir())
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestEncodedImage_DataURIDefaultsMIME(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,QUJD", EncodedImage{Base64: "QUJD"}.DataURI())
}

func TestLoader_EncodeInMemory(t *testing.T) {
	data := pngFixture(t, 3, 4)
	img := NewLoader(Options{}).Encode("upload:leaf.png", data)

	assert.Equal(t, "upload:leaf.png", img.Path)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), img.Base64)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 4, img.Height)
}
