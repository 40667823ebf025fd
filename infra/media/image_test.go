package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrestNiraj12/rantfeed/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns the signature and IHDR chunk of a grayscale PNG. It
// declares the dimensions without carrying any pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter and interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestProcess_RejectsOversizedDimensions(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"huge declared square", pngHeader(12000, 12000)},
		{"too many pixels", pngHeader(7000, 7000)},
		{"one side too long", pngHeader(MaxSourceSide+1, 1)},
	}
	for _, tt := range tests {
		_, err := Process(bytes.NewReader(tt.data), "image/png")
		assert.ErrorIs(t, err, domain.ErrImageTooLarge, tt.name)
	}

	// A real, highly compressible image just past the side limit.
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, MaxSourceSide+1, 2))))
	_, _, err := Processor{}.Prepare(bytes.NewReader(buf.Bytes()), "image/png", int64(buf.Len()))
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)

	_, err = Process(bytes.NewReader(pngHeader(MaxSourceSide, 10)), "image/png")
	assert.ErrorIs(t, err, domain.ErrInvalidImage, "dimensions within limits reach the decoder")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("image/webp", 1024))
	assert.ErrorIs(t, Validate("image/bmp", 10), domain.ErrInvalidImage)
	assert.ErrorIs(t, Validate("image/png", MaxImageSize+1), domain.ErrImageTooLarge)
	assert.NoError(t, Validate("image/png", MaxImageSize))
}

func TestProcess_ShrinksToFitKeepingAspect(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{1600, 900, 800, 450},
		{900, 1800, 300, 600},
		{400, 300, 400, 300},
	}
	for _, tt := range tests {
		out, err := Process(bytes.NewReader(encodePNG(t, tt.w, tt.h)), "image/png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", out.ContentType)
		assert.Equal(t, tt.wantW, out.Width)
		assert.Equal(t, tt.wantH, out.Height)

		cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
		require.NoError(t, err)
		assert.Equal(t, tt.wantW, cfg.Width)
		assert.Equal(t, tt.wantH, cfg.Height)
	}
}

func TestProcess_ReencodesJPEGAndGIF(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 1000))

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, nil))
	out, err := Process(&jpg, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.ContentType)
	_, err = jpeg.DecodeConfig(bytes.NewReader(out.Data))
	assert.NoError(t, err)
	assert.Equal(t, 600, out.Width)

	var g bytes.Buffer
	require.NoError(t, gif.Encode(&g, src, nil))
	out, err = Process(&g, "image/gif")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", out.ContentType)
	_, err = gif.DecodeConfig(bytes.NewReader(out.Data))
	assert.NoError(t, err)
}

func TestProcess_Rejects(t *testing.T) {
	_, err := Process(strings.NewReader("not an image"), "image/png")
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, err = Process(strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, err = Process(bytes.NewReader(make([]byte, MaxImageSize+10)), "image/png")
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)
}

func TestProcessor_Prepare(t *testing.T) {
	data := encodePNG(t, 10, 10)
	out, ct, err := Processor{}.Prepare(bytes.NewReader(data), "image/png", int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.NotEmpty(t, out)

	_, _, err = Processor{}.Prepare(bytes.NewReader(data), "image/png", MaxImageSize*2)
	assert.True(t, errors.Is(err, domain.ErrImageTooLarge))
}
