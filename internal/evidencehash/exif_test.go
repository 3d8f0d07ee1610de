package evidencehash

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	return buf.Bytes()
}

func TestEmbedGPS_DoesNotMutateInput(t *testing.T) {
	original := plainJPEG(t)
	originalCopy := append([]byte(nil), original...)

	alt := 12.5
	_, err := EmbedGPS(original, GPSFix{Lat: 37.7749, Lng: -122.4194, Alt: &alt})
	require.NoError(t, err)

	assert.Equal(t, originalCopy, original)
}

func TestEmbedGPS_ReturnsFreshBytes(t *testing.T) {
	original := plainJPEG(t)

	out, err := EmbedGPS(original, GPSFix{Lat: 1, Lng: 2})
	require.NoError(t, err)
	assert.NotEqual(t, original, out)
}

func TestEmbedExtractGPS_RoundTrip(t *testing.T) {
	original := plainJPEG(t)
	alt := 305.2

	embedded, err := EmbedGPS(original, GPSFix{Lat: 51.5074, Lng: -0.1278, Alt: &alt})
	require.NoError(t, err)

	fix, err := ExtractGPS(embedded)
	require.NoError(t, err)
	require.NotNil(t, fix)

	assert.InDelta(t, 51.5074, fix.Lat, 1e-5)
	assert.InDelta(t, -0.1278, fix.Lng, 1e-5)
	require.NotNil(t, fix.Alt)
	assert.InDelta(t, alt, *fix.Alt, 0.1)
}

func TestEmbedExtractGPS_RoundTrip_SouthernAndWesternHemisphere(t *testing.T) {
	original := plainJPEG(t)

	embedded, err := EmbedGPS(original, GPSFix{Lat: -33.8688, Lng: 151.2093})
	require.NoError(t, err)

	fix, err := ExtractGPS(embedded)
	require.NoError(t, err)
	require.NotNil(t, fix)

	assert.InDelta(t, -33.8688, fix.Lat, 1e-5)
	assert.InDelta(t, 151.2093, fix.Lng, 1e-5)
}

func TestExtractGPS_NoEXIFReturnsNilWithoutError(t *testing.T) {
	fix, err := ExtractGPS(plainJPEG(t))
	require.NoError(t, err)
	assert.Nil(t, fix)
}

func TestExtractGPS_NonJPEGInputReturnsError(t *testing.T) {
	_, err := ExtractGPS([]byte("not a jpeg at all"))
	assert.Error(t, err)
}

func TestDegreesToRationals_ZeroDegrees(t *testing.T) {
	rationals := degreesToRationals(0)
	require.Len(t, rationals, 3)
	assert.Equal(t, uint32(0), rationals[0].Numerator)
	assert.Equal(t, uint32(0), rationals[1].Numerator)
	assert.Equal(t, uint32(0), rationals[2].Numerator)
}

func TestDegreesToRationals_FractionalDegrees(t *testing.T) {
	rationals := degreesToRationals(37.7749)
	require.Len(t, rationals, 3)
	assert.Equal(t, uint32(37), rationals[0].Numerator)

	reconstructed := float64(rationals[0].Numerator) +
		float64(rationals[1].Numerator)/60 +
		float64(rationals[2].Numerator)/float64(rationals[2].Denominator)/3600

	assert.True(t, math.Abs(reconstructed-37.7749) < 1e-4)
}
