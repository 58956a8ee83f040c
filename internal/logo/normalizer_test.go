package logo

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabtools/epgdc/internal/fetch"
	"github.com/dabtools/epgdc/internal/spi"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func smallPNG(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return encodePNG(t, img)
}

// noisyPNG produces a truecolor payload comfortably above the
// recompression threshold. Pixels come from a seeded PRNG so the
// fixture is deterministic yet incompressible.
func noisyPNG(t *testing.T, w, h int) []byte {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return encodePNG(t, img)
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name string
		item spi.MediaItem
		want bool
	}{
		{name: "declared square always passes", item: spi.MediaItem{Type: spi.MediaSquareLogo, MIME: "image/jpeg", Width: 600, Height: 600}, want: true},
		{name: "declared rectangle always passes", item: spi.MediaItem{Type: spi.MediaRectangleLogo}, want: true},
		{name: "whitelisted png 32x32", item: spi.MediaItem{MIME: "image/png", Width: 32, Height: 32}, want: true},
		{name: "whitelisted png 320x240", item: spi.MediaItem{MIME: "image/png", Width: 320, Height: 240}, want: true},
		{name: "png off-whitelist dims", item: spi.MediaItem{MIME: "image/png", Width: 64, Height: 64}, want: false},
		{name: "whitelisted dims wrong mime", item: spi.MediaItem{MIME: "image/jpeg", Width: 32, Height: 32}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Accept(tc.item))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, spi.MediaSquareLogo, Classify(32, 32))
	assert.Equal(t, spi.MediaRectangleLogo, Classify(112, 32))

	// Every accepted pair outside the canonical two is unrestricted.
	assert.Equal(t, spi.MediaUnrestricted, Classify(128, 128))
	assert.Equal(t, spi.MediaUnrestricted, Classify(320, 240))
	assert.Equal(t, spi.MediaUnrestricted, Classify(32, 33))
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "Absolute_1_32x32.png", ObjectName("Absolute Rock", 1, 32, 32))
	assert.Equal(t, "Rock_2_112x32.png", ObjectName("Rock", 2, 112, 32))
	assert.Equal(t, "service_1_32x32.png", ObjectName("", 1, 32, 32))
}

func TestObjectNameMultibyteStaysValidUTF8(t *testing.T) {
	// Length-limiting a CJK name must not cut a rune in half.
	name := ObjectName("日本放送局", 1, 32, 32)
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, "日本_1_32x32.png", name)
}

func TestNormalize(t *testing.T) {
	small := smallPNG(t, 32, 32)
	big := noisyPNG(t, 128, 128)
	require.Greater(t, len(big), SizeThreshold, "fixture must exceed the recompression threshold")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/square.png":
			_, _ = w.Write(small)
		case "/big.png":
			_, _ = w.Write(big)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := spi.Service{
		ShortName: "Absolute Rock",
		Media: []spi.MediaItem{
			{Type: spi.MediaSquareLogo, MIME: "image/png", Width: 600, Height: 600, URL: srv.URL + "/square.png"},
			{Type: spi.MediaUnrestricted, MIME: "image/png", Width: 128, Height: 128, URL: srv.URL + "/big.png"},
			{Type: spi.MediaUnrestricted, MIME: "image/png", Width: 64, Height: 64, URL: srv.URL + "/rejected.png"},
			{Type: spi.MediaRectangleLogo, MIME: "image/png", Width: 112, Height: 32, URL: srv.URL + "/gone.png"},
		},
	}

	n := New(fetch.New(time.Second, nil))
	objects, media := n.Normalize(context.Background(), svc)

	// The off-whitelist item is filtered, the 404 one fetch-fails; the
	// rest survive in order.
	require.Len(t, objects, 2)
	require.Len(t, media, 2)

	// Declared square: dimensions forced to canonical regardless of the
	// reported 600x600.
	assert.Equal(t, spi.MediaSquareLogo, media[0].Type)
	assert.Equal(t, 32, media[0].Width)
	assert.Equal(t, 32, media[0].Height)
	assert.Equal(t, "Absolute_1_32x32.png", objects[0].Name)
	assert.Equal(t, media[0].URL, objects[0].Name)

	// Whitelist-admitted item keeps payload dimensions and is
	// reclassified from those.
	assert.Equal(t, spi.MediaUnrestricted, media[1].Type)
	assert.Equal(t, 128, media[1].Width)
	assert.Equal(t, "Absolute_2_128x128.png", objects[1].Name)

	// Oversized payload: never larger than the original, still a valid
	// image with the same logical dimensions.
	assert.LessOrEqual(t, len(objects[1].Body), len(big))
	cfg, _, err := image.DecodeConfig(bytes.NewReader(objects[1].Body))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Width)
	assert.Equal(t, 128, cfg.Height)

	// Input service untouched.
	assert.Len(t, svc.Media, 4)
	assert.Equal(t, srv.URL+"/square.png", svc.Media[0].URL)
}

func TestNormalizeTrustsPayloadDimensions(t *testing.T) {
	// Admission goes by the reported 128x128; once the payload is in
	// hand, the decoded dimensions win for naming and reclassification.
	body := smallPNG(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	svc := spi.Service{
		ShortName: "Rock",
		Media: []spi.MediaItem{
			{Type: spi.MediaUnrestricted, MIME: "image/png", Width: 128, Height: 128, URL: srv.URL + "/logo.png"},
		},
	}

	n := New(fetch.New(time.Second, nil))
	objects, media := n.Normalize(context.Background(), svc)

	require.Len(t, objects, 1)
	require.Len(t, media, 1)
	assert.Equal(t, "Rock_1_64x64.png", objects[0].Name)
	assert.Equal(t, 64, media[0].Width)
	assert.Equal(t, 64, media[0].Height)
	assert.Equal(t, spi.MediaUnrestricted, media[0].Type)
}

func TestRecompressPreservesDimensions(t *testing.T) {
	big := noisyPNG(t, 320, 240)
	out, err := recompress(big)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestRecompressRejectsGarbage(t *testing.T) {
	_, err := recompress([]byte("definitely not an image"))
	require.Error(t, err)
}
