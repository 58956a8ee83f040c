package logo

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/png"
)

// recompress re-encodes an oversized logo as a palette-indexed PNG with
// best compression. Lossy: colours are dithered onto a fixed 256-colour
// palette. Pixel dimensions are preserved.
func recompress(body []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}

	bounds := src.Bounds()
	indexed := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(indexed, bounds, src, bounds.Min)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, indexed); err != nil {
		return nil, fmt.Errorf("encode paletted logo: %w", err)
	}
	return buf.Bytes(), nil
}
