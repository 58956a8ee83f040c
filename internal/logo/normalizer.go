// Package logo fetches and canonicalizes service logo media for the
// carousel.
package logo

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"unicode"
	"unicode/utf8"

	_ "image/gif"
	_ "image/jpeg"

	unorm "golang.org/x/text/unicode/norm"

	"github.com/dabtools/epgdc/internal/assemble"
	"github.com/dabtools/epgdc/internal/fetch"
	"github.com/dabtools/epgdc/internal/log"
	"github.com/dabtools/epgdc/internal/spi"
)

const (
	// SizeThreshold is the payload size above which a logo is
	// recompressed to a palette-indexed PNG.
	SizeThreshold = 4 * 1024

	squareWidth     = 32
	squareHeight    = 32
	rectangleWidth  = 112
	rectangleHeight = 32

	maxNameLength = 8
)

// acceptedDimensions is the whitelist admitting untyped PNG media.
var acceptedDimensions = map[[2]int]bool{
	{32, 32}:   true,
	{112, 32}:  true,
	{128, 128}: true,
	{320, 240}: true,
}

// Normalizer produces the canonical logo set for a service.
type Normalizer struct {
	fetcher   *fetch.Fetcher
	threshold int
}

// New returns a normalizer fetching through f.
func New(f *fetch.Fetcher) *Normalizer {
	return &Normalizer{fetcher: f, threshold: SizeThreshold}
}

// Accept reports whether a media item survives the acceptance policy:
// declared square/rectangle logos always pass; anything else must be a
// PNG with whitelisted dimensions.
func Accept(m spi.MediaItem) bool {
	if m.Type == spi.MediaSquareLogo || m.Type == spi.MediaRectangleLogo {
		return true
	}
	return m.MIME == "image/png" && acceptedDimensions[[2]int{m.Width, m.Height}]
}

// Classify derives the final media type from the final dimensions.
func Classify(width, height int) spi.MediaType {
	switch {
	case width == squareWidth && height == squareHeight:
		return spi.MediaSquareLogo
	case width == rectangleWidth && height == rectangleHeight:
		return spi.MediaRectangleLogo
	default:
		return spi.MediaUnrestricted
	}
}

// Normalize filters, fetches and canonicalizes the service's media list.
// It returns the logo objects in media-list order and the replacement
// media list; the input service is not mutated. A failed fetch drops that
// logo and nothing else.
func (n *Normalizer) Normalize(ctx context.Context, svc spi.Service) ([]assemble.Object, []spi.MediaItem) {
	logger := log.WithComponentFromContext(ctx, "logo")

	var objects []assemble.Object
	var kept []spi.MediaItem
	seq := 0
	for _, item := range svc.Media {
		if !Accept(item) {
			continue
		}

		// Declared logo types override whatever dimensions the source
		// reported; whitelist-admitted items keep theirs.
		switch item.Type {
		case spi.MediaSquareLogo:
			item.Width, item.Height = squareWidth, squareHeight
		case spi.MediaRectangleLogo:
			item.Width, item.Height = rectangleWidth, rectangleHeight
		}

		body, outcome, err := n.fetcher.Document(ctx, item.URL)
		if outcome != fetch.Found {
			logger.Warn().
				Err(err).
				Str("event", "logo.fetch_failed").
				Str("service", svc.ShortName).
				Str("url", item.URL).
				Str("outcome", outcome.String()).
				Msg("logo unavailable, skipping")
			continue
		}

		// Whitelist-admitted items carry source-reported dimensions;
		// trust the payload over the metadata when it decodes.
		if item.Type == spi.MediaUnrestricted {
			if w, h, derr := dimensionsOf(body); derr == nil {
				item.Width, item.Height = w, h
			}
		}

		if len(body) > n.threshold {
			compressed, cerr := recompress(body)
			if cerr != nil {
				logger.Warn().
					Err(cerr).
					Str("event", "logo.recompress_failed").
					Str("url", item.URL).
					Msg("keeping original payload")
			} else if len(compressed) < len(body) {
				logger.Debug().
					Str("event", "logo.recompressed").
					Int("before", len(body)).
					Int("after", len(compressed)).
					Msg("logo recompressed")
				body = compressed
				item.MIME = "image/png"
			}
		}

		seq++
		item.Type = Classify(item.Width, item.Height)
		name := ObjectName(svc.ShortName, seq, item.Width, item.Height)
		item.URL = name

		objects = append(objects, assemble.Object{
			Name: name,
			Body: body,
			Type: assemble.ContentImagePNG,
		})
		kept = append(kept, item)
	}
	return objects, kept
}

// ObjectName derives the carousel name for a logo: length-limited short
// name, a per-service sequence number and the final dimensions.
func ObjectName(shortName string, seq, width, height int) string {
	base := sanitizeName(shortName)
	return fmt.Sprintf("%s_%d_%dx%d.png", base, seq, width, height)
}

func sanitizeName(name string) string {
	name = unorm.NFC.String(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "service"
	}
	if len(out) > maxNameLength {
		// Cut at a rune boundary so multibyte names stay valid UTF-8.
		cut := maxNameLength
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

func dimensionsOf(body []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
