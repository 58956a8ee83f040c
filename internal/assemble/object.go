// Package assemble collects the run's outputs into the ordered,
// parameter-annotated object set handed to the transport packager.
package assemble

import (
	"time"

	"github.com/dabtools/epgdc/internal/spi"
)

// ContentType tags the payload class of an assembled object.
type ContentType int

const (
	ContentImagePNG ContentType = iota
	ContentEPGProgramme
	ContentEPGService
)

func (c ContentType) String() string {
	switch c {
	case ContentImagePNG:
		return "image/png"
	case ContentEPGProgramme:
		return "application/epg-pi"
	default:
		return "application/epg-si"
	}
}

// Object is one named carousel object.
type Object struct {
	Name string
	Body []byte
	Type ContentType
	// ScopeID is the binary scope identity; nil for image objects.
	ScopeID    []byte
	ScopeStart *time.Time
	ScopeEnd   *time.Time
}

// ScopeIDForEnsemble renders the 3-byte multiplex scope identity
// (ECC, EId) carried by SI objects.
func ScopeIDForEnsemble(ecc uint8, eid uint16) []byte {
	return []byte{ecc, byte(eid >> 8), byte(eid)}
}

// ScopeIDForBearer renders the 6-byte service scope identity
// (ECC, EId, SId, SCIdS) carried by PI objects.
func ScopeIDForBearer(b spi.Bearer) []byte {
	return []byte{
		b.ECC,
		byte(b.EID >> 8), byte(b.EID),
		byte(b.SID >> 8), byte(b.SID),
		b.SCIdS,
	}
}
