// Package mot encodes named objects into an MOT directory carousel and
// segments it into MSC data groups and packet-mode transport packets
// (EN 301 234, EN 300 401).
package mot

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dabtools/epgdc/internal/assemble"
)

// MOT content type/subtype pairs for the object classes this carousel
// carries.
type ContentType struct {
	Type    uint8  // 6 bits
	SubType uint16 // 9 bits
}

var (
	TypeImagePNG = ContentType{Type: 2, SubType: 3}
	TypeEPGPI    = ContentType{Type: 7, SubType: 0}
	TypeEPGSI    = ContentType{Type: 7, SubType: 1}
)

// header extension parameter ids
const (
	paramScopeStart  = 0x25
	paramScopeEnd    = 0x26
	paramScopeID     = 0x27
	paramContentName = 0xCC
)

// utf8CharsetID is the character set identifier carried ahead of the
// content name.
const utf8CharsetID = 0xF

func contentTypeFor(t assemble.ContentType) ContentType {
	switch t {
	case assemble.ContentImagePNG:
		return TypeImagePNG
	case assemble.ContentEPGProgramme:
		return TypeEPGPI
	default:
		return TypeEPGSI
	}
}

// encodeHeader renders the MOT header for one object: the 7-byte core
// (body size, header size, content type) followed by the extension
// parameters.
func encodeHeader(obj assemble.Object) ([]byte, error) {
	if len(obj.Body) >= 1<<28 {
		return nil, fmt.Errorf("mot: object %s body exceeds 28-bit size field", obj.Name)
	}

	ext := &bytes.Buffer{}
	appendVarParam(ext, paramContentName, append([]byte{utf8CharsetID << 4}, []byte(obj.Name)...))
	if obj.ScopeStart != nil {
		appendFixedParam(ext, paramScopeStart, encodeUTCShort(*obj.ScopeStart))
	}
	if obj.ScopeEnd != nil {
		appendFixedParam(ext, paramScopeEnd, encodeUTCShort(*obj.ScopeEnd))
	}
	if len(obj.ScopeID) > 0 {
		appendVarParam(ext, paramScopeID, obj.ScopeID)
	}

	headerSize := 7 + ext.Len()
	if headerSize >= 1<<13 {
		return nil, fmt.Errorf("mot: object %s header exceeds 13-bit size field", obj.Name)
	}

	ct := contentTypeFor(obj.Type)
	core := make([]byte, 7)
	// 56 bits: BodySize(28) HeaderSize(13) ContentType(6) SubType(9)
	packed := uint64(len(obj.Body))<<28 |
		uint64(headerSize)<<15 |
		uint64(ct.Type&0x3f)<<9 |
		uint64(ct.SubType&0x1ff)
	for i := 0; i < 7; i++ {
		core[i] = byte(packed >> (48 - 8*i))
	}
	return append(core, ext.Bytes()...), nil
}

// appendFixedParam writes a parameter with a 4-byte data field (PLI 2).
func appendFixedParam(buf *bytes.Buffer, id byte, data [4]byte) {
	buf.WriteByte(2<<6 | id&0x3f)
	buf.Write(data[:])
}

// appendVarParam writes a variable-length parameter (PLI 3) with the
// one- or two-byte data field length indicator.
func appendVarParam(buf *bytes.Buffer, id byte, data []byte) {
	buf.WriteByte(3<<6 | id&0x3f)
	if len(data) < 128 {
		buf.WriteByte(byte(len(data)))
	} else {
		buf.WriteByte(0x80 | byte(len(data)>>8))
		buf.WriteByte(byte(len(data)))
	}
	buf.Write(data)
}

// encodeUTCShort renders the 4-byte short-form MOT time (MJD + hours and
// minutes, UTC).
func encodeUTCShort(t time.Time) [4]byte {
	t = t.UTC()
	mjd := mjdOf(t)
	var out [4]byte
	// Validity(1)=1, MJD(17), RFU(2), UTC flag(1)=0, Hours(5), Minutes(6)
	packed := uint32(1)<<31 | uint32(mjd&0x1ffff)<<14 |
		uint32(t.Hour()&0x1f)<<6 | uint32(t.Minute()&0x3f)
	out[0] = byte(packed >> 24)
	out[1] = byte(packed >> 16)
	out[2] = byte(packed >> 8)
	out[3] = byte(packed)
	return out
}

// mjdOf converts a time to its Modified Julian Day number.
func mjdOf(t time.Time) int {
	// MJD 40587 corresponds to the Unix epoch.
	days := t.Unix() / 86400
	return int(days) + 40587
}
