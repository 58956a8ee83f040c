package mot

import (
	"bytes"
	"fmt"

	"github.com/dabtools/epgdc/internal/assemble"
)

const (
	// defaultSegmentSize is how object bodies and the directory are cut
	// into data group segments.
	defaultSegmentSize = 512

	dataGroupTypeBody      = 4
	dataGroupTypeDirectory = 6
)

// Encoder packages an assembled object set into MSC data groups.
type Encoder struct {
	SegmentSize int
}

// DataGroup is one encoded MSC data group.
type DataGroup []byte

// EncodeDirectory builds the MOT directory for the object set and
// segments directory and bodies into data groups. The directory's data
// groups come first so a receiver can place headers before bodies; body
// groups follow in object order. Transport ids are assigned sequentially
// starting at 1 (0 is the directory itself).
func (e *Encoder) EncodeDirectory(objects []assemble.Object) ([]DataGroup, error) {
	if len(objects) == 0 {
		return nil, fmt.Errorf("mot: empty object set")
	}
	segSize := e.SegmentSize
	if segSize <= 0 {
		segSize = defaultSegmentSize
	}

	type entry struct {
		transportID uint16
		header      []byte
	}
	entries := make([]entry, 0, len(objects))
	entriesLen := 0
	for i, obj := range objects {
		hdr, err := encodeHeader(obj)
		if err != nil {
			return nil, err
		}
		ent := entry{transportID: uint16(i + 1), header: hdr}
		entries = append(entries, ent)
		entriesLen += 2 + len(hdr)
	}

	// Directory: CompressionFlag(1) RFU(1) DirectorySize(30),
	// NumberOfObjects(16), DataCarouselPeriod(24), RFU(3)
	// SegmentSize(13), DirectoryExtensionLength(16), entries.
	dirSize := 13 + entriesLen
	dir := &bytes.Buffer{}
	dir.WriteByte(byte(dirSize >> 24 & 0x3f))
	dir.WriteByte(byte(dirSize >> 16))
	dir.WriteByte(byte(dirSize >> 8))
	dir.WriteByte(byte(dirSize))
	dir.WriteByte(byte(len(objects) >> 8))
	dir.WriteByte(byte(len(objects)))
	dir.Write([]byte{0, 0, 0}) // carousel period unknown
	dir.WriteByte(byte(segSize >> 8 & 0x1f))
	dir.WriteByte(byte(segSize))
	dir.Write([]byte{0, 0}) // no directory extension
	for _, ent := range entries {
		dir.WriteByte(byte(ent.transportID >> 8))
		dir.WriteByte(byte(ent.transportID))
		dir.Write(ent.header)
	}

	var groups []DataGroup
	groups = append(groups, segmentIntoGroups(dir.Bytes(), 0, dataGroupTypeDirectory, segSize)...)
	for i, obj := range objects {
		groups = append(groups, segmentIntoGroups(obj.Body, entries[i].transportID, dataGroupTypeBody, segSize)...)
	}
	return groups, nil
}

// segmentIntoGroups cuts a payload into data groups of at most segSize
// payload bytes each. Each group carries the segment number, a last-
// segment flag, the transport id and a trailing CRC.
func segmentIntoGroups(payload []byte, transportID uint16, groupType byte, segSize int) []DataGroup {
	var groups []DataGroup
	total := (len(payload) + segSize - 1) / segSize
	if total == 0 {
		total = 1
	}
	for seg := 0; seg < total; seg++ {
		lo := seg * segSize
		hi := min(lo+segSize, len(payload))
		chunk := payload[lo:hi]

		g := &bytes.Buffer{}
		// ExtensionFlag(0) CrcFlag(1) SegmentFlag(1) UserAccessFlag(1),
		// DataGroupType(4)
		g.WriteByte(0x70 | groupType&0x0f)
		// ContinuityIndex(4) RepetitionIndex(4)
		g.WriteByte(byte(seg&0x0f) << 4)
		// Session header, segment field: Last(1) SegmentNumber(15)
		segField := uint16(seg & 0x7fff)
		if seg == total-1 {
			segField |= 0x8000
		}
		g.WriteByte(byte(segField >> 8))
		g.WriteByte(byte(segField))
		// User access field: RFA(3) TransportIdFlag(1)=1 LengthIndicator(4)=2
		g.WriteByte(0x12)
		g.WriteByte(byte(transportID >> 8))
		g.WriteByte(byte(transportID))
		g.Write(chunk)
		crc := crc16(g.Bytes())
		g.WriteByte(byte(crc >> 8))
		g.WriteByte(byte(crc))
		groups = append(groups, DataGroup(g.Bytes()))
	}
	return groups
}
