package mot

import "fmt"

// packetSizes maps the allowed packet-mode sizes to their 2-bit length
// code.
var packetSizes = map[int]byte{
	24: 0,
	48: 1,
	72: 2,
	96: 3,
}

// EncodePackets splits data groups into fixed-size packet-mode packets
// addressed to the given sub-channel address. Each packet carries a
// 3-byte header, the useful data (zero-padded) and a CRC.
func EncodePackets(groups []DataGroup, address uint16, packetSize int) ([]byte, error) {
	lengthCode, ok := packetSizes[packetSize]
	if !ok {
		return nil, fmt.Errorf("mot: packet size %d not in {24, 48, 72, 96}", packetSize)
	}
	if address >= 1<<10 {
		return nil, fmt.Errorf("mot: packet address %d exceeds 10 bits", address)
	}

	useful := packetSize - 5 // header 3, CRC 2
	var out []byte
	continuity := byte(0)
	for _, group := range groups {
		data := []byte(group)
		total := (len(data) + useful - 1) / useful
		for i := 0; i < total; i++ {
			lo := i * useful
			hi := min(lo+useful, len(data))
			chunk := data[lo:hi]

			first := i == 0
			last := i == total-1
			pkt := make([]byte, 0, packetSize)
			// PacketLength(2) ContinuityIndex(2) FirstLast(2) Address(10)
			var flags byte
			if first {
				flags |= 2
			}
			if last {
				flags |= 1
			}
			b0 := lengthCode<<6 | (continuity&0x3)<<4 | flags<<2 | byte(address>>8&0x3)
			pkt = append(pkt, b0, byte(address))
			// Command(1)=0, UsefulDataLength(7)
			pkt = append(pkt, byte(len(chunk)&0x7f))
			pkt = append(pkt, chunk...)
			for len(pkt) < packetSize-2 {
				pkt = append(pkt, 0)
			}
			crc := crc16(pkt)
			pkt = append(pkt, byte(crc>>8), byte(crc))

			out = append(out, pkt...)
			continuity = (continuity + 1) & 0x3
		}
	}
	return out, nil
}

// FlattenGroups concatenates data groups for directory-fragment output
// (the -D mode).
func FlattenGroups(groups []DataGroup) []byte {
	var out []byte
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
