// Package spi models RadioDNS Service and Programme Information documents
// and their XML wire form (ETSI TS 102 818).
package spi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Bearer identifies a DAB carriage: ensemble country code, ensemble id,
// service id and service component id. Two bearers belong to the same
// multiplex iff ECC and EId match.
type Bearer struct {
	ECC   uint8
	EID   uint16
	SID   uint16
	SCIdS uint8
}

var errBearerFormat = errors.New("spi: malformed DAB bearer URI")

// ParseBearerURI parses a DAB bearer URI of the form
// "dab:<gcc>.<eid>.<sid>.<scids>", e.g. "dab:ce1.c185.c221.0".
func ParseBearerURI(uri string) (Bearer, error) {
	rest, ok := strings.CutPrefix(uri, "dab:")
	if !ok {
		return Bearer{}, fmt.Errorf("%w: %q lacks dab: scheme", errBearerFormat, uri)
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 4 {
		return Bearer{}, fmt.Errorf("%w: %q has %d fields, want 4", errBearerFormat, uri, len(parts))
	}
	gcc, err := strconv.ParseUint(parts[0], 16, 12)
	if err != nil || len(parts[0]) != 3 {
		return Bearer{}, fmt.Errorf("%w: bad gcc %q", errBearerFormat, parts[0])
	}
	eid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return Bearer{}, fmt.Errorf("%w: bad eid %q", errBearerFormat, parts[1])
	}
	sid, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return Bearer{}, fmt.Errorf("%w: bad sid %q", errBearerFormat, parts[2])
	}
	scids, err := strconv.ParseUint(parts[3], 16, 4)
	if err != nil {
		return Bearer{}, fmt.Errorf("%w: bad scids %q", errBearerFormat, parts[3])
	}
	b := Bearer{
		ECC:   uint8(gcc & 0xff),
		EID:   uint16(eid),
		SID:   uint16(sid),
		SCIdS: uint8(scids),
	}
	// The gcc leads with the country nibble of the service id; reject
	// URIs where the two disagree.
	if uint16(gcc>>8) != b.SID>>12 {
		return Bearer{}, fmt.Errorf("%w: gcc %q does not match sid %04x", errBearerFormat, parts[0], b.SID)
	}
	return b, nil
}

// GCC returns the global country code: the country nibble of the service
// id followed by the extended country code.
func (b Bearer) GCC() string {
	return fmt.Sprintf("%x%02x", b.SID>>12, b.ECC)
}

// String renders the canonical bearer URI.
func (b Bearer) String() string {
	return fmt.Sprintf("dab:%s.%04x.%04x.%x", b.GCC(), b.EID, b.SID, b.SCIdS)
}

// FQDN returns the RadioDNS lookup name for this bearer under the given
// root domain (e.g. "radiodns.org").
func (b Bearer) FQDN(root string) string {
	return fmt.Sprintf("%x.%04x.%s.dab.%s", b.SCIdS, b.SID, b.GCC(), root)
}

// SameMultiplex reports whether both bearers are carried on the same
// ensemble.
func (b Bearer) SameMultiplex(o Bearer) bool {
	return b.ECC == o.ECC && b.EID == o.EID
}

// MatchesEnsemble reports whether the bearer belongs to the given ensemble.
func (b Bearer) MatchesEnsemble(ecc uint8, eid uint16) bool {
	return b.ECC == ecc && b.EID == eid
}

// IntersectsMultiplex reports whether any bearer in the list shares a
// multiplex with any bearer in the other list.
func IntersectsMultiplex(a, b []Bearer) bool {
	for _, x := range a {
		for _, y := range b {
			if x.SameMultiplex(y) {
				return true
			}
		}
	}
	return false
}
