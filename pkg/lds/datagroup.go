package lds

import (
	"crypto"
	"fmt"

	"github.com/moov-io/bertlv"
)

// DataGroup wraps one data group's EF content: the raw bytes as read off
// the chip (LDS application tag included) and a lazily-verifiable hash for
// Passive Authentication's EF.SOD comparison.
type DataGroup struct {
	ID  DataGroupId
	raw []byte
}

// NewDataGroup validates that raw opens with the data group's expected
// ICAO LDS application tag and wraps it.
func NewDataGroup(id DataGroupId, raw []byte) (*DataGroup, error) {
	wantTag, err := id.tag()
	if err != nil {
		return nil, err
	}

	packets, err := bertlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("lds: decode DG%d: %w", id, err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("lds: DG%d: empty TLV", id)
	}
	if gotTag := packets[0].Tag; gotTag != fmt.Sprintf("%02X", wantTag) {
		return nil, fmt.Errorf("lds: DG%d: unexpected outer tag %s, want %02X", id, gotTag, wantTag)
	}

	return &DataGroup{ID: id, raw: raw}, nil
}

// Raw returns the exact bytes read off the chip for this data group,
// including the outer LDS application tag.
func (dg *DataGroup) Raw() []byte {
	return dg.raw
}

// Hash returns the digest of Raw() under algo, the form EF.SOD's
// LDSSecurityObject stores per data group for Passive Authentication.
func (dg *DataGroup) Hash(algo crypto.Hash) []byte {
	h := algo.New()
	h.Write(dg.raw)
	return h.Sum(nil)
}
