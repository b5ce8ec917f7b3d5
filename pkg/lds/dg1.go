package lds

import (
	"fmt"

	"github.com/corverto/emrtd/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// dg1Template is DG1, tag '61': the machine-readable zone exactly as
// printed, TD1 (3x30), TD2 (2x36), or TD3 (2x44) depending on document
// type (ICAO 9303 Part 10 §4.6.2).
type dg1Template struct {
	MRZ []byte `tlv:"5F1F"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// DG1 is the parsed machine-readable zone.
type DG1 struct {
	MRZ string
}

// ParseDG1 decodes DG1's raw content.
func ParseDG1(raw []byte) (*DG1, error) {
	var t dg1Template
	if err := tlv.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("lds: parse DG1: %w", err)
	}
	if len(t.MRZ) == 0 {
		return nil, fmt.Errorf("lds: DG1: missing MRZ field (5F1F)")
	}
	return &DG1{MRZ: string(t.MRZ)}, nil
}

// Lines splits the MRZ into its fixed-width lines based on its total
// length (90 bytes: TD1 3x30; 88: TD3 2x44; 72: TD2 2x36). Any other
// length is returned as a single line.
func (d *DG1) Lines() []string {
	switch len(d.MRZ) {
	case 90:
		return []string{d.MRZ[0:30], d.MRZ[30:60], d.MRZ[60:90]}
	case 88:
		return []string{d.MRZ[0:44], d.MRZ[44:88]}
	case 72:
		return []string{d.MRZ[0:36], d.MRZ[36:72]}
	default:
		return []string{d.MRZ}
	}
}
