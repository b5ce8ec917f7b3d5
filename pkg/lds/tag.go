// Package lds parses the Logical Data Structure ICAO 9303 Part 10 defines
// for eMRTD chips: EF.COM, the numbered data groups DG1-DG16, EF.SOD, and
// EF.CardAccess, using the same BER-TLV struct-tag unmarshaler the teacher
// built for EMV FCI/directory parsing.
package lds

import "fmt"

// DataGroupId identifies one of the sixteen standardized data groups.
type DataGroupId int

const (
	DG1  DataGroupId = 1
	DG2  DataGroupId = 2
	DG3  DataGroupId = 3
	DG4  DataGroupId = 4
	DG5  DataGroupId = 5
	DG6  DataGroupId = 6
	DG7  DataGroupId = 7
	DG8  DataGroupId = 8
	DG9  DataGroupId = 9
	DG10 DataGroupId = 10
	DG11 DataGroupId = 11
	DG12 DataGroupId = 12
	DG13 DataGroupId = 13
	DG14 DataGroupId = 14
	DG15 DataGroupId = 15
	DG16 DataGroupId = 16
)

// fileID maps each data group to its 2-byte EF file identifier
// (ICAO 9303 Part 10 §4.6, EF.DGn = 01nn).
func (d DataGroupId) fileID() [2]byte {
	return [2]byte{0x01, byte(d)}
}

// FileID returns the 2-byte file identifier SELECT uses to address this
// data group's EF.
func (d DataGroupId) FileID() [2]byte { return d.fileID() }

// tag returns the ICAO LDS application tag that opens this data group's
// EF content (e.g. 0x61 for DG1), per ICAO 9303 Part 10 Table 3.
func (d DataGroupId) tag() (byte, error) {
	t, ok := dgTags[d]
	if !ok {
		return 0, fmt.Errorf("lds: no LDS tag defined for DG%d", d)
	}
	return t, nil
}

var dgTags = map[DataGroupId]byte{
	DG1: 0x61, DG2: 0x75, DG3: 0x63, DG4: 0x76, DG5: 0x65, DG6: 0x66,
	DG7: 0x67, DG8: 0x68, DG9: 0x69, DG10: 0x6A, DG11: 0x6B, DG12: 0x6C,
	DG13: 0x6D, DG14: 0x6E, DG15: 0x6F, DG16: 0x70,
}

// EF.COM / EF.SOD / EF.CardAccess file identifiers, the non-numbered LDS
// files every eMRTD exposes alongside the data groups.
var (
	FileIDCOM        = [2]byte{0x01, 0x1E}
	FileIDSOD        = [2]byte{0x01, 0x1D}
	FileIDCardAccess = [2]byte{0x01, 0x1C}
)
