package iso7816

// READ BINARY COMMAND LOGIC (ISO 7816-4):
// The READ BINARY command (INS 'B0') reads a transparent Elementary File
// (EF), either the currently selected one or one addressed directly by a
// Short EF Identifier (SFI) without a prior SELECT.
//
// P1/P2 (Offset or SFI+Offset):
// - If bit 8 of P1 is 0: P1||P2 is a 15-bit offset into the current EF.
// - If bit 8 of P1 is 1: bits 5-1 of P1 carry the SFI (1-30) and P2 is an
//   8-bit offset from the start of that EF (offset range 0-255 only).
//
// ICAO 9303 chips only expose transparent EFs, so this is the only file
// read primitive the tag reader needs; READ RECORD does not apply.

// NewReadBinaryCommand builds a READ BINARY against the currently selected
// EF at the given 15-bit offset, requesting ne bytes.
func NewReadBinaryCommand(cla Class, offset uint16, ne int) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_BINARY)
	p1 := byte(offset>>8) & 0x7F
	p2 := byte(offset)
	return NewCommandAPDU(cla, ins, p1, p2, nil, ne)
}

// NewReadBinaryShortEFCommand builds a READ BINARY addressed by Short EF
// Identifier, valid only for offsets in [0,255].
func NewReadBinaryShortEFCommand(cla Class, sfi byte, offset byte, ne int) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_BINARY)
	p1 := byte(0x80) | (sfi & 0x1F)
	return NewCommandAPDU(cla, ins, p1, offset, nil, ne)
}
