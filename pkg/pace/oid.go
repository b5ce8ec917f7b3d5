// Package pace implements Password Authenticated Connection Establishment
// (ICAO 9303 Part 11 §4.4): negotiating a fresh secure-messaging session
// from a shared password (MRZ-derived or CAN) via Generic Mapping
// Diffie-Hellman, without exposing the password to eavesdroppers the way
// Basic Access Control's static keys do. Only Generic Mapping over EC
// domains is implemented; the OID table also recognizes the DH, Integrated
// Mapping and CAM protocols, which Perform rejects with an error.
package pace

import "encoding/asn1"

// Mapping identifies which of the three PACE mapping functions negotiates
// the ephemeral domain parameters.
type Mapping int

const (
	MappingGeneric Mapping = iota
	MappingIntegrated
	MappingChipAuthentication
)

// Protocol identifies the Diffie-Hellman family and cipher/MAC bound to a
// PACE OID, decoded from EF.CardAccess's PACEInfo.
type Protocol struct {
	OID     asn1.ObjectIdentifier
	Mapping Mapping
	IsECDH  bool
	Cipher  string // "3DES", "AES-128", "AES-192", "AES-256"
}

// Standardized id-PACE-* object identifiers (ICAO 9303 Part 11, bsi-de
// arc 0.4.0.127.0.7.2.2.4).
var (
	oidDHGM    = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 1}
	oidECDHGM  = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 2}
	oidDHIM    = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 3}
	oidECDHIM  = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 4}
	oidECDHCAM = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 6}
)

// cipherSuffix maps the OID's final arc (the cipher/MAC selector ICAO
// assigns per mapping family) to a cipher name.
var cipherSuffix = map[int]string{
	1: "3DES", 2: "AES-128", 3: "AES-192", 4: "AES-256",
}

// ProtocolByOID resolves a PACEInfo protocol OID into its mapping, DH
// family, and cipher. Returns false if oid is not a recognized PACE OID.
func ProtocolByOID(oid asn1.ObjectIdentifier) (Protocol, bool) {
	if len(oid) == 0 {
		return Protocol{}, false
	}
	suffix := oid[len(oid)-1]
	cipher, ok := cipherSuffix[suffix]
	if !ok {
		return Protocol{}, false
	}

	base := asn1.ObjectIdentifier(oid[:len(oid)-1])
	switch {
	case base.Equal(oidDHGM):
		return Protocol{OID: oid, Mapping: MappingGeneric, IsECDH: false, Cipher: cipher}, true
	case base.Equal(oidECDHGM):
		return Protocol{OID: oid, Mapping: MappingGeneric, IsECDH: true, Cipher: cipher}, true
	case base.Equal(oidDHIM):
		return Protocol{OID: oid, Mapping: MappingIntegrated, IsECDH: false, Cipher: cipher}, true
	case base.Equal(oidECDHIM):
		return Protocol{OID: oid, Mapping: MappingIntegrated, IsECDH: true, Cipher: cipher}, true
	case base.Equal(oidECDHCAM):
		return Protocol{OID: oid, Mapping: MappingChipAuthentication, IsECDH: true, Cipher: cipher}, true
	default:
		return Protocol{}, false
	}
}
