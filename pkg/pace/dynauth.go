package pace

import (
	"encoding/asn1"
	"fmt"

	"github.com/moov-io/bertlv"
)

// buildSetATData builds the MSE:SET AT command data for PACE: the
// cryptographic mechanism reference (DO'80', the protocol OID, DER
// encoded) and the password reference (DO'83', 0x01 for the MRZ-derived
// key, matching the common case this package's Perform caller uses).
func buildSetATData(oid asn1.ObjectIdentifier) []byte {
	oidBytes, _ := asn1.Marshal(oid)
	// Marshal produces a full OBJECT IDENTIFIER TLV; DO'80' wants only
	// the raw encoded value, so strip its own tag/length header.
	oidValue := stripASN1Header(oidBytes)

	enc, _ := bertlv.Encode([]bertlv.TLV{
		{Tag: "80", Value: oidValue},
		{Tag: "83", Value: []byte{0x01}},
	})
	return enc
}

func stripASN1Header(der []byte) []byte {
	if len(der) < 2 {
		return der
	}
	length := int(der[1])
	if length < 0x80 {
		return der[2:]
	}
	numBytes := length & 0x7F
	return der[2+numBytes:]
}

// encodeDynAuthData wraps a single data object under the Dynamic
// Authentication Data template (tag 0x7C) GENERAL AUTHENTICATE uses for
// every PACE round. A nil value still emits an empty template (used to
// request the chip's nonce in step 1).
func encodeDynAuthData(tag byte, value []byte) []byte {
	tagHex := fmt.Sprintf("%02X", tag)
	var inner []bertlv.TLV
	if value != nil {
		inner = []bertlv.TLV{{Tag: tagHex, Value: value}}
	}
	enc, _ := bertlv.Encode([]bertlv.TLV{{Tag: "7C", TLVs: inner}})
	return enc
}

// parseDynAuthData unwraps the Dynamic Authentication Data template and
// returns the value of the single inner data object tagged wantTag.
func parseDynAuthData(data []byte, wantTag byte) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("pace: dynamic auth data: %w", err)
	}
	if len(packets) == 0 || packets[0].Tag != "7C" {
		return nil, fmt.Errorf("pace: response missing DO'7C' template")
	}

	tagHex := fmt.Sprintf("%02X", wantTag)
	for _, inner := range packets[0].TLVs {
		if inner.Tag == tagHex {
			return inner.Value, nil
		}
	}
	return nil, fmt.Errorf("pace: DO'7C' missing inner tag %s", tagHex)
}
