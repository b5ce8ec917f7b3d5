package lds

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/moov-io/bertlv"
)

// OIDs this package recognizes inside a SecurityInfos SET (ICAO 9303 Part
// 11 §9.2). bsi-de id-PACE-* OIDs live in pkg/pace/oid.go; these are the
// remaining ones a chip advertises through DG14/EF.CardAccess.
//
// id-CA-DH/id-CA-ECDH carry a further cipher-suffix arc the same way
// id-PACE-* does (ICAO 9303 Part 11 §9.2.5), so oidCADH/oidCAECDH are
// matched as prefixes, not full OIDs. id-PK-DH/id-PK-ECDH name the key
// type only and carry no such suffix.
var (
	oidCADH                  = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 1}
	oidCAECDH                = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2}
	oidPKDH                  = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 1, 1}
	oidPKECDH                = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 1, 2}
	oidActiveAuthentication  = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 5}
	oidTerminalAuthentication = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 2}
)

// isChipAuthenticationOID reports whether oid is an id-CA-DH-* or
// id-CA-ECDH-* OID, i.e. the family prefix plus one trailing cipher arc.
func isChipAuthenticationOID(oid asn1.ObjectIdentifier) bool {
	if len(oid) == 0 {
		return false
	}
	base := asn1.ObjectIdentifier(oid[:len(oid)-1])
	return base.Equal(oidCADH) || base.Equal(oidCAECDH)
}

// ChipAuthenticationInfo advertises that Chip Authentication is available
// and which key (by id, if the chip has more than one) it applies to.
type ChipAuthenticationInfo struct {
	Protocol asn1.ObjectIdentifier
	Version  int
	KeyID    int `asn1:"optional"`
}

// ChipAuthenticationPublicKeyInfo carries the chip's static Diffie-Hellman
// public key, the counterpart Chip Authentication's ephemeral-static ECDH
// step authenticates against.
type ChipAuthenticationPublicKeyInfo struct {
	Protocol             asn1.ObjectIdentifier
	SubjectPublicKeyInfo publicKeyInfoASN1
	KeyID                int `asn1:"optional"`
}

// ActiveAuthenticationInfo advertises Active Authentication support and
// names the signature algorithm DG15's key must be used with.
type ActiveAuthenticationInfo struct {
	Protocol           asn1.ObjectIdentifier
	Version            int
	SignatureAlgorithm asn1.ObjectIdentifier
}

type publicKeyInfoASN1 struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// SecurityInfos is the decoded SET OF SecurityInfo this package knows how
// to interpret, sorted by recognized type; unrecognized SecurityInfo
// entries are dropped rather than causing the whole set to fail.
type SecurityInfos struct {
	ChipAuthentication       []ChipAuthenticationInfo
	ChipAuthenticationPublic []ChipAuthenticationPublicKeyInfo
	ActiveAuthentication     []ActiveAuthenticationInfo
	PACE                     []PACEInfo
}

// ParseSecurityInfos decodes a DER-encoded SecurityInfos SET, the ASN.1
// structure shared by DG14 and EF.CardAccess.
func ParseSecurityInfos(der []byte) (*SecurityInfos, error) {
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(der, &outer); err != nil {
		return nil, fmt.Errorf("lds: decode SecurityInfos SET: %w", err)
	}

	out := &SecurityInfos{}
	rest := outer.Bytes
	for len(rest) > 0 {
		var item asn1.RawValue
		r, err := asn1.Unmarshal(rest, &item)
		if err != nil {
			return nil, fmt.Errorf("lds: decode SecurityInfo element: %w", err)
		}
		rest = r

		oid, err := peekProtocolOID(item.FullBytes)
		if err != nil {
			continue
		}

		switch {
		case isChipAuthenticationOID(oid):
			var v ChipAuthenticationInfo
			if _, err := asn1.Unmarshal(item.FullBytes, &v); err == nil {
				out.ChipAuthentication = append(out.ChipAuthentication, v)
			}
		case oid.Equal(oidPKDH) || oid.Equal(oidPKECDH):
			var v ChipAuthenticationPublicKeyInfo
			if _, err := asn1.Unmarshal(item.FullBytes, &v); err == nil {
				out.ChipAuthenticationPublic = append(out.ChipAuthenticationPublic, v)
			}
		case oid.Equal(oidActiveAuthentication):
			var v ActiveAuthenticationInfo
			if _, err := asn1.Unmarshal(item.FullBytes, &v); err == nil {
				out.ActiveAuthentication = append(out.ActiveAuthentication, v)
			}
		default:
			if v, err := parsePACEInfo(item.FullBytes, oid); err == nil {
				out.PACE = append(out.PACE, v)
			}
		}
	}
	return out, nil
}

func peekProtocolOID(sequence []byte) (asn1.ObjectIdentifier, error) {
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(sequence, &seq); err != nil {
		return nil, err
	}
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(seq.Bytes, &oid); err != nil {
		return nil, err
	}
	return oid, nil
}

// PublicKey decodes the embedded SubjectPublicKeyInfo into a usable
// crypto.PublicKey, reusing crypto/x509's own parser rather than
// reimplementing SPKI decoding a second time.
func (p ChipAuthenticationPublicKeyInfo) PublicKey() (any, error) {
	der, err := asn1.Marshal(p.SubjectPublicKeyInfo)
	if err != nil {
		return nil, fmt.Errorf("lds: re-encode SubjectPublicKeyInfo: %w", err)
	}
	return x509.ParsePKIXPublicKey(der)
}

// DG14, tag '6E', wraps SecurityInfos DER directly with no further TLV
// nesting (ICAO 9303 Part 11 §9.2.2), so it is decoded straight from
// bertlv rather than through the struct-tag unmarshaler.

// DG14 is the parsed security-protocol advertisement data group.
type DG14 struct {
	Infos *SecurityInfos
}

// ParseDG14 decodes DG14's raw content: strip the outer LDS tag, then
// parse the ASN.1 SecurityInfos SET it wraps.
func ParseDG14(raw []byte) (*DG14, error) {
	packets, err := bertlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("lds: decode DG14: %w", err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("lds: DG14: empty TLV")
	}
	infos, err := ParseSecurityInfos(packets[0].Value)
	if err != nil {
		return nil, fmt.Errorf("lds: parse DG14: %w", err)
	}
	return &DG14{Infos: infos}, nil
}
