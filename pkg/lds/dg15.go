package lds

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/moov-io/bertlv"
)

// DG15 is the parsed Active Authentication public-key data group.
type DG15 struct {
	// SubjectPublicKeyInfoDER is the raw ASN.1 SubjectPublicKeyInfo the
	// chip stores, ready for crypto/x509.ParsePKIXPublicKey.
	SubjectPublicKeyInfoDER []byte
}

// ParseDG15 decodes DG15's raw content. DG15, tag '6F', wraps the
// SubjectPublicKeyInfo DER directly with no further TLV nesting.
func ParseDG15(raw []byte) (*DG15, error) {
	packets, err := bertlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("lds: decode DG15: %w", err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("lds: DG15: empty TLV")
	}
	return &DG15{SubjectPublicKeyInfoDER: packets[0].Value}, nil
}

// PublicKey decodes the stored SubjectPublicKeyInfo into the key type
// Active Authentication's INTERNAL AUTHENTICATE verification dispatches
// on (*rsa.PublicKey or *ecdsa.PublicKey).
func (d *DG15) PublicKey() (crypto.PublicKey, error) {
	return x509.ParsePKIXPublicKey(d.SubjectPublicKeyInfoDER)
}
