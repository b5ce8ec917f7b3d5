package lds

import (
	"crypto"
	_ "crypto/sha1" // register crypto.SHA1 for LDSSecurityObject.Hash
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/fullsailor/pkcs7"
	"github.com/moov-io/bertlv"
)

// hashOIDs maps the OIDs LDSSecurityObject.hashAlgorithm carries to
// crypto.Hash, the subset ICAO 9303 actually permits.
var hashOIDs = map[string]crypto.Hash{
	"1.3.14.3.2.26":          crypto.SHA1,
	"2.16.840.1.101.3.4.2.1": crypto.SHA256,
	"2.16.840.1.101.3.4.2.2": crypto.SHA384,
	"2.16.840.1.101.3.4.2.3": crypto.SHA512,
}

type algorithmIdentifierASN1 struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type dataGroupHashASN1 struct {
	DataGroupNumber int
	HashValue       []byte
}

type ldsSecurityObjectASN1 struct {
	Version             int
	HashAlgorithm       algorithmIdentifierASN1
	DataGroupHashValues []dataGroupHashASN1
}

// DataGroupHash is one entry of the hash table EF.SOD signs: a data group
// number and the digest it should match once computed over that data
// group's raw bytes.
type DataGroupHash struct {
	DataGroupNumber DataGroupId
	HashValue       []byte
}

// LDSSecurityObject is the decoded ICAO 9303 LDSSecurityObject
// (ICAO 9303 Part 11 §4.7.1): the per-data-group hash table that Passive
// Authentication checks every read data group against.
type LDSSecurityObject struct {
	HashAlgorithm crypto.Hash
	DataGroups    []DataGroupHash
}

// SOD is the parsed EF.SOD: the signed LDSSecurityObject plus the
// document signer certificate chain CMS carries alongside it.
type SOD struct {
	LDSSecurityObject LDSSecurityObject
	pkcs7             *pkcs7.PKCS7
}

// ParseSOD decodes EF.SOD's raw content. EF.SOD, tag '77', wraps a CMS
// ContentInfo/SignedData structure whose encapsulated content is the DER
// encoding of LDSSecurityObject.
func ParseSOD(raw []byte) (*SOD, error) {
	packets, err := bertlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("lds: decode EF.SOD: %w", err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("lds: EF.SOD: empty TLV")
	}

	p7, err := pkcs7.Parse(packets[0].Value)
	if err != nil {
		return nil, fmt.Errorf("lds: parse CMS SignedData: %w", err)
	}

	var lso ldsSecurityObjectASN1
	if _, err := asn1.Unmarshal(p7.Content, &lso); err != nil {
		return nil, fmt.Errorf("lds: parse LDSSecurityObject: %w", err)
	}

	algo, ok := hashOIDs[lso.HashAlgorithm.Algorithm.String()]
	if !ok {
		return nil, fmt.Errorf("lds: unsupported hash algorithm OID %s", lso.HashAlgorithm.Algorithm.String())
	}

	dgHashes := make([]DataGroupHash, 0, len(lso.DataGroupHashValues))
	for _, h := range lso.DataGroupHashValues {
		dgHashes = append(dgHashes, DataGroupHash{
			DataGroupNumber: DataGroupId(h.DataGroupNumber),
			HashValue:       h.HashValue,
		})
	}

	return &SOD{
		LDSSecurityObject: LDSSecurityObject{
			HashAlgorithm: algo,
			DataGroups:    dgHashes,
		},
		pkcs7: p7,
	}, nil
}

// VerifySignature checks the CMS SignedData signature over the
// LDSSecurityObject against the embedded document signer certificate's
// chain, without checking that chain against any trust root — callers
// needing full Passive Authentication must separately validate the
// signer certificate against a master list (see VerifyAgainstMasterList).
func (s *SOD) VerifySignature() error {
	if err := s.pkcs7.Verify(); err != nil {
		return fmt.Errorf("lds: EF.SOD signature verification failed: %w", err)
	}
	return nil
}

// SignerCertificate returns the document signer certificate CMS carried
// alongside the signature.
func (s *SOD) SignerCertificate() *x509.Certificate {
	return s.pkcs7.GetOnlySigner()
}

// VerifyDataGroup checks dg's hash against the value EF.SOD's
// LDSSecurityObject records for its data group number.
func (s *SOD) VerifyDataGroup(dg *DataGroup) error {
	for _, h := range s.LDSSecurityObject.DataGroups {
		if h.DataGroupNumber != dg.ID {
			continue
		}
		got := dg.Hash(s.LDSSecurityObject.HashAlgorithm)
		if !bytesEqualConstTime(got, h.HashValue) {
			return fmt.Errorf("lds: DG%d hash mismatch", dg.ID)
		}
		return nil
	}
	return fmt.Errorf("lds: DG%d not present in LDSSecurityObject", dg.ID)
}

func bytesEqualConstTime(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
