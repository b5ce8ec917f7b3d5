package passport

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	_ "crypto/sha1" //nolint:gosec // some legacy SODs still sign with SHA-1.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/corverto/emrtd/pkg/lds"
	"github.com/moov-io/bertlv"
)

// PassiveAuthMode selects how EF.SOD's CMS SignedData signature is
// verified: via the ecosystem CMS library, or by hand-parsing the same
// ContentInfo/SignerInfo ASN.1 structures per RFC 5652 and verifying the
// signature directly. Both reach the same verdict for a well-formed SOD;
// ModeManual exists for SODs whose digest algorithm or attribute set
// falls outside what the CMS library's Verify accepts.
type PassiveAuthMode int

const (
	ModeCMS PassiveAuthMode = iota
	ModeManual
)

// verifyPassiveAuth checks every present data group's hash against
// sod's LDSSecurityObject table, verifies the CMS signature under mode
// (rawSOD is EF.SOD's undecoded bytes, needed only by ModeManual), and
// (if masterList is non-nil) chains the document signer certificate to a
// CSCA in it. It never returns an error purely because verification
// failed — that is reported through the returned Status and errs.
func verifyPassiveAuth(sod *lds.SOD, rawSOD []byte, dgs map[lds.DataGroupId]*lds.DataGroup, masterList *lds.MasterList, mode PassiveAuthMode) (Status, *x509.Certificate, []error) {
	var errs []error

	for id, dg := range dgs {
		if err := sod.VerifyDataGroup(dg); err != nil {
			errs = append(errs, fmt.Errorf("DG%d: %w", id, err))
		}
	}

	var sigErr error
	switch mode {
	case ModeManual:
		sigErr = verifySignedDataManual(rawSOD)
	default:
		sigErr = sod.VerifySignature()
	}
	if sigErr != nil {
		errs = append(errs, sigErr)
	}

	signer := sod.SignerCertificate()
	if masterList != nil && signer != nil {
		if err := sod.VerifyAgainstMasterList(masterList); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return StatusFailed, signer, errs
	}
	return StatusSuccess, signer, nil
}

// The manual RFC 5652 path below decodes EF.SOD's ContentInfo/SignedData
// structure directly with encoding/asn1 and verifies the signature with
// crypto/x509's certificate public key, rather than delegating to
// github.com/fullsailor/pkcs7's Verify. It assumes exactly one
// SignerInfo with a signedAttrs set carrying messageDigest, the form
// every ICAO 9303 SOD in practice uses.

type manualContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type manualSignedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue `asn1:"set"`
	EncapContentInfo manualEncapContentInfo
	Certificates     asn1.RawValue      `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue      `asn1:"optional,tag:1"`
	SignerInfos      []manualSignerInfo `asn1:"set"`
}

type manualEncapContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type manualAlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type manualAttribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

type manualSignerInfo struct {
	Version            int
	IssuerAndSerial    asn1.RawValue
	DigestAlgorithm    manualAlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm manualAlgorithmIdentifier
	Signature          []byte
}

var (
	oidMessageDigest    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	digestOIDToHash     = map[string]crypto.Hash{
		"1.3.14.3.2.26":          crypto.SHA1,
		"2.16.840.1.101.3.4.2.1": crypto.SHA256,
		"2.16.840.1.101.3.4.2.2": crypto.SHA384,
		"2.16.840.1.101.3.4.2.3": crypto.SHA512,
	}
)

func verifySignedDataManual(rawSOD []byte) error {
	packets, err := bertlv.Decode(rawSOD)
	if err != nil {
		return fmt.Errorf("passport: manual CMS verify: decode EF.SOD TLV: %w", err)
	}
	if len(packets) == 0 {
		return fmt.Errorf("passport: manual CMS verify: empty EF.SOD")
	}

	var ci manualContentInfo
	if _, err := asn1.Unmarshal(packets[0].Value, &ci); err != nil {
		return fmt.Errorf("passport: manual CMS verify: parse ContentInfo: %w", err)
	}

	var sd manualSignedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return fmt.Errorf("passport: manual CMS verify: parse SignedData: %w", err)
	}
	if len(sd.SignerInfos) != 1 {
		return fmt.Errorf("passport: manual CMS verify: expected exactly one SignerInfo, got %d", len(sd.SignerInfos))
	}
	si := sd.SignerInfos[0]

	cert, err := extractSignerCertificate(sd.Certificates)
	if err != nil {
		return fmt.Errorf("passport: manual CMS verify: %w", err)
	}

	contentHash, ok := digestOIDToHash[si.DigestAlgorithm.Algorithm.String()]
	if !ok {
		return fmt.Errorf("passport: manual CMS verify: unsupported digest algorithm %s", si.DigestAlgorithm.Algorithm.String())
	}

	h := contentHash.New()
	h.Write(sd.EncapContentInfo.EContent.Bytes)
	eContentDigest := h.Sum(nil)

	signedInput := si.SignedAttrs.Bytes
	hashInput := sd.EncapContentInfo.EContent.Bytes
	if len(si.SignedAttrs.FullBytes) > 0 {
		attrs, err := parseAttributes(signedInput)
		if err != nil {
			return fmt.Errorf("passport: manual CMS verify: parse signedAttrs: %w", err)
		}
		msgDigest, ok := attrs[oidMessageDigest.String()]
		if !ok {
			return fmt.Errorf("passport: manual CMS verify: signedAttrs missing messageDigest")
		}
		if !bytes.Equal(msgDigest, eContentDigest) {
			return fmt.Errorf("passport: manual CMS verify: messageDigest does not match eContent hash")
		}

		// RFC 5652 §5.4: the signature covers the DER encoding of the
		// SET OF Attribute, not the [0] IMPLICIT encoding SignerInfo
		// carries it under — retag before hashing.
		retagged := append([]byte{}, si.SignedAttrs.FullBytes...)
		retagged[0] = 0x31
		hashInput = retagged
	}

	hh := contentHash.New()
	hh.Write(hashInput)
	digest := hh.Sum(nil)

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pub, contentHash, digest, si.Signature); err != nil {
			return fmt.Errorf("passport: manual CMS verify: RSA signature check failed: %w", err)
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, si.Signature) {
			return fmt.Errorf("passport: manual CMS verify: ECDSA signature check failed")
		}
	default:
		return fmt.Errorf("passport: manual CMS verify: unsupported signer key type %T", pub)
	}

	return nil
}

func parseAttributes(der []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	rest := der
	for len(rest) > 0 {
		var attr manualAttribute
		r, err := asn1.Unmarshal(rest, &attr)
		if err != nil {
			return nil, err
		}
		rest = r

		var value []byte
		if _, err := asn1.Unmarshal(attr.Values.Bytes, &value); err == nil {
			out[attr.Type.String()] = value
		}
	}
	return out, nil
}

func extractSignerCertificate(certs asn1.RawValue) (*x509.Certificate, error) {
	rest := certs.Bytes
	for len(rest) > 0 {
		var raw asn1.RawValue
		r, err := asn1.Unmarshal(rest, &raw)
		if err != nil {
			return nil, err
		}
		rest = r

		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			continue
		}
		return cert, nil
	}
	return nil, fmt.Errorf("no certificate found in SignedData")
}
