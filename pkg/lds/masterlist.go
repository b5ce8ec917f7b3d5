package lds

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"

	"github.com/fullsailor/pkcs7"
)

type cscaMasterListASN1 struct {
	Version  int
	CertList []asn1.RawValue `asn1:"set"`
}

// MasterList is a parsed ICAO CSCA master list: the set of Country
// Signing Certificate Authority certificates a receiving state trusts to
// have issued document signer certificates, indexed for the lookup
// VerifyAgainstMasterList needs. Entries are keyed by Subject DN +
// SubjectKeyIdentifier rather than Subject DN alone, since a real CSCA
// population can contain distinct certificates (a renewal, a rollover)
// sharing the same Subject DN.
type MasterList struct {
	Certificates []*x509.Certificate
	bySubject    map[string][]*x509.Certificate
	byKey        map[string]*x509.Certificate
}

// ParseMasterList decodes a CMS SignedData structure wrapping a
// CscaMasterList (ICAO 9303 Part 12 §4): a SET OF Certificate, itself
// signed by the list issuer.
func ParseMasterList(der []byte) (*MasterList, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("lds: parse master list CMS SignedData: %w", err)
	}

	var list cscaMasterListASN1
	if _, err := asn1.Unmarshal(p7.Content, &list); err != nil {
		return nil, fmt.Errorf("lds: parse CscaMasterList: %w", err)
	}

	ml := &MasterList{
		bySubject: make(map[string][]*x509.Certificate),
		byKey:     make(map[string]*x509.Certificate),
	}
	for _, raw := range list.CertList {
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			continue
		}
		ml.Certificates = append(ml.Certificates, cert)
		subject := cert.Subject.String()
		ml.bySubject[subject] = append(ml.bySubject[subject], cert)
		ml.byKey[masterListKey(subject, cert.SubjectKeyId)] = cert
	}
	return ml, nil
}

func masterListKey(subject string, keyID []byte) string {
	return subject + "|" + hex.EncodeToString(keyID)
}

// FindByIssuer returns the CSCA certificates matching a document signer
// certificate's issuer distinguished name, narrowed to the one whose
// SubjectKeyIdentifier matches authorityKeyID when the signer carries
// one. Falling back to every Subject DN match is only needed for the
// rarer cert that omits Authority Key Identifier.
func (m *MasterList) FindByIssuer(subject string, authorityKeyID []byte) []*x509.Certificate {
	if len(authorityKeyID) > 0 {
		if cert, ok := m.byKey[masterListKey(subject, authorityKeyID)]; ok {
			return []*x509.Certificate{cert}
		}
		return nil
	}
	return m.bySubject[subject]
}

// VerifyAgainstMasterList checks the document signer certificate EF.SOD
// carries against the master list: the signer's issuer must be a CSCA in
// the list, and the signer certificate must chain to it.
func (s *SOD) VerifyAgainstMasterList(ml *MasterList) error {
	signer := s.SignerCertificate()
	if signer == nil {
		return fmt.Errorf("lds: EF.SOD carries no signer certificate")
	}

	pool := x509.NewCertPool()
	cscas := ml.FindByIssuer(signer.Issuer.String(), signer.AuthorityKeyId)
	if len(cscas) == 0 {
		return fmt.Errorf("lds: no CSCA in master list matches issuer %q", signer.Issuer.String())
	}
	for _, csca := range cscas {
		pool.AddCert(csca)
	}

	_, err := signer.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("lds: document signer certificate does not chain to master list: %w", err)
	}
	return nil
}
