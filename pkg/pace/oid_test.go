package pace

import (
	"encoding/asn1"
	"testing"
)

func TestProtocolByOID(t *testing.T) {
	for _, tc := range []struct {
		name       string
		oid        asn1.ObjectIdentifier
		wantOK     bool
		wantMap    Mapping
		wantECDH   bool
		wantCipher string
	}{
		{"ECDH-GM-AES-128", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 2, 2}, true, MappingGeneric, true, "AES-128"},
		{"DH-GM-3DES", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 1, 1}, true, MappingGeneric, false, "3DES"},
		{"ECDH-IM-AES-256", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 4, 4}, true, MappingIntegrated, true, "AES-256"},
		{"ECDH-CAM-AES-192", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 6, 3}, true, MappingChipAuthentication, true, "AES-192"},
		{"unrelated OID", asn1.ObjectIdentifier{1, 2, 3}, false, 0, false, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ProtocolByOID(tc.oid)
			if ok != tc.wantOK {
				t.Fatalf("ProtocolByOID(%v) ok = %v, want %v", tc.oid, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.Mapping != tc.wantMap || got.IsECDH != tc.wantECDH || got.Cipher != tc.wantCipher {
				t.Fatalf("ProtocolByOID(%v) = %+v, want mapping=%d ecdh=%v cipher=%s", tc.oid, got, tc.wantMap, tc.wantECDH, tc.wantCipher)
			}
		})
	}
}
