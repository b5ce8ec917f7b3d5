package passport

import (
	"context"
	"encoding/asn1"
	"errors"
	"testing"

	"github.com/corverto/emrtd/pkg/bac"
	"github.com/corverto/emrtd/pkg/iso7816"
	"github.com/corverto/emrtd/pkg/lds"
	"github.com/corverto/emrtd/pkg/tagreader"
	"github.com/google/go-cmp/cmp"
)

func TestEffectiveDataGroupIds_FromCOM(t *testing.T) {
	com := &lds.COM{DataGroupTags: []byte{0x61, 0x75, 0x63, 0x76, 0x6B}} // DG1, DG2, DG3, DG4, DG11

	s := &session{opts: Options{SkipSecureElements: true}}
	ids, explicit := s.effectiveDataGroupIds(com)

	want := []lds.DataGroupId{lds.DG1, lds.DG2, lds.DG11}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("effectiveDataGroupIds() mismatch (-want +got):\n%s", diff)
	}
	if len(explicit) != 0 {
		t.Fatalf("auto-discovered ids must not be marked explicit, got %v", explicit)
	}
}

func TestEffectiveDataGroupIds_ExplicitList(t *testing.T) {
	s := &session{opts: Options{
		DataGroups:         []lds.DataGroupId{lds.DG1, lds.DG3},
		SkipSecureElements: true,
	}}

	ids, explicit := s.effectiveDataGroupIds(&lds.COM{})

	want := []lds.DataGroupId{lds.DG1, lds.DG3}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("effectiveDataGroupIds() mismatch (-want +got):\n%s", diff)
	}
	for _, id := range want {
		if !explicit[id] {
			t.Errorf("DG%d should be marked explicit", id)
		}
	}
}

func TestIndexOfDG(t *testing.T) {
	ids := []lds.DataGroupId{lds.DG1, lds.DG14, lds.DG11}
	if got := indexOfDG(ids, lds.DG14); got != 1 {
		t.Errorf("indexOfDG(DG14) = %d, want 1", got)
	}
	if got := indexOfDG(ids, lds.DG2); got != -1 {
		t.Errorf("indexOfDG(DG2) = %d, want -1", got)
	}
}

func TestCipherNameForProtocol(t *testing.T) {
	tests := []struct {
		name string
		oid  asn1.ObjectIdentifier
		want string
	}{
		{"3DES (no suffix)", asn1.ObjectIdentifier{}, "3DES"},
		{"id-CA-ECDH-3DES-CBC-CBC", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2, 1}, "3DES"},
		{"id-CA-ECDH-AES-CBC-CMAC-128", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2, 2}, "AES-128"},
		{"id-CA-ECDH-AES-CBC-CMAC-192", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2, 3}, "AES-192"},
		{"id-CA-ECDH-AES-CBC-CMAC-256", asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2, 4}, "AES-256"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cipherNameForProtocol(tc.oid); got != tc.want {
				t.Errorf("cipherNameForProtocol(%v) = %q, want %q", tc.oid, got, tc.want)
			}
		})
	}
}

func TestMatchChipAuthenticationInfo_ByKeyID(t *testing.T) {
	infos := []lds.ChipAuthenticationInfo{
		{Protocol: asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2, 2}, KeyID: 1},
		{Protocol: asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2, 3}, KeyID: 2},
	}

	oid, cipher := matchChipAuthenticationInfo(infos, 2)
	if !oid.Equal(infos[1].Protocol) {
		t.Errorf("matched protocol = %v, want %v", oid, infos[1].Protocol)
	}
	if cipher != "AES-192" {
		t.Errorf("matched cipher = %q, want AES-192", cipher)
	}
}

func TestMatchChipAuthenticationInfo_FallsBackToFirst(t *testing.T) {
	infos := []lds.ChipAuthenticationInfo{
		{Protocol: asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 1, 1}, KeyID: 7},
	}

	oid, cipher := matchChipAuthenticationInfo(infos, 0)
	if !oid.Equal(infos[0].Protocol) {
		t.Errorf("matched protocol = %v, want %v", oid, infos[0].Protocol)
	}
	if cipher != "3DES" {
		t.Errorf("matched cipher = %q, want 3DES", cipher)
	}
}

func TestMatchChipAuthenticationInfo_NoEntries(t *testing.T) {
	oid, cipher := matchChipAuthenticationInfo(nil, 0)
	if oid != nil {
		t.Errorf("oid = %v, want nil", oid)
	}
	if cipher != "3DES" {
		t.Errorf("cipher = %q, want 3DES", cipher)
	}
}

func TestClassifyConnectionError_StatusError(t *testing.T) {
	sw := iso7816.NewStatusWord(0x69, 0x82)
	err := classifyConnectionError(&tagreader.StatusError{Op: "read binary", SW: sw})

	var docErr *DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("classifyConnectionError did not return a *DocumentError")
	}
	if docErr.Kind != KindResponseError {
		t.Errorf("Kind = %v, want KindResponseError", docErr.Kind)
	}
	if docErr.SW1 != 0x69 || docErr.SW2 != 0x82 {
		t.Errorf("SW = (0x%02X, 0x%02X), want (0x69, 0x82)", docErr.SW1, docErr.SW2)
	}
}

func TestClassifyConnectionError_PassesThroughDocumentError(t *testing.T) {
	original := newDocumentError(KindInvalidMRZKey, errors.New("boom"))
	if got := classifyConnectionError(original); got != original {
		t.Errorf("classifyConnectionError did not pass the existing *DocumentError through unchanged")
	}
}

func TestClassifyConnectionError_PlainError(t *testing.T) {
	got := classifyConnectionError(errors.New("transport closed"))
	if got.Kind != KindConnectionError {
		t.Errorf("Kind = %v, want KindConnectionError", got.Kind)
	}
}

// TestRunBAC_ClassifiesByStep exercises runBAC against a fake transport
// that fails at a chosen step, confirming the verify_response step (and
// only that step) is classified as an invalid MRZ key rather than a
// connection problem.
func TestRunBAC_ClassifiesByStep(t *testing.T) {
	tests := []struct {
		name     string
		fake     fakeBACTransport
		wantKind ErrorKind
	}{
		{"get_challenge fails", fakeBACTransport{failChallenge: true}, KindConnectionError},
		{"verify_response fails", fakeBACTransport{badExternalAuth: true}, KindInvalidMRZKey},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &session{ctx: context.Background(), reader: nil, mrzInfo: "L898902C<369080619406236"}
			_, docErr := runBACAgainst(s, tc.fake)
			if docErr == nil {
				t.Fatalf("runBAC() returned nil error, want classified failure")
			}
			if docErr.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", docErr.Kind, tc.wantKind)
			}
		})
	}
}

type fakeBACTransport struct {
	failChallenge   bool
	badExternalAuth bool
}

func (f fakeBACTransport) GetChallenge(ctx context.Context, n int) ([]byte, error) {
	if f.failChallenge {
		return nil, errors.New("card removed")
	}
	return make([]byte, n), nil
}

func (f fakeBACTransport) ExternalAuthenticate(ctx context.Context, data []byte, ne int) ([]byte, error) {
	return make([]byte, ne), nil // zeroed response: MAC check fails, forcing verify_response.
}

// runBACAgainst reruns runBAC's classification logic against a
// bac.Transport fake directly, since session.runBAC itself is hardwired
// to *tagreader.Reader rather than the interface bac.Perform actually
// needs.
func runBACAgainst(s *session, t bac.Transport) (any, *DocumentError) {
	res, err := bac.Perform(s.ctx, t, s.mrzInfo)
	if err != nil {
		var bacErr *bac.Error
		if errors.As(err, &bacErr) && bacErr.Step == "verify_response" {
			return nil, newDocumentError(KindInvalidMRZKey, err)
		}
		return nil, newDocumentError(KindConnectionError, err)
	}
	return res, nil
}
