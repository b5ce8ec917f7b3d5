package lds

import (
	"crypto"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

func mustEncode(t *testing.T, tlvs []bertlv.TLV) []byte {
	t.Helper()
	b, err := bertlv.Encode(tlvs)
	if err != nil {
		t.Fatalf("bertlv.Encode: %v", err)
	}
	return b
}

func TestParseDG1(t *testing.T) {
	mrz := "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<L898902C<3UTO6908061F9406236ZE184226B<<<<<10"
	raw := mustEncode(t, []bertlv.TLV{
		{Tag: "61", TLVs: []bertlv.TLV{
			{Tag: "5F1F", Value: []byte(mrz)},
		}},
	})

	dg1, err := ParseDG1(raw)
	if err != nil {
		t.Fatalf("ParseDG1: %v", err)
	}
	if dg1.MRZ != mrz {
		t.Errorf("MRZ = %q, want %q", dg1.MRZ, mrz)
	}

	lines := dg1.Lines()
	if len(lines) != 2 || len(lines[0]) != 44 || len(lines[1]) != 44 {
		t.Errorf("Lines() = %v, want two 44-byte TD3 lines", lines)
	}
}

func TestParseCOM(t *testing.T) {
	raw := mustEncode(t, []bertlv.TLV{
		{Tag: "60", TLVs: []bertlv.TLV{
			{Tag: "5F01", Value: []byte("0107")},
			{Tag: "5F36", Value: []byte("040000")},
			{Tag: "5C", Value: []byte{0x61, 0x75, 0x6B}},
		}},
	})

	com, err := ParseCOM(raw)
	if err != nil {
		t.Fatalf("ParseCOM: %v", err)
	}

	want := &COM{
		LDSVersion:     "0107",
		UnicodeVersion: "040000",
		DataGroupTags:  []byte{0x61, 0x75, 0x6B},
	}
	if diff := cmp.Diff(want, com); diff != "" {
		t.Errorf("ParseCOM() mismatch:\n%s", diff)
	}

	ids := com.DataGroupIds()
	wantIDs := map[DataGroupId]bool{DG1: true, DG2: true, DG11: true}
	if len(ids) != len(wantIDs) {
		t.Fatalf("DataGroupIds() = %v, want 3 entries matching %v", ids, wantIDs)
	}
	for _, id := range ids {
		if !wantIDs[id] {
			t.Errorf("DataGroupIds() returned unexpected id %v", id)
		}
	}
}

func TestParseDG11(t *testing.T) {
	raw := mustEncode(t, []bertlv.TLV{
		{Tag: "6B", TLVs: []bertlv.TLV{
			{Tag: "5C", Value: []byte{0x5F, 0x0E, 0x5F, 0x11}},
			{Tag: "5F0E", Value: []byte("ERIKSSON<<ANNA<MARIA")},
			{Tag: "5F11", Value: []byte("STOCKHOLM")},
		}},
	})

	dg11, err := ParseDG11(raw)
	if err != nil {
		t.Fatalf("ParseDG11: %v", err)
	}
	if dg11.FullName != "ERIKSSON<<ANNA<MARIA" {
		t.Errorf("FullName = %q", dg11.FullName)
	}
	if dg11.PlaceOfBirth != "STOCKHOLM" {
		t.Errorf("PlaceOfBirth = %q", dg11.PlaceOfBirth)
	}
}

func TestDataGroupHashRoundTrip(t *testing.T) {
	raw := mustEncode(t, []bertlv.TLV{
		{Tag: "61", TLVs: []bertlv.TLV{
			{Tag: "5F1F", Value: []byte("some mrz content")},
		}},
	})

	dg, err := NewDataGroup(DG1, raw)
	if err != nil {
		t.Fatalf("NewDataGroup: %v", err)
	}
	if !cmp.Equal(dg.Raw(), raw) {
		t.Errorf("Raw() does not round-trip the input bytes")
	}

	h1 := dg.Hash(crypto.SHA256)
	h2 := dg.Hash(crypto.SHA256)
	if !cmp.Equal(h1, h2) {
		t.Errorf("Hash() is not deterministic across calls")
	}
}

func TestNewDataGroup_WrongTag(t *testing.T) {
	raw := mustEncode(t, []bertlv.TLV{
		{Tag: "75", TLVs: []bertlv.TLV{{Tag: "5F1F", Value: []byte("x")}}},
	})
	if _, err := NewDataGroup(DG1, raw); err == nil {
		t.Fatal("expected an error for a DG2-tagged EF presented as DG1")
	}
}
