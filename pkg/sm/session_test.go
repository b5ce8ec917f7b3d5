package sm

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/corverto/emrtd/pkg/iso7816"
	"github.com/moov-io/bertlv"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex literal %q: %v", s, err)
	}
	return b
}

// TestSessionWrap_ICAOAppendixD reproduces the worked BAC example from
// ICAO 9303 Part 11 Appendix D.4: the first command sent after session
// establishment is SELECT EF.COM, and the wrapped APDU's DO'8E' MAC must
// match the published value exactly.
func TestSessionWrap_ICAOAppendixD(t *testing.T) {
	ksenc := hexBytes(t, "979EC13B1CBFE9DCD01AB0FED307EAE5")
	ksmac := hexBytes(t, "F1CB1F1FB5ADF208806B89DC579DC1F8")
	ssc := hexBytes(t, "887022120C06C226")

	sess := NewSession(ksenc, ksmac, ssc, DES3, RetailMACAlgo)

	cla, err := iso7816.NewClass(0x00)
	if err != nil {
		t.Fatalf("NewClass: %v", err)
	}
	plain := iso7816.SelectEF(cla, [2]byte{0x01, 0x1E})

	wrapped, err := sess.Wrap(plain)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	wantMAC := hexBytes(t, "BF8B92D635FF24F8")
	gotMAC := wrapped.Data[len(wrapped.Data)-8:]
	if !bytes.Equal(gotMAC, wantMAC) {
		t.Fatalf("DO'8E' MAC mismatch: got %X, want %X", gotMAC, wantMAC)
	}

	wantSSC := hexBytes(t, "887022120C06C227")
	if !bytes.Equal(sess.SSC(), wantSSC) {
		t.Fatalf("SSC after wrap = %X, want %X", sess.SSC(), wantSSC)
	}

	if wrapped.Class.Raw != 0x0C {
		t.Fatalf("wrapped CLA = %02X, want 0C", wrapped.Class.Raw)
	}
	if wrapped.Data[0] != 0x87 {
		t.Fatalf("wrapped data does not start with DO'87', got tag %02X", wrapped.Data[0])
	}
}

// TestSessionWrapUnwrap_Loopback checks that unwrapping a response built
// from a wrapped command's own encryption/MAC machinery recovers the
// original plaintext, given synchronized SSCs on both sides.
func TestSessionWrapUnwrap_Loopback(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cipher Cipher
		mac    MACAlgo
		keyLen int
	}{
		{"3DES-RetailMAC", DES3, RetailMACAlgo, 16},
		{"AES128-CMAC", AES128, CMACAlgo, 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ksenc := bytes.Repeat([]byte{0x11}, tc.keyLen)
			ksmac := bytes.Repeat([]byte{0x22}, tc.keyLen)

			sender := NewSession(ksenc, ksmac, nil, tc.cipher, tc.mac)
			receiver := NewSession(ksenc, ksmac, nil, tc.cipher, tc.mac)

			plaintext := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}
			sw := iso7816.NewStatusWord(0x90, 0x00)

			encResp, err := loopbackWrapResponse(sender, plaintext, sw)
			if err != nil {
				t.Fatalf("loopbackWrapResponse: %v", err)
			}

			got, gotSW, err := receiver.Unwrap(encResp)
			if err != nil {
				t.Fatalf("Unwrap: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round-trip plaintext = %X, want %X", got, plaintext)
			}
			if gotSW != sw {
				t.Fatalf("round-trip SW = %04X, want %04X", uint16(gotSW), uint16(sw))
			}
		})
	}
}

// loopbackWrapResponse encrypts plaintext and computes the MAC the way a
// card would when building its own response, so TestSessionWrapUnwrap_Loopback
// can exercise Session.Unwrap without a live card.
func loopbackWrapResponse(s *Session, plaintext []byte, sw iso7816.StatusWord) (*iso7816.ResponseAPDU, error) {
	s.incrementSSC()

	iv, err := sendSequenceIV(s.Cipher, s.KSenc, s.ssc)
	if err != nil {
		return nil, err
	}
	padded := PadISO7816(plaintext, s.Cipher.BlockSize())
	ct, err := cbcEncrypt(s.Cipher, s.KSenc, iv, padded)
	if err != nil {
		return nil, err
	}

	do87, err := bertlv.Encode([]bertlv.TLV{{Tag: "87", Value: append([]byte{0x01}, ct...)}})
	if err != nil {
		return nil, err
	}
	sw1, sw2 := byte(sw>>8), byte(sw)
	do99, err := bertlv.Encode([]bertlv.TLV{{Tag: "99", Value: []byte{sw1, sw2}}})
	if err != nil {
		return nil, err
	}

	macInput := make([]byte, 0, len(s.ssc)+len(do87)+len(do99))
	macInput = append(macInput, s.ssc...)
	macInput = append(macInput, do87...)
	macInput = append(macInput, do99...)

	mac, err := computeMAC(s.MAC, s.Cipher, s.KSmac, macInput)
	if err != nil {
		return nil, err
	}
	do8e, err := bertlv.Encode([]bertlv.TLV{{Tag: "8E", Value: mac[:8]}})
	if err != nil {
		return nil, err
	}

	data := append(append(do87, do99...), do8e...)

	return &iso7816.ResponseAPDU{Data: data, Status: sw}, nil
}
