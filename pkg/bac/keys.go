// Package bac implements Basic Access Control (ICAO 9303 Part 11 §4.3):
// deriving the document basic access keys from the MRZ, mutually
// authenticating with the chip via GET CHALLENGE/EXTERNAL AUTHENTICATE,
// and deriving the initial secure-messaging session from the exchange.
package bac

import (
	"crypto/sha1" //nolint:gosec // ICAO 9303 Appendix D mandates SHA-1 for the BAC KDF.

	"github.com/corverto/emrtd/pkg/bits"
)

// kdfCounter selects which half of the SHA-1 digest the Appendix D key
// derivation function produces: 1 for the encryption key, 2 for the MAC
// key. BAC uses only these two; no other counter is defined here.
type kdfCounter uint32

const (
	kdfEnc kdfCounter = 1
	kdfMac kdfCounter = 2
)

// deriveKey implements the ICAO 9303 Appendix D.1 key derivation function:
// SHA-1(keySeed || counter), truncated to 16 bytes, with odd parity forced
// onto every byte so the result is usable as two-key triple DES key
// material.
func deriveKey(keySeed []byte, c kdfCounter) []byte {
	h := sha1.New() //nolint:gosec
	h.Write(keySeed)
	h.Write([]byte{0, 0, 0, byte(c)})
	digest := h.Sum(nil)

	key := make([]byte, 16)
	copy(key, digest[:16])
	for i := range key {
		key[i] = bits.OddParity(key[i])
	}
	return key
}

// DocumentKeys holds the static basic access keys derived from the MRZ,
// used only to bootstrap the BAC challenge/response; they never appear on
// the wire and are discarded once the session keys are derived.
type DocumentKeys struct {
	Kenc []byte
	Kmac []byte
}

// DeriveDocumentKeys computes Kenc/Kmac from the MRZ information string
// (document number + check digit, date of birth + check digit, date of
// expiry + check digit, concatenated exactly as printed in the MRZ's
// second line, per ICAO 9303 Part 11 §4.3.2).
func DeriveDocumentKeys(mrzInfo string) DocumentKeys {
	keySeed := sha1Prefix16(mrzInfo)
	return DocumentKeys{
		Kenc: deriveKey(keySeed, kdfEnc),
		Kmac: deriveKey(keySeed, kdfMac),
	}
}

func sha1Prefix16(s string) []byte {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(s))
	return h.Sum(nil)[:16]
}
