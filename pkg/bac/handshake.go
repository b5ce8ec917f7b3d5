package bac

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/corverto/emrtd/pkg/sm"
)

// rndLen is the length, in bytes, of the random challenges (RND.IC and
// RND.IFD) exchanged during Basic Access Control (ICAO 9303 Part 11
// §4.3.3); the K.IFD/K.IC key material is 16 bytes.
const rndLen = 8

// Result carries everything a successful BAC handshake produces.
type Result struct {
	Session *sm.Session
	RNDIC   []byte
	RNDIFD  []byte
}

// Transport is the minimal surface Perform needs from the tag reader:
// GET CHALLENGE and EXTERNAL AUTHENTICATE.
type Transport interface {
	GetChallenge(ctx context.Context, n int) ([]byte, error)
	ExternalAuthenticate(ctx context.Context, data []byte, ne int) ([]byte, error)
}

// Perform runs the full BAC mutual authentication handshake against t using
// the keys derived from mrzInfo, returning a fresh secure-messaging
// session. On any failure the chip may have been left in a partially
// authenticated state; callers must treat the document as unauthenticated
// and may retry from GET CHALLENGE.
func Perform(ctx context.Context, t Transport, mrzInfo string) (*Result, error) {
	keys := DeriveDocumentKeys(mrzInfo)

	rndIC, err := t.GetChallenge(ctx, rndLen)
	if err != nil {
		return nil, &Error{Step: "get_challenge", Err: err}
	}
	if len(rndIC) != rndLen {
		return nil, &Error{Step: "get_challenge", Err: fmt.Errorf("chip returned %d bytes, want %d", len(rndIC), rndLen)}
	}

	rndIFD := make([]byte, rndLen)
	if _, err := rand.Read(rndIFD); err != nil {
		return nil, &Error{Step: "rnd_ifd", Err: err}
	}

	kIFD := make([]byte, 16)
	if _, err := rand.Read(kIFD); err != nil {
		return nil, &Error{Step: "k_ifd", Err: err}
	}

	cmdData, err := buildAuthCommandData(keys, rndIFD, rndIC, kIFD)
	if err != nil {
		return nil, &Error{Step: "build_command", Err: err}
	}

	respData, err := t.ExternalAuthenticate(ctx, cmdData, 40)
	if err != nil {
		return nil, &Error{Step: "external_authenticate", Err: err}
	}

	kIC, err := parseAuthResponseData(keys, respData, rndIC, rndIFD)
	if err != nil {
		return nil, &Error{Step: "verify_response", Err: err}
	}

	ksEnc, ksMac := deriveSessionKeys(kIFD, kIC)
	ssc := initialSSC(rndIC, rndIFD)

	return &Result{
		Session: sm.NewSession(ksEnc, ksMac, ssc, sm.DES3, sm.RetailMACAlgo),
		RNDIC:   rndIC,
		RNDIFD:  rndIFD,
	}, nil
}

// buildAuthCommandData builds the EXTERNAL AUTHENTICATE command data:
// E_Kenc(RND.IFD || RND.IC || K.IFD) || MAC_Kmac(ciphertext).
func buildAuthCommandData(keys DocumentKeys, rndIFD, rndIC, kIFD []byte) ([]byte, error) {
	plaintext := make([]byte, 0, rndLen*2+16)
	plaintext = append(plaintext, rndIFD...)
	plaintext = append(plaintext, rndIC...)
	plaintext = append(plaintext, kIFD...)

	ct, err := sm.EncryptCBC3DES(keys.Kenc, plaintext)
	if err != nil {
		return nil, err
	}

	mac, err := sm.RetailMAC(keys.Kmac, sm.PadISO7816(ct, 8))
	if err != nil {
		return nil, err
	}

	return append(ct, mac...), nil
}

// parseAuthResponseData decrypts and verifies the EXTERNAL AUTHENTICATE
// response, returning the chip's half of the session key material (K.IC)
// once RND.IFD/RND.IC have been confirmed to match what was sent.
func parseAuthResponseData(keys DocumentKeys, resp, rndIC, rndIFD []byte) ([]byte, error) {
	if len(resp) != 40 {
		return nil, fmt.Errorf("response length %d, want 40", len(resp))
	}

	ct, mac := resp[:32], resp[32:]

	expectedMAC, err := sm.RetailMAC(keys.Kmac, sm.PadISO7816(ct, 8))
	if err != nil {
		return nil, err
	}
	if !hmacEqual(expectedMAC, mac) {
		return nil, fmt.Errorf("response MAC mismatch")
	}

	plain, err := sm.DecryptCBC3DES(keys.Kenc, ct)
	if err != nil {
		return nil, err
	}

	respRndIC, respRndIFD, kIC := plain[:rndLen], plain[rndLen:2*rndLen], plain[2*rndLen:]

	if !hmacEqual(respRndIC, rndIC) {
		return nil, fmt.Errorf("chip echoed unexpected RND.IC")
	}
	if !hmacEqual(respRndIFD, rndIFD) {
		return nil, fmt.Errorf("chip echoed unexpected RND.IFD")
	}

	return kIC, nil
}

// deriveSessionKeys combines the terminal and chip key contributions
// (K.IFD XOR K.IC) and runs the Appendix D KDF to produce the session
// encryption and MAC keys.
func deriveSessionKeys(kIFD, kIC []byte) (ksEnc, ksMac []byte) {
	seed := make([]byte, 16)
	for i := range seed {
		seed[i] = kIFD[i] ^ kIC[i]
	}
	return deriveKey(seed, kdfEnc), deriveKey(seed, kdfMac)
}

// initialSSC sets the send sequence counter to the last 4 bytes of RND.IC
// concatenated with the last 4 bytes of RND.IFD, per ICAO 9303 Part 11
// §4.3.4.
func initialSSC(rndIC, rndIFD []byte) []byte {
	ssc := make([]byte, 8)
	copy(ssc[:4], rndIC[4:8])
	copy(ssc[4:], rndIFD[4:8])
	return ssc
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
