// Package aa implements Active Authentication (ICAO 9303 Part 11 §4.5.2):
// proving the chip holds the private key matching DG15's public key by
// having it sign a fresh random challenge, defending against a cloned chip
// that copied the data groups but not the private key.
package aa

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // ISO/IEC 9796-2 scheme 1 as used by Active Authentication mandates SHA-1.
	"crypto/x509"
	"errors"
	"fmt"
)

// ChallengeLen is the length, in bytes, of the random challenge sent to
// INTERNAL AUTHENTICATE (ICAO 9303 Part 11 §4.5.2: exactly 8 bytes).
const ChallengeLen = 8

// ErrSignatureInvalid is returned when the chip's response does not
// verify against DG15's public key; the document must be treated as
// unauthenticated (possibly a cloned chip).
var ErrSignatureInvalid = errors.New("aa: signature verification failed")

var errOutOfRange = errors.New("aa: signature out of range")

// Transport is the subset of tagreader.Reader Active Authentication
// needs.
type Transport interface {
	InternalAuthenticate(ctx context.Context, challenge []byte, ne int) ([]byte, error)
}

// Perform sends a fresh random challenge to INTERNAL AUTHENTICATE and
// verifies the signed response against pub. Returns nil on success, or an
// error wrapping ErrSignatureInvalid (or a lower-level parse failure) on
// any verification failure.
func Perform(ctx context.Context, t Transport, pub crypto.PublicKey) error {
	challenge := make([]byte, ChallengeLen)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("aa: generate challenge: %w", err)
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		resp, err := t.InternalAuthenticate(ctx, challenge, key.Size())
		if err != nil {
			return fmt.Errorf("aa: internal authenticate: %w", err)
		}
		return verifyRSA9796(key, challenge, resp)
	case *ecdsa.PublicKey:
		resp, err := t.InternalAuthenticate(ctx, challenge, 0x100)
		if err != nil {
			return fmt.Errorf("aa: internal authenticate: %w", err)
		}
		return verifyECDSA(key, challenge, resp)
	default:
		return fmt.Errorf("aa: unsupported public key type %T", pub)
	}
}

// verifyRSA9796 checks resp against ISO/IEC 9796-2 scheme 1 message
// recovery: the chip's signature recovers the challenge (possibly
// truncated and hashed) rather than carrying it alongside a detached
// signature, so verification is message recovery followed by a SHA-1
// comparison against the original challenge. The recovered block is
// 0x6A || M1 || SHA-1(M1 || challenge) || 0xBC.
func verifyRSA9796(pub *rsa.PublicKey, challenge, sig []byte) error {
	recovered, err := rsaRecoverInt(pub, sig)
	if err != nil {
		return fmt.Errorf("aa: recover message: %w", err)
	}

	n := len(recovered)
	if n < sha1.Size+2 || recovered[0] != 0x6A || recovered[n-1] != 0xBC {
		return ErrSignatureInvalid
	}
	recoveredHash := recovered[n-1-sha1.Size : n-1]

	h := sha1.New() //nolint:gosec
	h.Write(recovered[1 : n-1-sha1.Size])
	h.Write(challenge)
	want := h.Sum(nil)

	if !bytesEqual(recoveredHash, want) {
		return ErrSignatureInvalid
	}
	return nil
}

func verifyECDSA(pub *ecdsa.PublicKey, challenge, sig []byte) error {
	h := sha1.New() //nolint:gosec
	h.Write(challenge)
	digest := h.Sum(nil)

	if !ecdsa.VerifyASN1(pub, digest, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

// ParseDG15PublicKey decodes DG15's SubjectPublicKeyInfo payload into the
// crypto.PublicKey Perform needs.
func ParseDG15PublicKey(der []byte) (crypto.PublicKey, error) {
	return x509.ParsePKIXPublicKey(der)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
