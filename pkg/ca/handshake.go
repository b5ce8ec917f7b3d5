// Package ca implements Chip Authentication (ICAO 9303 Part 11 §4.5.1):
// verifying the chip holds the private half of the static key advertised
// in DG14 by running an ephemeral-static Diffie-Hellman exchange and
// replacing the active secure-messaging session with one derived from the
// resulting shared secret. A successful run also authenticates the chip
// against cloning, since the static key cannot be copied onto blank media.
package ca

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // ICAO 9303 Part 11 mandates SHA-1 for 3DES/AES-128 CA keys.
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/corverto/emrtd/pkg/sm"
)

// ErrCompromised is returned when Chip Authentication fails at any step
// (key generation, MSE:SET AT, GENERAL AUTHENTICATE or ECDH) — the
// orchestrator must assume the existing secure-messaging session is no
// longer trustworthy and re-establish it via BAC before any further read.
var ErrCompromised = errors.New("ca: chip authentication failed, secure messaging session must be re-established")

// PublicKeyInfo is the subset of DG14's ChipAuthenticationPublicKeyInfo
// this package needs: the protocol OID, an EC public key, and the key id
// used to select among multiple CA keys (0 if the chip has only one).
type PublicKeyInfo struct {
	OID      asn1.ObjectIdentifier
	Curve    ecdh.Curve
	ChipKey  *ecdh.PublicKey
	KeyID    int
	HasKeyID bool
}

// Transport is the subset of tagreader.Reader Chip Authentication needs.
type Transport interface {
	MSESetAT(ctx context.Context, data []byte) error
	GeneralAuthenticate(ctx context.Context, data []byte, chainMore bool) ([]byte, error)
}

// Result carries the secure-messaging session Chip Authentication
// establishes, replacing whatever BAC/PACE session was active.
type Result struct {
	Session *sm.Session
}

// Perform runs Chip Authentication against the chip's advertised static EC
// public key, returning a fresh secure-messaging session on success. Any
// error is wrapped in ErrCompromised: the caller must not continue using
// the prior session.
func Perform(ctx context.Context, t Transport, info PublicKeyInfo, cipherName string) (*Result, error) {
	cipher, macAlgo, keyLen := cipherParams(cipherName)

	ephKey, err := info.Curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", ErrCompromised, err)
	}

	if err := t.MSESetAT(ctx, buildSetATData(info)); err != nil {
		return nil, fmt.Errorf("%w: MSE:SET AT: %v", ErrCompromised, err)
	}

	if _, err := t.GeneralAuthenticate(ctx, ephKey.PublicKey().Bytes(), false); err != nil {
		return nil, fmt.Errorf("%w: general authenticate: %v", ErrCompromised, err)
	}

	sharedSecret, err := ephKey.ECDH(info.ChipKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH: %v", ErrCompromised, err)
	}

	ksEnc := kdf(sharedSecret, 1, keyLen)
	ksMac := kdf(sharedSecret, 2, keyLen)

	return &Result{Session: sm.NewSession(ksEnc, ksMac, nil, cipher, macAlgo)}, nil
}

func cipherParams(name string) (sm.Cipher, sm.MACAlgo, int) {
	switch name {
	case "AES-192":
		return sm.AES192, sm.CMACAlgo, 24
	case "AES-256":
		return sm.AES256, sm.CMACAlgo, 32
	case "AES-128":
		return sm.AES128, sm.CMACAlgo, 16
	default:
		return sm.DES3, sm.RetailMACAlgo, 16
	}
}

func kdf(secret []byte, counter uint32, keyLen int) []byte {
	var digest []byte
	if keyLen > 16 {
		h := sha256.New()
		h.Write(secret)
		h.Write([]byte{0, 0, 0, byte(counter)})
		digest = h.Sum(nil)
	} else {
		h := sha1.New() //nolint:gosec
		h.Write(secret)
		h.Write([]byte{0, 0, 0, byte(counter)})
		digest = h.Sum(nil)
	}
	return digest[:keyLen]
}

func buildSetATData(info PublicKeyInfo) []byte {
	oidBytes, _ := asn1.Marshal(info.OID)
	oidValue := stripASN1Header(oidBytes)

	data := append([]byte{0x80, byte(len(oidValue))}, oidValue...)
	if info.HasKeyID {
		data = append(data, 0x84, 0x01, byte(info.KeyID))
	}
	return data
}

func stripASN1Header(der []byte) []byte {
	if len(der) < 2 {
		return der
	}
	length := int(der[1])
	if length < 0x80 {
		return der[2:]
	}
	numBytes := length & 0x7F
	return der[2+numBytes:]
}
