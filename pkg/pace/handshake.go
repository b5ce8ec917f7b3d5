package pace

import (
	"context"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // ICAO 9303 Part 11 mandates SHA-1 for 3DES/AES-128 PACE keys.
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/corverto/emrtd/pkg/sm"
)

// Transport is the subset of tagreader.Reader PACE needs: setting up the
// authentication template and running GENERAL AUTHENTICATE rounds (the
// chip's nonce is decrypted locally).
type Transport interface {
	MSESetAT(ctx context.Context, data []byte) error
	GeneralAuthenticate(ctx context.Context, data []byte, chainMore bool) ([]byte, error)
}

// Result carries the secure-messaging session a successful PACE run
// establishes.
type Result struct {
	Session *sm.Session
}

// Perform runs PACE Generic Mapping over an EC domain using password as the
// shared secret (either the MRZ-derived key or a printed CAN, both reduced
// to a byte string by the caller per ICAO 9303 Part 11 §4.4.3.3.1). Only
// Generic Mapping over EC domains is implemented; DH Generic/Integrated
// Mapping and the CAM extra token are unsupported and return an error
// naming the missing protocol.
func Perform(ctx context.Context, t Transport, proto Protocol, params StandardizedDomainParams, password []byte) (*Result, error) {
	if !proto.IsECDH || proto.Mapping != MappingGeneric {
		return nil, fmt.Errorf("pace: unsupported protocol (mapping=%d ecdh=%v)", proto.Mapping, proto.IsECDH)
	}

	curve, err := params.Curve()
	if err != nil {
		return nil, err
	}

	cipher, macAlgo, keyLen := cipherParams(proto.Cipher)

	if err := t.MSESetAT(ctx, buildSetATData(proto.OID)); err != nil {
		return nil, fmt.Errorf("pace: MSE:SET AT: %w", err)
	}

	// Step 1: request and decrypt the chip's nonce.
	encNonceResp, err := t.GeneralAuthenticate(ctx, encodeDynAuthData(0x80, nil), true)
	if err != nil {
		return nil, fmt.Errorf("pace: nonce request: %w", err)
	}
	encNonce, err := parseDynAuthData(encNonceResp, 0x80)
	if err != nil {
		return nil, err
	}

	kPi := deriveKeyFromPassword(password, keyLen)
	var nonce []byte
	if cipher == sm.DES3 {
		nonce, err = sm.DecryptCBC3DES(kPi, encNonce)
	} else {
		nonce, err = sm.DecryptCBCAES(kPi, encNonce)
	}
	if err != nil {
		return nil, fmt.Errorf("pace: nonce decrypt: %w", err)
	}

	// Step 2: map the nonce into a session-specific base point and
	// exchange the mapping public keys.
	mapPriv, mapPubX, mapPubY, err := generatePoint(curve, curve.Params().Gx, curve.Params().Gy)
	if err != nil {
		return nil, err
	}
	mapResp, err := t.GeneralAuthenticate(ctx, encodeDynAuthData(0x81, pointBytes(curve, mapPubX, mapPubY)), true)
	if err != nil {
		return nil, fmt.Errorf("pace: mapping exchange: %w", err)
	}
	chipMapPub, err := parseDynAuthData(mapResp, 0x82)
	if err != nil {
		return nil, err
	}
	chipMapX, chipMapY, err := pointFromBytes(curve, chipMapPub)
	if err != nil {
		return nil, fmt.Errorf("pace: chip mapping public key: %w", err)
	}
	mappedGx, mappedGy, err := genericMapECDH(curve, mapPriv, chipMapX, chipMapY, nonce)
	if err != nil {
		return nil, err
	}

	// Step 3: ephemeral key agreement over the mapped base point.
	ephPriv, ephPubX, ephPubY, err := generatePoint(curve, mappedGx, mappedGy)
	if err != nil {
		return nil, err
	}
	ephPubBytes := pointBytes(curve, ephPubX, ephPubY)
	keyResp, err := t.GeneralAuthenticate(ctx, encodeDynAuthData(0x83, ephPubBytes), true)
	if err != nil {
		return nil, fmt.Errorf("pace: key exchange: %w", err)
	}
	chipEphPub, err := parseDynAuthData(keyResp, 0x84)
	if err != nil {
		return nil, err
	}
	chipEphX, chipEphY, err := pointFromBytes(curve, chipEphPub)
	if err != nil {
		return nil, fmt.Errorf("pace: chip ephemeral public key: %w", err)
	}
	sharedX, _ := curve.ScalarMult(chipEphX, chipEphY, ephPriv.Bytes())
	sharedSecret := fieldElementBytes(curve, sharedX)

	ksEnc := kdf(sharedSecret, 1, keyLen)
	ksMac := kdf(sharedSecret, 2, keyLen)

	// Step 4: mutual authentication tokens over each other's ephemeral
	// public key.
	tIFD, err := computeToken(macAlgo, ksMac, chipEphPub)
	if err != nil {
		return nil, err
	}
	tokenResp, err := t.GeneralAuthenticate(ctx, encodeDynAuthData(0x85, tIFD), false)
	if err != nil {
		return nil, fmt.Errorf("pace: token exchange: %w", err)
	}
	tIC, err := parseDynAuthData(tokenResp, 0x86)
	if err != nil {
		return nil, err
	}

	wantTIC, err := computeToken(macAlgo, ksMac, ephPubBytes)
	if err != nil {
		return nil, err
	}
	if !macEqual(tIC, wantTIC) {
		return nil, fmt.Errorf("pace: chip authentication token mismatch")
	}

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

// deriveKeyFromPassword runs the ICAO 9303 Appendix D.1 KDF with counter
// 3, the password-derived key (K_pi) used to decrypt the chip's nonce.
// The post-handshake session keys are derived separately with counters
// 1 (KSenc) and 2 (KSmac), the same counters pkg/ca uses for Chip
// Authentication's session keys.
func deriveKeyFromPassword(secret []byte, keyLen int) []byte {
	return kdf(secret, 3, keyLen)
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

func computeToken(algo sm.MACAlgo, key, publicKeyBytes []byte) ([]byte, error) {
	if algo == sm.RetailMACAlgo {
		mac, err := sm.RetailMAC(key, sm.PadISO7816(publicKeyBytes, 8))
		if err != nil {
			return nil, err
		}
		return mac[:8], nil
	}
	mac, err := sm.CMAC(key, publicKeyBytes)
	if err != nil {
		return nil, err
	}
	return mac[:8], nil
}

func macEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// genericMapECDH implements PACE Generic Mapping for EC domains (ICAO 9303
// Part 11 §4.4.3.3.2): the mapped generator is G' = s*G + H, where H is the
// shared point from the mapping key exchange (ifdPriv * chipMapPub, the
// same point the chip reaches as chipMapPriv * ifdMapPub) and s is the
// decrypted nonce interpreted as an integer. crypto/ecdh has no raw point
// API and assumes a fixed base point, so the mapping — and every
// subsequent step that needs to operate on the moved base point — is done
// directly against crypto/elliptic's curve arithmetic instead.
func genericMapECDH(curve elliptic.Curve, ifdPriv *big.Int, chipMapX, chipMapY *big.Int, nonce []byte) (*big.Int, *big.Int, error) {
	hx, hy := curve.ScalarMult(chipMapX, chipMapY, ifdPriv.Bytes())

	gx, gy := curve.Params().Gx, curve.Params().Gy
	sgx, sgy := curve.ScalarMult(gx, gy, nonce)

	mappedX, mappedY := curve.Add(sgx, sgy, hx, hy)
	if !curve.IsOnCurve(mappedX, mappedY) {
		return nil, nil, fmt.Errorf("pace: mapped base point is not on the curve")
	}
	return mappedX, mappedY, nil
}

// generatePoint draws a fresh random scalar in [1, N-1] and returns it
// alongside its public point k*baseX,baseY, the shape both the mapping
// exchange (base = standard generator) and the ephemeral key exchange
// (base = mapped generator) need.
func generatePoint(curve elliptic.Curve, baseX, baseY *big.Int) (priv, pubX, pubY *big.Int, err error) {
	n := curve.Params().N
	priv, err = rand.Int(rand.Reader, new(big.Int).Sub(n, big.NewInt(1)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pace: generate scalar: %w", err)
	}
	priv.Add(priv, big.NewInt(1))

	pubX, pubY = curve.ScalarMult(baseX, baseY, priv.Bytes())
	return priv, pubX, pubY, nil
}

// fieldElementBytes renders x as a fixed-length big-endian byte string the
// width of the curve's field, the encoding ICAO 9303 Part 11 §9.4.5 uses
// for PACE's shared secret and every key derivation input drawn from it.
func fieldElementBytes(curve elliptic.Curve, x *big.Int) []byte {
	size := (curve.Params().BitSize + 7) / 8
	out := make([]byte, size)
	x.FillBytes(out)
	return out
}

// pointBytes encodes an EC point in SEC1 uncompressed form (0x04 || X || Y),
// the format every PACE dynamic authentication data object carries a
// public key in.
func pointBytes(curve elliptic.Curve, x, y *big.Int) []byte {
	size := (curve.Params().BitSize + 7) / 8
	out := make([]byte, 1+2*size)
	out[0] = 0x04
	x.FillBytes(out[1 : 1+size])
	y.FillBytes(out[1+size : 1+2*size])
	return out
}

// pointFromBytes decodes a SEC1 uncompressed point and rejects anything
// not actually on the negotiated curve, guarding against a chip (or an
// attacker) steering the exchange onto an invalid point.
func pointFromBytes(curve elliptic.Curve, b []byte) (x, y *big.Int, err error) {
	size := (curve.Params().BitSize + 7) / 8
	if len(b) != 1+2*size || b[0] != 0x04 {
		return nil, nil, fmt.Errorf("pace: malformed EC point encoding")
	}
	x = new(big.Int).SetBytes(b[1 : 1+size])
	y = new(big.Int).SetBytes(b[1+size : 1+2*size])
	if !curve.IsOnCurve(x, y) {
		return nil, nil, fmt.Errorf("pace: point not on curve")
	}
	return x, y, nil
}
