package pace

import (
	"bytes"
	"context"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/asn1"
	"fmt"
	"math/big"
	"testing"

	"github.com/corverto/emrtd/pkg/sm"
	"github.com/moov-io/bertlv"
)

// TestGenericMapECDH_ReachesSameMappedPoint confirms both sides of the
// mapping exchange land on the identical mapped generator: the IFD computes
// it from ifdPriv and the chip's mapping public key, the chip computes it
// from chipPriv and the IFD's mapping public key, and ICAO 9303's mapping
// exchange only works if those two routes agree.
func TestGenericMapECDH_ReachesSameMappedPoint(t *testing.T) {
	curve := elliptic.P256()
	gx, gy := curve.Params().Gx, curve.Params().Gy

	ifdPriv, ifdPubX, ifdPubY, err := generatePoint(curve, gx, gy)
	if err != nil {
		t.Fatalf("generatePoint(ifd): %v", err)
	}
	chipPriv, chipPubX, chipPubY, err := generatePoint(curve, gx, gy)
	if err != nil {
		t.Fatalf("generatePoint(chip): %v", err)
	}

	nonce := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	ifdMappedX, ifdMappedY, err := genericMapECDH(curve, ifdPriv, chipPubX, chipPubY, nonce)
	if err != nil {
		t.Fatalf("genericMapECDH(ifd side): %v", err)
	}
	chipMappedX, chipMappedY, err := genericMapECDH(curve, chipPriv, ifdPubX, ifdPubY, nonce)
	if err != nil {
		t.Fatalf("genericMapECDH(chip side): %v", err)
	}

	if ifdMappedX.Cmp(chipMappedX) != 0 || ifdMappedY.Cmp(chipMappedY) != 0 {
		t.Fatalf("mapped points disagree:\n  ifd  = (%x, %x)\n  chip = (%x, %x)", ifdMappedX, ifdMappedY, chipMappedX, chipMappedY)
	}

	gxOrig, gyOrig := curve.Params().Gx, curve.Params().Gy
	if ifdMappedX.Cmp(gxOrig) == 0 && ifdMappedY.Cmp(gyOrig) == 0 {
		t.Fatalf("mapped generator equals the standard generator, mapping had no effect")
	}
}

// TestPerform_FullHandshakeLoopback runs Perform against a fake Transport
// that plays the chip's side of PACE Generic Mapping end to end (nonce,
// mapping, ephemeral key agreement, mutual authentication tokens),
// confirming the two sides converge on the same secure-messaging keys.
func TestPerform_FullHandshakeLoopback(t *testing.T) {
	proto := Protocol{
		OID:     asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4, 2, 2}, // ECDH-GM-AES-128
		Mapping: MappingGeneric,
		IsECDH:  true,
		Cipher:  "AES-128",
	}
	password := []byte("password-derived-key-seed")

	chip, err := newFakeChip(elliptic.P256(), sm.AES128, sm.CMACAlgo, 16, password)
	if err != nil {
		t.Fatalf("newFakeChip: %v", err)
	}

	result, err := Perform(context.Background(), chip, proto, ParamsNISTP256, password)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	if !bytes.Equal(result.Session.KSenc, chip.ksEnc) {
		t.Errorf("KSenc mismatch: ifd=%x chip=%x", result.Session.KSenc, chip.ksEnc)
	}
	if !bytes.Equal(result.Session.KSmac, chip.ksMac) {
		t.Errorf("KSmac mismatch: ifd=%x chip=%x", result.Session.KSmac, chip.ksMac)
	}
}

// TestPerform_RejectsUnsupportedProtocol confirms DH (non-ECDH) and
// non-Generic mappings are rejected outright rather than silently treated
// as EC Generic Mapping.
func TestPerform_RejectsUnsupportedProtocol(t *testing.T) {
	tests := []Protocol{
		{Mapping: MappingGeneric, IsECDH: false},
		{Mapping: MappingIntegrated, IsECDH: true},
		{Mapping: MappingChipAuthentication, IsECDH: true},
	}
	for _, proto := range tests {
		if _, err := Perform(context.Background(), nil, proto, ParamsNISTP256, nil); err == nil {
			t.Errorf("Perform(%+v) succeeded, want an unsupported-protocol error", proto)
		}
	}
}

// fakeChip plays the chip's side of a PACE Generic Mapping handshake over
// the Transport interface, doing the identical point arithmetic Perform
// does so the test can compare the two sides' derived keys directly.
type fakeChip struct {
	curve   elliptic.Curve
	cipher  sm.Cipher
	macAlgo sm.MACAlgo
	keyLen  int
	kPi     []byte
	nonce   []byte

	chipMapPriv *big.Int
	chipMapX    *big.Int
	chipMapY    *big.Int

	mappedGx *big.Int
	mappedGy *big.Int

	chipEphPriv    *big.Int
	chipEphPubX    *big.Int
	chipEphPubY    *big.Int
	ifdEphPubBytes []byte

	ksEnc []byte
	ksMac []byte
}

func newFakeChip(curve elliptic.Curve, cipher sm.Cipher, macAlgo sm.MACAlgo, keyLen int, password []byte) (*fakeChip, error) {
	kPi := deriveKeyFromPassword(password, keyLen)
	nonce := make([]byte, cipher.BlockSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	priv, pubX, pubY, err := generatePoint(curve, curve.Params().Gx, curve.Params().Gy)
	if err != nil {
		return nil, err
	}
	return &fakeChip{
		curve: curve, cipher: cipher, macAlgo: macAlgo, keyLen: keyLen,
		kPi: kPi, nonce: nonce,
		chipMapPriv: priv, chipMapX: pubX, chipMapY: pubY,
	}, nil
}

func (c *fakeChip) MSESetAT(ctx context.Context, data []byte) error {
	return nil
}

func (c *fakeChip) GeneralAuthenticate(ctx context.Context, data []byte, chainMore bool) ([]byte, error) {
	tag, value, err := decodeSoleInner(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0x80:
		var encNonce []byte
		var err error
		if c.cipher == sm.DES3 {
			encNonce, err = sm.EncryptCBC3DES(c.kPi, c.nonce)
		} else {
			encNonce, err = sm.EncryptCBCAES(c.kPi, c.nonce)
		}
		if err != nil {
			return nil, err
		}
		return encodeDynAuthData(0x80, encNonce), nil

	case 0x81:
		ifdMapX, ifdMapY, err := pointFromBytes(c.curve, value)
		if err != nil {
			return nil, err
		}
		mappedX, mappedY, err := genericMapECDH(c.curve, c.chipMapPriv, ifdMapX, ifdMapY, c.nonce)
		if err != nil {
			return nil, err
		}
		c.mappedGx, c.mappedGy = mappedX, mappedY
		return encodeDynAuthData(0x82, pointBytes(c.curve, c.chipMapX, c.chipMapY)), nil

	case 0x83:
		ifdEphX, ifdEphY, err := pointFromBytes(c.curve, value)
		if err != nil {
			return nil, err
		}
		c.ifdEphPubBytes = value
		priv, pubX, pubY, err := generatePoint(c.curve, c.mappedGx, c.mappedGy)
		if err != nil {
			return nil, err
		}
		c.chipEphPriv, c.chipEphPubX, c.chipEphPubY = priv, pubX, pubY
		sharedX, _ := c.curve.ScalarMult(ifdEphX, ifdEphY, priv.Bytes())
		sharedSecret := fieldElementBytes(c.curve, sharedX)
		c.ksEnc = kdf(sharedSecret, 1, c.keyLen)
		c.ksMac = kdf(sharedSecret, 2, c.keyLen)
		return encodeDynAuthData(0x84, pointBytes(c.curve, pubX, pubY)), nil

	case 0x85:
		chipPubBytes := pointBytes(c.curve, c.chipEphPubX, c.chipEphPubY)
		wantTIFD, err := computeToken(c.macAlgo, c.ksMac, chipPubBytes)
		if err != nil {
			return nil, err
		}
		if !macEqual(value, wantTIFD) {
			return nil, fmt.Errorf("fakeChip: terminal authentication token mismatch")
		}
		tIC, err := computeToken(c.macAlgo, c.ksMac, c.ifdEphPubBytes)
		if err != nil {
			return nil, err
		}
		return encodeDynAuthData(0x86, tIC), nil

	default:
		return nil, fmt.Errorf("fakeChip: unexpected dynamic auth tag 0x%02X", tag)
	}
}

// decodeSoleInner unwraps a DO'7C' dynamic authentication template and
// returns the single inner data object's tag and value.
func decodeSoleInner(data []byte) (byte, []byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return 0, nil, fmt.Errorf("fakeChip: decode: %w", err)
	}
	if len(packets) == 0 || packets[0].Tag != "7C" {
		return 0, nil, fmt.Errorf("fakeChip: malformed dynamic auth data")
	}
	if len(packets[0].TLVs) == 0 {
		return 0x80, nil, nil // empty DO'7C': the nonce request that opens the handshake.
	}
	inner := packets[0].TLVs[0]
	var tag byte
	if _, err := fmt.Sscanf(inner.Tag, "%02X", &tag); err != nil {
		return 0, nil, fmt.Errorf("fakeChip: malformed inner tag %q: %w", inner.Tag, err)
	}
	return tag, inner.Value, nil
}
