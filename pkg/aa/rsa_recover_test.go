package aa

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"
)

func TestRSARecoverInt_RoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	message := []byte("active authentication challenge||hash")
	m := new(big.Int).SetBytes(message)
	if m.Cmp(priv.N) >= 0 {
		t.Fatalf("test message too large for key modulus")
	}

	// Raw RSA private-key operation: sig = m^d mod n.
	sig := new(big.Int).Exp(m, priv.D, priv.N)
	sigBytes := sig.FillBytes(make([]byte, (priv.N.BitLen()+7)/8))

	recovered, err := rsaRecoverInt(&priv.PublicKey, sigBytes)
	if err != nil {
		t.Fatalf("rsaRecoverInt: %v", err)
	}

	// recovered is zero-padded to the modulus width; compare only the
	// trailing bytes that carry the original message.
	got := recovered[len(recovered)-len(message):]
	if !bytes.Equal(got, message) {
		t.Fatalf("recovered message = %X, want %X", got, message)
	}
}
