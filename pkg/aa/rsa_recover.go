package aa

import (
	"crypto/rsa"
	"math/big"
)

// rsaRecoverInt performs the raw RSA public-key operation m = sig^e mod n,
// returning m as a fixed-width big-endian byte slice. ISO/IEC 9796-2
// scheme 1 signature verification needs the recovered message itself, not
// a hash comparison against a detached signature, so this bypasses
// crypto/rsa's PKCS#1/PSS verifiers (which assume the opposite).
func rsaRecoverInt(pub *rsa.PublicKey, sig []byte) ([]byte, error) {
	c := new(big.Int).SetBytes(sig)
	n := pub.N
	if c.Cmp(n) >= 0 {
		return nil, errOutOfRange
	}

	e := big.NewInt(int64(pub.E))
	m := new(big.Int).Exp(c, e, n)

	out := make([]byte, (n.BitLen()+7)/8)
	m.FillBytes(out)
	return out, nil
}
