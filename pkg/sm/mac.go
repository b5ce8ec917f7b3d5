package sm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:staticcheck // ICAO 9303 secure messaging mandates 3DES session keys.
)

// RetailMAC computes the ISO/IEC 9797-1 MAC Algorithm 3 ("retail MAC") used
// by BAC secure messaging: msg is processed in 8-byte blocks under single
// DES with the left half of key (K1) in CBC mode with a zero IV, and the
// final block is then decrypted under the right half (K2) and re-encrypted
// under K1 to produce the 8-byte MAC. key must be 16 bytes; msg must
// already be padded to a multiple of 8 bytes.
func RetailMAC(key, msg []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, errInvalidKeyLength
	}
	if len(msg) == 0 || len(msg)%8 != 0 {
		return nil, errUnalignedMessage
	}

	k1, k2 := key[:8], key[8:16]

	blockK1, err := des.NewCipher(k1)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, 8)
	enc := cipher.NewCBCEncrypter(blockK1, iv)
	buf := make([]byte, len(msg))
	enc.CryptBlocks(buf, msg)
	h := buf[len(buf)-8:]

	blockK2, err := des.NewCipher(k2)
	if err != nil {
		return nil, err
	}

	y := make([]byte, 8)
	blockK2.Decrypt(y, h)

	mac := make([]byte, 8)
	blockK1.Encrypt(mac, y)

	return mac, nil
}

// CMAC computes AES-CMAC (NIST SP 800-38B) over msg using key, which may be
// 16, 24, or 32 bytes. The construction mirrors the hand-rolled CMAC used
// for DESFire/NTAG424 secure messaging: derive two 16-byte subkeys from an
// all-zero encryption, then CBC-MAC the padded message, XOR-ing the last
// block with the appropriate subkey before the final encryption.
func CMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	k1, k2 := cmacSubkeys(block)

	n := (len(msg) + 15) / 16
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg) != 0 && len(msg)%16 == 0

	last := make([]byte, 16)
	if lastComplete {
		copy(last, msg[(n-1)*16:])
		xorBlock(last, last, k1)
	} else {
		remain := len(msg) - (n-1)*16
		if remain > 0 {
			copy(last, msg[(n-1)*16:])
		}
		last[remain] = 0x80
		xorBlock(last, last, k2)
	}

	x := make([]byte, 16)
	y := make([]byte, 16)
	for i := 0; i < n-1; i++ {
		start := i * 16
		xorBlock(y, x, msg[start:start+16])
		block.Encrypt(x, y)
	}
	xorBlock(y, x, last)
	block.Encrypt(x, y)

	return x, nil
}

func cmacSubkeys(block cipher.Block) (k1, k2 []byte) {
	const rb = 0x87
	zero := make([]byte, 16)
	l := make([]byte, 16)
	block.Encrypt(l, zero)

	k1 = make([]byte, 16)
	leftShift1(k1, l)
	if l[0]&0x80 != 0 {
		k1[15] ^= rb
	}

	k2 = make([]byte, 16)
	leftShift1(k2, k1)
	if k1[0]&0x80 != 0 {
		k2[15] ^= rb
	}

	return k1, k2
}

func leftShift1(dst, src []byte) {
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		dst[i] = (b << 1) | carry
		carry = (b >> 7) & 1
	}
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < len(a) && i < len(b); i++ {
		dst[i] = a[i] ^ b[i]
	}
}
