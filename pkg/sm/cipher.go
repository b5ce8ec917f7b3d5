package sm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:staticcheck
)

// Cipher identifies the session cipher negotiated by BAC or PACE.
type Cipher int

const (
	DES3 Cipher = iota
	AES128
	AES192
	AES256
)

// BlockSize returns the cipher's block size in bytes (8 for 3DES, 16 for
// AES regardless of key length).
func (c Cipher) BlockSize() int {
	if c == DES3 {
		return 8
	}
	return 16
}

// MACAlgo identifies the MAC used alongside a Cipher.
type MACAlgo int

const (
	RetailMACAlgo MACAlgo = iota
	CMACAlgo
)

func newBlockCipher(c Cipher, key []byte) (cipher.Block, error) {
	if c == DES3 {
		return des.NewTripleDESCipher(expandDES3Key(key))
	}
	return aes.NewCipher(key)
}

// expandDES3Key turns a 16-byte two-key 3DES session key (K1||K2) into the
// 24-byte form crypto/des.NewTripleDESCipher requires (K1||K2||K1).
func expandDES3Key(key []byte) []byte {
	if len(key) == 24 {
		return key
	}
	out := make([]byte, 24)
	copy(out[0:8], key[0:8])
	copy(out[8:16], key[8:16])
	copy(out[16:24], key[0:8])
	return out
}

func cbcEncrypt(c Cipher, key, iv, data []byte) ([]byte, error) {
	block, err := newBlockCipher(c, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func cbcDecrypt(c Cipher, key, iv, data []byte) ([]byte, error) {
	block, err := newBlockCipher(c, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// sendSequenceIV derives the IV used to encrypt/decrypt a data object under
// the current SSC: for AES, E_KSenc(SSC) (single-block ECB encryption of
// the counter); for 3DES, the all-zero IV ICAO 9303 specifies.
func sendSequenceIV(c Cipher, key, ssc []byte) ([]byte, error) {
	if c == DES3 {
		return make([]byte, 8), nil
	}

	block, err := newBlockCipher(c, key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, 16)
	block.Encrypt(iv, ssc)
	return iv, nil
}

// EncryptCBC3DES encrypts data (which must already be a multiple of 8
// bytes) under key in 3DES-CBC with a zero IV, as used by BAC's
// EXTERNAL AUTHENTICATE command/response bodies.
func EncryptCBC3DES(key, data []byte) ([]byte, error) {
	return cbcEncrypt(DES3, key, make([]byte, 8), data)
}

// DecryptCBC3DES reverses EncryptCBC3DES.
func DecryptCBC3DES(key, data []byte) ([]byte, error) {
	return cbcDecrypt(DES3, key, make([]byte, 8), data)
}

// EncryptCBCAES encrypts data (a multiple of 16 bytes) under key in
// AES-CBC with a zero IV, as used to decrypt PACE's nonce data object.
func EncryptCBCAES(key, data []byte) ([]byte, error) {
	return cbcEncrypt(cipherForKeyLen(key), key, make([]byte, 16), data)
}

// DecryptCBCAES reverses EncryptCBCAES.
func DecryptCBCAES(key, data []byte) ([]byte, error) {
	return cbcDecrypt(cipherForKeyLen(key), key, make([]byte, 16), data)
}

func cipherForKeyLen(key []byte) Cipher {
	switch len(key) {
	case 24:
		return AES192
	case 32:
		return AES256
	default:
		return AES128
	}
}

func computeMAC(algo MACAlgo, cipherAlgo Cipher, key, msg []byte) ([]byte, error) {
	if algo == RetailMACAlgo {
		return RetailMAC(key, PadISO7816(msg, cipherAlgo.BlockSize()))
	}
	return CMAC(key, msg)
}
