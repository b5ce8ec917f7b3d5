package sm

import (
	"fmt"

	"github.com/corverto/emrtd/pkg/iso7816"
	"github.com/moov-io/bertlv"
)

// Session is the ephemeral secure-messaging context installed after a
// successful BAC or PACE handshake (or replaced wholesale after a
// successful Chip Authentication). It owns the send sequence counter and
// is never mutated in place by anything other than Wrap/Unwrap.
type Session struct {
	KSenc []byte
	KSmac []byte

	ssc []byte

	Cipher Cipher
	MAC    MACAlgo
}

// NewSession creates a Session with the given keys, initial SSC, cipher
// and MAC algorithm. ssc must already be sized for the cipher (8 bytes for
// 3DES, 16 for AES); a nil ssc starts at all-zeroes.
func NewSession(ksenc, ksmac []byte, ssc []byte, c Cipher, mac MACAlgo) *Session {
	sscLen := c.BlockSize()
	s := &Session{KSenc: ksenc, KSmac: ksmac, Cipher: c, MAC: mac, ssc: make([]byte, sscLen)}
	if ssc != nil {
		copy(s.ssc[sscLen-len(ssc):], ssc)
	}
	return s
}

// SSC returns a copy of the current send sequence counter.
func (s *Session) SSC() []byte {
	out := make([]byte, len(s.ssc))
	copy(out, s.ssc)
	return out
}

func (s *Session) incrementSSC() {
	for i := len(s.ssc) - 1; i >= 0; i-- {
		s.ssc[i]++
		if s.ssc[i] != 0 {
			return
		}
	}
}

// Wrap encrypts and MACs cmd into a secure-messaging APDU, incrementing
// the SSC exactly once.
func (s *Session) Wrap(cmd *iso7816.CommandAPDU) (*iso7816.CommandAPDU, error) {
	s.incrementSSC()

	claSM := cmd.Class.Raw | 0x0C
	newClass, err := iso7816.NewClass(claSM)
	if err != nil {
		return nil, newError("wrap", err)
	}

	header := []byte{claSM, byte(cmd.Instruction.Raw), cmd.P1, cmd.P2}
	paddedHeader := PadISO7816(header, s.Cipher.BlockSize())

	var do87, do97 []byte

	if len(cmd.Data) > 0 {
		iv, err := sendSequenceIV(s.Cipher, s.KSenc, s.ssc)
		if err != nil {
			return nil, newError("wrap", err)
		}

		padded := PadISO7816(cmd.Data, s.Cipher.BlockSize())
		ct, err := cbcEncrypt(s.Cipher, s.KSenc, iv, padded)
		if err != nil {
			return nil, newError("wrap", err)
		}

		value := append([]byte{0x01}, ct...)
		do87, err = bertlv.Encode([]bertlv.TLV{{Tag: "87", Value: value}})
		if err != nil {
			return nil, newError("wrap", err)
		}
	}

	if cmd.Ne > 0 {
		leByte := byte(cmd.Ne)
		if cmd.Ne == iso7816.MaxShortLe {
			leByte = 0x00
		}
		var err error
		do97, err = bertlv.Encode([]bertlv.TLV{{Tag: "97", Value: []byte{leByte}}})
		if err != nil {
			return nil, newError("wrap", err)
		}
	}

	macInput := make([]byte, 0, len(s.ssc)+len(paddedHeader)+len(do87)+len(do97))
	macInput = append(macInput, s.ssc...)
	macInput = append(macInput, paddedHeader...)
	macInput = append(macInput, do87...)
	macInput = append(macInput, do97...)

	mac, err := computeMAC(s.MAC, s.Cipher, s.KSmac, macInput)
	if err != nil {
		return nil, newError("wrap", err)
	}

	do8e, err := bertlv.Encode([]bertlv.TLV{{Tag: "8E", Value: mac[:8]}})
	if err != nil {
		return nil, newError("wrap", err)
	}

	data := make([]byte, 0, len(do87)+len(do97)+len(do8e))
	data = append(data, do87...)
	data = append(data, do97...)
	data = append(data, do8e...)

	return iso7816.NewCommandAPDU(newClass, cmd.Instruction, cmd.P1, cmd.P2, data, iso7816.MaxShortLe), nil
}

// Unwrap parses and verifies a secure-messaging response, returning the
// plaintext response body and the status word carried inside DO'99'. A MAC
// mismatch is always fatal for the session and reported as an *Error.
func (s *Session) Unwrap(resp *iso7816.ResponseAPDU) ([]byte, iso7816.StatusWord, error) {
	packets, err := bertlv.Decode(resp.Data)
	if err != nil {
		return nil, 0, newError("unwrap", err)
	}

	var do87, do99, do8e *bertlv.TLV
	for i := range packets {
		switch packets[i].Tag {
		case "87":
			do87 = &packets[i]
		case "99":
			do99 = &packets[i]
		case "8E":
			do8e = &packets[i]
		}
	}

	if do99 == nil || do8e == nil {
		return nil, 0, newError("unwrap", fmt.Errorf("missing mandatory DO'99' or DO'8E'"))
	}
	if len(do99.Value) != 2 {
		return nil, 0, newError("unwrap", fmt.Errorf("DO'99' must be 2 bytes, got %d", len(do99.Value)))
	}

	s.incrementSSC()

	macInput := make([]byte, 0, len(s.ssc)+64)
	macInput = append(macInput, s.ssc...)
	if do87 != nil {
		enc, err := bertlv.Encode([]bertlv.TLV{*do87})
		if err != nil {
			return nil, 0, newError("unwrap", err)
		}
		macInput = append(macInput, enc...)
	}
	do99Bytes, err := bertlv.Encode([]bertlv.TLV{*do99})
	if err != nil {
		return nil, 0, newError("unwrap", err)
	}
	macInput = append(macInput, do99Bytes...)

	expected, err := computeMAC(s.MAC, s.Cipher, s.KSmac, macInput)
	if err != nil {
		return nil, 0, newError("unwrap", err)
	}

	if !macEqual(expected[:8], do8e.Value) {
		return nil, 0, newError("unwrap", errMACMismatch)
	}

	sw := iso7816.NewStatusWord(do99.Value[0], do99.Value[1])

	if do87 == nil {
		return nil, sw, nil
	}

	if len(do87.Value) < 1 {
		return nil, 0, newError("unwrap", fmt.Errorf("DO'87' missing padding-indicator byte"))
	}

	iv, err := sendSequenceIV(s.Cipher, s.KSenc, s.ssc)
	if err != nil {
		return nil, 0, newError("unwrap", err)
	}

	plainPadded, err := cbcDecrypt(s.Cipher, s.KSenc, iv, do87.Value[1:])
	if err != nil {
		return nil, 0, newError("unwrap", err)
	}

	plain, err := UnpadISO7816(plainPadded)
	if err != nil {
		return nil, 0, newError("unwrap", err)
	}

	return plain, sw, nil
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
