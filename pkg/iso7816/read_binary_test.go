package iso7816

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/corverto/emrtd/pkg/tlv"
)

func TestNewReadBinaryCommand(t *testing.T) {
	cls, _ := NewClass(0x00)

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []byte
	}{
		{
			name: "Offset 0, Ne 0xA0",
			cmd:  NewReadBinaryCommand(cls, 0, 0xA0),
			expected: tlv.Hex(
				"00 B0 00 00", // Header: offset 0
				"A0",          // Le
			),
		},
		{
			name: "Offset 256, Ne 4",
			cmd:  NewReadBinaryCommand(cls, 256, 4),
			expected: tlv.Hex(
				"00 B0 01 00", // P1 carries high bits of offset
				"04",
			),
		},
		{
			name: "Short EF 0x01, offset 0",
			cmd:  NewReadBinaryShortEFCommand(cls, 0x01, 0, 0xA0),
			expected: tlv.Hex(
				"00 B0 81 00",
				"A0",
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Failed to encode bytes: %v", err)
			}

			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Mismatch:\nExpected: %s\nGot:      %s",
					hex.EncodeToString(tt.expected),
					hex.EncodeToString(got))
			}
		})
	}
}

type fakeTransmitter struct {
	responses [][]byte
	idx       int
	sent      [][]byte
}

func (f *fakeTransmitter) Transmit(cmd []byte) ([]byte, error) {
	f.sent = append(f.sent, cmd)
	if f.idx >= len(f.responses) {
		return tlv.Hex("6F 00"), nil
	}
	resp := f.responses[f.idx]
	f.idx++
	return resp, nil
}

func TestNewReadBinaryResult(t *testing.T) {
	cls, _ := NewClass(0x00)
	ft := &fakeTransmitter{responses: [][]byte{tlv.Hex("60 06 5F 01 01 00 9000")}}
	client := NewClient(ft)

	trace, err := client.Send(NewReadBinaryCommand(cls, 0, 0xA0))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	res, err := NewReadBinaryResult(trace)
	if err != nil {
		t.Fatalf("NewReadBinaryResult failed: %v", err)
	}

	if !res.IsSuccess() {
		t.Fatalf("expected success")
	}

	if res.Describe() == "" {
		t.Fatalf("expected non-empty description")
	}
}
