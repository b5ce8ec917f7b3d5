package bits

import "testing"

func TestOddParity(t *testing.T) {
	tests := []struct {
		in, want byte
	}{
		{0x00, 0x01},
		{0x01, 0x01},
		{0xFF, 0xFE},
		{0xAB, 0xAB},
	}

	for _, tt := range tests {
		if got := OddParity(tt.in); got != tt.want {
			t.Errorf("OddParity(%02X) = %02X, want %02X", tt.in, got, tt.want)
		}

		count := 0
		out := OddParity(tt.in)
		for i := uint(1); i <= 8; i++ {
			if IsSet(out, i) {
				count++
			}
		}
		if count%2 == 0 {
			t.Errorf("OddParity(%02X) = %02X has even parity", tt.in, out)
		}
	}
}
