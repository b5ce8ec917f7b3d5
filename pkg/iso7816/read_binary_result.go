package iso7816

import (
	"fmt"
	"strings"

	"github.com/corverto/emrtd/pkg/tlv"
)

// ReadBinaryResult represents the outcome of a single READ BINARY exchange
// (possibly including the Client's automatic 61XX/6CXX handling).
type ReadBinaryResult struct {
	Trace
}

// NewReadBinaryResult validates and wraps a trace produced by READ BINARY.
func NewReadBinaryResult(t Trace) (*ReadBinaryResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	if t[0].Command.Instruction.Raw != INS_READ_BINARY {
		return nil, fmt.Errorf("trace must start with READ BINARY command (got %02X)", t[0].Command.Instruction.Raw)
	}

	return &ReadBinaryResult{Trace: t}, nil
}

// Describe generates a detailed, ASCII-formatted report of the read.
func (r *ReadBinaryResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== READ BINARY COMMAND REPORT ===\n")

	tx0 := r.Trace[0]
	cmd := tx0.Command

	target := "Current EF"
	if cmd.P1&0x80 != 0 {
		target = fmt.Sprintf("SFI %02X, offset %d", cmd.P1&0x1F, cmd.P2)
	} else {
		offset := (uint16(cmd.P1&0x7F) << 8) | uint16(cmd.P2)
		target = fmt.Sprintf("Current EF, offset %d", offset)
	}
	sb.WriteString(fmt.Sprintf("[1] Command: READ BINARY\n    + Target: %s\n    + Ne: %d\n", target, cmd.Ne))

	last := r.Last()
	sb.WriteString(fmt.Sprintf("    + Result: [%04X] %s\n", uint16(last.Response.Status), last.Response.Status.Verbose()))

	if len(r.Trace) > 1 {
		sb.WriteString(fmt.Sprintf("[2] Protocol: Auto-handling (%d steps)\n", len(r.Trace)))
	}

	payload := last.Response.Data
	sb.WriteString("[=] DATA OUTCOME:\n")
	if len(payload) > 0 {
		sb.WriteString(fmt.Sprintf("    + Length: %d bytes\n    + Dump: %X\n", len(payload), payload))
		sb.WriteString(fmt.Sprintf("    + ASCII: %q\n", tlv.MakeSafeASCII(payload)))
	} else {
		sb.WriteString("    - No Data Received.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
