// Package tagreader drives the low-level exchange with an eMRTD chip: file
// selection, chunked binary reads, and the raw command primitives BAC, PACE,
// Chip Authentication, and Active Authentication build their handshakes on
// top of. It wraps an iso7816.Client and, once a secure-messaging session
// has been established, transparently wraps/unwraps every APDU through it.
package tagreader

import (
	"context"
	"fmt"

	"github.com/corverto/emrtd/pkg/iso7816"
	"github.com/corverto/emrtd/pkg/sm"
)

// StatusError reports a non-success status word returned by the chip, so
// callers can classify the failure (session.go's per-data-group retry
// policy switches on SW.IsSMError/IsAccessDenied/IsWrongLength) instead of
// parsing Verbose()'s text.
type StatusError struct {
	Op string
	SW iso7816.StatusWord
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tagreader: %s failed: %s", e.Op, e.SW.Verbose())
}

// MaxReadChunk is the largest READ BINARY data length requested per
// exchange, the 0xA0-byte default ICAO 9303 Part 10 recommends so a
// short-APDU reader doesn't have to negotiate length down on every file.
// tagreader still shrinks below it on a 6Cxx/wrong-length response rather
// than assume a chip honors the recommendation.
const MaxReadChunk = 0xA0

// ProgressFunc reports incremental progress while streaming a data group or
// other large EF; read and total are byte counts (total is 0 if unknown).
type ProgressFunc func(read, total int)

// Reader is the mid-level driver used by BAC, PACE, CA, AA and the LDS
// reader to talk to the chip. All methods accept a context so a caller can
// cancel a long DG read (e.g. DG2 portrait images) between chunks.
type Reader struct {
	client *iso7816.Client
	sm     *sm.Session

	lastTrace iso7816.Trace
	appSelect *iso7816.SelectResult
}

// New wraps a physical or emulated card connection.
func New(card iso7816.Transmitter) *Reader {
	return &Reader{client: iso7816.NewClient(card)}
}

// InstallSession installs or replaces the secure-messaging session used to
// wrap outgoing commands and unwrap incoming responses. Passing nil drops
// back to plaintext exchanges.
func (r *Reader) InstallSession(s *sm.Session) {
	r.sm = s
}

// Session returns the currently installed secure-messaging session, or nil.
func (r *Reader) Session() *sm.Session {
	return r.sm
}

// class returns the base CLA to build an outgoing command with: plaintext
// (0x00) when no SM session is installed, masked with SM bits otherwise
// (sm.Session.Wrap performs the actual masking).
func (r *Reader) class() iso7816.Class {
	cla, _ := iso7816.NewClass(0x00)
	return cla
}

// Transmit sends cmd, transparently wrapping it under the installed SM
// session (if any) and unwrapping the response, returning the plaintext
// response data and status word.
func (r *Reader) Transmit(ctx context.Context, cmd *iso7816.CommandAPDU) ([]byte, iso7816.StatusWord, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if r.sm == nil {
		trace, err := r.client.Send(cmd)
		if err != nil {
			return nil, 0, fmt.Errorf("tagreader: transmit: %w", err)
		}
		r.lastTrace = trace
		last := trace.Last()
		return last.Response.Data, last.Response.Status, nil
	}

	wrapped, err := r.sm.Wrap(cmd)
	if err != nil {
		return nil, 0, fmt.Errorf("tagreader: wrap: %w", err)
	}

	trace, err := r.client.Send(wrapped)
	if err != nil {
		return nil, 0, fmt.Errorf("tagreader: transmit: %w", err)
	}

	last := trace.Last()
	data, sw, err := r.sm.Unwrap(last.Response)
	if err != nil {
		// err is already a *sm.Error when Unwrap's MAC check fails;
		// leave it unwrapped so session.go's retry policy can detect it
		// with errors.As and force BAC/PACE before any retry.
		return nil, 0, err
	}
	return data, sw, nil
}

// SelectApplication selects the eMRTD LDS1 application by its AID
// (A0000002471001 for travel documents using BAC/PACE). The command asks
// for FCI (unlike SelectEF, which asks for none), so the trace is kept
// and parsed into a SelectResult ApplicationSelectResult exposes for
// richer reporting.
func (r *Reader) SelectApplication(ctx context.Context, aid []byte) error {
	cmd := iso7816.SelectByAID(r.class(), aid)
	_, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return err
	}
	if res, resErr := iso7816.NewSelectResult(r.lastTrace); resErr == nil {
		r.appSelect = res
	}
	if !sw.IsSuccess() {
		return &StatusError{Op: "select application", SW: sw}
	}
	return nil
}

// ApplicationSelectResult returns the parsed result of the most recent
// SelectApplication call (nil before one has succeeded, or if its trace
// could not be parsed as a SELECT result).
func (r *Reader) ApplicationSelectResult() *iso7816.SelectResult {
	return r.appSelect
}

// SelectEF selects a transparent Elementary File by its 2-byte file
// identifier in preparation for ReadBinary.
func (r *Reader) SelectEF(ctx context.Context, fid [2]byte) error {
	cmd := iso7816.SelectEF(r.class(), fid)
	_, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return err
	}
	if !sw.IsSuccess() {
		return &StatusError{Op: fmt.Sprintf("select EF %02X%02X", fid[0], fid[1]), SW: sw}
	}
	return nil
}

// ReadBinary reads the currently selected EF in full, issuing successive
// READ BINARY commands of up to MaxReadChunk bytes until the chip signals
// end-of-file or returns fewer bytes than requested. progress, if non-nil,
// is called after every chunk.
func (r *Reader) ReadBinary(ctx context.Context, progress ProgressFunc) ([]byte, error) {
	return r.ReadBinaryChunked(ctx, MaxReadChunk, progress)
}

// ReadBinaryChunked is ReadBinary with an explicit chunk size, for callers
// that need to shrink it below MaxReadChunk after a chip has repeatedly
// rejected the default size with a wrong-length status.
func (r *Reader) ReadBinaryChunked(ctx context.Context, chunk int, progress ProgressFunc) ([]byte, error) {
	if chunk <= 0 {
		chunk = 1
	}
	var out []byte
	var offset uint16
	var total int

	report := func(final bool) {
		if progress == nil {
			return
		}
		if total == 0 {
			if t, ok := leadingTLVLength(out); ok {
				total = t
			} else if final {
				total = len(out)
			}
		}
		progress(len(out), total)
	}

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		cmd := iso7816.NewReadBinaryCommand(r.class(), offset, chunk)
		data, sw, err := r.Transmit(ctx, cmd)
		if err != nil {
			return out, err
		}

		if sw.IsEndOfFile() {
			out = append(out, data...)
			report(true)
			return out, nil
		}
		if sw.IsWrongLength() {
			retryCmd := iso7816.NewReadBinaryCommand(r.class(), offset, int(sw.SW2()))
			data, sw, err = r.Transmit(ctx, retryCmd)
			if err != nil {
				return out, err
			}
		}
		if !sw.IsSuccess() {
			return out, &StatusError{Op: fmt.Sprintf("read binary at offset %d", offset), SW: sw}
		}

		out = append(out, data...)
		report(false)

		if len(data) < chunk {
			return out, nil
		}
		offset += uint16(len(data))
	}
}

// leadingTLVLength decodes the BER-TLV tag+length header every ICAO LDS
// file opens with (a single-byte application tag, e.g. '61' for DG1 or
// '77' for EF.SOD, followed by a DER length) and returns the total file
// size — header bytes plus the declared value length — once enough of
// the header has been read to decode it. ok is false if data doesn't yet
// hold the full header (only possible if the first chunk is pathologically
// small).
func leadingTLVLength(data []byte) (total int, ok bool) {
	if len(data) < 2 {
		return 0, false
	}
	i := 1 // ICAO LDS application tags are always single-byte.
	lengthByte := data[i]
	i++
	if lengthByte < 0x80 {
		return i + int(lengthByte), true
	}
	numBytes := int(lengthByte & 0x7F)
	if numBytes == 0 || i+numBytes > len(data) {
		return 0, false
	}
	length := 0
	for _, b := range data[i : i+numBytes] {
		length = length<<8 | int(b)
	}
	i += numBytes
	return i + length, true
}

// ReadFile selects fid and reads it fully, a convenience combining SelectEF
// and ReadBinary for the common case of a fresh EF read.
func (r *Reader) ReadFile(ctx context.Context, fid [2]byte, progress ProgressFunc) ([]byte, error) {
	if err := r.SelectEF(ctx, fid); err != nil {
		return nil, err
	}
	return r.ReadBinary(ctx, progress)
}

// ReadFileChunked is ReadFile with an explicit chunk size; see
// ReadBinaryChunked.
func (r *Reader) ReadFileChunked(ctx context.Context, fid [2]byte, chunk int, progress ProgressFunc) ([]byte, error) {
	if err := r.SelectEF(ctx, fid); err != nil {
		return nil, err
	}
	return r.ReadBinaryChunked(ctx, chunk, progress)
}

// GetChallenge requests an n-byte random challenge from the chip (used by
// BAC's mutual authentication).
func (r *Reader) GetChallenge(ctx context.Context, n int) ([]byte, error) {
	ins, err := iso7816.NewInstruction(iso7816.INS_GET_CHALLENGE)
	if err != nil {
		return nil, err
	}
	cmd := iso7816.NewCommandAPDU(r.class(), ins, 0x00, 0x00, nil, n)
	data, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !sw.IsSuccess() {
		return nil, &StatusError{Op: "get challenge", SW: sw}
	}
	return data, nil
}

// ExternalAuthenticate performs EXTERNAL AUTHENTICATE with the given
// command data (the encrypted+MACed challenge response in BAC), requesting
// ne bytes back.
func (r *Reader) ExternalAuthenticate(ctx context.Context, data []byte, ne int) ([]byte, error) {
	ins, err := iso7816.NewInstruction(iso7816.INS_EXTERNAL_AUTHENTICATE)
	if err != nil {
		return nil, err
	}
	cmd := iso7816.NewCommandAPDU(r.class(), ins, 0x00, 0x00, data, ne)
	respData, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !sw.IsSuccess() {
		return nil, &StatusError{Op: "external authenticate", SW: sw}
	}
	return respData, nil
}

// InternalAuthenticate performs INTERNAL AUTHENTICATE with challenge as the
// command data (used by Active Authentication), requesting ne bytes back.
func (r *Reader) InternalAuthenticate(ctx context.Context, challenge []byte, ne int) ([]byte, error) {
	ins, err := iso7816.NewInstruction(iso7816.INS_INTERNAL_AUTHENTICATE)
	if err != nil {
		return nil, err
	}
	cmd := iso7816.NewCommandAPDU(r.class(), ins, 0x00, 0x00, challenge, ne)
	respData, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !sw.IsSuccess() {
		return nil, &StatusError{Op: "internal authenticate", SW: sw}
	}
	return respData, nil
}

// MSESetAT performs MANAGE SECURITY ENVIRONMENT: SET Authentication
// Template (P1=0xC1, P2=0xA4), used to announce the PACE or CA protocol OID
// and key/parameter reference before GENERAL AUTHENTICATE.
func (r *Reader) MSESetAT(ctx context.Context, data []byte) error {
	ins, err := iso7816.NewInstruction(iso7816.INS_MANAGE_SECURITY_ENVIRONMENT)
	if err != nil {
		return err
	}
	cmd := iso7816.NewCommandAPDU(r.class(), ins, 0xC1, 0xA4, data, 0)
	_, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return err
	}
	if !sw.IsSuccess() {
		return &StatusError{Op: "MSE:SET AT", SW: sw}
	}
	return nil
}

// GeneralAuthenticate performs one round of GENERAL AUTHENTICATE carrying
// a Dynamic Authentication Data template, as used by PACE and Chip
// Authentication. chainMore marks all but the final round of a chained
// exchange (command chaining bit set in CLA).
func (r *Reader) GeneralAuthenticate(ctx context.Context, data []byte, chainMore bool) ([]byte, error) {
	ins, err := iso7816.NewInstruction(iso7816.INS_GENERAL_AUTHENTICATE)
	if err != nil {
		return nil, err
	}
	cla := r.class()
	cla.IsChained = chainMore
	cmd := iso7816.NewCommandAPDU(cla, ins, 0x00, 0x00, data, iso7816.MaxShortLe)
	respData, sw, err := r.Transmit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !sw.IsSuccess() {
		return nil, &StatusError{Op: "general authenticate", SW: sw}
	}
	return respData, nil
}
