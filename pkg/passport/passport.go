// Package passport orchestrates a full eMRTD read: selecting the LDS1
// application, establishing a secure channel via PACE or BAC, running
// Chip and Active Authentication where the chip supports them, reading
// the requested data groups, and verifying the result against its
// Security Object. It sequences pkg/bac, pkg/pace, pkg/ca, pkg/aa,
// pkg/sm, pkg/tagreader and pkg/lds the way a single handshake or file
// read never needs to.
package passport

import (
	"context"

	"github.com/corverto/emrtd/pkg/lds"
	"github.com/corverto/emrtd/pkg/tagreader"
)

// Options configures a ReadDocument call. Use NewOptions for the
// documented defaults (SkipSecureElements=true, everything else false);
// the Go zero value Options{} leaves SkipSecureElements at false, since
// a bool field cannot default to true through its zero value.
type Options struct {
	// DataGroups, if non-empty, overrides the EF.COM-derived read list.
	// EF.COM and EF.SOD are always read regardless of this setting.
	DataGroups []lds.DataGroupId

	// SkipSecureElements drops DG3 (fingerprints) and DG4 (iris) from an
	// EF.COM-derived read list. Has no effect when DataGroups is set
	// explicitly. Defaults to true.
	SkipSecureElements bool

	// SkipCA disables Chip Authentication even if DG14 advertises it.
	SkipCA bool

	// SkipPACE disables PACE even if EF.CardAccess advertises it,
	// forcing Basic Access Control.
	SkipPACE bool

	// DataAmountOverride, if positive, replaces tagreader.MaxReadChunk
	// as the initial READ BINARY chunk size.
	DataAmountOverride int

	// PassiveAuthMode selects how EF.SOD's signature is verified.
	PassiveAuthMode PassiveAuthMode

	// MasterList, if non-nil, chains the document signer certificate to
	// a CSCA in it; Passive Authentication without one still checks the
	// signature and per-DG hashes.
	MasterList *lds.MasterList

	// OnDisplayMessage, if set, receives every user-visible step of the
	// read and may return a string to replace that step's default
	// English text; a nil return accepts DisplayMessage.DefaultText().
	OnDisplayMessage func(DisplayMessage) *string
}

// NewOptions returns the spec-documented defaults: SkipSecureElements
// true, every other flag false.
func NewOptions() Options {
	return Options{SkipSecureElements: true}
}

// ReadDocument runs the full read against transport, using mrzInfo (the
// MRZ's second-line key material: document number, date of birth, date
// of expiry, each with its check digit, concatenated as printed) to
// derive the BAC/PACE access keys.
//
// On any fatal failure it returns a non-nil error (always a
// *DocumentError); on success, or on a failure recovered per §4.6's
// retry/fallback policy, it returns a DocumentResult whose status fields
// describe what succeeded.
func ReadDocument(ctx context.Context, transport Transport, mrzInfo string, opts Options) (*DocumentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DocumentError{Kind: KindUserCanceled, Err: err}
	}

	if opts.OnDisplayMessage != nil {
		opts.OnDisplayMessage(DisplayMessage{Kind: DisplayRequestPresent})
	}

	if err := transport.Connect(ctx); err != nil {
		docErr := &DocumentError{Kind: KindConnectionError, Err: err}
		if opts.OnDisplayMessage != nil {
			msg := DisplayMessage{Kind: DisplayError, Err: docErr}
			if override := opts.OnDisplayMessage(msg); override != nil {
				docErr.Message = msg.resolveText(override)
			}
		}
		return nil, docErr
	}

	reader := tagreader.New(&transmitter{ctx: ctx, t: transport})
	sess := newSession(ctx, transport, reader, mrzInfo, opts)

	result, err := sess.run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, &DocumentError{Kind: KindUserCanceled, Err: ctx.Err()}
		}
		return nil, err
	}
	return result, nil
}
