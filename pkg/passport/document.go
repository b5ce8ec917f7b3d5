package passport

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"

	"github.com/corverto/emrtd/pkg/iso7816"
	"github.com/corverto/emrtd/pkg/lds"
)

// Status is the outcome of one optional authentication step.
type Status int

const (
	StatusNotDone Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "notDone"
	}
}

// DocumentResult is the output of a single ReadDocument invocation,
// built incrementally by session.go and never mutated after return.
type DocumentResult struct {
	CardAccess     *lds.CardAccess
	ApplicationFCI *iso7816.FileControlInfo
	DataGroups     map[lds.DataGroupId]*lds.DataGroup

	BACStatus                   Status
	PACEStatus                  Status
	ChipAuthenticationStatus    Status
	ActiveAuthenticationStatus  Status
	PassiveAuthenticationStatus Status

	DocumentSigningCertificate *x509.Certificate
	VerificationErrors         []error
}

func newDocumentResult() *DocumentResult {
	return &DocumentResult{DataGroups: make(map[lds.DataGroupId]*lds.DataGroup)}
}

// Describe renders a human-readable multi-line summary, in the teacher's
// Describe() reporting idiom (iso7816.SelectResult.Describe).
func (r *DocumentResult) Describe() string {
	var b strings.Builder
	if r.ApplicationFCI != nil {
		if aid := r.ApplicationFCI.GetAID(); len(aid) > 0 {
			fmt.Fprintf(&b, "Application: %X\n", aid)
		}
	}
	fmt.Fprintf(&b, "BAC: %s, PACE: %s, ChipAuth: %s, ActiveAuth: %s, PassiveAuth: %s\n",
		r.BACStatus, r.PACEStatus, r.ChipAuthenticationStatus, r.ActiveAuthenticationStatus, r.PassiveAuthenticationStatus)

	ids := make([]lds.DataGroupId, 0, len(r.DataGroups))
	for id := range r.DataGroups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(&b, "Data groups read (%d): ", len(ids))
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "DG%d", id)
	}
	b.WriteString("\n")

	if r.DocumentSigningCertificate != nil {
		fmt.Fprintf(&b, "Document signer: %s\n", r.DocumentSigningCertificate.Subject.String())
	}
	for _, err := range r.VerificationErrors {
		fmt.Fprintf(&b, "Verification error: %v\n", err)
	}
	return b.String()
}
