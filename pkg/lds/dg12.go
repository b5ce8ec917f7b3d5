package lds

import (
	"fmt"

	"github.com/corverto/emrtd/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// dg12Template is DG12, tag '6C': additional document detail fields
// (ICAO 9303 Part 10 §4.6.2), issuing-state metadata rather than holder
// metadata.
type dg12Template struct {
	TagList               []byte `tlv:"5C"`
	IssuingAuthority      []byte `tlv:"5F19"`
	DateOfIssue           []byte `tlv:"5F26"`
	Endorsements          []byte `tlv:"5F1B"`
	TaxExitRequirements   []byte `tlv:"5F1C"`
	PersonalizationDate   []byte `tlv:"5F55"`
	PersonalizationSerial []byte `tlv:"5F56"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// DG12 is the parsed additional-document-details data group.
type DG12 struct {
	IssuingAuthority      string
	DateOfIssue           string
	Endorsements          string
	PersonalizationDate   string
	PersonalizationSerial string
}

// ParseDG12 decodes DG12's raw content.
func ParseDG12(raw []byte) (*DG12, error) {
	var t dg12Template
	if err := tlv.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("lds: parse DG12: %w", err)
	}
	return &DG12{
		IssuingAuthority:      string(t.IssuingAuthority),
		DateOfIssue:           string(t.DateOfIssue),
		Endorsements:          string(t.Endorsements),
		PersonalizationDate:   string(t.PersonalizationDate),
		PersonalizationSerial: string(t.PersonalizationSerial),
	}, nil
}
