package lds

import (
	"fmt"

	"github.com/corverto/emrtd/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// dg11Template is DG11, tag '6B': additional personal detail fields not
// captured by the MRZ itself (ICAO 9303 Part 10 §4.6.2, optional per-field
// tag list at 5C gates which of these actually appear).
type dg11Template struct {
	TagList          []byte `tlv:"5C"`
	FullName         []byte `tlv:"5F0E"`
	OtherNames       []byte `tlv:"5F0F"`
	PersonalNumber   []byte `tlv:"5F10"`
	DateOfBirthFull  []byte `tlv:"5F2B"`
	PlaceOfBirth     []byte `tlv:"5F11"`
	Address          []byte `tlv:"5F42"`
	Telephone        []byte `tlv:"5F12"`
	Profession       []byte `tlv:"5F13"`
	Title            []byte `tlv:"5F14"`
	PersonalSummary  []byte `tlv:"5F15"`
	ProofOfCitizen   []byte `tlv:"5F16"`
	OtherTravelDocNo []byte `tlv:"5F17"`
	CustodyInfo      []byte `tlv:"5F18"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// DG11 is the parsed additional-personal-details data group.
type DG11 struct {
	FullName         string
	OtherNames       string
	PersonalNumber   string
	DateOfBirthFull  string
	PlaceOfBirth     string
	Address          string
	Telephone        string
	Profession       string
	Title            string
	PersonalSummary  string
	OtherTravelDocNo string
}

// ParseDG11 decodes DG11's raw content. Every field is optional; a
// document populates only the subset its TagList (5C) advertises.
func ParseDG11(raw []byte) (*DG11, error) {
	var t dg11Template
	if err := tlv.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("lds: parse DG11: %w", err)
	}
	return &DG11{
		FullName:         string(t.FullName),
		OtherNames:       string(t.OtherNames),
		PersonalNumber:   string(t.PersonalNumber),
		DateOfBirthFull:  string(t.DateOfBirthFull),
		PlaceOfBirth:     string(t.PlaceOfBirth),
		Address:          string(t.Address),
		Telephone:        string(t.Telephone),
		Profession:       string(t.Profession),
		Title:            string(t.Title),
		PersonalSummary:  string(t.PersonalSummary),
		OtherTravelDocNo: string(t.OtherTravelDocNo),
	}, nil
}
