package lds

import (
	"encoding/asn1"
	"fmt"

	"github.com/corverto/emrtd/pkg/pace"
)

// PACEInfo is one PACE capability EF.CardAccess advertises: which
// Diffie-Hellman family/cipher the chip supports and, for chips with more
// than one domain-parameter set, which one this entry describes.
type PACEInfo struct {
	Protocol    pace.Protocol
	Version     int
	ParameterID int
	HasParamID  bool
}

type paceInfoASN1 struct {
	Protocol    asn1.ObjectIdentifier
	Version     int
	ParameterID int `asn1:"optional"`
}

func parsePACEInfo(full []byte, oid asn1.ObjectIdentifier) (PACEInfo, error) {
	proto, ok := pace.ProtocolByOID(oid)
	if !ok {
		return PACEInfo{}, fmt.Errorf("lds: not a PACE OID: %v", oid)
	}

	var v paceInfoASN1
	if _, err := asn1.Unmarshal(full, &v); err != nil {
		return PACEInfo{}, fmt.Errorf("lds: parse PACEInfo: %w", err)
	}

	return PACEInfo{
		Protocol:    proto,
		Version:     v.Version,
		ParameterID: v.ParameterID,
		HasParamID:  v.ParameterID != 0,
	}, nil
}

// CardAccess is the parsed EF.CardAccess: the set of PACE protocols (and
// optionally Chip Authentication) the chip advertises before any secure
// channel exists, read in the clear during the initial SELECT (ICAO 9303
// Part 11 §4.2).
type CardAccess struct {
	PACE                     []PACEInfo
	ChipAuthentication       []ChipAuthenticationInfo
	ChipAuthenticationPublic []ChipAuthenticationPublicKeyInfo
}

// ParseCardAccess decodes EF.CardAccess's raw content. Unlike the
// numbered data groups, EF.CardAccess carries the SecurityInfos DER
// directly with no LDS application tag wrapper.
func ParseCardAccess(raw []byte) (*CardAccess, error) {
	infos, err := ParseSecurityInfos(raw)
	if err != nil {
		return nil, fmt.Errorf("lds: parse EF.CardAccess: %w", err)
	}
	return &CardAccess{
		PACE:                     infos.PACE,
		ChipAuthentication:       infos.ChipAuthentication,
		ChipAuthenticationPublic: infos.ChipAuthenticationPublic,
	}, nil
}
