package lds

import (
	"fmt"

	"github.com/corverto/emrtd/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// biometricHeaderTemplate is the CBEFF Biometric Header Template (BHT),
// tag 'A1', carried ahead of every biometric data block (ICAO 9303 Part
// 10 §4.6's biometric data group structure, CBEFF per ISO/IEC 19785-1).
type biometricHeaderTemplate struct {
	ICAOHeaderVersion []byte `tlv:"80"`
	BiometricType     []byte `tlv:"81"`
	BiometricSubtype  []byte `tlv:"82"`
	CreationDate      []byte `tlv:"83"`
	ValidityPeriod    []byte `tlv:"85"`
	FormatOwner       []byte `tlv:"86"`
	FormatType        []byte `tlv:"87"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// biometricInformationTemplate is one instance, tag '7F60': a header plus
// its raw data block. The data block tag varies (5F2E plain, 7F2E
// BIT-wrapped); this package only keeps the raw bytes, no image codec.
type biometricInformationTemplate struct {
	Header   biometricHeaderTemplate `tlv:"A1"`
	DataTag5 []byte                  `tlv:"5F2E"`
	DataTag7 []byte                  `tlv:"7F2E"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// biometricGroupTemplate is the outer wrapper, tag '7F61', grouping one or
// more biometric instances (several faces/fingerprints can share a DG).
type biometricGroupTemplate struct {
	InstanceCount []byte                         `tlv:"02"`
	Instances     []biometricInformationTemplate `tlv:"7F60"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// BiometricInstance is one parsed biometric record: its CBEFF header
// fields and the raw, uninterpreted encoded data block (JPEG/JPEG2000 for
// face images, WSQ for fingerprints — decoding the image itself is out of
// scope here).
type BiometricInstance struct {
	FormatOwner      []byte
	FormatType       []byte
	BiometricType    []byte
	BiometricSubtype []byte
	CreationDate     []byte
	Data             []byte
}

func parseBiometricGroup(outerTag byte, raw []byte) ([]BiometricInstance, error) {
	packets, err := bertlv.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("lds: decode biometric group: %w", err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("lds: biometric group: empty TLV")
	}
	wantTag := fmt.Sprintf("%02X", outerTag)
	if packets[0].Tag != wantTag {
		return nil, fmt.Errorf("lds: biometric group: unexpected outer tag %s, want %s", packets[0].Tag, wantTag)
	}

	groupTLVs := packets[0].TLVs
	for _, child := range packets[0].TLVs {
		if child.Tag == "7F61" {
			groupTLVs = child.TLVs
			break
		}
	}

	var group biometricGroupTemplate
	if err := tlv.UnmarshalFromPackets(groupTLVs, &group); err != nil {
		return nil, fmt.Errorf("lds: parse biometric group: %w", err)
	}

	out := make([]BiometricInstance, 0, len(group.Instances))
	for _, inst := range group.Instances {
		data := inst.DataTag5
		if len(data) == 0 {
			data = inst.DataTag7
		}
		out = append(out, BiometricInstance{
			FormatOwner:      inst.Header.FormatOwner,
			FormatType:       inst.Header.FormatType,
			BiometricType:    inst.Header.BiometricType,
			BiometricSubtype: inst.Header.BiometricSubtype,
			CreationDate:     inst.Header.CreationDate,
			Data:             data,
		})
	}
	return out, nil
}

// DG2 is the parsed facial biometric data group.
type DG2 struct {
	Faces []BiometricInstance
}

// ParseDG2 decodes DG2's raw content.
func ParseDG2(raw []byte) (*DG2, error) {
	faces, err := parseBiometricGroup(dgTags[DG2], raw)
	if err != nil {
		return nil, fmt.Errorf("lds: parse DG2: %w", err)
	}
	return &DG2{Faces: faces}, nil
}
