package lds

import (
	"fmt"

	"github.com/corverto/emrtd/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// comTemplate is EF.COM, tag '60': the directory of which data groups the
// chip actually populates, plus the LDS/Unicode version the document was
// written against (ICAO 9303 Part 10 §4.6.1).
type comTemplate struct {
	LDSVersion     []byte `tlv:"5F01"`
	UnicodeVersion []byte `tlv:"5F36"`
	TagList        []byte `tlv:"5C"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// COM is the parsed form of EF.COM.
type COM struct {
	LDSVersion     string
	UnicodeVersion string
	DataGroupTags  []byte
}

// ParseCOM decodes EF.COM's raw content.
func ParseCOM(raw []byte) (*COM, error) {
	var t comTemplate
	if err := tlv.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("lds: parse EF.COM: %w", err)
	}
	return &COM{
		LDSVersion:     string(t.LDSVersion),
		UnicodeVersion: string(t.UnicodeVersion),
		DataGroupTags:  t.TagList,
	}, nil
}

// DataGroupIds translates the EF.COM tag list into the DataGroupId values
// the chip claims to carry, skipping any tag this package does not map to
// a numbered data group (e.g. DG17-DG19's tags, not standardized here).
func (c *COM) DataGroupIds() []DataGroupId {
	ids := make([]DataGroupId, 0, len(c.DataGroupTags))
	for _, tagByte := range c.DataGroupTags {
		for id, t := range dgTags {
			if t == tagByte {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}
