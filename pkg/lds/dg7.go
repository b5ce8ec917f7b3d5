package lds

import "fmt"

// DG7 is the parsed displayed-signature/mark biometric data group; it
// shares DG2's CBEFF biometric-group structure, just a different outer
// tag and payload semantics.
type DG7 struct {
	Marks []BiometricInstance
}

// ParseDG7 decodes DG7's raw content.
func ParseDG7(raw []byte) (*DG7, error) {
	marks, err := parseBiometricGroup(dgTags[DG7], raw)
	if err != nil {
		return nil, fmt.Errorf("lds: parse DG7: %w", err)
	}
	return &DG7{Marks: marks}, nil
}
