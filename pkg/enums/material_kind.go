package enums

import "fmt"

// MaterialKind separates the two catalog tiers.
type MaterialKind string

const (
	MaterialKindBase     MaterialKind = "base"
	MaterialKindFinished MaterialKind = "finished"
)

var validMaterialKinds = []MaterialKind{
	MaterialKindBase,
	MaterialKindFinished,
}

// String implements fmt.Stringer.
func (k MaterialKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known MaterialKind.
func (k MaterialKind) IsValid() bool {
	for _, candidate := range validMaterialKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseMaterialKind converts raw input into a MaterialKind.
func ParseMaterialKind(value string) (MaterialKind, error) {
	for _, candidate := range validMaterialKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid material kind %q", value)
}
