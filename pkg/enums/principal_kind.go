package enums

import "fmt"

// PrincipalKind distinguishes authenticated users from anonymous sessions.
type PrincipalKind string

const (
	PrincipalKindUser    PrincipalKind = "user"
	PrincipalKindSession PrincipalKind = "session"
)

var validPrincipalKinds = []PrincipalKind{
	PrincipalKindUser,
	PrincipalKindSession,
}

// String implements fmt.Stringer.
func (s PrincipalKind) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PrincipalKind) IsValid() bool {
	for _, candidate := range validPrincipalKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePrincipalKind converts raw input into a PrincipalKind.
func ParsePrincipalKind(value string) (PrincipalKind, error) {
	for _, candidate := range validPrincipalKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid principal kind %q", value)
}
