package enums

import "fmt"

// MissionCategory groups generated missions by theme.
type MissionCategory string

const (
	MissionCategoryCloseness     MissionCategory = "closeness"
	MissionCategoryCommunication MissionCategory = "communication"
	MissionCategoryFun           MissionCategory = "fun"
	MissionCategoryCourage       MissionCategory = "courage"
)

var validMissionCategorys = []MissionCategory{
	MissionCategoryCloseness,
	MissionCategoryCommunication,
	MissionCategoryFun,
	MissionCategoryCourage,
}

// String implements fmt.Stringer.
func (s MissionCategory) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s MissionCategory) IsValid() bool {
	for _, candidate := range validMissionCategorys {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseMissionCategory converts raw input into a MissionCategory.
func ParseMissionCategory(value string) (MissionCategory, error) {
	for _, candidate := range validMissionCategorys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mission category %q", value)
}
