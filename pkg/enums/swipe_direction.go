package enums

import "fmt"

// SwipeDirection records how a user dismissed a mission in the daily feed.
type SwipeDirection string

const (
	SwipeDirectionLeft  SwipeDirection = "left"
	SwipeDirectionRight SwipeDirection = "right"
)

var validSwipeDirections = []SwipeDirection{
	SwipeDirectionLeft,
	SwipeDirectionRight,
}

// String implements fmt.Stringer.
func (s SwipeDirection) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SwipeDirection) IsValid() bool {
	for _, candidate := range validSwipeDirections {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSwipeDirection converts raw input into a SwipeDirection.
func ParseSwipeDirection(value string) (SwipeDirection, error) {
	for _, candidate := range validSwipeDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid swipe direction %q", value)
}
