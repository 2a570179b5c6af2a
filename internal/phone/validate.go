package phone

import (
	"errors"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidNumber is returned when a canonical number is not dialable.
var ErrInvalidNumber = errors.New("invalid phone number")

// E164 returns the canonical number with its leading "+".
func E164(canonical string) string {
	return "+" + canonical
}

// IsCanonical reports whether s has the canonical shape: 1 to 15 ASCII
// digits. It says nothing about whether the number is dialable.
func IsCanonical(s string) bool {
	if len(s) == 0 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Validate checks a canonical number against libphonenumber metadata.
// Normalize never validates; callers that need a dialable number opt in here.
func Validate(canonical string) error {
	if !IsCanonical(canonical) {
		return ErrInvalidNumber
	}
	num, err := phonenumbers.Parse(E164(canonical), "")
	if err != nil {
		return ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(num) {
		return ErrInvalidNumber
	}
	return nil
}

// Country returns the ISO 3166-1 alpha-2 region of a canonical number, or ""
// when it cannot be determined.
func Country(canonical string) string {
	num, err := phonenumbers.Parse(E164(canonical), "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}
