package phone

import (
	"strings"
	"unicode"
)

const northAmericaDialCode = "+1"

// Normalize converts a number as typed by the user into the canonical dialable
// form expected by the provider: the calling code digits followed by the
// national number, with no separators and no trunk prefix.
//
//	Normalize("+1", "(415) 555-0100") == "14155550100"
//	Normalize("+44", "07700 900000")  == "447700900000"
//
// The dial code is required. Normalize does not validate length or reorder
// digits; use Validate when a dialable number must be guaranteed.
func Normalize(dialCode, raw string) string {
	number := stripSpaces(raw)
	if dialCode == northAmericaDialCode && strings.Contains(number, "(") {
		number = flattenAreaCode(number)
	}
	number = strings.TrimPrefix(number, "0")
	return strings.TrimPrefix(dialCode, "+") + number
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// flattenAreaCode turns "(415)555-0100" into "4155550100". Anything before the
// opening parenthesis, such as a typed "+1", is dropped.
func flattenAreaCode(number string) string {
	rest := number[strings.Index(number, "(")+1:]
	if i := strings.Index(rest, "("); i >= 0 {
		rest = rest[:i]
	}
	return strings.NewReplacer(")", "", "-", "").Replace(rest)
}
