package phone

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Region names used to group calling codes for pickers.
const (
	RegionNorthAmerica   = "northern_america"
	RegionWesternEurope  = "western_europe"
	RegionNorthernEurope = "northern_europe"
	RegionSouthernEurope = "southern_europe"
)

// ErrUnknownDialCode is returned when a canonical number does not start with
// any dial code from the reference table.
var ErrUnknownDialCode = errors.New("unknown dial code")

// CallingCode pairs a country with its international dial code.
type CallingCode struct {
	Alpha3   string `json:"country_code"`
	Alpha2   string `json:"-"`
	DialCode string `json:"calling_code"`
	Region   string `json:"region"`
}

type country struct{ alpha2, alpha3 string }

var regions = []struct {
	name      string
	countries []country
}{
	{RegionNorthAmerica, []country{
		{"BM", "BMU"}, {"CA", "CAN"}, {"GL", "GRL"}, {"PM", "SPM"}, {"US", "USA"},
	}},
	{RegionWesternEurope, []country{
		{"AT", "AUT"}, {"BE", "BEL"}, {"CH", "CHE"}, {"DE", "DEU"}, {"FR", "FRA"},
		{"LI", "LIE"}, {"LU", "LUX"}, {"MC", "MCO"}, {"NL", "NLD"},
	}},
	{RegionNorthernEurope, []country{
		{"AX", "ALA"}, {"DK", "DNK"}, {"EE", "EST"}, {"FI", "FIN"}, {"FO", "FRO"},
		{"GB", "GBR"}, {"GG", "GGY"}, {"IE", "IRL"}, {"IM", "IMN"}, {"IS", "ISL"},
		{"JE", "JEY"}, {"LT", "LTU"}, {"LV", "LVA"}, {"NO", "NOR"}, {"SE", "SWE"},
		{"SJ", "SJM"},
	}},
	{RegionSouthernEurope, []country{
		{"AD", "AND"}, {"AL", "ALB"}, {"BA", "BIH"}, {"ES", "ESP"}, {"GI", "GIB"},
		{"GR", "GRC"}, {"HR", "HRV"}, {"IT", "ITA"}, {"ME", "MNE"}, {"MK", "MKD"},
		{"MT", "MLT"}, {"PT", "PRT"}, {"RS", "SRB"}, {"SI", "SVN"}, {"SM", "SMR"},
		{"VA", "VAT"},
	}},
}

var popular = []string{"GBR", "USA", "CAN", "FRA", "DEU", "IRL", "NOR"}

var (
	table    = buildTable()
	byAlpha3 = indexByAlpha3(table)
	// dial code digits, longest first, for prefix matching in Split
	dialDigits = distinctDialDigits(table)
)

func buildTable() []CallingCode {
	var out []CallingCode
	for _, region := range regions {
		for _, c := range region.countries {
			code := phonenumbers.GetCountryCodeForRegion(c.alpha2)
			if code == 0 {
				continue
			}
			out = append(out, CallingCode{
				Alpha3:   c.alpha3,
				Alpha2:   c.alpha2,
				DialCode: fmt.Sprintf("+%d", code),
				Region:   region.name,
			})
		}
	}
	return out
}

func indexByAlpha3(codes []CallingCode) map[string]CallingCode {
	idx := make(map[string]CallingCode, len(codes))
	for _, c := range codes {
		idx[c.Alpha3] = c
	}
	return idx
}

func distinctDialDigits(codes []CallingCode) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range codes {
		d := strings.TrimPrefix(c.DialCode, "+")
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// CallingCodes returns the reference table grouped by region. The returned
// slice is a copy.
func CallingCodes() []CallingCode {
	return append([]CallingCode(nil), table...)
}

// Popular returns the short list of calling codes shown first in pickers.
func Popular() []CallingCode {
	out := make([]CallingCode, 0, len(popular))
	for _, alpha3 := range popular {
		if c, ok := byAlpha3[alpha3]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Lookup finds a calling code by ISO 3166-1 alpha-3 country code.
func Lookup(alpha3 string) (CallingCode, bool) {
	c, ok := byAlpha3[strings.ToUpper(alpha3)]
	return c, ok
}

// Split recovers the dial code and national number from a canonical number.
// Several countries share a dial code (USA and CAN both use +1); the dial
// code returned is the "+"-prefixed string, not a country.
func Split(canonical string) (dialCode, national string, err error) {
	for _, d := range dialDigits {
		if strings.HasPrefix(canonical, d) && len(canonical) > len(d) {
			return "+" + d, canonical[len(d):], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownDialCode, canonical)
}
