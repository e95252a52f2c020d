package deployment

import (
	"regexp"
	"strconv"
	"strings"
)

// CodeMatch is how a vendor cost-control code relates to a deployment.
type CodeMatch int

const (
	// CodeOther names a different deployment, or nothing recognizable.
	CodeOther CodeMatch = iota
	// CodeMatched names this deployment.
	CodeMatched
	// CodeExcluded says the row has no deployment (blank, NONE, synthesized
	// placeholder rows). Such rows are noise for every deployment.
	CodeExcluded
)

func (c CodeMatch) String() string {
	switch c {
	case CodeMatched:
		return "matched"
	case CodeExcluded:
		return "excluded"
	default:
		return "other"
	}
}

// drTaggedPattern finds a DR-prefixed code anywhere in the free text, as in
// "Red Cross DR155-22" or "ARC DR #155".
var drTaggedPattern = regexp.MustCompile(`(?i)\bDR\s*#?\s*(\d{1,4})(?:\s*[-/ ]\s*(?:20)?(\d{2}))?\b`)

// drLeadingPattern accepts an untagged number only at the start of the code:
// 155-22, 155-2022, #0155/22.
var drLeadingPattern = regexp.MustCompile(`^\s*#?\s*(\d{1,4})(?:\s*[-/ ]\s*(?:20)?(\d{2}))?\b`)

var excludedCodes = map[string]bool{
	"":      true,
	"NONE":  true,
	"N/A":   true,
	"NA":    true,
	"NO DR": true,
	"NODR":  true,
	"TBD":   true,
}

// IsExcludedCode reports whether a cost-control code says the rental
// belongs to no deployment.
func IsExcludedCode(code string) bool {
	c := strings.ToUpper(strings.Join(strings.Fields(code), " "))
	return excludedCodes[c] || strings.HasPrefix(c, "SYNTH")
}

// ParseCode extracts the DR number and two-digit year from a cost-control
// code. A DR tag anywhere in the text wins over a bare leading number. year
// is empty when the code omits it.
func ParseCode(code string) (number int, year string, ok bool) {
	m := drTaggedPattern.FindStringSubmatch(code)
	if m == nil {
		m = drLeadingPattern.FindStringSubmatch(code)
	}
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, m[2], true
}

// MatchCode classifies a cost-control code against the deployment. Leading
// zeros on the DR number are ignored; a code without a year matches any
// year.
func (d *Deployment) MatchCode(code *string) CodeMatch {
	if code == nil || IsExcludedCode(*code) {
		return CodeExcluded
	}

	number, year, ok := ParseCode(*code)
	if !ok {
		return CodeOther
	}
	want, err := strconv.Atoi(d.Number)
	if err != nil || number != want {
		return CodeOther
	}
	if year != "" && year != d.Year {
		return CodeOther
	}
	return CodeMatched
}
