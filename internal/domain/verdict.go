package domain

import (
	"regexp"
	"strings"
)

// Verdict markers the classifier is instructed to emit.
const (
	MarkerYes = "##yes##"
	MarkerNo  = "##no##"
)

// markerPattern matches a verdict marker anywhere in free text. Markers
// are strict: no whitespace is allowed between the hashes and the word.
var markerPattern = regexp.MustCompile(`(?i)##(yes|no)##`)

// Verdict is the decision extracted from a classifier response.
type Verdict struct {
	// Accepted is true only for an unambiguous "yes".
	Accepted bool `json:"accepted"`

	// Raw is the full classifier output, kept verbatim for audit.
	Raw string `json:"raw"`
}

// ParseVerdict extracts a verdict from unstructured model text.
//
// The text is accepted iff it contains at least one ##yes## marker and no
// ##no## marker (case-insensitive). Missing markers and mixed markers are
// treated as not accepted. ParseVerdict never fails.
func ParseVerdict(raw string) Verdict {
	v := Verdict{Raw: raw}

	var yes, no bool
	for _, m := range markerPattern.FindAllStringSubmatch(raw, -1) {
		switch strings.ToLower(m[1]) {
		case "yes":
			yes = true
		case "no":
			no = true
		}
	}

	v.Accepted = yes && !no
	return v
}
