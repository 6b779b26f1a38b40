package parse

import "strings"

// mojibakeSignature marks values that were UTF-8 encoded twice somewhere
// upstream: every corrupted accent sequence starts with 'Ã' or 'Â'.
// Checking for the signature first keeps clean data off the repair path.
const mojibakeSignature = "Ã"

// mojibakeRepairs maps known double-encoded sequences to the characters
// they were meant to be. The table covers the accents that actually occur
// in the registry vocabularies (place names, makes, colors); it is not a
// general-purpose transcoder.
var mojibakeRepairs = []struct {
	corrupted string
	fixed     string
}{
	{"Ã©", "é"},
	{"Ã¨", "è"},
	{"Ãª", "ê"},
	{"Ã«", "ë"},
	{"Ã¢", "â"},
	{"Ã®", "î"},
	{"Ã¯", "ï"},
	{"Ã´", "ô"},
	{"Ã»", "û"},
	{"Ã¹", "ù"},
	{"Ã¼", "ü"},
	{"Ã§", "ç"},
	{"Ã‰", "É"},
	{"Ãˆ", "È"},
	{"ÃŠ", "Ê"},
	{"Ã‚", "Â"},
	{"ÃŽ", "Î"},
	{"Ã”", "Ô"},
	{"Ã‡", "Ç"},
	// 'à' double-encodes to 0xC3 0xA0: 'Ã' followed by a non-breaking space.
	{"Ã ", "à"},
}

// Repair fixes known double-encoded accent sequences in v.
// Values without the mojibake signature are returned unchanged without
// scanning the table.
func Repair(v string) string {
	if !strings.Contains(v, mojibakeSignature) {
		return v
	}
	for _, r := range mojibakeRepairs {
		v = strings.ReplaceAll(v, r.corrupted, r.fixed)
	}
	return v
}

// HasMojibake reports whether v still carries the corruption signature.
// The dictionary lookup uses this to decide whether its substring fallback
// is allowed to run.
func HasMojibake(v string) bool {
	return strings.Contains(v, mojibakeSignature)
}
