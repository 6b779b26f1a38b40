// Package charset resolves the text encoding of legacy registry extracts.
//
// The source files span many years of exports from administrative systems
// and arrive in UTF-8, ISO 8859-1, or Windows-1252 depending on the era.
// Candidates are tried in that order; the first one that decodes cleanly
// AND produces at least one French accented character wins. The accent
// check matters because ISO 8859-1 will happily "decode" any byte stream,
// so success alone proves nothing about having picked the right table.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrUnresolvable is returned when no candidate encoding both decodes the
// input and yields a recognized accented character. Header and column
// layout cannot be trusted under a wrong decoding, so callers must abort
// the import rather than attempt partial recovery.
var ErrUnresolvable = errors.New("unable to resolve text encoding")

// utf8BOM is the UTF-8 byte order mark commonly added by Windows exports.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// diagnosticRunes are accented characters expected in French-language
// extracts (region names, makes, colors). At least one must appear in a
// candidate's output for the decoding to be accepted.
const diagnosticRunes = "éèêëàâçîïôûùüÉÈÊËÀÂÇÎÏÔÛÙÜ"

// Candidate is one encoding to try, in priority order.
type Candidate struct {
	Name string
	// cm is nil for UTF-8, which is validated rather than transcoded.
	cm *charmap.Charmap
}

// DefaultCandidates returns the negotiation order for registry extracts.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Name: "utf-8"},
		{Name: "iso-8859-1", cm: charmap.ISO8859_1},
		{Name: "windows-1252", cm: charmap.Windows1252},
	}
}

// Resolve decodes data using the first candidate that succeeds.
// It returns the decoded text and the name of the winning encoding.
func Resolve(data []byte, candidates []Candidate) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	for _, c := range candidates {
		text, ok := decode(data, c)
		if !ok {
			continue
		}
		if !containsDiagnostic(text) {
			continue
		}
		return text, c.Name, nil
	}

	return "", "", fmt.Errorf("%w: tried %s", ErrUnresolvable, candidateNames(candidates))
}

// decode attempts one candidate. A decoding that produces the Unicode
// replacement character is treated as a failure: for single-byte tables
// that is how x/text reports bytes with no assigned code point.
func decode(data []byte, c Candidate) (string, bool) {
	if c.cm == nil {
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	}

	out, err := c.cm.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// containsDiagnostic reports whether text holds at least one accented
// character from the diagnostic set.
func containsDiagnostic(text string) bool {
	return strings.ContainsAny(text, diagnosticRunes)
}

func candidateNames(candidates []Candidate) string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
