// Package parse turns decoded registry extracts into header-keyed records.
//
// The package owns the line-level CSV tokenizer, the mojibake repair table
// for double-encoded accents, the chunk scheduler that partitions data
// lines for parallel work, and the worker-pool engine that parses chunks
// concurrently while reporting live progress.
package parse

import "strings"

// Record maps a column header to its raw string value for one input line.
// Records are ephemeral: they exist between the parse phase and the batch
// importer, and are never persisted as-is.
type Record map[string]string

// ParseLine tokenizes one CSV line into trimmed fields.
//
// A double quote toggles quoted state; commas inside quoted runs do not
// split. Quote characters themselves are not emitted. The trailing field
// is always produced, even when the line does not end in a separator.
func ParseLine(line string) []string {
	fields := make([]string, 0, 20)
	var field strings.Builder
	quoted := false

	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(field.String()))

	return fields
}

// ParseRecord tokenizes line and keys the fields by the given headers.
//
// The field count must equal the header count exactly; otherwise the line
// is rejected and ok is false. Callers treat a rejection as a recoverable
// warning, not a fatal error. Field values carrying the mojibake signature
// are repaired; clean values pass through untouched.
func ParseRecord(line string, headers []string) (Record, bool) {
	fields := ParseLine(line)
	if len(fields) != len(headers) {
		return nil, false
	}

	rec := make(Record, len(headers))
	for i, h := range headers {
		rec[h] = Repair(fields[i])
	}
	return rec, true
}

// SplitLines splits decoded file text into trimmed, non-empty lines.
// Windows line endings are tolerated.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
