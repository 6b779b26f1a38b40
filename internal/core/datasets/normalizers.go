package datasets

import (
	"context"
	"strconv"
	"strings"

	"github.com/roadregistry/importer/internal/dict"
)

// FlagValue converts a published indicator column to a boolean.
// The extracts use "OUI" for true; any other value, including empty,
// means false.
func FlagValue(v string) bool {
	return strings.TrimSpace(v) == "OUI"
}

// NormalizeGeography canonicalizes a geography label so the same place
// resolves to the same dictionary entry across extract years. Older
// extracts drop the space before the parenthesized code
// ("Capitale-Nationale(03)"); the canonical form has exactly one.
func NormalizeGeography(v string) string {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "(") {
		return v
	}
	out := make([]byte, 0, len(v)+1)
	for i := 0; i < len(v); i++ {
		if v[i] == '(' {
			for len(out) > 0 && out[len(out)-1] == ' ' {
				out = out[:len(out)-1]
			}
			if len(out) > 0 {
				out = append(out, ' ')
			}
		}
		out = append(out, v[i])
	}
	return string(out)
}

// intOrNil parses an integer column, mapping empty or malformed values
// to NULL rather than rejecting the record.
func intOrNil(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return n
}

// optionalID resolves an open-domain column, mapping empty to NULL.
func optionalID(ctx context.Context, dicts *dict.Store, domain dict.Domain, v string) (any, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	id, err := dicts.GetOrCreate(ctx, domain, v)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// defaultID resolves a domain's documented default, creating it on first
// use for domains that carry no seed.
func defaultID(ctx context.Context, dicts *dict.Store, domain dict.Domain, code string) (int64, error) {
	if id, ok := dicts.DefaultID(domain); ok {
		return id, nil
	}
	return dicts.GetOrCreate(ctx, domain, code)
}
