package dict

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roadregistry/importer/internal/database"
)

// Status classifies how a dictionary entry relates to the canonical
// vocabulary. Downstream display badges entries that are not canonical.
type Status string

const (
	// StatusCanonical entries need no badge.
	StatusCanonical Status = "canonical"
	// StatusRegularized entries have an external mapping to a canonical
	// value that differs from the raw observed value.
	StatusRegularized Status = "regularized"
	// StatusUncuratedOnly entries appear only in years whose extracts
	// have not been reviewed against the canonical vocabulary.
	StatusUncuratedOnly Status = "uncurated_only"
)

// ProvenanceRecord is the computed provenance of one dictionary entry.
// It is derived on read, never persisted as primary truth.
type ProvenanceRecord struct {
	Domain         Domain `json:"domain"`
	EntryID        int64  `json:"entryId"`
	Value          string `json:"value"`
	Status         Status `json:"status"`
	CanonicalValue string `json:"canonicalValue,omitempty"`
	RecordCount    int64  `json:"recordCount"`
}

// RegularizationSource supplies raw-value to canonical-value mappings per
// domain. The mapping is maintained outside this core (a curation tool);
// an unavailable source must degrade to an empty mapping.
type RegularizationSource interface {
	Mappings(ctx context.Context, domain Domain) (map[string]string, error)
}

// SQLRegularizationSource reads mappings from a dict_regularization table
// if one exists. The table belongs to the curation tool, not to this
// schema; its absence is normal.
type SQLRegularizationSource struct {
	DB *database.DB
}

// Mappings returns the raw→canonical pairs recorded for domain.
func (s *SQLRegularizationSource) Mappings(ctx context.Context, domain Domain) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.DB.Rebind(
		`SELECT raw_value, canonical_value FROM dict_regularization WHERE domain = ?`),
		string(domain))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var raw, canonical string
		if err := rows.Scan(&raw, &canonical); err != nil {
			return nil, err
		}
		m[raw] = canonical
	}
	return m, rows.Err()
}

// factRef points at one fact-table column referencing a domain's ids.
type factRef struct {
	table  string
	column string
}

// factRefs maps each domain to the fact columns that reference it.
// Geography domains appear in both record types; counts are summed.
var factRefs = map[Domain][]factRef{
	Make:           {{"vehicles", "make_id"}},
	Model:          {{"vehicles", "model_id"}},
	Color:          {{"vehicles", "color_id"}},
	FuelType:       {{"vehicles", "fuel_type_id"}},
	Classification: {{"vehicles", "classification_id"}},
	ModelYear:      {{"vehicles", "model_year_id"}},
	CylinderCount:  {{"vehicles", "cylinder_count_id"}},
	AxleCount:      {{"vehicles", "axle_count_id"}},
	Gender:         {{"licenses", "gender_id"}},
	AgeGroup:       {{"licenses", "age_group_id"}},
	LicenseType:    {{"licenses", "license_type_id"}},
	AdminRegion:    {{"vehicles", "admin_region_id"}, {"licenses", "admin_region_id"}},
	MRC:            {{"vehicles", "mrc_id"}, {"licenses", "mrc_id"}},
	Municipality:   {{"vehicles", "municipality_id"}, {"licenses", "municipality_id"}},
}

// Tracker computes entry provenance from the configured curated/uncurated
// year partition and the external regularization mapping.
type Tracker struct {
	store          *Store
	source         RegularizationSource
	uncuratedYears map[int]bool
}

// NewTracker builds a tracker. source may be nil, which behaves like an
// always-empty mapping.
func NewTracker(store *Store, source RegularizationSource, uncuratedYears []int) *Tracker {
	set := make(map[int]bool, len(uncuratedYears))
	for _, y := range uncuratedYears {
		set[y] = true
	}
	return &Tracker{store: store, source: source, uncuratedYears: set}
}

// usage aggregates fact references for one entry id.
type usage struct {
	total     int64
	uncurated int64
}

// Classify computes provenance for every entry of a domain.
//
// A regularization mapping wins over the year heuristic: an entry that
// has been explicitly mapped is curated by definition, wherever it
// occurs. An unavailable regularization source degrades to an empty
// mapping and never fails the classification.
func (t *Tracker) Classify(ctx context.Context, domain Domain) ([]ProvenanceRecord, error) {
	entries, err := t.store.Entries(ctx, domain)
	if err != nil {
		return nil, err
	}

	mapping := map[string]string{}
	if t.source != nil {
		m, err := t.source.Mappings(ctx, domain)
		if err != nil {
			slog.Debug("regularization source unavailable, using empty mapping",
				"domain", domain, "error", err)
		} else {
			mapping = m
		}
	}

	refs, err := t.countRefs(ctx, domain)
	if err != nil {
		return nil, err
	}

	records := make([]ProvenanceRecord, 0, len(entries))
	for _, e := range entries {
		rec := ProvenanceRecord{
			Domain:  domain,
			EntryID: e.ID,
			Value:   e.Value,
			Status:  StatusCanonical,
		}
		u := refs[e.ID]
		rec.RecordCount = u.total

		if canonical, ok := mapping[e.Value]; ok && canonical != e.Value {
			rec.Status = StatusRegularized
			rec.CanonicalValue = canonical
		} else if len(t.uncuratedYears) > 0 && u.total > 0 && u.uncurated == u.total {
			rec.Status = StatusUncuratedOnly
			rec.RecordCount = u.uncurated
		}

		records = append(records, rec)
	}
	return records, nil
}

// countRefs aggregates per-entry fact row counts, split into total
// references and references tagged with uncurated years.
func (t *Tracker) countRefs(ctx context.Context, domain Domain) (map[int64]usage, error) {
	out := make(map[int64]usage)

	for _, ref := range factRefs[domain] {
		query, args := t.refQuery(ref)
		rows, err := t.store.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("count %s refs in %s: %w", domain, ref.table, err)
		}

		for rows.Next() {
			var id, unc, total int64
			if err := rows.Scan(&id, &unc, &total); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s refs: %w", domain, err)
			}
			u := out[id]
			u.total += total
			u.uncurated += unc
			out[id] = u
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// refQuery builds the grouped reference-count query for one fact column.
func (t *Tracker) refQuery(ref factRef) (string, []any) {
	if len(t.uncuratedYears) == 0 {
		return fmt.Sprintf(
			`SELECT %[1]s, 0, COUNT(*) FROM %[2]s WHERE %[1]s IS NOT NULL GROUP BY %[1]s`,
			ref.column, ref.table), nil
	}

	placeholders := make([]string, 0, len(t.uncuratedYears))
	args := make([]any, 0, len(t.uncuratedYears))
	for y := range t.uncuratedYears {
		placeholders = append(placeholders, "?")
		args = append(args, y)
	}

	query := fmt.Sprintf(
		`SELECT %[1]s,
			SUM(CASE WHEN year IN (%[3]s) THEN 1 ELSE 0 END),
			COUNT(*)
		 FROM %[2]s WHERE %[1]s IS NOT NULL GROUP BY %[1]s`,
		ref.column, ref.table, strings.Join(placeholders, ", "))
	return t.store.db.Rebind(query), args
}
