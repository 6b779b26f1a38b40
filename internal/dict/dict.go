// Package dict implements the categorical dictionaries that deduplicate
// free-text registry values into stable integer surrogate ids.
//
// One dictionary exists per categorical domain (make, model, color, ...).
// Closed domains are seeded from compiled-in canonical vocabularies; open
// domains grow as new distinct values are observed during imports. Ids are
// immutable once assigned and are never reassigned to a different value.
//
// All reads during an import go through an in-memory cache owned by the
// writer context; parse workers never touch the dictionaries.
package dict

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/parse"
)

// Domain identifies one categorical dictionary.
type Domain string

const (
	Make           Domain = "make"
	Model          Domain = "model"
	Color          Domain = "color"
	FuelType       Domain = "fuel_type"
	Classification Domain = "classification"
	AdminRegion    Domain = "admin_region"
	MRC            Domain = "mrc"
	Municipality   Domain = "municipality"
	AgeGroup       Domain = "age_group"
	Gender         Domain = "gender"
	LicenseType    Domain = "license_type"
	Year           Domain = "year"
	ModelYear      Domain = "model_year"
	CylinderCount  Domain = "cylinder_count"
	AxleCount      Domain = "axle_count"
)

// spec describes one domain's table, optional parent dependency, optional
// canonical seed, and optional documented default code.
type spec struct {
	table       string
	parent      Domain
	seed        []VocabEntry
	defaultCode string
}

var specs = map[Domain]spec{
	Make:           {table: "makes"},
	Model:          {table: "models", parent: Make},
	Color:          {table: "colors", defaultCode: "INCONNUE"},
	FuelType:       {table: "fuel_types", seed: fuelTypeSeed, defaultCode: "NP"},
	Classification: {table: "classifications", seed: classificationSeed},
	AdminRegion:    {table: "admin_regions"},
	MRC:            {table: "mrcs"},
	Municipality:   {table: "municipalities"},
	AgeGroup:       {table: "age_groups", seed: ageGroupSeed},
	Gender:         {table: "genders", seed: genderSeed},
	LicenseType:    {table: "license_types", seed: licenseTypeSeed},
	Year:           {table: "years"},
	ModelYear:      {table: "model_years"},
	CylinderCount:  {table: "cylinder_counts"},
	AxleCount:      {table: "axle_counts"},
}

// populateOrder lists domains so that every parent precedes its
// dependents: models reference makes and must come after them.
var populateOrder = []Domain{
	Make, Model, Color, FuelType, Classification,
	AdminRegion, MRC, Municipality,
	AgeGroup, Gender, LicenseType,
	Year, ModelYear, CylinderCount, AxleCount,
}

// Domains returns every dictionary domain in population order.
func Domains() []Domain {
	out := make([]Domain, len(populateOrder))
	copy(out, populateOrder)
	return out
}

// ParseDomain maps a string to a known Domain.
func ParseDomain(s string) (Domain, bool) {
	d := Domain(s)
	_, ok := specs[d]
	return d, ok
}

// Entry is one dictionary row.
type Entry struct {
	ID          int64
	Value       string
	Description string
	// ParentID is non-zero only for dependent domains (a model's make).
	ParentID int64
}

// Store manages all dictionary tables through one database handle.
type Store struct {
	db *database.DB

	mu    sync.RWMutex
	cache map[Domain]map[string]int64
}

// New creates a Store bound to db. Call CreateSchema and Populate before
// the first import.
func New(db *database.DB) *Store {
	return &Store{
		db:    db,
		cache: make(map[Domain]map[string]int64),
	}
}

// CreateSchema ensures one table per domain exists. Parent tables are
// created before dependent ones so the foreign key can be declared.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, d := range populateOrder {
		sp := specs[d]
		var stmt string
		if sp.parent != "" {
			stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id %s,
				value TEXT NOT NULL,
				description TEXT,
				parent_id INTEGER NOT NULL REFERENCES %s(id),
				UNIQUE(value, parent_id)
			)`, sp.table, s.db.SerialPK(), specs[sp.parent].table)
		} else {
			stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id %s,
				value TEXT NOT NULL,
				description TEXT,
				UNIQUE(value)
			)`, sp.table, s.db.SerialPK())
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create dictionary %s: %w", d, err)
		}
	}
	return nil
}

// Populate seeds the closed vocabularies and backfills observed years, in
// dependency order, then reloads the lookup cache. Idempotent: re-running
// against existing data creates no duplicates and changes no ids.
func (s *Store) Populate(ctx context.Context) error {
	for _, d := range populateOrder {
		sp := specs[d]
		for _, v := range sp.seed {
			_, err := s.db.ExecContext(ctx, s.db.Rebind(fmt.Sprintf(
				`INSERT INTO %s (value, description) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				sp.table)), v.Code, v.Description)
			if err != nil {
				return fmt.Errorf("seed %s %q: %w", d, v.Code, err)
			}
		}
	}

	// The year dictionary is the one open domain whose raw values survive
	// in the fact tables; backfill any year present in data but missing
	// from the dictionary, ordered for deterministic id assignment.
	for _, fact := range []string{"vehicles", "licenses"} {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO years (value)
			 SELECT DISTINCT CAST(f.year AS TEXT) FROM %s f
			 WHERE NOT EXISTS (SELECT 1 FROM years y WHERE y.value = CAST(f.year AS TEXT))
			 ORDER BY 1`, fact))
		if err != nil {
			return fmt.Errorf("backfill years from %s: %w", fact, err)
		}
	}

	return s.ReloadCache(ctx)
}

// ReloadCache rebuilds the in-memory value→id maps from storage.
func (s *Store) ReloadCache(ctx context.Context) error {
	fresh := make(map[Domain]map[string]int64, len(specs))

	for _, d := range populateOrder {
		sp := specs[d]
		m := make(map[string]int64)

		var rows *sql.Rows
		var err error
		if sp.parent != "" {
			rows, err = s.db.QueryContext(ctx,
				fmt.Sprintf(`SELECT id, value, parent_id FROM %s`, sp.table))
		} else {
			rows, err = s.db.QueryContext(ctx,
				fmt.Sprintf(`SELECT id, value FROM %s`, sp.table))
		}
		if err != nil {
			return fmt.Errorf("load %s cache: %w", d, err)
		}

		for rows.Next() {
			var id int64
			var value string
			if sp.parent != "" {
				var parentID int64
				if err := rows.Scan(&id, &value, &parentID); err != nil {
					rows.Close()
					return fmt.Errorf("scan %s: %w", d, err)
				}
				m[cacheKey(value, parentID)] = id
			} else {
				if err := rows.Scan(&id, &value); err != nil {
					rows.Close()
					return fmt.Errorf("scan %s: %w", d, err)
				}
				m[cacheKey(value, 0)] = id
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate %s: %w", d, err)
		}
		rows.Close()

		fresh[d] = m
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

// cacheKey builds the cache key for (value, parentID). Independent
// domains use parentID 0.
func cacheKey(value string, parentID int64) string {
	if parentID == 0 {
		return value
	}
	return value + "\x00" + strconv.FormatInt(parentID, 10)
}

// Lookup resolves value to its surrogate id in an independent domain.
//
// Strategies, in order: exact match; match after trimming surrounding
// whitespace; and, only for values still carrying the mojibake signature,
// a substring match as a last-resort recovery for encoding artifacts.
// Restricting the fuzzy step to corrupted values bounds the risk of two
// distinct clean values collapsing onto one id.
func (s *Store) Lookup(domain Domain, value string) (int64, bool) {
	return s.lookup(domain, value, 0)
}

// LookupModel resolves a model value under its make.
func (s *Store) LookupModel(value string, makeID int64) (int64, bool) {
	return s.lookup(Model, value, makeID)
}

func (s *Store) lookup(domain Domain, value string, parentID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.cache[domain]
	if m == nil {
		return 0, false
	}

	if id, ok := m[cacheKey(value, parentID)]; ok {
		return id, true
	}

	trimmed := strings.TrimSpace(value)
	if trimmed != value {
		if id, ok := m[cacheKey(trimmed, parentID)]; ok {
			return id, true
		}
	}

	if !parse.HasMojibake(trimmed) {
		return 0, false
	}

	// Deterministic fuzzy pass: sorted keys, first containment match.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entryValue, entryParent := splitCacheKey(k)
		if entryParent != parentID {
			continue
		}
		if strings.Contains(entryValue, trimmed) || strings.Contains(trimmed, entryValue) {
			return m[k], true
		}
	}

	return 0, false
}

func splitCacheKey(k string) (string, int64) {
	i := strings.IndexByte(k, '\x00')
	if i < 0 {
		return k, 0
	}
	parent, _ := strconv.ParseInt(k[i+1:], 10, 64)
	return k[:i], parent
}

// DefaultID returns the id of the domain's documented default entry, if
// the domain defines one (e.g. fuel type "NP"). Callers substitute it
// explicitly; lookups never fall back to it on their own.
func (s *Store) DefaultID(domain Domain) (int64, bool) {
	code := specs[domain].defaultCode
	if code == "" {
		return 0, false
	}
	return s.Lookup(domain, code)
}

// GetOrCreate resolves value in an independent open domain, inserting it
// first if unknown. This is how dictionaries grow on every import.
func (s *Store) GetOrCreate(ctx context.Context, domain Domain, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%s: empty dictionary value", domain)
	}
	if specs[domain].parent != "" {
		return 0, fmt.Errorf("%s: dependent domain requires a parent id", domain)
	}

	if id, ok := s.Lookup(domain, value); ok {
		return id, nil
	}

	sp := specs[domain]
	_, err := s.db.ExecContext(ctx, s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (value) VALUES (?) ON CONFLICT DO NOTHING`, sp.table)), value)
	if err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", domain, value, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf(
		`SELECT id FROM %s WHERE value = ?`, sp.table)), value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("select %s %q: %w", domain, value, err)
	}

	s.mu.Lock()
	if s.cache[domain] == nil {
		s.cache[domain] = make(map[string]int64)
	}
	s.cache[domain][cacheKey(value, 0)] = id
	s.mu.Unlock()
	return id, nil
}

// GetOrCreateModel resolves a model under its make, inserting if unknown.
// The make must already exist: a model without a populated parent is a
// referential integrity bug, not a growth case.
func (s *Store) GetOrCreateModel(ctx context.Context, value string, makeID int64) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("model: empty dictionary value")
	}
	if makeID <= 0 {
		return 0, fmt.Errorf("model %q: make id %d not populated", value, makeID)
	}

	if id, ok := s.LookupModel(value, makeID); ok {
		return id, nil
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO models (value, parent_id) VALUES (?, ?) ON CONFLICT DO NOTHING`),
		value, makeID)
	if err != nil {
		return 0, fmt.Errorf("insert model %q: %w", value, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT id FROM models WHERE value = ? AND parent_id = ?`), value, makeID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("select model %q: %w", value, err)
	}

	s.mu.Lock()
	if s.cache[Model] == nil {
		s.cache[Model] = make(map[string]int64)
	}
	s.cache[Model][cacheKey(value, makeID)] = id
	s.mu.Unlock()
	return id, nil
}

// Entries returns all rows of a domain ordered by value.
func (s *Store) Entries(ctx context.Context, domain Domain) ([]Entry, error) {
	sp, ok := specs[domain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}

	var query string
	if sp.parent != "" {
		query = fmt.Sprintf(
			`SELECT id, value, COALESCE(description, ''), parent_id FROM %s ORDER BY value`, sp.table)
	} else {
		query = fmt.Sprintf(
			`SELECT id, value, COALESCE(description, ''), 0 FROM %s ORDER BY value`, sp.table)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("entries %s: %w", domain, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Value, &e.Description, &e.ParentID); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", domain, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// table returns the backing table name for a domain. Used by the
// provenance tracker, which joins dictionaries against fact tables.
func (s *Store) table(domain Domain) string {
	return specs[domain].table
}
