package dict

import (
	"context"
	"errors"
	"testing"
)

type staticSource struct {
	mappings map[string]string
	err      error
}

func (s *staticSource) Mappings(_ context.Context, _ Domain) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mappings, nil
}

func TestClassify_UncuratedOnly(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	curated, err := s.GetOrCreate(ctx, Make, "TOYOTA")
	if err != nil {
		t.Fatal(err)
	}
	uncuratedOnly, err := s.GetOrCreate(ctx, Make, "TOYOTTA")
	if err != nil {
		t.Fatal(err)
	}

	// TOYOTA appears in a curated (2019) and an uncurated (2023) year;
	// TOYOTTA appears only in the uncurated year.
	inserts := []struct {
		year   int
		makeID int64
	}{
		{2019, curated},
		{2023, curated},
		{2023, uncuratedOnly},
		{2023, uncuratedOnly},
	}
	for _, in := range inserts {
		if _, err := db.Exec(`INSERT INTO vehicles (year, make_id) VALUES (?, ?)`, in.year, in.makeID); err != nil {
			t.Fatal(err)
		}
	}

	tracker := NewTracker(s, nil, []int{2023})
	records, err := tracker.Classify(ctx, Make)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	byValue := make(map[string]ProvenanceRecord)
	for _, r := range records {
		byValue[r.Value] = r
	}

	if got := byValue["TOYOTA"]; got.Status != StatusCanonical {
		t.Errorf("TOYOTA status = %s, want canonical", got.Status)
	}
	got := byValue["TOYOTTA"]
	if got.Status != StatusUncuratedOnly {
		t.Errorf("TOYOTTA status = %s, want uncurated_only", got.Status)
	}
	if got.RecordCount != 2 {
		t.Errorf("TOYOTTA record count = %d, want 2", got.RecordCount)
	}
}

func TestClassify_Regularized(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	raw, err := s.GetOrCreate(ctx, Make, "VOLKS WAGEN")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO vehicles (year, make_id) VALUES (?, ?)`, 2020, raw); err != nil {
		t.Fatal(err)
	}

	source := &staticSource{mappings: map[string]string{"VOLKS WAGEN": "VOLKSWAGEN"}}
	tracker := NewTracker(s, source, nil)

	records, err := tracker.Classify(ctx, Make)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Status != StatusRegularized {
		t.Errorf("status = %s, want regularized", r.Status)
	}
	if r.CanonicalValue != "VOLKSWAGEN" {
		t.Errorf("canonical = %q, want VOLKSWAGEN", r.CanonicalValue)
	}
	if r.RecordCount != 1 {
		t.Errorf("record count = %d, want 1", r.RecordCount)
	}
}

func TestClassify_SourceUnavailable(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreate(ctx, Make, "HONDA"); err != nil {
		t.Fatal(err)
	}

	// A failing mapping source degrades to an empty mapping.
	source := &staticSource{err: errors.New("curation service down")}
	tracker := NewTracker(s, source, nil)

	records, err := tracker.Classify(ctx, Make)
	if err != nil {
		t.Fatalf("Classify with failing source: %v", err)
	}
	if len(records) != 1 || records[0].Status != StatusCanonical {
		t.Errorf("records = %+v, want single canonical entry", records)
	}
}

func TestClassify_SQLSourceMissingTable(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreate(ctx, Make, "MAZDA"); err != nil {
		t.Fatal(err)
	}

	// dict_regularization belongs to an external curation tool and may
	// not exist at all; classification must still succeed.
	tracker := NewTracker(s, &SQLRegularizationSource{DB: db}, nil)
	records, err := tracker.Classify(ctx, Make)
	if err != nil {
		t.Fatalf("Classify with missing table: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}
