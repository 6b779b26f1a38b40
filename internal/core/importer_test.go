package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/roadregistry/importer/internal/core"
	_ "github.com/roadregistry/importer/internal/core/datasets"
	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/dict"
	"github.com/roadregistry/importer/internal/parse"
)

func openTestDB(t *testing.T) (*database.DB, *dict.Store) {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.CreateSchema(ctx); err != nil {
		t.Fatalf("create fact schema: %v", err)
	}
	dicts := dict.New(db)
	if err := dicts.CreateSchema(ctx); err != nil {
		t.Fatalf("create dict schema: %v", err)
	}
	if err := dicts.Populate(ctx); err != nil {
		t.Fatalf("populate: %v", err)
	}
	return db, dicts
}

func vehicleRec(year, makeName string) parse.Record {
	return parse.Record{
		"AN":            year,
		"CLAS":          "PAU",
		"MARQ_VEH":      makeName,
		"MODEL_VEH":     "COROLLA",
		"ANNEE_MOD":     "2020",
		"COULEUR":       "GRIS",
		"TYP_CARBU":     "ES",
		"NB_CYL":        "4",
		"NB_ESIEU":      "2",
		"MASSE_NETTE":   "1300",
		"IND_LOC_COMM":  "NON",
		"IND_DROIT_ACQ": "NON",
		"REG_ADM":       "Capitale-Nationale (03)",
		"MRC":           "Québec",
		"MUNCP":         "Québec",
		"CODE_POSTL":    "G1V",
	}
}

func TestImportBatch_Accounting(t *testing.T) {
	db, dicts := openTestDB(t)
	ctx := context.Background()

	def, ok := core.Lookup("vehicles")
	if !ok {
		t.Fatal("vehicles not registered")
	}

	records := []parse.Record{
		vehicleRec("2023", "TOYOTA"),
		vehicleRec("2023", "HONDA"),
		vehicleRec("2019", "MAZDA"), // wrong year, rejected
		vehicleRec("2023", "FORD"),
	}

	imp := core.NewBatchImporter(db, dicts, 10)
	res, err := imp.ImportBatch(ctx, def, records, 2023)
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if res.Success != 3 || res.Errors != 1 {
		t.Fatalf("got success=%d errors=%d, want 3/1", res.Success, res.Errors)
	}

	n, err := db.CountYear(ctx, "vehicles", 2023)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("stored %d rows, want 3", n)
	}
}

func TestImportBatch_EmptyBatch(t *testing.T) {
	db, dicts := openTestDB(t)
	def, _ := core.Lookup("vehicles")

	imp := core.NewBatchImporter(db, dicts, 10)
	res, err := imp.ImportBatch(context.Background(), def, nil, 2023)
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if res.Success != 0 || res.Errors != 0 {
		t.Fatalf("empty batch accounted %+v", res)
	}
}

// A batch whose transaction cannot be used folds its whole record count
// into the error total instead of failing the import.
func TestImportBatch_StoreFailure(t *testing.T) {
	db, dicts := openTestDB(t)
	def, _ := core.Lookup("vehicles")

	db.Close()

	records := []parse.Record{
		vehicleRec("2023", "TOYOTA"),
		vehicleRec("2023", "HONDA"),
	}
	imp := core.NewBatchImporter(db, dicts, 10)
	res, err := imp.ImportBatch(context.Background(), def, records, 2023)
	if err != nil {
		t.Fatalf("ImportBatch returned error: %v", err)
	}
	if res.Success != 0 || res.Errors != len(records) {
		t.Fatalf("got %+v, want 0 success / %d errors", res, len(records))
	}
}

// A commit that fails after every row was accepted folds the whole
// batch into the error total; the import itself keeps going.
func TestImportBatch_CommitFailure(t *testing.T) {
	db, dicts := openTestDB(t)
	ctx := context.Background()

	// A deferred foreign key is only checked at COMMIT, so every
	// per-row insert succeeds and the commit itself is what fails.
	for _, stmt := range []string{
		`CREATE TABLE fleet_owners (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE fleet_units (
			id INTEGER PRIMARY KEY,
			owner_id INTEGER NOT NULL
				REFERENCES fleet_owners(id) DEFERRABLE INITIALLY DEFERRED
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	def := core.Definition{
		Key:          "fleet_units",
		Table:        "fleet_units",
		ColumnCounts: []int{1},
		InsertSQL:    `INSERT INTO fleet_units (owner_id) VALUES (?)`,
		BuildArgs: func(ctx context.Context, rec parse.Record, year int, _ *dict.Store) ([]any, error) {
			return []any{9999}, nil // no such owner
		},
	}

	records := []parse.Record{
		{"OWNER": "a"},
		{"OWNER": "b"},
		{"OWNER": "c"},
	}
	imp := core.NewBatchImporter(db, dicts, 10)
	res, err := imp.ImportBatch(ctx, def, records, 2023)
	if err != nil {
		t.Fatalf("ImportBatch returned error: %v", err)
	}
	if res.Success != 0 || res.Errors != len(records) {
		t.Fatalf("got %+v, want 0 success / %d errors", res, len(records))
	}
}

func TestBatchCount(t *testing.T) {
	imp := core.NewBatchImporter(nil, nil, 100)

	tests := []struct {
		total, want int
	}{
		{0, 0},
		{1, 1},
		{100, 1},
		{101, 2},
		{250, 3},
	}
	for _, tt := range tests {
		if got := imp.BatchCount(tt.total); got != tt.want {
			t.Errorf("BatchCount(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestImportBatch_Cancelled(t *testing.T) {
	db, dicts := openTestDB(t)
	def, _ := core.Lookup("vehicles")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imp := core.NewBatchImporter(db, dicts, 10)
	_, err := imp.ImportBatch(ctx, def, []parse.Record{vehicleRec("2023", "TOYOTA")}, 2023)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
