package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roadregistry/importer/internal/core"
	_ "github.com/roadregistry/importer/internal/core/datasets"
	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/dict"
	"github.com/roadregistry/importer/internal/web"
)

const vehicleHeader = "AN,CLAS,MARQ_VEH,MODEL_VEH,ANNEE_MOD,COULEUR,TYP_CARBU,NB_CYL,NB_ESIEU,MASSE_NETTE,IND_LOC_COMM,IND_DROIT_ACQ,REG_ADM,MRC,MUNCP,CODE_POSTL"

func vehicleCSV(year, rows int) []byte {
	var b strings.Builder
	b.WriteString(vehicleHeader + "\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,PAU,TOYOTA,COROLLA,2020,GRIS,ES,4,2,1300,NON,NON,Capitale-Nationale (03),Québec,Québec,G1V\n", year)
	}
	return []byte(b.String())
}

func newTestServer(t *testing.T) *web.Server {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.CreateSchema(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	dicts := dict.New(db)
	if err := dicts.CreateSchema(ctx); err != nil {
		t.Fatalf("create dict schema: %v", err)
	}
	if err := dicts.Populate(ctx); err != nil {
		t.Fatalf("populate: %v", err)
	}

	svc := core.NewService(db, dicts, core.ServiceOptions{Workers: 2, BatchSize: 100})
	tracker := dict.NewTracker(dicts, nil, nil)
	return web.NewServer(svc, dicts, tracker, web.Options{})
}

func postImport(t *testing.T, srv *web.Server, year int, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("record_type", "vehicles")
	mw.WriteField("year", fmt.Sprintf("%d", year))
	fw, err := mw.CreateFormFile("file", "vehicules.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListRecordTypes(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/record-types", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var types []struct {
		Key          string `json:"key"`
		ColumnCounts []int  `json:"column_counts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	keys := make(map[string]bool)
	for _, rt := range types {
		keys[rt.Key] = true
	}
	if !keys["vehicles"] || !keys["licenses"] {
		t.Fatalf("record types = %v", keys)
	}
}

func TestImportRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := postImport(t, srv, 2023, vehicleCSV(2023, 5))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var started struct {
		ImportID string `json:"import_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.ImportID == "" {
		t.Fatal("no import id returned")
	}

	// Result blocks until the import completes.
	req := httptest.NewRequest(http.MethodGet, "/api/imports/"+started.ImportID+"/result", nil)
	res := httptest.NewRecorder()
	srv.Router().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("result status = %d", res.Code)
	}
	var result core.ImportResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != "success" || result.SuccessCount != 5 {
		t.Fatalf("result = %+v", result)
	}

	// And the import log shows it.
	req = httptest.NewRequest(http.MethodGet, "/api/import-log", nil)
	logRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(logRec, req)
	if logRec.Code != http.StatusOK {
		t.Fatalf("import log status = %d", logRec.Code)
	}
	var entries []struct {
		FileName string `json:"file_name"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(logRec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(entries) != 1 || entries[0].FileName != "vehicules.csv" {
		t.Fatalf("log entries = %+v", entries)
	}
}

func TestImportValidation(t *testing.T) {
	srv := newTestServer(t)

	// Missing year field.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("record_type", "vehicles")
	fw, _ := mw.CreateFormFile("file", "v.csv")
	fw.Write(vehicleCSV(2023, 1))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing year: status = %d", rec.Code)
	}

	// Unknown record type.
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	mw.WriteField("record_type", "boats")
	mw.WriteField("year", "2023")
	fw, _ = mw.CreateFormFile("file", "b.csv")
	fw.Write(vehicleCSV(2023, 1))
	mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown record type: status = %d", rec.Code)
	}
}

func TestResultNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/nope/result", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDictionaryEndpoints(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dictionaries", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var domains []string
	if err := json.Unmarshal(rec.Body.Bytes(), &domains); err != nil {
		t.Fatalf("decode domains: %v", err)
	}
	if len(domains) == 0 {
		t.Fatal("no domains listed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/dictionaries/fuel_type", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fuel_type status = %d", rec.Code)
	}
	var entries []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Value == "EL" {
			found = true
		}
	}
	if !found {
		t.Errorf("seeded fuel type EL missing from %v", entries)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/dictionaries/nope", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown domain status = %d", rec.Code)
	}
}

func TestDictionaryProvenance(t *testing.T) {
	srv := newTestServer(t)

	// Import data first so makes exist and carry year references.
	rec := postImport(t, srv, 2023, vehicleCSV(2023, 3))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("import status = %d", rec.Code)
	}
	var started struct {
		ImportID string `json:"import_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &started)
	req := httptest.NewRequest(http.MethodGet, "/api/imports/"+started.ImportID+"/result", nil)
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/dictionaries/make?provenance=true", nil)
	provRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(provRec, req)
	if provRec.Code != http.StatusOK {
		t.Fatalf("provenance status = %d, body %s", provRec.Code, provRec.Body.String())
	}
	var records []struct {
		Value  string `json:"value"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(provRec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode provenance: %v", err)
	}
	found := false
	for _, r := range records {
		if r.Value == "TOYOTA" && r.Status == "canonical" {
			found = true
		}
	}
	if !found {
		t.Errorf("TOYOTA not canonical in %+v", records)
	}
}
