package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"store-scrape/internal/locator"
)

func records(t *testing.T, docs ...string) []locator.StoreRecord {
	t.Helper()
	out := make([]locator.StoreRecord, len(docs))
	for i, d := range docs {
		if err := json.Unmarshal([]byte(d), &out[i]); err != nil {
			t.Fatalf("decode %s: %v", d, err)
		}
	}
	return out
}

func newTestRun(t *testing.T) *Run {
	t.Helper()
	run, err := NewRun(t.TempDir(), "weekly", time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	return run
}

func TestNewRun_Layout(t *testing.T) {
	root := t.TempDir()
	run, err := NewRun(root, "a/b", time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "a_b", "20240309_140507")
	if run.Dir != want {
		t.Fatalf("Dir = %q, want %q", run.Dir, want)
	}
	if fi, err := os.Stat(run.Dir); err != nil || !fi.IsDir() {
		t.Fatalf("run dir not created: %v", err)
	}
	if run.LogPath() != filepath.Join(want, "scrape.log") {
		t.Fatalf("LogPath = %q", run.LogPath())
	}
	if _, err := NewRun(root, " ", time.Now()); err == nil {
		t.Fatal("expected error for empty scrape id")
	}
}

func TestCSVSink_UnionOfColumns(t *testing.T) {
	run := newTestRun(t)
	sink := NewCSVSink(run.Dir)
	stores := records(t,
		`{"Latitude":1.5,"Longitude":2,"State":"CA","Name":"A"}`,
		`{"Latitude":3,"Longitude":4,"State":"CA","Phone":"555"}`,
	)
	if err := sink.Write(context.Background(), "CA", stores); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := os.Open(sink.Path("CA"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Latitude", "Longitude", "State", "Name", "Phone"},
		{"1.5", "2", "CA", "A", ""},
		{"3", "4", "CA", "", "555"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("csv = %v, want %v", rows, want)
	}
	entries, _ := os.ReadDir(run.Dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the final csv in run dir, got %d entries", len(entries))
	}
}

func TestCSVSink_EmptyRegionWritesHeader(t *testing.T) {
	run := newTestRun(t)
	sink := NewCSVSink(run.Dir)
	if err := sink.Write(context.Background(), "WY", nil); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(sink.Path("WY"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "Latitude,Longitude,State\n" {
		t.Fatalf("content = %q", b)
	}
}

func TestSqliteSink_WriteAndReplace(t *testing.T) {
	run := newTestRun(t)
	sink, err := NewSqliteSink(filepath.Join(run.Dir, "stores.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	ctx := context.Background()

	first := records(t,
		`{"Latitude":1,"Longitude":2,"State":"NV","Name":"old"}`,
		`{"Latitude":0,"Longitude":9,"State":"NV"}`,
	)
	if err := sink.Write(ctx, "NV", first); err != nil {
		t.Fatal(err)
	}
	docs, err := sink.Region("NV")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[1]["Name"] != "old" {
		t.Fatalf("docs = %v", docs)
	}

	second := records(t, `{"Latitude":1,"Longitude":2,"State":"NV","Name":"new"}`)
	if err := sink.Write(ctx, "NV", second); err != nil {
		t.Fatal(err)
	}
	docs, _ = sink.Region("NV")
	if len(docs) != 1 || docs[0]["Name"] != "new" {
		t.Fatalf("rewrite should replace the region, got %v", docs)
	}
	if other, _ := sink.Region("CA"); len(other) != 0 {
		t.Fatalf("unexpected CA rows %v", other)
	}
}

func TestRemove_UndoesRegion(t *testing.T) {
	run := newTestRun(t)
	ctx := context.Background()
	recs := records(t, `{"Latitude":1,"Longitude":2,"State":"OR"}`)

	csvSink := NewCSVSink(run.Dir)
	if err := csvSink.Write(ctx, "OR", recs); err != nil {
		t.Fatal(err)
	}
	if err := csvSink.Remove(ctx, "OR"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(csvSink.Path("OR")); !os.IsNotExist(err) {
		t.Fatalf("csv still present, stat err = %v", err)
	}
	if err := csvSink.Remove(ctx, "OR"); err != nil {
		t.Fatalf("removing a missing region should be a no-op: %v", err)
	}

	db, err := NewSqliteSink(filepath.Join(run.Dir, "stores.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Write(ctx, "OR", recs); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(ctx, "WA", recs); err != nil {
		t.Fatal(err)
	}
	if err := db.Remove(ctx, "OR"); err != nil {
		t.Fatal(err)
	}
	if docs, _ := db.Region("OR"); len(docs) != 0 {
		t.Fatalf("OR rows left: %v", docs)
	}
	if docs, _ := db.Region("WA"); len(docs) != 1 {
		t.Fatalf("WA rows should survive, got %v", docs)
	}

	var _ Remover = (*PostgresSink)(nil)
}

func TestNew_Factory(t *testing.T) {
	run := newTestRun(t)
	sinks, err := New([]string{"csv", "CSV", " sqlite "}, run, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 2 || sinks[0].Name() != "csv" || sinks[1].Name() != "sqlite" {
		t.Fatalf("sinks = %v", sinks)
	}
	for _, s := range sinks {
		s.Close()
	}
	if _, err := New([]string{"postgres"}, run, nil); err == nil {
		t.Fatal("postgres without a store should fail")
	}
	if _, err := New([]string{"parquet"}, run, nil); err == nil {
		t.Fatal("unknown sink should fail")
	}
	def, err := New(nil, run, nil)
	if err != nil || len(def) != 1 || def[0].Name() != "csv" {
		t.Fatalf("default sinks = %v, %v", def, err)
	}
}
