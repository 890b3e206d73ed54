package search

import (
	"context"
	"errors"
	"sort"
	"testing"

	"store-scrape/internal/geo"
	"store-scrape/internal/locator"
)

func rec(lat, lng float64, state string) locator.StoreRecord {
	return locator.StoreRecord{
		Latitude:  lat,
		Longitude: lng,
		State:     state,
		Fields: map[string]any{
			locator.FieldLatitude:  lat,
			locator.FieldLongitude: lng,
			locator.FieldState:     state,
		},
	}
}

// scriptedFetcher answers from a fixed table and records every call.
type scriptedFetcher struct {
	answers map[geo.Coordinate][]locator.StoreRecord
	fail    map[geo.Coordinate]error
	calls   map[geo.Coordinate]int
	order   []geo.Coordinate
}

func newScripted() *scriptedFetcher {
	return &scriptedFetcher{
		answers: map[geo.Coordinate][]locator.StoreRecord{},
		fail:    map[geo.Coordinate]error{},
		calls:   map[geo.Coordinate]int{},
	}
}

func (f *scriptedFetcher) FetchNearby(_ context.Context, c geo.Coordinate) ([]locator.StoreRecord, error) {
	f.calls[c]++
	f.order = append(f.order, c)
	if err, ok := f.fail[c]; ok {
		return nil, err
	}
	return f.answers[c], nil
}

func TestSearch_TriangleCoversRemainingSeeds(t *testing.T) {
	for _, mode := range []CoverageMode{CoverageClosed, CoverageInterior} {
		t.Run(string(mode), func(t *testing.T) {
			f := newScripted()
			f.answers[geo.Coordinate{Lat: 10, Lng: 10}] = []locator.StoreRecord{
				rec(0, 0, "CA"), rec(40, 5, "CA"), rec(5, 40, "CA"),
			}
			seeds := []geo.Coordinate{{Lat: 20, Lng: 10}, {Lat: 10, Lng: 20}, {Lat: 10, Lng: 10}}

			s := New("CA", seeds, f, Options{Coverage: mode})
			res, err := s.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(res.Stores) != 3 {
				t.Fatalf("expected 3 stores, got %d", len(res.Stores))
			}
			for _, seed := range []geo.Coordinate{{Lat: 10, Lng: 20}, {Lat: 20, Lng: 10}} {
				if f.calls[seed] != 0 {
					t.Fatalf("covered seed %v was queried", seed)
				}
			}
			if res.SeedsQueried != 1 || res.SeedsCovered != 2 {
				t.Fatalf("seeds queried=%d covered=%d", res.SeedsQueried, res.SeedsCovered)
			}
			if mode == CoverageClosed && res.Queries != 1 {
				t.Fatalf("closed mode: expected 1 query, got %d", res.Queries)
			}
			if mode == CoverageInterior && res.Queries != 4 {
				t.Fatalf("interior mode: expected hull vertices to be queried, got %d queries", res.Queries)
			}
			if s.State() != Done {
				t.Fatalf("state = %v", s.State())
			}
		})
	}
}

func TestSearch_OutOfStateStoreShapesCoverageOnly(t *testing.T) {
	f := newScripted()
	f.answers[geo.Coordinate{Lat: 10, Lng: 10}] = []locator.StoreRecord{
		rec(0, 0, "CA"), rec(40, 5, "NV"), rec(5, 40, "CA"),
	}
	seeds := []geo.Coordinate{{Lat: 10, Lng: 10}, {Lat: 20, Lng: 10}}

	res, err := New("CA", seeds, f, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Stores) != 2 {
		t.Fatalf("expected 2 CA stores, got %d", len(res.Stores))
	}
	for _, st := range res.Stores {
		if st.State != "CA" {
			t.Fatalf("out-of-state store recorded: %+v", st)
		}
	}
	// (20,10) lies inside the hull only because the NV store is a vertex
	if f.calls[geo.Coordinate{Lat: 20, Lng: 10}] != 0 {
		t.Fatal("seed covered by the out-of-state vertex was queried")
	}
}

func TestSearch_FetchErrorAbortsRegion(t *testing.T) {
	boom := errors.New("retries exhausted")
	f := newScripted()
	f.fail[geo.Coordinate{Lat: 1, Lng: 1}] = boom

	_, err := New("WA", []geo.Coordinate{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, f, Options{}).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
	if f.calls[geo.Coordinate{Lat: 2, Lng: 2}] != 0 {
		t.Fatal("search continued after a failed query")
	}
}

func TestSearch_QueryBudget(t *testing.T) {
	f := newScripted()
	seeds := []geo.Coordinate{{Lat: 1, Lng: 1}, {Lat: 5, Lng: 5}, {Lat: 9, Lng: 9}}
	_, err := New("OR", seeds, f, Options{MaxQueries: 2}).Run(context.Background())
	if !errors.Is(err, ErrQueryBudget) {
		t.Fatalf("expected ErrQueryBudget, got %v", err)
	}
	if len(f.order) != 2 {
		t.Fatalf("expected 2 queries before the cap, got %d", len(f.order))
	}
}

func TestSearch_NoSeedsIsDone(t *testing.T) {
	f := newScripted()
	s := New("AK", nil, f, Options{})
	if s.State() != Done {
		t.Fatalf("state = %v", s.State())
	}
	res, err := s.Run(context.Background())
	if err != nil || res.Queries != 0 || len(res.Stores) != 0 || res.CoverageArea != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestSearch_DegenerateHullAddsNoCoverage(t *testing.T) {
	f := newScripted()
	// two stores on the line through the query point
	f.answers[geo.Coordinate{Lat: 0, Lng: 0}] = []locator.StoreRecord{rec(1, 1, "NM"), rec(2, 2, "NM")}
	res, err := New("NM", []geo.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0.5, Lng: 0.5}}, f, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CoverageParts != 0 {
		t.Fatalf("expected no coverage, got %d parts", res.CoverageParts)
	}
	if f.calls[geo.Coordinate{Lat: 0.5, Lng: 0.5}] != 1 {
		t.Fatal("seed on the degenerate line should still be queried")
	}
}

// latticeWorld returns the k stores nearest to the query point.
type latticeWorld struct {
	stores []locator.StoreRecord
	k      int
	calls  map[geo.Coordinate]int
}

func newLattice(n, k int, state string) *latticeWorld {
	w := &latticeWorld{k: k, calls: map[geo.Coordinate]int{}}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			// shear the grid so no three nearest stores are collinear
			lat := float64(i) + 0.13*float64(j%3)
			lng := float64(j) + 0.07*float64(i%4)
			w.stores = append(w.stores, rec(lat, lng, state))
		}
	}
	return w
}

func (w *latticeWorld) FetchNearby(_ context.Context, c geo.Coordinate) ([]locator.StoreRecord, error) {
	w.calls[c]++
	out := append([]locator.StoreRecord(nil), w.stores...)
	d := func(r locator.StoreRecord) float64 {
		dl, dg := r.Latitude-c.Lat, r.Longitude-c.Lng
		return dl*dl + dg*dg
	}
	sort.SliceStable(out, func(i, j int) bool {
		if d(out[i]) != d(out[j]) {
			return d(out[i]) < d(out[j])
		}
		return out[i].Coordinate().Less(out[j].Coordinate())
	})
	if len(out) > w.k {
		out = out[:w.k]
	}
	return out, nil
}

func TestSearch_LatticeInvariants(t *testing.T) {
	for _, mode := range []CoverageMode{CoverageClosed, CoverageInterior} {
		t.Run(string(mode), func(t *testing.T) {
			w := newLattice(8, 4, "TX")
			var seeds []geo.Coordinate
			for i := 0; i < 8; i++ {
				for j := 0; j < 8; j++ {
					seeds = append(seeds, geo.Coordinate{Lat: float64(i) + 0.5, Lng: float64(j) + 0.5})
				}
			}
			var lastArea float64
			s := New("TX", seeds, w, Options{Coverage: mode})
			s.opts.Progress = func(Progress) {
				a := s.Coverage().Area()
				if a+1e-9 < lastArea {
					t.Fatalf("coverage area shrank: %v -> %v", lastArea, a)
				}
				lastArea = a
			}
			res, err := s.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			for c, n := range w.calls {
				if n != 1 {
					t.Fatalf("%v queried %d times", c, n)
				}
			}
			if res.Queries != len(w.calls) {
				t.Fatalf("Queries=%d distinct=%d", res.Queries, len(w.calls))
			}
			// every seed ends up either queried or inside coverage
			for _, seed := range seeds {
				if !s.Queried(seed) && !geo.Contains(s.Coverage(), seed) {
					t.Fatalf("seed %v neither queried nor covered", seed)
				}
			}
			seen := map[geo.Coordinate]bool{}
			for _, st := range res.Stores {
				if seen[st.Coordinate()] {
					t.Fatalf("duplicate store %v", st.Coordinate())
				}
				seen[st.Coordinate()] = true
			}
			if len(res.Stores) == 0 || len(res.Stores) > len(w.stores) {
				t.Fatalf("unexpected store count %d", len(res.Stores))
			}
			if res.SeedsQueried+res.SeedsCovered != len(seeds) {
				t.Fatalf("seeds queried %d + covered %d != %d", res.SeedsQueried, res.SeedsCovered, len(seeds))
			}
		})
	}
}

func TestDiscovered_FirstRecordWins(t *testing.T) {
	d := NewDiscovered()
	a := rec(1, 2, "CA")
	a.Fields["Name"] = "first"
	b := rec(1, 2, "CA")
	b.Fields["Name"] = "second"
	if !d.Add(a) || d.Add(b) {
		t.Fatal("second record at the same coordinate should be rejected")
	}
	if !d.Add(rec(0, 5, "CA")) {
		t.Fatal("new coordinate should be accepted")
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d", d.Len())
	}
	recs := d.Records()
	if recs[0].Latitude != 0 || recs[1].Fields["Name"] != "first" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestParseCoverageMode(t *testing.T) {
	if m, err := ParseCoverageMode(""); err != nil || m != CoverageInterior {
		t.Fatalf("default: %v %v", m, err)
	}
	if m, err := ParseCoverageMode("Closed"); err != nil || m != CoverageClosed {
		t.Fatalf("closed: %v %v", m, err)
	}
	if _, err := ParseCoverageMode("concave"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestQueue_FIFO(t *testing.T) {
	var q queue
	for i := 0; i < 200; i++ {
		q.push(geo.Coordinate{Lat: float64(i)})
	}
	for i := 0; i < 200; i++ {
		c, ok := q.pop()
		if !ok || c.Lat != float64(i) {
			t.Fatalf("pop %d = %v,%v", i, c, ok)
		}
	}
	if _, ok := q.pop(); ok || q.len() != 0 {
		t.Fatal("queue should be empty")
	}
}

// echoFetcher returns the same stores for every query, each listed twice.
type echoFetcher struct {
	stores []locator.StoreRecord
	calls  int
}

func (f *echoFetcher) FetchNearby(context.Context, geo.Coordinate) ([]locator.StoreRecord, error) {
	f.calls++
	out := append([]locator.StoreRecord(nil), f.stores...)
	return append(out, f.stores...), nil
}

func TestSearch_DuplicateStoresCountedOnce(t *testing.T) {
	first := rec(0, 0, "UT")
	first.Fields["Name"] = "first"
	f := &echoFetcher{stores: []locator.StoreRecord{first, rec(30, 2, "UT"), rec(3, 30, "UT")}}
	s := New("UT", []geo.Coordinate{{Lat: 5, Lng: 5}, {Lat: 50, Lng: 50}}, f, Options{})
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Stores) != 3 || s.added != 3 || s.Discovered().Len() != 3 {
		t.Fatalf("stores=%d added=%d len=%d", len(res.Stores), s.added, s.Discovered().Len())
	}
	if res.Stores[0].Fields["Name"] != "first" {
		t.Fatalf("first record should win: %+v", res.Stores[0])
	}
}

func TestCheckStoreCount(t *testing.T) {
	if err := checkStoreCount("UT", 3, 3, 3); err != nil {
		t.Fatalf("consistent counts: %v", err)
	}
	for _, tc := range [][3]int{{4, 3, 3}, {3, 3, 2}, {3, 2, 3}} {
		err := checkStoreCount("UT", tc[0], tc[1], tc[2])
		if !errors.Is(err, ErrStoreCount) {
			t.Fatalf("counts %v: expected ErrStoreCount, got %v", tc, err)
		}
	}
}

func TestSearch_DefaultModeExpandsFromStores(t *testing.T) {
	w := newLattice(8, 4, "TX")
	stores := map[geo.Coordinate]bool{}
	for _, st := range w.stores {
		stores[st.Coordinate()] = true
	}
	var seeds []geo.Coordinate
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			seeds = append(seeds, geo.Coordinate{Lat: float64(i) + 0.5, Lng: float64(j) + 0.5})
		}
	}
	res, err := New("TX", seeds, w, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	fromStores := 0
	for c := range w.calls {
		if stores[c] {
			fromStores++
		}
	}
	if fromStores == 0 {
		t.Fatal("no discovered store was used as a query point")
	}
	if res.SeedsQueried >= len(seeds) {
		t.Fatalf("expected some seeds to be covered by expansion, queried %d of %d", res.SeedsQueried, len(seeds))
	}

	wc := newLattice(8, 4, "TX")
	if _, err := New("TX", seeds, wc, Options{Coverage: CoverageClosed}).Run(context.Background()); err != nil {
		t.Fatalf("closed Run: %v", err)
	}
	for c := range wc.calls {
		if stores[c] {
			t.Fatalf("closed mode queried store coordinate %v", c)
		}
	}
}
