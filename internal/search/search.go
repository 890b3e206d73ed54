// 包 search：单个区域的覆盖驱动搜索（广度优先前沿 + 种子回退）
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"store-scrape/internal/geo"
	"store-scrape/internal/locator"
	"store-scrape/internal/logger"
	"store-scrape/internal/metrics"
)

// Fetcher：附近门店查询能力，由 locator.Client 实现
type Fetcher interface {
	FetchNearby(ctx context.Context, c geo.Coordinate) ([]locator.StoreRecord, error)
}

// State：搜索状态机
type State int

const (
	ActiveExpansion State = iota
	SeedFallback
	Done
)

func (s State) String() string {
	switch s {
	case ActiveExpansion:
		return "active_expansion"
	case SeedFallback:
		return "seed_fallback"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CoverageMode：覆盖判定方式
// interior（默认）：仅严格内部视为已覆盖，凸包顶点上的门店仍会被查询，前沿可以向外扩展
// closed：边界也视为已覆盖；新门店总是刚建成凸包的顶点，因此只由种子驱动
type CoverageMode string

const (
	CoverageClosed   CoverageMode = "closed"
	CoverageInterior CoverageMode = "interior"
)

func ParseCoverageMode(s string) (CoverageMode, error) {
	switch CoverageMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CoverageInterior:
		return CoverageInterior, nil
	case CoverageClosed:
		return CoverageClosed, nil
	}
	return "", fmt.Errorf("unknown coverage mode %q (supported: closed, interior)", s)
}

// ErrQueryBudget：查询次数达到 Options.MaxQueries
var ErrQueryBudget = errors.New("search: query budget exhausted")

// ErrStoreCount：区域结束时坐标数、记录数与登记次数不一致
var ErrStoreCount = errors.New("search: discovered store count mismatch")

// Progress：每次查询完成后的进度快照
type Progress struct {
	Region     string
	Stores     int
	Iterations int
	Frontier   int
	SeedsLeft  int
}

type Options struct {
	Coverage   CoverageMode
	MaxQueries int
	Progress   func(Progress)
	// ProgressEvery：每隔多少次查询输出一次 info 级进度日志，0 取 50
	ProgressEvery int
}

// Result：区域搜索结果与统计
type Result struct {
	Region        string
	Stores        []locator.StoreRecord
	Seeds         int
	SeedsQueried  int
	SeedsCovered  int
	Queries       int
	FrontierSkips int
	CoverageParts int
	CoverageArea  float64
	Elapsed       time.Duration
}

// Search：单个区域的搜索上下文，不在区域之间共享
type Search struct {
	region   string
	opts     Options
	fetch    Fetcher
	seeds    []geo.Coordinate
	nseeds   int
	frontier queue
	queried  map[geo.Coordinate]struct{}
	found    *Discovered
	coverage *geo.Region
	state    State

	queries       int
	added         int
	seedsQueried  int
	seedsCovered  int
	frontierSkips int
}

// New：创建区域搜索；种子去重后按坐标排序，依次消费
func New(region string, seeds []geo.Coordinate, f Fetcher, opts Options) *Search {
	uniq := make(map[geo.Coordinate]struct{}, len(seeds))
	ordered := make([]geo.Coordinate, 0, len(seeds))
	for _, c := range seeds {
		if _, ok := uniq[c]; ok {
			continue
		}
		uniq[c] = struct{}{}
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })
	if opts.Coverage == "" {
		opts.Coverage = CoverageInterior
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 50
	}
	s := &Search{
		region:  region,
		opts:    opts,
		fetch:   f,
		seeds:   ordered,
		nseeds:  len(ordered),
		queried: make(map[geo.Coordinate]struct{}),
		found:   NewDiscovered(),
		state:   SeedFallback,
	}
	if len(ordered) == 0 {
		s.state = Done
	}
	return s
}

func (s *Search) State() State            { return s.state }
func (s *Search) Coverage() *geo.Region   { return s.coverage }
func (s *Search) Discovered() *Discovered { return s.found }

func (s *Search) Queried(c geo.Coordinate) bool {
	_, ok := s.queried[c]
	return ok
}

func (s *Search) covered(c geo.Coordinate) bool {
	if s.opts.Coverage == CoverageClosed {
		return geo.Contains(s.coverage, c)
	}
	return geo.ContainsInterior(s.coverage, c)
}

// Step：执行一次状态转移；返回 false 表示已到达 Done
func (s *Search) Step(ctx context.Context) (bool, error) {
	switch s.state {
	case ActiveExpansion:
		c, ok := s.frontier.pop()
		if !ok {
			if len(s.seeds) > 0 {
				s.state = SeedFallback
			} else {
				s.state = Done
			}
			return s.state != Done, nil
		}
		if _, dup := s.queried[c]; dup {
			s.frontierSkips++
			return true, nil
		}
		if s.covered(c) {
			s.frontierSkips++
			metrics.CoveredSkipsTotal.WithLabelValues(s.region, "frontier").Inc()
			return true, nil
		}
		return true, s.query(ctx, c)
	case SeedFallback:
		for len(s.seeds) > 0 {
			c := s.seeds[0]
			s.seeds = s.seeds[1:]
			if _, dup := s.queried[c]; dup || s.covered(c) {
				s.seedsCovered++
				metrics.CoveredSkipsTotal.WithLabelValues(s.region, "seed").Inc()
				continue
			}
			s.seedsQueried++
			s.frontier.push(c)
			s.state = ActiveExpansion
			logger.L().Debug("seed_fallback", "region", s.region, "seed", c.String(), "seeds_left", len(s.seeds))
			return true, nil
		}
		s.state = Done
		return false, nil
	}
	return false, nil
}

// query：查询 c，登记新门店并把本次返回的坐标（含 c）构成的凸包并入覆盖区域
func (s *Search) query(ctx context.Context, c geo.Coordinate) error {
	if s.opts.MaxQueries > 0 && s.queries >= s.opts.MaxQueries {
		return fmt.Errorf("%w after %d queries", ErrQueryBudget, s.queries)
	}
	s.queried[c] = struct{}{}
	s.queries++
	metrics.QueriesTotal.WithLabelValues(s.region).Inc()

	stores, err := s.fetch.FetchNearby(ctx, c)
	if err != nil {
		return fmt.Errorf("query %s: %w", c, err)
	}
	points := make([]geo.Coordinate, 0, len(stores)+1)
	added := 0
	for _, st := range stores {
		sc := st.Coordinate()
		points = append(points, sc)
		if st.State == s.region && s.found.Add(st) {
			s.frontier.push(sc)
			s.added++
			added++
		}
	}
	points = append(points, c)
	if len(points) >= 3 {
		hull, err := geo.BuildHull(points)
		switch {
		case errors.Is(err, geo.ErrDegenerateHull):
			logger.L().Debug("hull_degenerate", "region", s.region, "coord", c.String(), "points", len(points))
		case err != nil:
			return fmt.Errorf("query %s: %w", c, err)
		default:
			s.coverage = geo.Union(s.coverage, hull)
		}
	}

	p := Progress{
		Region:     s.region,
		Stores:     s.found.Len(),
		Iterations: s.queries,
		Frontier:   s.frontier.len(),
		SeedsLeft:  len(s.seeds),
	}
	logger.L().Debug("search_query", "region", s.region, "coord", c.String(), "returned", len(stores), "new", added, "stores", p.Stores, "iterations", p.Iterations)
	if s.queries%s.opts.ProgressEvery == 0 {
		logger.L().Info("search_progress", "region", s.region, "stores", p.Stores, "iterations", p.Iterations, "frontier", p.Frontier, "seeds_left", p.SeedsLeft)
	}
	if s.opts.Progress != nil {
		s.opts.Progress(p)
	}
	return nil
}

// Run：驱动状态机直到 Done；任何查询错误都会中止本区域搜索
func (s *Search) Run(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer("store-scrape/search").Start(ctx, "search.Run")
	defer span.End()
	span.SetAttributes(attribute.String("region", s.region), attribute.Int("seeds", s.nseeds))

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		more, err := s.Step(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if !more {
			break
		}
	}
	recs := s.found.Records()
	if err := checkStoreCount(s.region, s.added, s.found.Len(), len(recs)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res := &Result{
		Region:        s.region,
		Stores:        recs,
		Seeds:         s.nseeds,
		SeedsQueried:  s.seedsQueried,
		SeedsCovered:  s.seedsCovered,
		Queries:       s.queries,
		FrontierSkips: s.frontierSkips,
		CoverageParts: s.coverage.Len(),
		CoverageArea:  s.coverage.Area(),
		Elapsed:       time.Since(start),
	}
	span.SetAttributes(attribute.Int("stores", len(recs)), attribute.Int("queries", s.queries))
	return res, nil
}

// checkStoreCount：登记次数、去重坐标数与输出记录数三者必须相等
func checkStoreCount(region string, added, coords, records int) error {
	if added != coords || coords != records {
		return fmt.Errorf("%w: region %s: %d additions, %d coordinates, %d records", ErrStoreCount, region, added, coords, records)
	}
	return nil
}
