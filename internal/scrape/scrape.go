// 包 scrape：按区域运行搜索，隔离区域失败并落地结果
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"store-scrape/internal/logger"
	"store-scrape/internal/metrics"
	"store-scrape/internal/output"
	"store-scrape/internal/search"
	"store-scrape/internal/seeds"
	"store-scrape/internal/store"
)

// RegionSearchFailure：单个区域搜索或落地失败，不影响其他区域
type RegionSearchFailure struct {
	Region string
	Err    error
}

func (e *RegionSearchFailure) Error() string {
	return fmt.Sprintf("region %s: %v", e.Region, e.Err)
}

func (e *RegionSearchFailure) Unwrap() error { return e.Err }

// Tracker：区域结果登记（可选），由 *store.Store 实现
type Tracker interface {
	RecordRegion(ctx context.Context, runID uuid.UUID, r store.RegionResult) error
}

// Orchestrator：按区域调度搜索
// 约束：Workers <= 1 时严格按区域名顺序执行；区域之间不共享可变状态
type Orchestrator struct {
	Fetcher search.Fetcher
	Sinks   []output.Sink
	Options search.Options
	Workers int
	Only    []string
	Tracker Tracker
	RunID   uuid.UUID
}

// Report：一次运行的汇总，Results 与 Failed 均按区域名排序
type Report struct {
	Results []*search.Result
	Failed  []*RegionSearchFailure
}

func (r *Report) Succeeded() []string {
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Region)
	}
	return out
}

// Run：对每个区域运行搜索；区域失败被记录后继续下一个区域
func (o *Orchestrator) Run(ctx context.Context, sets []seeds.Set) *Report {
	sets = seeds.Filter(sets, o.Only)
	sort.Slice(sets, func(i, j int) bool { return sets[i].Region < sets[j].Region })

	workers := o.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(sets) {
		workers = max(len(sets), 1)
	}

	type outcome struct {
		res *search.Result
		err *RegionSearchFailure
	}
	outcomes := make([]outcome, len(sets))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res, err := o.runRegion(ctx, sets[idx])
				if err != nil {
					f := &RegionSearchFailure{Region: sets[idx].Region, Err: err}
					logger.L().Error("region_search_failed", "region", f.Region, "err", err)
					outcomes[idx] = outcome{err: f}
					continue
				}
				outcomes[idx] = outcome{res: res}
			}
		}()
	}
	for i := range sets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	rep := &Report{}
	for _, oc := range outcomes {
		if oc.err != nil {
			rep.Failed = append(rep.Failed, oc.err)
		} else if oc.res != nil {
			rep.Results = append(rep.Results, oc.res)
		}
	}
	logger.L().Info("scrape_done", "regions", len(sets), "succeeded", len(rep.Results), "failed", len(rep.Failed))
	return rep
}

func (o *Orchestrator) runRegion(ctx context.Context, set seeds.Set) (*search.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("store-scrape/scrape").Start(ctx, "scrape.region")
	defer span.End()
	span.SetAttributes(attribute.String("region", set.Region))

	start := time.Now()
	logger.L().Info("region_start", "region", set.Region, "seeds", len(set.Coords))
	res, err := search.New(set.Region, set.Coords, o.Fetcher, o.Options).Run(ctx)
	if err == nil {
		err = o.persist(ctx, res)
	}
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RegionsTotal.WithLabelValues("failed").Inc()
		metrics.RegionDurationSeconds.WithLabelValues("failed").Observe(elapsed.Seconds())
		o.track(ctx, store.RegionResult{Region: set.Region, Status: "failed", Seeds: len(set.Coords), Elapsed: elapsed, Err: err.Error()})
		return nil, err
	}

	metrics.RegionsTotal.WithLabelValues("ok").Inc()
	metrics.RegionDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())
	metrics.StoresDiscovered.WithLabelValues(set.Region).Set(float64(len(res.Stores)))
	logger.L().Info("region_done",
		"region", set.Region,
		"elapsed_s", fmt.Sprintf("%.2f", elapsed.Seconds()),
		"iterations", res.Queries,
		"zips", res.Seeds,
		"zips_queried", res.SeedsQueried,
		"zips_covered", res.SeedsCovered,
		"stores", len(res.Stores),
		"coverage_parts", res.CoverageParts,
	)
	o.track(ctx, store.RegionResult{
		Region:       set.Region,
		Status:       "ok",
		Stores:       len(res.Stores),
		Queries:      res.Queries,
		Seeds:        res.Seeds,
		SeedsQueried: res.SeedsQueried,
		Elapsed:      elapsed,
	})
	return res, nil
}

// persist：依次写入各落地目标；任一失败则撤销本区域已写入的目标，失败区域不留结果
func (o *Orchestrator) persist(ctx context.Context, res *search.Result) error {
	for i, s := range o.Sinks {
		if err := s.Write(ctx, res.Region, res.Stores); err != nil {
			errs := []error{fmt.Errorf("%s sink: %w", s.Name(), err)}
			for _, done := range o.Sinks[:i] {
				rm, ok := done.(output.Remover)
				if !ok {
					continue
				}
				if err := rm.Remove(context.WithoutCancel(ctx), res.Region); err != nil {
					logger.L().Error("sink_rollback_error", "region", res.Region, "sink", done.Name(), "err", err)
					errs = append(errs, fmt.Errorf("%s sink rollback: %w", done.Name(), err))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

func (o *Orchestrator) track(ctx context.Context, r store.RegionResult) {
	if o.Tracker == nil {
		return
	}
	if err := o.Tracker.RecordRegion(context.WithoutCancel(ctx), o.RunID, r); err != nil {
		logger.L().Warn("region_track_error", "region", r.Region, "err", err)
	}
}
