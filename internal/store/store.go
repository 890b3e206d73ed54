// 包 store: 提供与 PostgreSQL 的数据访问层，记录抓取运行、区域结果与门店
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"store-scrape/internal/locator"
	"store-scrape/internal/logger"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// BeginRun: 登记一次运行，状态为 running
func (s *Store) BeginRun(ctx context.Context, runID uuid.UUID, scrapeID, dir string, started time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _scrape_runs(run_id, scrape_id, output_dir, started_at) VALUES($1,$2,$3,$4)
        ON CONFLICT (run_id) DO NOTHING`, runID.String(), scrapeID, dir, started)
	logger.L().Debug("db_run_begin", "run_id", runID.String(), "scrape_id", scrapeID)
	return err
}

// FinishRun: 写入结束状态与区域成功/失败计数
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, status string, ok, failed int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE _scrape_runs SET status=$2, regions_ok=$3, regions_failed=$4, finished_at=now() WHERE run_id=$1`,
		runID.String(), status, ok, failed)
	logger.L().Debug("db_run_finish", "run_id", runID.String(), "status", status)
	return err
}

// RegionResult: 单个区域的统计
type RegionResult struct {
	Region       string
	Status       string
	Stores       int
	Queries      int
	Seeds        int
	SeedsQueried int
	Elapsed      time.Duration
	Err          string
}

// RecordRegion: 写入或覆盖区域结果
func (s *Store) RecordRegion(ctx context.Context, runID uuid.UUID, r RegionResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _scrape_regions(run_id, region, status, stores, queries, seeds, seeds_queried, elapsed_ms, error)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (run_id, region) DO UPDATE SET status=EXCLUDED.status, stores=EXCLUDED.stores, queries=EXCLUDED.queries,
            seeds=EXCLUDED.seeds, seeds_queried=EXCLUDED.seeds_queried, elapsed_ms=EXCLUDED.elapsed_ms, error=EXCLUDED.error`,
		runID.String(), r.Region, r.Status, r.Stores, r.Queries, r.Seeds, r.SeedsQueried, r.Elapsed.Milliseconds(), r.Err)
	return err
}

// UpsertStores: 单事务写入某区域的全部门店，fields 为原始字段 JSON
func (s *Store) UpsertStores(ctx context.Context, runID uuid.UUID, region string, recs []locator.StoreRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _scrape_stores(run_id, region, lat, lng, fields) VALUES($1,$2,$3,$4,$5::jsonb)
        ON CONFLICT (run_id, region, lat, lng) DO UPDATE SET fields=EXCLUDED.fields`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		args, err := storeArgs(runID, region, r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Debug("db_stores_upsert", "run_id", runID.String(), "region", region, "count", len(recs))
	return nil
}

// DeleteStores: 删除某次运行某区域的门店
func (s *Store) DeleteStores(ctx context.Context, runID uuid.UUID, region string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM _scrape_stores WHERE run_id=$1 AND region=$2", runID.String(), region)
	return err
}

// CountStores: 某次运行某区域已写入的门店数
func (s *Store) CountStores(ctx context.Context, runID uuid.UUID, region string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM _scrape_stores WHERE run_id=$1 AND region=$2", runID.String(), region).Scan(&n)
	return n, err
}

// storeArgs: _scrape_stores 一行的参数，顺序与 INSERT 列一致
func storeArgs(runID uuid.UUID, region string, r locator.StoreRecord) ([]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return []any{runID.String(), region, r.Latitude, r.Longitude, string(raw)}, nil
}
