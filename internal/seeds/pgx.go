package seeds

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"store-scrape/internal/logger"
)

const (
	createSeedTable = `CREATE TABLE IF NOT EXISTS _zip_seeds (
		zip VARCHAR(16) PRIMARY KEY,
		state VARCHAR(8) NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	createSeedStateIndex = `CREATE INDEX IF NOT EXISTS idx_zip_seeds_state ON _zip_seeds(state)`

	upsertSeed = `INSERT INTO _zip_seeds(zip, state, latitude, longitude) VALUES($1, $2, $3, $4)
		ON CONFLICT (zip) DO UPDATE SET state=EXCLUDED.state, latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, updated_at=now()`
)

// 每批写入行数
const batchSize = 5000

// Repository：_zip_seeds 表的读写
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository：确保表与索引存在
func NewRepository(ctx context.Context, pool *pgxpool.Pool) (*Repository, error) {
	if _, err := pool.Exec(ctx, createSeedTable); err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createSeedStateIndex); err != nil {
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

// Upsert：按 zip 写入或更新；无 zip 的行用 "state:lat,lng" 作为键
func (r *Repository) Upsert(ctx context.Context, rows []Row) (int, error) {
	n := 0
	for _, rg := range batchRanges(len(rows), batchSize) {
		start, end := rg[0], rg[1]
		b := &pgx.Batch{}
		for _, row := range rows[start:end] {
			b.Queue(upsertSeed, seedKey(row), row.State, row.Lat, row.Lng)
		}
		if err := r.pool.SendBatch(ctx, b).Close(); err != nil {
			return n, fmt.Errorf("upsert seeds %d-%d: %w", start, end, err)
		}
		n += end - start
		logger.L().Info("seed_import_progress", "count", n)
	}
	return n, nil
}

// Load：读取全部种子并分组
func (r *Repository) Load(ctx context.Context) ([]Set, error) {
	rows, err := r.pool.Query(ctx, "SELECT zip, state, latitude, longitude FROM _zip_seeds")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.Zip, &row.State, &row.Lat, &row.Lng); err != nil {
			logger.L().Error("seed_scan_error", "err", err)
			continue
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sets := Group(out)
	logger.L().Info("seeds_loaded", "source", "db", "rows", len(out), "regions", len(sets))
	return sets, nil
}

func seedKey(row Row) string {
	if row.Zip != "" {
		return row.Zip
	}
	return fmt.Sprintf("%s:%v,%v", row.State, row.Lat, row.Lng)
}

// batchRanges：把 n 行切成不超过 size 的 [start, end) 区间
func batchRanges(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
