package migrate

import (
	"database/sql"

	"store-scrape/internal/logger"
)

// schema：按执行顺序排列的建表与索引语句
var schema = []string{
	`CREATE TABLE IF NOT EXISTS _scrape_runs (
            run_id UUID PRIMARY KEY,
            scrape_id TEXT NOT NULL,
            output_dir TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'running',
            regions_ok INT NOT NULL DEFAULT 0,
            regions_failed INT NOT NULL DEFAULT 0,
            started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            finished_at TIMESTAMPTZ
        )`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_runs_scrape ON _scrape_runs(scrape_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS _scrape_regions (
            run_id UUID NOT NULL REFERENCES _scrape_runs(run_id) ON DELETE CASCADE,
            region TEXT NOT NULL,
            status TEXT NOT NULL,
            stores INT NOT NULL DEFAULT 0,
            queries INT NOT NULL DEFAULT 0,
            seeds INT NOT NULL DEFAULT 0,
            seeds_queried INT NOT NULL DEFAULT 0,
            elapsed_ms BIGINT NOT NULL DEFAULT 0,
            error TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (run_id, region)
        )`,
	`CREATE TABLE IF NOT EXISTS _scrape_stores (
            run_id UUID NOT NULL REFERENCES _scrape_runs(run_id) ON DELETE CASCADE,
            region TEXT NOT NULL,
            lat DOUBLE PRECISION NOT NULL,
            lng DOUBLE PRECISION NOT NULL,
            fields JSONB NOT NULL,
            PRIMARY KEY (run_id, region, lat, lng)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_stores_region ON _scrape_stores(region)`,
}

// 背景：首次运行自动创建运行记录、区域结果与门店表
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	for i, s := range schema {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
