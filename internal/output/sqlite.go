package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"store-scrape/internal/locator"
)

// SqliteSink：运行目录下的 stores.db
//
// 表：
//
//	stores(region, lat, lng, data)  PRIMARY KEY (region, lat, lng)
type SqliteSink struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSqliteSink(dbPath string) (*SqliteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS stores (
		region TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (region, lat, lng)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteSink{db: db}, nil
}

func (s *SqliteSink) Name() string { return "sqlite" }

func (s *SqliteSink) Write(ctx context.Context, region string, stores []locator.StoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM stores WHERE region = ?", region); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO stores (region, lat, lng, data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, st := range stores {
		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, region, st.Latitude, st.Longitude, string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SqliteSink) Remove(ctx context.Context, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM stores WHERE region = ?", region)
	return err
}

// Region：读取某区域的全部记录，按坐标排序
func (s *SqliteSink) Region(region string) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT data FROM stores WHERE region = ? ORDER BY lat, lng", region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SqliteSink) Close() error { return s.db.Close() }
