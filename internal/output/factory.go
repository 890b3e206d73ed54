package output

import (
	"fmt"
	"path/filepath"
	"strings"

	"store-scrape/internal/store"
)

// New：按名称创建落地目标
//
// 支持：
//
//	"csv"      - <run>/<region>_stores.csv（默认）
//	"sqlite"   - <run>/stores.db
//	"postgres" - _scrape_stores 表，需要 st
func New(names []string, run *Run, st *store.Store) ([]Sink, error) {
	if len(names) == 0 {
		names = []string{"csv"}
	}
	var sinks []Sink
	seen := map[string]bool{}
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		switch n {
		case "csv":
			sinks = append(sinks, NewCSVSink(run.Dir))
		case "sqlite":
			s, err := NewSqliteSink(filepath.Join(run.Dir, "stores.db"))
			if err != nil {
				return fail(fmt.Errorf("sqlite sink: %w", err))
			}
			sinks = append(sinks, s)
		case "postgres":
			if st == nil {
				return fail(fmt.Errorf("postgres sink requires a database connection"))
			}
			sinks = append(sinks, NewPostgresSink(st, run.ID))
		default:
			return fail(fmt.Errorf("unknown sink: %q (supported: csv, sqlite, postgres)", n))
		}
	}
	return sinks, nil
}
