package output

import (
	"context"

	"github.com/google/uuid"

	"store-scrape/internal/locator"
	"store-scrape/internal/store"
)

// PostgresSink：写入 _scrape_stores，按运行编号区分
type PostgresSink struct {
	st    *store.Store
	runID uuid.UUID
}

func NewPostgresSink(st *store.Store, runID uuid.UUID) *PostgresSink {
	return &PostgresSink{st: st, runID: runID}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, region string, stores []locator.StoreRecord) error {
	return s.st.UpsertStores(ctx, s.runID, region, stores)
}

func (s *PostgresSink) Remove(ctx context.Context, region string) error {
	return s.st.DeleteStores(ctx, s.runID, region)
}

// Close：连接由调用方持有，这里不关闭
func (s *PostgresSink) Close() error { return nil }
