// 包 output：运行目录与结果落地（CSV / SQLite / PostgreSQL）
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"store-scrape/internal/locator"
)

// Sink：区域结果的落地目标
// 约束：每个区域完成后调用一次 Write；不同区域可能由不同 goroutine 并发写入
type Sink interface {
	Name() string
	Write(ctx context.Context, region string, stores []locator.StoreRecord) error
	Close() error
}

// Remover：撤销某区域已写入的结果
// 约束：区域不存在时返回 nil
type Remover interface {
	Remove(ctx context.Context, region string) error
}

// Run：一次抓取运行，目录为 <root>/<scrape_id>/<YYYYmmdd_HHMMSS>
type Run struct {
	ID       uuid.UUID
	ScrapeID string
	Started  time.Time
	Dir      string
}

const timestampLayout = "20060102_150405"

// NewRun：创建运行目录
func NewRun(root, scrapeID string, now time.Time) (*Run, error) {
	if strings.TrimSpace(scrapeID) == "" {
		return nil, fmt.Errorf("scrape id is required")
	}
	if root == "" {
		root = "scrapes"
	}
	dir := filepath.Join(root, safeName(scrapeID), now.Format(timestampLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Run{ID: uuid.New(), ScrapeID: scrapeID, Started: now, Dir: dir}, nil
}

// LogPath：运行日志文件路径
func (r *Run) LogPath() string { return filepath.Join(r.Dir, "scrape.log") }

// safeName：区域名/抓取编号用作文件名时替换路径分隔符
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
}
