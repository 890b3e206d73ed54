package output

import (
	"context"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"store-scrape/internal/locator"
)

// CSVSink：每个区域一个 <region>_stores.csv，列为该区域出现过的全部字段
type CSVSink struct {
	dir string
}

func NewCSVSink(dir string) *CSVSink { return &CSVSink{dir: dir} }

func (s *CSVSink) Name() string { return "csv" }

// Path：区域结果文件路径
func (s *CSVSink) Path(region string) string {
	return filepath.Join(s.dir, safeName(region)+"_stores.csv")
}

// Write：先写临时文件再重命名，读者不会看到半个文件
func (s *CSVSink) Write(_ context.Context, region string, stores []locator.StoreRecord) error {
	final := s.Path(region)
	tmp, err := os.CreateTemp(s.dir, "."+safeName(region)+"_stores-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	cols := locator.Columns(stores)
	if err := w.Write(cols); err != nil {
		tmp.Close()
		return err
	}
	row := make([]string, len(cols))
	for _, st := range stores {
		for i, c := range cols {
			row[i] = st.Value(c)
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), final)
}

// Remove：删除区域结果文件
func (s *CSVSink) Remove(_ context.Context, region string) error {
	if err := os.Remove(s.Path(region)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *CSVSink) Close() error { return nil }
