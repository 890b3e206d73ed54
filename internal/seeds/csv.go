package seeds

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"store-scrape/internal/logger"
)

// CSVStats：读取统计
type CSVStats struct {
	Rows    int
	Skipped int
}

// ReadCSV：按表头读取 state/latitude/longitude（可选 zip）列，列名不区分大小写，其余列忽略
// 约束：缺少必需列返回错误；单行格式错误时跳过并计数
func ReadCSV(r io.Reader) ([]Row, CSVStats, error) {
	var st CSVStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, st, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	col := func(names ...string) int {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i
			}
		}
		return -1
	}
	iState, iLat, iLng, iZip := col("state"), col("latitude", "lat"), col("longitude", "lng", "lon"), col("zip", "zipcode", "zip_code")
	if iState < 0 || iLat < 0 || iLng < 0 {
		return nil, st, errors.New("seed csv: header must contain state, latitude and longitude")
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			st.Skipped++
			logger.L().Warn("seed_csv_bad_line", "line", line, "err", err)
			continue
		}
		row, err := parseRow(rec, iState, iLat, iLng, iZip)
		if err != nil {
			st.Skipped++
			logger.L().Debug("seed_csv_skip", "line", line, "err", err)
			continue
		}
		rows = append(rows, row)
		st.Rows++
	}
	return rows, st, nil
}

func parseRow(rec []string, iState, iLat, iLng, iZip int) (Row, error) {
	get := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	state := get(iState)
	if state == "" {
		return Row{}, errors.New("empty state")
	}
	lat, err := strconv.ParseFloat(get(iLat), 64)
	if err != nil {
		return Row{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(get(iLng), 64)
	if err != nil {
		return Row{}, fmt.Errorf("longitude: %w", err)
	}
	if err := validCoord(lat, lng); err != nil {
		return Row{}, err
	}
	return Row{Zip: get(iZip), State: state, Lat: lat, Lng: lng}, nil
}

// CSVSource：从 CSV 文件加载种子
type CSVSource struct {
	Path string
}

func (s CSVSource) Load(ctx context.Context) ([]Set, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, st, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	sets := Group(rows)
	logger.L().Info("seeds_loaded", "source", "csv", "path", s.Path, "rows", st.Rows, "skipped", st.Skipped, "regions", len(sets))
	return sets, nil
}
