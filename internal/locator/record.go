// 包 locator：门店定位接口客户端（附近门店查询、重试、限流、缓存）
package locator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"store-scrape/internal/geo"
)

// 必需字段名，与接口返回保持一致
const (
	FieldLatitude  = "Latitude"
	FieldLongitude = "Longitude"
	FieldState     = "State"
)

// StoreRecord：接口返回的一条门店记录
// 背景：搜索只关心坐标与所属州；其余字段原样保留在 Fields 中，输出时透传
// 约束：Fields 包含全部字段（含三个必需字段），数值以 json.Number 保存以保留原始文本
type StoreRecord struct {
	Latitude  float64
	Longitude float64
	State     string
	Fields    map[string]any
}

// UnmarshalJSON：解析单条门店对象，缺少必需字段或坐标非数值时返回错误
func (r *StoreRecord) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("store record: null object")
	}
	lat, err := numberField(fields, FieldLatitude)
	if err != nil {
		return err
	}
	lng, err := numberField(fields, FieldLongitude)
	if err != nil {
		return err
	}
	st, ok := fields[FieldState]
	if !ok || st == nil {
		return fmt.Errorf("store record: missing %s", FieldState)
	}
	r.Latitude = lat
	r.Longitude = lng
	if s, ok := st.(string); ok {
		r.State = s
	} else {
		r.State = fmt.Sprint(st)
	}
	r.Fields = fields
	return nil
}

// MarshalJSON：按原字段输出；Fields 为空时退化为三个必需字段
func (r StoreRecord) MarshalJSON() ([]byte, error) {
	if len(r.Fields) > 0 {
		return json.Marshal(r.Fields)
	}
	return json.Marshal(map[string]any{
		FieldLatitude:  r.Latitude,
		FieldLongitude: r.Longitude,
		FieldState:     r.State,
	})
}

func numberField(fields map[string]any, name string) (float64, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("store record: missing %s", name)
	}
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("store record: %s: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("store record: %s has type %T", name, v)
	}
}

// Coordinate：门店身份键
func (r StoreRecord) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.Latitude, Lng: r.Longitude}
}

// Value：按列名取输出文本，缺失为空串
func (r StoreRecord) Value(col string) string {
	v, ok := r.Fields[col]
	if !ok {
		switch col {
		case FieldLatitude:
			return strconv.FormatFloat(r.Latitude, 'f', -1, 64)
		case FieldLongitude:
			return strconv.FormatFloat(r.Longitude, 'f', -1, 64)
		case FieldState:
			return r.State
		}
		return ""
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// Columns：一组记录中出现过的全部字段，必需字段在前，其余按名称排序
func Columns(records []StoreRecord) []string {
	seen := map[string]struct{}{FieldLatitude: {}, FieldLongitude: {}, FieldState: {}}
	var rest []string
	for _, r := range records {
		for k := range r.Fields {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append([]string{FieldLatitude, FieldLongitude, FieldState}, rest...)
}
