// 包 seeds：种子坐标（邮编中心点）的加载与按州分组
package seeds

import (
	"context"
	"fmt"
	"sort"

	"store-scrape/internal/geo"
)

// Row：一条种子记录；Zip 仅用于入库去重，可为空
type Row struct {
	Zip   string
	State string
	Lat   float64
	Lng   float64
}

// Set：一个区域的种子集合，坐标去重并按坐标排序
type Set struct {
	Region string
	Coords []geo.Coordinate
}

// Source：种子来源
type Source interface {
	Load(ctx context.Context) ([]Set, error)
}

// Group：按州分组；同州内重复坐标只保留一次；返回按区域名排序
func Group(rows []Row) []Set {
	by := make(map[string]map[geo.Coordinate]struct{})
	for _, r := range rows {
		if r.State == "" {
			continue
		}
		m, ok := by[r.State]
		if !ok {
			m = make(map[geo.Coordinate]struct{})
			by[r.State] = m
		}
		m[geo.Coordinate{Lat: r.Lat, Lng: r.Lng}] = struct{}{}
	}
	out := make([]Set, 0, len(by))
	for region, m := range by {
		cs := make([]geo.Coordinate, 0, len(m))
		for c := range m {
			cs = append(cs, c)
		}
		sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
		out = append(out, Set{Region: region, Coords: cs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}

// Filter：仅保留 only 中列出的区域；only 为空时原样返回
func Filter(sets []Set, only []string) []Set {
	if len(only) == 0 {
		return sets
	}
	keep := make(map[string]struct{}, len(only))
	for _, r := range only {
		keep[r] = struct{}{}
	}
	out := sets[:0:0]
	for _, s := range sets {
		if _, ok := keep[s.Region]; ok {
			out = append(out, s)
		}
	}
	return out
}

func validCoord(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("coordinate out of range: %v,%v", lat, lng)
	}
	return nil
}
