package search

import (
	"sort"

	"store-scrape/internal/geo"
	"store-scrape/internal/locator"
)

// Discovered：按坐标去重的门店集合，先到者保留
type Discovered struct {
	byCoord map[geo.Coordinate]locator.StoreRecord
	order   []locator.StoreRecord
}

func NewDiscovered() *Discovered {
	return &Discovered{byCoord: make(map[geo.Coordinate]locator.StoreRecord)}
}

// Add：坐标首次出现时加入并返回 true
func (d *Discovered) Add(r locator.StoreRecord) bool {
	c := r.Coordinate()
	if _, ok := d.byCoord[c]; ok {
		return false
	}
	d.byCoord[c] = r
	d.order = append(d.order, r)
	return true
}

func (d *Discovered) Has(c geo.Coordinate) bool {
	_, ok := d.byCoord[c]
	return ok
}

func (d *Discovered) Len() int { return len(d.byCoord) }

// Records：按坐标排序的全部记录，取自登记顺序表而非坐标索引
func (d *Discovered) Records() []locator.StoreRecord {
	out := append([]locator.StoreRecord(nil), d.order...)
	sort.Slice(out, func(i, j int) bool { return out[i].Coordinate().Less(out[j].Coordinate()) })
	return out
}
