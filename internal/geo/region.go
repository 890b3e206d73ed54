package geo

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
)

const indexEps = 1e-9

// Region：已知覆盖区域，多个凸多边形的并集；nil 表示尚未定义覆盖
// 约束：只增不减，Union 只会加入面积，不会移除已覆盖的点
type Region struct {
	parts map[*ConvexRegion]struct{}
	tree  *rtreego.Rtree
	bbox  BBox
}

// part：ConvexRegion 在 R-Tree 中的索引项
type part struct {
	c *ConvexRegion
	r rtreego.Rect
}

func (p *part) Bounds() rtreego.Rect { return p.r }

// Union：将 addition 并入 existing 并返回结果
// 约束：existing 为 nil 时返回仅含 addition 的新区域；否则原地扩展 existing；
// addition 已被某个已有部分完全覆盖时不重复存储，被 addition 完全覆盖的已有部分会被移除
func Union(existing *Region, addition *ConvexRegion) *Region {
	if addition == nil {
		return existing
	}
	if existing == nil {
		r := &Region{
			parts: make(map[*ConvexRegion]struct{}),
			tree:  rtreego.NewTree(2, 4, 16),
			bbox:  addition.bbox,
		}
		r.insert(addition)
		return r
	}
	for _, s := range existing.candidates(addition.rect()) {
		if s.c.covers(addition) {
			return existing
		}
	}
	for _, s := range existing.candidates(addition.rect()) {
		if addition.covers(s.c) {
			existing.tree.Delete(s)
			delete(existing.parts, s.c)
		}
	}
	existing.insert(addition)
	existing.bbox = BBox{
		math.Min(existing.bbox[0], addition.bbox[0]),
		math.Min(existing.bbox[1], addition.bbox[1]),
		math.Max(existing.bbox[2], addition.bbox[2]),
		math.Max(existing.bbox[3], addition.bbox[3]),
	}
	return existing
}

func (r *Region) insert(c *ConvexRegion) {
	r.parts[c] = struct{}{}
	r.tree.Insert(&part{c: c, r: c.rect()})
}

func (r *Region) candidates(bb rtreego.Rect) []*part {
	hits := r.tree.SearchIntersect(bb)
	out := make([]*part, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*part))
	}
	return out
}

func (r *Region) pointCandidates(p Coordinate) []*part {
	return r.candidates(rtreego.Point{p.Lat, p.Lng}.ToRect(indexEps))
}

// Contains：区域未定义时恒为 false；否则点在任一部分内部或边界上即为 true
func Contains(region *Region, p Coordinate) bool {
	if region == nil || !region.bbox.has(p) {
		return false
	}
	for _, s := range region.pointCandidates(p) {
		if s.c.Contains(p) {
			return true
		}
	}
	return false
}

// ContainsInterior：严格内部判定，边界上的点视为未覆盖
// 约束：按部分逐一判定；恰好落在两个部分公共边上的点同样视为未覆盖
func ContainsInterior(region *Region, p Coordinate) bool {
	if region == nil || !region.bbox.has(p) {
		return false
	}
	for _, s := range region.pointCandidates(p) {
		if s.c.ContainsInterior(p) {
			return true
		}
	}
	return false
}

// Len：当前存储的凸部分数量
func (r *Region) Len() int {
	if r == nil {
		return 0
	}
	return len(r.parts)
}

// Parts：按包围盒左下角排序的凸部分列表
func (r *Region) Parts() []*ConvexRegion {
	if r == nil {
		return nil
	}
	out := make([]*ConvexRegion, 0, len(r.parts))
	for c := range r.parts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].bbox[0] != out[j].bbox[0] {
			return out[i].bbox[0] < out[j].bbox[0]
		}
		return out[i].bbox[1] < out[j].bbox[1]
	})
	return out
}

// Area：并集的精确面积（平方度）
// 实现：按纬度切分竖条，条内每个凸部分的截面是线性变化的区间，取条中线处区间并集长度乘以条宽
func (r *Region) Area() float64 {
	if r == nil {
		return 0
	}
	parts := r.Parts()
	xs := make([]float64, 0, 8*len(parts))
	for _, c := range parts {
		for _, v := range c.verts {
			xs = append(xs, v.Lat)
		}
	}
	for i, a := range parts {
		for _, s := range r.candidates(a.rect()) {
			b := s.c
			if b == a || !lessPart(parts, i, b) {
				continue
			}
			xs = append(xs, edgeCrossings(a, b)...)
		}
	}
	sort.Float64s(xs)

	total := 0.0
	for i := 1; i < len(xs); i++ {
		x0, x1 := xs[i-1], xs[i]
		if x1 <= x0 {
			continue
		}
		mid := (x0 + x1) / 2
		type span struct{ lo, hi float64 }
		var spans []span
		for _, c := range parts {
			if lo, hi, ok := c.interval(mid); ok {
				spans = append(spans, span{lo, hi})
			}
		}
		if len(spans) == 0 {
			continue
		}
		sort.Slice(spans, func(a, b int) bool { return spans[a].lo < spans[b].lo })
		length := 0.0
		cur := spans[0]
		for _, s := range spans[1:] {
			if s.lo <= cur.hi {
				cur.hi = math.Max(cur.hi, s.hi)
				continue
			}
			length += cur.hi - cur.lo
			cur = s
		}
		length += cur.hi - cur.lo
		total += (x1 - x0) * length
	}
	return total
}

// lessPart：每对部分只计算一次交点
func lessPart(parts []*ConvexRegion, i int, b *ConvexRegion) bool {
	for j := i + 1; j < len(parts); j++ {
		if parts[j] == b {
			return true
		}
	}
	return false
}

func edgeCrossings(a, b *ConvexRegion) []float64 {
	var out []float64
	na, nb := len(a.verts), len(b.verts)
	for i := 0; i < na; i++ {
		p1, p2 := a.verts[i], a.verts[(i+1)%na]
		for j := 0; j < nb; j++ {
			p3, p4 := b.verts[j], b.verts[(j+1)%nb]
			d1 := Coordinate{p2.Lat - p1.Lat, p2.Lng - p1.Lng}
			d2 := Coordinate{p4.Lat - p3.Lat, p4.Lng - p3.Lng}
			den := d1.Lat*d2.Lng - d1.Lng*d2.Lat
			if den == 0 {
				continue
			}
			w := Coordinate{p3.Lat - p1.Lat, p3.Lng - p1.Lng}
			t := (w.Lat*d2.Lng - w.Lng*d2.Lat) / den
			u := (w.Lat*d1.Lng - w.Lng*d1.Lat) / den
			if t < 0 || t > 1 || u < 0 || u > 1 {
				continue
			}
			out = append(out, p1.Lat+t*d1.Lat)
		}
	}
	return out
}
