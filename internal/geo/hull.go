package geo

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
)

// ConvexRegion：单个凸多边形，顶点按凸包顺序（逆时针，x=纬度，y=经度）排列
type ConvexRegion struct {
	verts []Coordinate
	bbox  BBox
	area  float64
}

// BuildHull：计算输入点集的凸包并返回以凸包顶点围成的多边形
// 约束：少于 3 个点返回 *InsufficientPointsError；共线或重复点导致凸包顶点不足 3 个时返回 ErrDegenerateHull
func BuildHull(points []Coordinate) (*ConvexRegion, error) {
	if len(points) < 3 {
		return nil, &InsufficientPointsError{Got: len(points)}
	}
	pts := make([]Coordinate, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Less(pts[j]) })
	uniq := pts[:1]
	for _, p := range pts[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return nil, ErrDegenerateHull
	}

	// Andrew 单调链：下链 + 上链，叉积 <= 0 的点出栈（同时剔除共线点）
	hull := make([]Coordinate, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]
	if len(hull) < 3 {
		return nil, ErrDegenerateHull
	}
	return newConvex(hull), nil
}

func newConvex(verts []Coordinate) *ConvexRegion {
	b := BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, v := range verts {
		b[0] = math.Min(b[0], v.Lat)
		b[1] = math.Min(b[1], v.Lng)
		b[2] = math.Max(b[2], v.Lat)
		b[3] = math.Max(b[3], v.Lng)
	}
	return &ConvexRegion{verts: verts, bbox: b, area: shoelace(verts)}
}

// Vertices：返回顶点副本
func (c *ConvexRegion) Vertices() []Coordinate {
	out := make([]Coordinate, len(c.verts))
	copy(out, c.verts)
	return out
}

func (c *ConvexRegion) Bounds() BBox  { return c.bbox }
func (c *ConvexRegion) Area() float64 { return c.area }

// Contains：点位于多边形内部或边界上
func (c *ConvexRegion) Contains(p Coordinate) bool {
	if !c.bbox.has(p) {
		return false
	}
	n := len(c.verts)
	for i := 0; i < n; i++ {
		if cross(c.verts[i], c.verts[(i+1)%n], p) < 0 {
			return false
		}
	}
	return true
}

// ContainsInterior：点严格位于多边形内部（边界上的点不算）
func (c *ConvexRegion) ContainsInterior(p Coordinate) bool {
	if !c.bbox.has(p) {
		return false
	}
	n := len(c.verts)
	for i := 0; i < n; i++ {
		if cross(c.verts[i], c.verts[(i+1)%n], p) <= 0 {
			return false
		}
	}
	return true
}

// covers：o 的全部顶点都落在 c 内即 o ⊆ c（两者均为凸多边形）
func (c *ConvexRegion) covers(o *ConvexRegion) bool {
	if !c.bbox.covers(o.bbox) {
		return false
	}
	for _, v := range o.verts {
		if !c.Contains(v) {
			return false
		}
	}
	return true
}

// rect：索引用包围盒；退化为零宽的边向外扩一个 eps，保证点查询可命中
func (c *ConvexRegion) rect() rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{c.bbox[0] - indexEps, c.bbox[1] - indexEps},
		rtreego.Point{c.bbox[2] + indexEps, c.bbox[3] + indexEps},
	)
	return r
}

// interval：x=lat 处该凸多边形的截面 [lo, hi]（y=lng），不相交时 ok=false
func (c *ConvexRegion) interval(x float64) (lo, hi float64, ok bool) {
	if x < c.bbox[0] || x > c.bbox[2] {
		return 0, 0, false
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	n := len(c.verts)
	for i := 0; i < n; i++ {
		a, b := c.verts[i], c.verts[(i+1)%n]
		if (a.Lat-x)*(b.Lat-x) > 0 {
			continue
		}
		if a.Lat == b.Lat {
			lo = math.Min(lo, math.Min(a.Lng, b.Lng))
			hi = math.Max(hi, math.Max(a.Lng, b.Lng))
			continue
		}
		y := a.Lng + (x-a.Lat)*(b.Lng-a.Lng)/(b.Lat-a.Lat)
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	return lo, hi, lo <= hi
}

func cross(o, a, b Coordinate) float64 {
	return (a.Lat-o.Lat)*(b.Lng-o.Lng) - (a.Lng-o.Lng)*(b.Lat-o.Lat)
}

func shoelace(verts []Coordinate) float64 {
	s := 0.0
	n := len(verts)
	for i := 0; i < n; i++ {
		a, b := verts[i], verts[(i+1)%n]
		s += a.Lat*b.Lng - b.Lat*a.Lng
	}
	return math.Abs(s) / 2
}
