// 包 geo：覆盖区域的最小几何实现（凸包、凸包并集、点包含判定）
package geo

import (
	"errors"
	"fmt"
	"strconv"
)

// Coordinate：经纬度坐标，按值精确比较，可直接作为 map 键
// 约束：不做浮点容差，(lat,lng) 完全相等才视为同一点；门店身份与种子身份共用此键
type Coordinate struct {
	Lat float64
	Lng float64
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Less：先纬度后经度的全序，用于种子出队顺序与输出排序的确定性
func (c Coordinate) Less(o Coordinate) bool {
	if c.Lat != o.Lat {
		return c.Lat < o.Lat
	}
	return c.Lng < o.Lng
}

// 包围盒：minLat, minLng, maxLat, maxLng
type BBox [4]float64

func (b BBox) has(p Coordinate) bool {
	return p.Lat >= b[0] && p.Lat <= b[2] && p.Lng >= b[1] && p.Lng <= b[3]
}

func (b BBox) covers(o BBox) bool {
	return o[0] >= b[0] && o[1] >= b[1] && o[2] <= b[2] && o[3] <= b[3]
}

var (
	ErrInsufficientPoints = errors.New("must have >= 3 points")
	ErrDegenerateHull     = errors.New("points do not span an area")
)

// InsufficientPointsError：凸包构建输入不足 3 个点
// 约束：调用方已按点数门控，出现即为调用约定被破坏，不作为可恢复错误处理
type InsufficientPointsError struct {
	Got int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("build hull: %d points supplied: %v", e.Got, ErrInsufficientPoints)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }
