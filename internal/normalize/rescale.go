package normalize

import (
	"math"
	"strings"

	"pilotage/internal/model"
)

// DefaultRatioThreshold 比例口径判定阈值
//
// 列最大绝对值不超过该值时视为 0-1 比例（允许 1.1 这类超额完成），否则视为已是 0-100。
// 这是经验阈值：最大值落在 1.5 到几之间的真实比例列会被误判。
const DefaultRatioThreshold = 1.5

// DefaultPercentKeywords 百分比语义列名关键词（小写）
var DefaultPercentKeywords = []string{"taux", "%", "atteinte", "validation", "rendement", "impact"}

// IsPercentColumn 列名（去空白、忽略大小写）包含任一关键词即为百分比语义列
func IsPercentColumn(name string, keywords []string) bool {
	return containsAny(strings.ToLower(strings.TrimSpace(name)), keywords)
}

// MaxAbs 非缺失值的最大绝对值；全缺失返回 false
func MaxAbs(col *model.Column) (float64, bool) {
	found := false
	maxAbs := 0.0
	for _, cell := range col.Cells {
		v, ok := cell.Float()
		if !ok {
			continue
		}
		found = true
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	return maxAbs, found
}

// Rescale 将 0-1 比例列放大到 0-100，返回是否发生了放大
//
// 非数值列、已标记为百分比口径的列不处理；全缺失或最大值为 0 的列不处理也不标记。
// 判定后列被标记为 PercentScale，再次调用不会重复放大。
func Rescale(col *model.Column, threshold float64) bool {
	if col.PercentScale || !col.IsNumeric() {
		return false
	}
	maxAbs, ok := MaxAbs(col)
	if !ok || maxAbs == 0 {
		return false
	}

	col.PercentScale = true
	if maxAbs > threshold {
		return false
	}
	for i, cell := range col.Cells {
		if v, ok := cell.Float(); ok {
			col.Cells[i] = model.Number(scale100(v))
		}
	}
	return true
}

// scale100 乘以 100 并消除二进制浮点误差（0.07*100 得到 7 而不是 7.000000000000001）
func scale100(v float64) float64 {
	return math.Round(v*1e14) / 1e12
}
