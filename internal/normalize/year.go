package normalize

import (
	"math"

	"pilotage/internal/model"
)

// RepairYear 年份列修复：转为整数，无法解析的值落到 defaultYear
//
// 下游按具体年份筛选，年份列不允许出现缺失，也不允许报错。返回被替换为默认值的单元格数。
func RepairYear(col *model.Column, defaultYear int) int {
	defaulted := 0
	for i, cell := range col.Cells {
		var v float64
		switch cell.Kind {
		case model.CellNumber:
			v = cell.Num
		case model.CellText:
			parsed, ok := ParseNumber(cell.Str).Float()
			if !ok {
				v = math.NaN()
			} else {
				v = parsed
			}
		default:
			v = math.NaN()
		}

		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt32 {
			col.Cells[i] = model.Number(float64(defaultYear))
			defaulted++
			continue
		}
		col.Cells[i] = model.Number(math.Trunc(v))
	}
	col.Integer = true
	return defaulted
}
