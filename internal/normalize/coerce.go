package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"pilotage/internal/model"
)

// 两侧可能被包裹的引号（含排版引号）
const quoteChars = "\"'“”«»‘’„"

var reDecimal = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanToken 去掉引号、空白（含 U+00A0 / U+202F 千分位空格）与百分号
func CleanToken(raw string) string {
	s := raw
	for {
		trimmed := strings.Trim(strings.TrimSpace(s), quoteChars)
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.Map(func(r rune) rune {
		if r == '%' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// normalizeSeparators 统一小数点
//
// 同时出现 "." 与 "," 时，靠后的那个是小数点，另一个是千分位。
// 只出现一种且重复出现时（1.234.567、1,234,567）视为千分位，需按三位分组。
func normalizeSeparators(s string) string {
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		return strings.ReplaceAll(s, ",", ".")
	case comma >= 0 && dot >= 0:
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") > 1:
		return dropThousands(s, ',')
	case strings.Count(s, ".") > 1:
		return dropThousands(s, '.')
	case comma >= 0:
		return strings.ReplaceAll(s, ",", ".")
	default:
		return s
	}
}

// reGrouped 按三位分组的整数部分，例如 1,234,567
var reGrouped = map[rune]*regexp.Regexp{
	',': regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+$`),
	'.': regexp.MustCompile(`^[+-]?\d{1,3}(\.\d{3})+$`),
}

// dropThousands 去掉千分位；分组不规范时原样返回（随后解析失败）
func dropThousands(s string, sep rune) string {
	if !reGrouped[sep].MatchString(s) {
		return s
	}
	return strings.ReplaceAll(s, string(sep), "")
}

// ParseNumber 解析一个文本单元格，结果只有数值或缺失两种
func ParseNumber(raw string) model.Cell {
	cell, _ := parseToken(raw)
	return cell
}

// parseToken 返回解析结果；ok=false 表示非空文本解析失败
func parseToken(raw string) (model.Cell, bool) {
	s := CleanToken(raw)
	if s == "" {
		return model.Missing(), true
	}
	s = normalizeSeparators(s)
	if !reDecimal.MatchString(s) {
		return model.Missing(), false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return model.Missing(), false
	}
	return model.Number(f), true
}

// CoerceResult 单列转换结果
type CoerceResult struct {
	Converted bool // 列已转为数值列
	Parsed    int  // 成功解析的文本单元格
	Failed    int  // 解析失败、记为缺失的文本单元格
}

// CoerceColumn 将“伪装成文本的数字列”转换为数值列
//
// 已是数值列的不处理。文本单元格中解析成功的占比达到 minRatio（且至少一个成功）
// 时整列转换，失败的单元格记为缺失；否则整列保持原样。
// 全部为空白文本的列转换为全缺失。
func CoerceColumn(col *model.Column, minRatio float64) CoerceResult {
	if col.IsNumeric() {
		return CoerceResult{}
	}

	converted := make([]model.Cell, len(col.Cells))
	parsed, failed, blank, numeric := 0, 0, 0, 0
	for i, cell := range col.Cells {
		if cell.Kind != model.CellText {
			converted[i] = cell
			if cell.Kind == model.CellNumber {
				numeric++
			}
			continue
		}
		v, ok := parseToken(cell.Str)
		converted[i] = v
		switch {
		case !ok:
			failed++
		case v.IsMissing():
			blank++
		default:
			parsed++
		}
	}

	qualifies := parsed+numeric > 0 &&
		float64(parsed+numeric)/float64(parsed+numeric+failed) >= minRatio
	if parsed == 0 && failed == 0 && blank > 0 {
		qualifies = true
	}
	if !qualifies {
		return CoerceResult{}
	}

	col.Cells = converted
	return CoerceResult{Converted: true, Parsed: parsed, Failed: failed}
}
