// Package normalize 将原始 sheet 清洗为数值口径一致的表。
//
// 处理顺序固定：列名规范化 → 文本转数值 → 年份列修复 → 比例列放大。
// 整个流程是幂等的：对已清洗的表再跑一遍不会改变任何值。
package normalize

import (
	"strings"
	"time"

	"pilotage/internal/model"
)

// DefaultYearColumns 年份列名
var DefaultYearColumns = []string{"Année"}

// Options 清洗选项
type Options struct {
	// DefaultYear 年份无法解析时的取值；0 表示当前年份
	DefaultYear int
	// YearColumns 年份列名（宽松匹配：忽略大小写与重音）
	YearColumns []string
	// PercentKeywords 百分比语义列名关键词
	PercentKeywords []string
	// RatioThreshold 比例口径判定阈值
	RatioThreshold float64
	// MinNumericRatio 文本列中可解析单元格的最低占比；0 表示只要有一个可解析即转换
	MinNumericRatio float64
}

// DefaultOptions 默认清洗选项
func DefaultOptions() Options {
	return Options{
		YearColumns:     append([]string(nil), DefaultYearColumns...),
		PercentKeywords: append([]string(nil), DefaultPercentKeywords...),
		RatioThreshold:  DefaultRatioThreshold,
	}
}

// Stats 单表清洗统计
type Stats struct {
	CoercedCells    int      `json:"coercedCells"`
	MissingCells    int      `json:"missingCells"`
	YearDefaulted   int      `json:"yearDefaulted"`
	ConvertedCols   []string `json:"convertedColumns"`
	RescaledColumns []string `json:"rescaledColumns"`
}

// Normalizer 清洗器（无状态，可并发使用）
type Normalizer struct {
	opts        Options
	yearColumns map[string]struct{}
	keywords    []string
}

// New 创建清洗器
func New(opts Options) *Normalizer {
	if opts.RatioThreshold <= 0 {
		opts.RatioThreshold = DefaultRatioThreshold
	}
	if len(opts.PercentKeywords) == 0 {
		opts.PercentKeywords = DefaultPercentKeywords
	}
	if len(opts.YearColumns) == 0 {
		opts.YearColumns = DefaultYearColumns
	}

	years := make(map[string]struct{}, len(opts.YearColumns))
	for _, name := range opts.YearColumns {
		years[FoldName(name)] = struct{}{}
	}
	keywords := make([]string, 0, len(opts.PercentKeywords))
	for _, kw := range opts.PercentKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return &Normalizer{opts: opts, yearColumns: years, keywords: keywords}
}

// defaultYear 生效的默认年份
func (n *Normalizer) defaultYear() int {
	if n.opts.DefaultYear > 0 {
		return n.opts.DefaultYear
	}
	return time.Now().Year()
}

// IsYearColumn 是否为年份列
func (n *Normalizer) IsYearColumn(name string) bool {
	_, ok := n.yearColumns[FoldName(name)]
	return ok
}

// IsPercentColumn 是否为百分比语义列
func (n *Normalizer) IsPercentColumn(name string) bool {
	return IsPercentColumn(name, n.keywords)
}

// Normalize 清洗一张表，返回新表；输入不被修改
func (n *Normalizer) Normalize(raw *model.Table) (*model.Table, Stats) {
	t := raw.Clone()
	var st Stats

	CanonicalizeNames(t)

	for _, col := range t.Columns {
		res := CoerceColumn(col, n.opts.MinNumericRatio)
		if !res.Converted {
			continue
		}
		st.CoercedCells += res.Parsed
		st.MissingCells += res.Failed
		st.ConvertedCols = append(st.ConvertedCols, col.Name)
	}

	defaultYear := n.defaultYear()
	for _, col := range t.Columns {
		if n.IsYearColumn(col.Name) {
			st.YearDefaulted += RepairYear(col, defaultYear)
		}
	}

	for _, col := range t.Columns {
		if !n.IsPercentColumn(col.Name) {
			continue
		}
		if Rescale(col, n.opts.RatioThreshold) {
			st.RescaledColumns = append(st.RescaledColumns, col.Name)
		}
	}

	return t, st
}
