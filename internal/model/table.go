package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CellKind 单元格取值类型
type CellKind uint8

const (
	CellMissing CellKind = iota // 缺失值
	CellText                    // 文本
	CellNumber                  // 数值
)

// Cell 单元格（标签联合：缺失 / 文本 / 数值）
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
}

// Missing 缺失值
func Missing() Cell { return Cell{Kind: CellMissing} }

// Text 文本值
func Text(s string) Cell { return Cell{Kind: CellText, Str: s} }

// Number 数值；NaN 视为缺失
func Number(f float64) Cell {
	if math.IsNaN(f) {
		return Missing()
	}
	return Cell{Kind: CellNumber, Num: f}
}

// IsMissing 是否缺失
func (c Cell) IsMissing() bool { return c.Kind == CellMissing }

// Float 返回数值；非数值单元格返回 false
func (c Cell) Float() (float64, bool) {
	if c.Kind != CellNumber {
		return 0, false
	}
	return c.Num, true
}

// String 单元格的显示文本
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Str
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Column 列
type Column struct {
	Name  string
	Cells []Cell

	// Integer 整数列（如年份），输出时不带小数
	Integer bool
	// PercentScale 百分比列已确认处于 0-100 口径
	PercentScale bool
}

// NewColumn 创建列
func NewColumn(name string, cells ...Cell) *Column {
	return &Column{Name: name, Cells: cells}
}

// IsNumeric 列中不含文本单元格即视为数值列（全空列同样视为数值列）
func (c *Column) IsNumeric() bool {
	for _, cell := range c.Cells {
		if cell.Kind == CellText {
			return false
		}
	}
	return true
}

// Clone 深拷贝
func (c *Column) Clone() *Column {
	cells := make([]Cell, len(c.Cells))
	copy(cells, c.Cells)
	return &Column{
		Name:         c.Name,
		Cells:        cells,
		Integer:      c.Integer,
		PercentScale: c.PercentScale,
	}
}

// Table 二维表（按列存储，各列行数一致）
type Table struct {
	Name    string
	Key     LogicalKey
	Columns []*Column
}

// NewTable 创建表
func NewTable(name string, columns ...*Column) *Table {
	return &Table{Name: name, Columns: columns}
}

// Rows 行数（取最长列）
func (t *Table) Rows() int {
	n := 0
	for _, c := range t.Columns {
		if len(c.Cells) > n {
			n = len(c.Cells)
		}
	}
	return n
}

// ColumnNames 列名列表
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column 按列名查找（忽略首尾空白）
func (t *Table) Column(name string) *Column {
	name = strings.TrimSpace(name)
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == name {
			return c
		}
	}
	return nil
}

// Cell 取单元格；越界返回缺失
func (t *Table) Cell(column string, row int) Cell {
	c := t.Column(column)
	if c == nil || row < 0 || row >= len(c.Cells) {
		return Missing()
	}
	return c.Cells[row]
}

// Clone 深拷贝
func (t *Table) Clone() *Table {
	cols := make([]*Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Clone()
	}
	return &Table{Name: t.Name, Key: t.Key, Columns: cols}
}

// Equal 比较两张表的列名、标记与单元格是否完全一致
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.Columns) != len(o.Columns) {
		return false
	}
	for i, a := range t.Columns {
		b := o.Columns[i]
		if a.Name != b.Name || a.Integer != b.Integer || a.PercentScale != b.PercentScale {
			return false
		}
		if len(a.Cells) != len(b.Cells) {
			return false
		}
		for j := range a.Cells {
			if !cellEqual(a.Cells[j], b.Cells[j]) {
				return false
			}
		}
	}
	return true
}

func cellEqual(a, b Cell) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case CellText:
		return a.Str == b.Str
	case CellNumber:
		return math.Float64bits(a.Num) == math.Float64bits(b.Num)
	default:
		return true
	}
}

type tableJSON struct {
	Key     LogicalKey        `json:"key,omitempty"`
	Name    string            `json:"name"`
	Columns []string          `json:"columns"`
	Rows    []json.RawMessage `json:"rows"`
}

// MarshalJSON 输出 {key,name,columns,rows}；缺失值为 null，整数列不带小数
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Key:     t.Key,
		Name:    t.Name,
		Columns: t.ColumnNames(),
		Rows:    make([]json.RawMessage, 0, t.Rows()),
	}
	for r := 0; r < t.Rows(); r++ {
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, c := range t.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			cell := Missing()
			if r < len(c.Cells) {
				cell = c.Cells[r]
			}
			if err := writeCellJSON(&buf, cell, c.Integer); err != nil {
				return nil, err
			}
		}
		buf.WriteByte(']')
		out.Rows = append(out.Rows, buf.Bytes())
	}
	return json.Marshal(out)
}

func writeCellJSON(buf *bytes.Buffer, cell Cell, integer bool) error {
	switch cell.Kind {
	case CellText:
		b, err := json.Marshal(cell.Str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case CellNumber:
		if math.IsInf(cell.Num, 0) {
			buf.WriteString("null")
			return nil
		}
		if integer {
			buf.WriteString(strconv.FormatInt(int64(cell.Num), 10))
			return nil
		}
		buf.WriteString(strconv.FormatFloat(cell.Num, 'f', -1, 64))
	default:
		buf.WriteString("null")
	}
	return nil
}
