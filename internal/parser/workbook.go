package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"pilotage/internal/model"
)

// ReadWorkbook 读取 xlsx 工作簿中的全部 sheet
func ReadWorkbook(source string, r io.Reader) (*Bundle, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &WorkbookError{Path: source, Err: err}
	}
	defer f.Close()

	return ReadWorkbookFile(source, f)
}

// ReadWorkbookBytes 读取内存中的工作簿
func ReadWorkbookBytes(source string, data []byte) (*Bundle, error) {
	return ReadWorkbook(source, bytes.NewReader(data))
}

// ReadWorkbookFile 读取已打开的工作簿（调用方负责关闭）
func ReadWorkbookFile(source string, f *excelize.File) (*Bundle, error) {
	bundle := &Bundle{
		Format: model.FormatWorkbook,
		Source: source,
	}
	percent := percentScaleColumns(f)
	for _, name := range f.GetSheetList() {
		t, err := ReadSheet(f, name)
		if err != nil {
			return nil, &WorkbookError{Path: source, Err: err}
		}
		for _, col := range t.Columns {
			if _, ok := percent[name][strings.TrimSpace(col.Name)]; ok {
				col.PercentScale = true
			}
		}
		bundle.Sheets = append(bundle.Sheets, t)
	}
	return bundle, nil
}

// percentScaleColumns 读取导出时记录的百分比口径列：sheet -> 列名集合
//
// 属性缺失或无法解析时视为没有标记。
func percentScaleColumns(f *excelize.File) map[string]map[string]struct{} {
	props, err := f.GetCustomProps()
	if err != nil {
		return nil
	}
	out := make(map[string]map[string]struct{})
	for _, p := range props {
		sheet, ok := model.PercentScaleSheet(p.Name)
		if !ok {
			continue
		}
		value, ok := p.Value.(string)
		if !ok {
			continue
		}
		var cols []string
		if err := json.Unmarshal([]byte(value), &cols); err != nil {
			continue
		}
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[strings.TrimSpace(c)] = struct{}{}
		}
		out[sheet] = set
	}
	return out
}

// ReadSheet 将一个 sheet 读为原始表：第一个非空行为表头，读取原始值（不套用显示格式）
//
// 字符串单元格为文本，数值单元格为数值，空单元格为缺失；整行为空的行跳过。
func ReadSheet(f *excelize.File, sheet string) (*model.Table, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	t := model.NewTable(sheet)
	headerIdx := firstNonBlank(rows)
	if headerIdx < 0 {
		return t, nil
	}

	header := rows[headerIdx]
	body := rows[headerIdx+1:]
	width := len(header)
	for _, row := range body {
		if len(row) > width {
			width = len(row)
		}
	}
	t.Columns = make([]*model.Column, width)
	for i := 0; i < width; i++ {
		t.Columns[i] = model.NewColumn(headerName(header, i))
	}

	for r, row := range body {
		if isBlankRow(row) {
			continue
		}
		rowNo := headerIdx + r + 2
		for c := 0; c < width; c++ {
			cell := model.Missing()
			if c < len(row) {
				cell, err = readCell(f, sheet, c, rowNo, row[c])
				if err != nil {
					return nil, err
				}
			}
			t.Columns[c].Cells = append(t.Columns[c].Cells, cell)
		}
	}
	return t, nil
}

// readCell 按单元格存储类型决定取值
func readCell(f *excelize.File, sheet string, col, row int, raw string) (model.Cell, error) {
	if raw == "" {
		return model.Missing(), nil
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return model.Missing(), err
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return model.Missing(), fmt.Errorf("cell %s!%s: %w", sheet, axis, err)
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeFormula:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return model.Number(v), nil
		}
		return model.Text(raw), nil
	default:
		return model.Text(raw), nil
	}
}

func headerName(header []string, i int) string {
	if i < len(header) && strings.TrimSpace(header[i]) != "" {
		return header[i]
	}
	return "Unnamed: " + strconv.Itoa(i)
}

// firstNonBlank 第一个非空行的下标；全部为空返回 -1
func firstNonBlank(rows [][]string) int {
	for i, row := range rows {
		if !isBlankRow(row) {
			return i
		}
	}
	return -1
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
