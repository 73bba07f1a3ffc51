package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"pilotage/internal/model"
)

// ErrNothingToExport 没有可导出的表
var ErrNothingToExport = errors.New("no tables to export")

const (
	minColWidth = 8
	maxColWidth = 60
)

// Exporter 将清洗后的表写回工作簿（每个逻辑表一个 sheet，沿用原 sheet 名）
type Exporter struct {
	progress func(ProgressEvent)
}

// NewExporter 创建导出器；progress 可为 nil
func NewExporter(progress func(ProgressEvent)) *Exporter {
	return &Exporter{progress: progress}
}

// Export 生成工作簿，sheet 顺序与逻辑表顺序一致
func (e *Exporter) Export(tables map[model.LogicalKey]*model.Table) (*excelize.File, error) {
	var present []model.SheetBinding
	for _, b := range model.SheetBindings {
		if _, ok := tables[b.Key]; ok {
			present = append(present, b)
		}
	}
	if len(present) == 0 {
		return nil, ErrNothingToExport
	}

	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, b := range present {
		e.report(i*100/len(present), StageSheet, b.SheetName)
		if _, err := f.NewSheet(b.SheetName); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", b.SheetName, err)
		}
		if err := writeTable(f, b.SheetName, tables[b.Key], headerStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := markPercentScale(f, b.SheetName, tables[b.Key]); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(0)
	e.report(100, StageDone, "")
	return f, nil
}

// ExportFile 导出到文件
func (e *Exporter) ExportFile(tables map[model.LogicalKey]*model.Table, path string) error {
	f, err := e.Export(tables)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, t *model.Table, headerStyle int) error {
	header := make([]interface{}, len(t.Columns))
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Name
		widths[i] = utf8.RuneCountInString(col.Name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}
	if len(t.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}

	for r := 0; r < t.Rows(); r++ {
		row := make([]interface{}, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = cellValue(col, r)
			if s, ok := row[i].(string); ok {
				widths[i] = max(widths[i], utf8.RuneCountInString(s))
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sheet, err)
		}
	}

	for i, w := range widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(min(max(w+2, minColWidth), maxColWidth))
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}

// markPercentScale 记录已处于 0-100 口径的列，重新导入时不会再次放大
func markPercentScale(f *excelize.File, sheet string, t *model.Table) error {
	var cols []string
	for _, col := range t.Columns {
		if col.PercentScale {
			cols = append(cols, col.Name)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return err
	}
	if err := f.SetCustomProps(excelize.CustomProperty{Name: model.PercentScaleProperty(sheet), Value: string(data)}); err != nil {
		return fmt.Errorf("failed to record percent columns of %s: %w", sheet, err)
	}
	return nil
}

// cellValue 缺失值写为空单元格；整数列写为整数
func cellValue(col *model.Column, r int) interface{} {
	if r >= len(col.Cells) {
		return nil
	}
	c := col.Cells[r]
	switch c.Kind {
	case model.CellText:
		return c.Str
	case model.CellNumber:
		if math.IsInf(c.Num, 0) {
			return nil
		}
		if col.Integer {
			return int64(c.Num)
		}
		return c.Num
	default:
		return nil
	}
}
