package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"pilotage/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FlatFile 一个平面表文件的内容
type FlatFile struct {
	Name string
	Data []byte
}

// SheetNameFromFile 由文件名推出 sheet 名
//
// 表格软件导出时常见 "<文档名> - <sheet名>.csv"，取最后一段。
func SheetNameFromFile(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if idx := strings.LastIndex(stem, " - "); idx >= 0 {
		stem = stem[idx+len(" - "):]
	}
	return strings.TrimSpace(stem)
}

// ReadFlat 读取单个 CSV 平面表；所有非空单元格均为文本
func ReadFlat(sheet string, data []byte) (*model.Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", sheet, err)
	}

	t := model.NewTable(sheet)
	headerIdx := firstNonBlank(records)
	if headerIdx < 0 {
		return t, nil
	}
	records = records[headerIdx:]

	header := records[0]
	width := len(header)
	for _, rec := range records[1:] {
		if len(rec) > width {
			width = len(rec)
		}
	}
	t.Columns = make([]*model.Column, width)
	for i := 0; i < width; i++ {
		t.Columns[i] = model.NewColumn(headerName(header, i))
	}

	for _, rec := range records[1:] {
		if isBlankRow(rec) {
			continue
		}
		for c := 0; c < width; c++ {
			cell := model.Missing()
			if c < len(rec) && rec[c] != "" {
				cell = model.Text(rec[c])
			}
			t.Columns[c].Cells = append(t.Columns[c].Cells, cell)
		}
	}
	return t, nil
}

// ReadFlatFiles 读取一组平面表，每个文件即一个 sheet
func ReadFlatFiles(source string, files []FlatFile) (*Bundle, error) {
	bundle := &Bundle{
		Format: model.FormatFlat,
		Source: source,
	}
	for _, f := range files {
		t, err := ReadFlat(SheetNameFromFile(f.Name), f.Data)
		if err != nil {
			return nil, &WorkbookError{Path: f.Name, Err: err}
		}
		bundle.Sheets = append(bundle.Sheets, t)
	}
	return bundle, nil
}

// sniffDelimiter 按表头行中出现次数最多的分隔符判断（法语环境导出常用 ";"）
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
