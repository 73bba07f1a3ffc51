package parser

import (
	"errors"
	"fmt"

	"pilotage/internal/model"
)

var (
	// ErrNoInput 未找到可用的源文件（工作簿或平面表）
	ErrNoInput = errors.New("no usable input")
	// ErrMalformedWorkbook 源文件存在但无法解析
	ErrMalformedWorkbook = errors.New("malformed workbook")
)

// WorkbookError 源文件解析失败，保留底层原因
type WorkbookError struct {
	Path string
	Err  error
}

func (e *WorkbookError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed workbook: %v", e.Err)
	}
	return fmt.Sprintf("malformed workbook %s: %v", e.Path, e.Err)
}

func (e *WorkbookError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrMalformedWorkbook) 成立
func (e *WorkbookError) Is(target error) bool { return target == ErrMalformedWorkbook }

// Bundle 从一个源读出的原始 sheet 集合（保持源内顺序）
type Bundle struct {
	Format model.SourceFormat
	Source string
	Sheets []*model.Table
}

// SheetNames sheet 名列表
func (b *Bundle) SheetNames() []string {
	names := make([]string, len(b.Sheets))
	for i, s := range b.Sheets {
		names[i] = s.Name
	}
	return names
}

// Binding sheet 与逻辑表的绑定结果
type Binding struct {
	Tables  map[model.LogicalKey]*model.Table
	Missing []string // 期望但未找到的 sheet
	Ignored []string // 源中存在但未被使用的 sheet
}
