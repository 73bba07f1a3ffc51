package parser

import (
	"strings"

	"pilotage/internal/model"
	"pilotage/internal/normalize"
)

// SheetRecognizer 将源中的 sheet 对应到逻辑表
type SheetRecognizer struct {
	bindings []model.SheetBinding
}

// NewSheetRecognizer 创建识别器，使用固定的 sheet 绑定
func NewSheetRecognizer() *SheetRecognizer {
	return &SheetRecognizer{bindings: model.SheetBindings}
}

// Recognize 返回 sheet 名对应的逻辑表
//
// 先精确匹配（忽略首尾空白），再做宽松匹配（忽略大小写与重音）。
func (r *SheetRecognizer) Recognize(sheetName string) (model.LogicalKey, bool) {
	name := strings.TrimSpace(sheetName)
	for _, b := range r.bindings {
		if b.SheetName == name {
			return b.Key, true
		}
	}
	folded := normalize.FoldName(name)
	for _, b := range r.bindings {
		if normalize.FoldName(b.SheetName) == folded {
			return b.Key, true
		}
	}
	return "", false
}

// Bind 将一组原始 sheet 绑定到逻辑表；未找到的 sheet 只记录，不报错
//
// 每个逻辑表只取一个 sheet：精确匹配优先于宽松匹配，同级时取源内靠前的。
func (r *SheetRecognizer) Bind(bundle *Bundle) Binding {
	out := Binding{
		Tables:  make(map[model.LogicalKey]*model.Table),
		Missing: []string{},
		Ignored: []string{},
	}
	if bundle == nil {
		for _, b := range r.bindings {
			out.Missing = append(out.Missing, b.SheetName)
		}
		return out
	}

	used := make(map[int]struct{})
	for _, b := range r.bindings {
		idx := r.find(bundle.Sheets, b, used)
		if idx < 0 {
			out.Missing = append(out.Missing, b.SheetName)
			continue
		}
		used[idx] = struct{}{}
		t := bundle.Sheets[idx]
		t.Key = b.Key
		out.Tables[b.Key] = t
	}

	for i, s := range bundle.Sheets {
		if _, ok := used[i]; !ok {
			out.Ignored = append(out.Ignored, s.Name)
		}
	}
	return out
}

func (r *SheetRecognizer) find(sheets []*model.Table, b model.SheetBinding, used map[int]struct{}) int {
	for i, s := range sheets {
		if _, taken := used[i]; taken {
			continue
		}
		if strings.TrimSpace(s.Name) == b.SheetName {
			return i
		}
	}
	want := normalize.FoldName(b.SheetName)
	for i, s := range sheets {
		if _, taken := used[i]; taken {
			continue
		}
		if normalize.FoldName(s.Name) == want {
			return i
		}
	}
	return -1
}
