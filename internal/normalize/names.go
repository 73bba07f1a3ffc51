package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pilotage/internal/model"
)

// CanonicalName 规范化列名：NFC 组合 + 去除首尾空白（含不换行空格）
func CanonicalName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// FoldName 宽松比较用的折叠形式：规范化、小写、去掉重音符号
//
// "Absentéisme_Global_Mois" 与 " absenteisme_global_mois" 折叠后相同。
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// CanonicalizeNames 规范化表内所有列名，重名列追加 .1/.2 后缀
func CanonicalizeNames(t *model.Table) {
	used := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		c.Name = CanonicalName(c.Name)
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		used[c.Name] = struct{}{}
	}
	for _, c := range t.Columns {
		if _, dup := seen[c.Name]; !dup {
			seen[c.Name] = struct{}{}
			continue
		}
		base := c.Name
		for i := 1; ; i++ {
			candidate := base + "." + strconv.Itoa(i)
			if _, taken := used[candidate]; taken {
				continue
			}
			c.Name = candidate
			used[candidate] = struct{}{}
			seen[candidate] = struct{}{}
			break
		}
	}
}

// containsAny 检查字符串是否包含任意一个关键词
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
