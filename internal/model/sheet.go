package model

// LogicalKey 逻辑表标识（与原始 sheet 名解耦）
type LogicalKey string

const (
	KeyYTD        LogicalKey = "YTD"         // 年度累计汇总
	KeyRecruit    LogicalKey = "RECRUT"      // 月度招聘
	KeyAbsence    LogicalKey = "ABS"         // 月度整体缺勤
	KeyAbsReason  LogicalKey = "ABS_MOTIF"   // 按原因缺勤
	KeyAbsService LogicalKey = "ABS_SERVICE" // 按部门缺勤
	KeySourcing   LogicalKey = "SOURCE"      // 渠道转化
	KeyPlan       LogicalKey = "PLAN"        // 行动计划跟踪
)

// SheetBinding 逻辑表与源 sheet 名的绑定
type SheetBinding struct {
	Key       LogicalKey `json:"key"`
	SheetName string     `json:"sheetName"`
}

// SheetBindings 固定的 sheet 绑定（顺序即展示顺序）
var SheetBindings = []SheetBinding{
	{Key: KeyYTD, SheetName: "CONSOLIDATION_YTD"},
	{Key: KeyRecruit, SheetName: "Recrutement_Mensuel"},
	{Key: KeyAbsence, SheetName: "Absentéisme_Global_Mois"},
	{Key: KeyAbsReason, SheetName: "Absentéisme_Par_Motif"},
	{Key: KeyAbsService, SheetName: "Absentéisme_Par_Service"},
	{Key: KeySourcing, SheetName: "KPI_Sourcing_Rendement"},
	{Key: KeyPlan, SheetName: "Suivi_Plan_Action"},
}

// SheetNameOf 返回逻辑表对应的 sheet 名
func SheetNameOf(key LogicalKey) (string, bool) {
	for _, b := range SheetBindings {
		if b.Key == key {
			return b.SheetName, true
		}
	}
	return "", false
}

// ParseLogicalKey 解析逻辑表标识
func ParseLogicalKey(s string) (LogicalKey, bool) {
	for _, b := range SheetBindings {
		if string(b.Key) == s {
			return b.Key, true
		}
	}
	return "", false
}

// percentScalePropPrefix 导出工作簿中记录百分比口径列的自定义文档属性前缀
const percentScalePropPrefix = "pilotage.percent_scale:"

// PercentScaleProperty sheet 对应的自定义属性名；属性值为该 sheet 中已处于 0-100 口径的列名（JSON 数组）
func PercentScaleProperty(sheet string) string {
	return percentScalePropPrefix + sheet
}

// PercentScaleSheet 由自定义属性名反查 sheet 名
func PercentScaleSheet(property string) (string, bool) {
	if len(property) <= len(percentScalePropPrefix) || property[:len(percentScalePropPrefix)] != percentScalePropPrefix {
		return "", false
	}
	return property[len(percentScalePropPrefix):], true
}
