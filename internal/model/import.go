package model

import "time"

// SourceFormat 源数据编码
type SourceFormat string

const (
	FormatWorkbook SourceFormat = "xlsx" // 带命名 sheet 的工作簿
	FormatFlat     SourceFormat = "csv"  // 一个 sheet 一个平面表文件
)

// SheetReport 单个逻辑表的加载结果
type SheetReport struct {
	Key          LogicalKey `json:"key"`
	SheetName    string     `json:"sheetName"`
	Rows         int        `json:"rows"`
	Columns      int        `json:"columns"`
	CoercedCells int        `json:"coercedCells"` // 转为数值的文本单元格
	MissingCells int        `json:"missingCells"` // 转换失败记为缺失的单元格
	RescaledCols []string   `json:"rescaledColumns"`
}

// LoadReport 一次加载的报告
type LoadReport struct {
	LoadID        string        `json:"loadId"`
	Source        string        `json:"source"`
	Fingerprint   string        `json:"fingerprint"`
	Format        SourceFormat  `json:"format"`
	Sheets        []SheetReport `json:"sheets"`
	MissingSheets []string      `json:"missingSheets"`
	IgnoredSheets []string      `json:"ignoredSheets"`
	CacheHit      bool          `json:"cacheHit"`
	LoadedAt      time.Time     `json:"loadedAt"`
	Duration      time.Duration `json:"duration"`
}

// Keys 已加载的逻辑表
func (r *LoadReport) Keys() []LogicalKey {
	keys := make([]LogicalKey, 0, len(r.Sheets))
	for _, s := range r.Sheets {
		keys = append(keys, s.Key)
	}
	return keys
}

// Import status values
const (
	ImportProcessing = "processing"
	ImportSuccess    = "success"
	ImportFailed     = "failed"
	ImportNoInput    = "no_input"
)

// ImportLog 导入日志（只记录元信息，不保存表内容）
type ImportLog struct {
	ID            int64        `json:"id"`
	LoadID        string       `json:"loadId"`
	Filename      string       `json:"filename"`
	FilePath      string       `json:"filePath"`
	FileSize      int64        `json:"fileSize"`
	FileHash      string       `json:"fileHash"`
	Format        SourceFormat `json:"format"`
	Status        string       `json:"status"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
	CacheHit      bool         `json:"cacheHit"`
	MissingSheets []string     `json:"missingSheets"`
	StartedAt     time.Time    `json:"startedAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
	Sheets        []SheetMeta  `json:"sheets,omitempty"`
}

// SheetMeta 单个 sheet 的导入元信息
type SheetMeta struct {
	ImportLogID     int64      `json:"-"`
	SheetName       string     `json:"sheetName"`
	LogicalKey      LogicalKey `json:"key"`
	TotalRows       int        `json:"rows"`
	TotalColumns    int        `json:"columns"`
	MissingCells    int        `json:"missingCells"`
	RescaledColumns []string   `json:"rescaledColumns"`
}

// SheetMetas 转为导入日志的 sheet 元信息
func (r *LoadReport) SheetMetas() []SheetMeta {
	metas := make([]SheetMeta, 0, len(r.Sheets))
	for _, sh := range r.Sheets {
		metas = append(metas, SheetMeta{
			SheetName:       sh.SheetName,
			LogicalKey:      sh.Key,
			TotalRows:       sh.Rows,
			TotalColumns:    sh.Columns,
			MissingCells:    sh.MissingCells,
			RescaledColumns: append([]string(nil), sh.RescaledCols...),
		})
	}
	return metas
}
