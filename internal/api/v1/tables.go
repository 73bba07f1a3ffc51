package v1

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pilotage/internal/exporter"
	"pilotage/internal/importer"
	"pilotage/internal/model"
)

// TableSummary 逻辑表概要
type TableSummary struct {
	Key       model.LogicalKey `json:"key"`
	SheetName string           `json:"sheetName"`
	Rows      int              `json:"rows"`
	Columns   []string         `json:"columns"`
}

// current 当前加载结果；会话停止或未加载时写入错误响应
func (h *Handler) current(c *gin.Context) (*importer.LoadResult, bool) {
	if h.coordinator.Halted() {
		err := h.coordinator.LastError()
		if err == nil {
			err = importer.ErrNoInput
		}
		respondError(c, err)
		return nil, false
	}
	res, ok := h.coordinator.Current()
	if !ok {
		respondError(c, importer.ErrNotLoaded)
		return nil, false
	}
	return res, true
}

// ListTables 可用的逻辑表
// GET /api/tables
func (h *Handler) ListTables(c *gin.Context) {
	res, ok := h.current(c)
	if !ok {
		return
	}

	items := make([]TableSummary, 0, len(res.Tables))
	for _, b := range model.SheetBindings {
		t, ok := res.Table(b.Key)
		if !ok {
			continue
		}
		items = append(items, TableSummary{
			Key:       b.Key,
			SheetName: t.Name,
			Rows:      t.Rows(),
			Columns:   t.ColumnNames(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"items":         items,
		"missingSheets": res.Report.MissingSheets,
	})
}

// GetTable 清洗后的单表
// GET /api/tables/:key
func (h *Handler) GetTable(c *gin.Context) {
	key, ok := model.ParseLogicalKey(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown table %q", c.Param("key"))})
		return
	}
	t, err := h.coordinator.Table(key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Export 下载清洗后的工作簿
// GET /api/export
func (h *Handler) Export(c *gin.Context) {
	res, ok := h.current(c)
	if !ok {
		return
	}

	f, err := exporter.NewExporter(exporter.LogProgress(h.logger, slog.LevelDebug)).Export(res.Tables)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer func() { _ = f.Close() }()

	buf, err := f.WriteToBuffer()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render workbook"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="pilotage-cleaned.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
