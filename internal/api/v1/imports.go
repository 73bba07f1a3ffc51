package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pilotage/internal/model"
)

const maxImportsLimit = 200

// ListImports 导入日志
// GET /api/imports?limit=
//
// total 为日志总数，items 只含最近的 limit 条
func (h *Handler) ListImports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxImportsLimit {
		limit = maxImportsLimit
	}

	if h.journal == nil {
		c.JSON(http.StatusOK, gin.H{"items": []model.ImportLog{}, "total": 0})
		return
	}
	logs, err := h.journal.ListImportLogs(limit)
	if err != nil {
		h.logger.Error("failed to list import logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read import journal"})
		return
	}
	total, err := h.journal.CountImportLogs()
	if err != nil {
		h.logger.Error("failed to count import logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read import journal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs, "total": total})
}
