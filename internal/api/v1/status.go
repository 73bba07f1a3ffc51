package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pilotage/internal/model"
	"pilotage/internal/service/cache"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	Loaded        bool               `json:"loaded"`        // 是否有可用数据
	Halted        bool               `json:"halted"`        // 是否因缺少源文件而停止
	Source        string             `json:"source"`        // 当前源
	SourceDir     string             `json:"sourceDir"`     // 自动发现目录
	Keys          []model.LogicalKey `json:"keys"`          // 可用的逻辑表
	MissingSheets []string           `json:"missingSheets"` // 源中缺失的 sheet
	LastError     string             `json:"lastError,omitempty"`
	LastLoadTime  string             `json:"lastLoadTime,omitempty"`
	Cache         cache.Stats        `json:"cache"`
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	st := h.coordinator.State()

	resp := StatusResponse{
		Loaded:        st.Loaded,
		Halted:        st.Halted,
		SourceDir:     h.sourceDir,
		Keys:          []model.LogicalKey{},
		MissingSheets: []string{},
		LastError:     st.LastError,
		Cache:         h.coordinator.CacheStats(),
	}
	if st.Report != nil {
		resp.Source = st.Report.Source
		resp.Keys = st.Report.Keys()
		resp.MissingSheets = st.Report.MissingSheets
		resp.LastLoadTime = st.Report.LoadedAt.Format("2006-01-02 15:04:05")
	}

	c.JSON(http.StatusOK, resp)
}
