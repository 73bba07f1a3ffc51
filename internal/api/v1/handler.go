package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pilotage/internal/importer"
	"pilotage/internal/model"
	"pilotage/internal/parser"
)

// ImportLister 导入日志查询（*store.Store 实现）
type ImportLister interface {
	ListImportLogs(limit int) ([]model.ImportLog, error)
	CountImportLogs() (int, error)
}

// Options 处理器依赖
type Options struct {
	SourceDir      string
	UploadDir      string
	MaxUploadBytes int64
	Journal        ImportLister
	Logger         *slog.Logger
}

// Handler API 处理器
type Handler struct {
	coordinator *importer.Coordinator
	journal     ImportLister
	sourceDir   string
	uploadDir   string
	maxUpload   int64
	logger      *slog.Logger
}

// NewHandler 创建 API 处理器
func NewHandler(coordinator *importer.Coordinator, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handler{
		coordinator: coordinator,
		journal:     opts.Journal,
		sourceDir:   opts.SourceDir,
		uploadDir:   opts.UploadDir,
		maxUpload:   maxUpload,
		logger:      logger,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)

	// 数据加载
	router.POST("/import", h.Import)
	router.POST("/reload", h.Reload)

	// 清洗后的表
	router.GET("/tables", h.ListTables)
	router.GET("/tables/:key", h.GetTable)

	// 导入日志
	router.GET("/imports", h.ListImports)

	// 导出清洗结果
	router.GET("/export", h.Export)
}

// statusFor 错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, importer.ErrNoInput):
		return http.StatusConflict
	case errors.Is(err, importer.ErrNotLoaded), errors.Is(err, importer.ErrTableAbsent):
		return http.StatusNotFound
	case errors.Is(err, parser.ErrMalformedWorkbook):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
