package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pilotage/internal/importer"
)

// uploadTrackKey 上传文件共用一个缓存跟踪标识：新上传替换旧上传的缓存
const uploadTrackKey = "upload"

// Import 上传工作簿并加载 (SSE 流式响应)
// POST /api/import
func (h *Handler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	uploadedFile, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing upload field \"file\""})
		return
	}

	ext := strings.ToLower(filepath.Ext(uploadedFile.Filename))
	if ext != ".xlsx" && ext != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file type %q", ext)})
		return
	}

	// 每次上传一个独立目录，保留原始文件名：平面表的 sheet 名取自文件名
	uploadDir := filepath.Join(h.uploadDir, uuid.NewString())
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload directory"})
		return
	}
	// 清洗结果在内存缓存中，上传文件不保留
	defer os.RemoveAll(uploadDir)

	savedPath := filepath.Join(uploadDir, uploadName(uploadedFile.Filename, ext))
	if err := c.SaveUploadedFile(uploadedFile, savedPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	progressChan := h.coordinator.Import(c.Request.Context(), importer.LoadOptions{
		Path:        savedPath,
		DisplayName: filepath.Base(uploadedFile.Filename),
		TrackAs:     uploadTrackKey,
	})

	for event := range progressChan {
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}

		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// uploadName 上传文件在本地保存的文件名：去掉客户端路径，不可用时退回 "upload<ext>"
func uploadName(filename, ext string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return "upload" + ext
	}
	return name
}

// Reload 重新扫描源目录并加载
// POST /api/reload
func (h *Handler) Reload(c *gin.Context) {
	res, err := h.coordinator.Load(c.Request.Context(), importer.LoadOptions{Dir: h.sourceDir})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusConflict {
			// 目录中没有源文件
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res.Report)
}
