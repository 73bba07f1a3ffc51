package exporter

import (
	"context"
	"log/slog"
)

// 导出阶段
const (
	StageSheet = "sheet"
	StageDone  = "done"
)

// ProgressEvent 导出进度事件
type ProgressEvent struct {
	Percent int
	Stage   string
	Sheet   string // StageSheet 阶段正在写入的 sheet
}

// LogProgress 以指定级别将导出进度写入日志
func LogProgress(logger *slog.Logger, level slog.Level) func(ProgressEvent) {
	if logger == nil {
		return nil
	}
	return func(p ProgressEvent) {
		logger.Log(context.Background(), level, "export progress", "stage", p.Stage, "sheet", p.Sheet, "percent", p.Percent)
	}
}

func (e *Exporter) report(percent int, stage, sheet string) {
	if e.progress == nil {
		return
	}
	e.progress(ProgressEvent{
		Percent: min(max(percent, 0), 100),
		Stage:   stage,
		Sheet:   sheet,
	})
}
