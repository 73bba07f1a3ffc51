package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pilotage/internal/metrics"
	"pilotage/internal/model"
	"pilotage/internal/normalize"
	"pilotage/internal/parser"
	"pilotage/internal/service/cache"
)

var (
	// ErrNoInput 没有可用的源；本次会话停止提供数据，直到下一次成功加载
	ErrNoInput = parser.ErrNoInput
	// ErrNotLoaded 尚未进行过成功的加载
	ErrNotLoaded = errors.New("no source loaded yet")
	// ErrTableAbsent 源中没有对应的 sheet
	ErrTableAbsent = errors.New("no data for this view")
)

// Journal 导入日志写入方（*store.Store 实现）
type Journal interface {
	CreateImportLog(entry model.ImportLog) (int64, error)
	CompleteImportLog(id int64, status, errorMessage string, cacheHit bool, missingSheets []string) error
	InsertSheetMeta(importLogID int64, metas []model.SheetMeta) error
}

// Dataset 一个源清洗后的全部逻辑表（缓存值，调用方只读）
type Dataset struct {
	Format      model.SourceFormat
	Fingerprint string
	Tables      map[model.LogicalKey]*model.Table
	Sheets      []model.SheetReport
	Missing     []string
	Ignored     []string
}

// LoadOptions 加载选项；Path 优先，否则在 Dir 中查找源
type LoadOptions struct {
	Path string
	Dir  string
	// DisplayName 日志中显示的文件名（上传时为原始文件名）
	DisplayName string
	// TrackAs 缓存失效跟踪的标识；为空时使用源路径
	TrackAs string
}

// LoadResult 一次加载的结果
type LoadResult struct {
	Report *model.LoadReport
	Tables map[model.LogicalKey]*model.Table
}

// Table 返回逻辑表；不存在时返回 false
func (r *LoadResult) Table(key model.LogicalKey) (*model.Table, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.Tables[key]
	return t, ok
}

// Event types
const (
	EventStart     = "start"
	EventInfo      = "info"
	EventSheetDone = "sheet_done"
	EventDone      = "done"
	EventError     = "error"
)

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`    // start/info/sheet_done/done/error
	Message   string      `json:"message"` // 事件消息
	Data      interface{} `json:"data"`    // 附加数据
	Timestamp time.Time   `json:"timestamp"`
}

// SessionState 会话状态
type SessionState struct {
	Loaded    bool              `json:"loaded"`
	Halted    bool              `json:"halted"`
	LastError string            `json:"lastError,omitempty"`
	Report    *model.LoadReport `json:"report,omitempty"`
}

// Coordinator 加载协调器：指纹 → 缓存 → 解析 → 分派 → 并行清洗 → 报告
type Coordinator struct {
	normalizer *normalize.Normalizer
	recognizer *parser.SheetRecognizer
	cache      *cache.MemoryCache[*Dataset]
	journal    Journal
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.RWMutex
	current *LoadResult
	lastErr error
	halted  bool
}

// Option 协调器配置项
type Option func(*Coordinator)

// WithJournal 记录导入日志
func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithMetrics 上报指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache 共享外部缓存
func WithCache(mc *cache.MemoryCache[*Dataset]) Option {
	return func(c *Coordinator) {
		if mc != nil {
			c.cache = mc
		}
	}
}

// NewCoordinator 创建加载协调器
func NewCoordinator(n *normalize.Normalizer, opts ...Option) *Coordinator {
	if n == nil {
		n = normalize.New(normalize.DefaultOptions())
	}
	c := &Coordinator{
		normalizer: n,
		recognizer: parser.NewSheetRecognizer(),
		cache:      cache.NewMemoryCache[*Dataset](),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheStats 缓存统计
func (c *Coordinator) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// Load 同步加载；未变化的源直接复用缓存结果
func (c *Coordinator) Load(ctx context.Context, opts LoadOptions) (*LoadResult, error) {
	return c.load(ctx, opts, func(ProgressEvent) {})
}

// Import 异步加载，返回进度通道（完成后关闭）
func (c *Coordinator) Import(ctx context.Context, opts LoadOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		_, _ = c.load(ctx, opts, func(evt ProgressEvent) {
			evt.Timestamp = time.Now()
			select {
			case progressChan <- evt:
			case <-ctx.Done():
			}
		})
	}()

	return progressChan
}

func (c *Coordinator) load(ctx context.Context, opts LoadOptions, emit func(ProgressEvent)) (*LoadResult, error) {
	start := time.Now()

	src, err := c.resolve(opts)
	if err != nil {
		return nil, c.fail(emit, nil, start, err)
	}

	name := opts.DisplayName
	if name == "" {
		name = filepath.Base(src.Path)
	}
	emit(ProgressEvent{
		Type:    EventStart,
		Message: fmt.Sprintf("Loading %s", name),
		Data: map[string]string{
			"filename": name,
			"format":   string(src.Format),
		},
	})

	payload, err := src.Read()
	if err != nil {
		return nil, c.fail(emit, nil, start, err)
	}
	fingerprint := payload.Fingerprint()

	report := &model.LoadReport{
		LoadID:      uuid.NewString(),
		Source:      src.Path,
		Fingerprint: fingerprint,
		Format:      src.Format,
		LoadedAt:    start,
	}

	logID := c.openJournal(report, name, payload.Size)

	ds, hit, err := c.cache.GetOrCompute(fingerprint, func() (*Dataset, error) {
		return c.compute(ctx, payload, fingerprint)
	})
	if err != nil {
		c.closeJournal(logID, report, err)
		return nil, c.fail(emit, report, start, err)
	}

	trackAs := opts.TrackAs
	if trackAs == "" {
		trackAs = src.Path
	}
	c.cache.Track(trackAs, fingerprint)

	report.Sheets = ds.Sheets
	report.MissingSheets = ds.Missing
	report.IgnoredSheets = ds.Ignored
	report.CacheHit = hit
	report.Duration = time.Since(start)

	if hit {
		emit(ProgressEvent{Type: EventInfo, Message: "Source unchanged, served from cache", Data: map[string]string{"fingerprint": fingerprint}})
	}
	for _, sheet := range ds.Sheets {
		emit(ProgressEvent{
			Type:    EventSheetDone,
			Message: fmt.Sprintf("Sheet %s loaded as %s", sheet.SheetName, sheet.Key),
			Data:    sheet,
		})
	}
	if len(ds.Missing) > 0 {
		c.logger.Warn("sheets missing from source", "source", src.Path, "missing", ds.Missing)
		emit(ProgressEvent{
			Type:    EventInfo,
			Message: fmt.Sprintf("%d sheet(s) not found", len(ds.Missing)),
			Data:    map[string]interface{}{"missing_sheets": ds.Missing},
		})
	}

	result := &LoadResult{Report: report, Tables: ds.Tables}

	c.mu.Lock()
	c.current = result
	c.lastErr = nil
	c.halted = false
	c.mu.Unlock()

	c.closeJournal(logID, report, nil)
	c.metrics.ObserveLoad(metrics.StatusSuccess, report.Duration, hit)
	c.metrics.SetTables(len(ds.Tables))
	c.logger.Info("source loaded",
		"load_id", report.LoadID,
		"source", src.Path,
		"tables", len(ds.Tables),
		"cache_hit", hit,
		"duration", report.Duration,
	)

	emit(ProgressEvent{Type: EventDone, Message: "Load complete", Data: report})
	return result, nil
}

func (c *Coordinator) resolve(opts LoadOptions) (parser.Source, error) {
	switch {
	case opts.Path != "":
		return parser.ResolveSource(opts.Path)
	case opts.Dir != "":
		return parser.Discover(opts.Dir)
	default:
		return parser.Source{}, fmt.Errorf("%w: no path or directory given", ErrNoInput)
	}
}

// compute 解析并清洗；各逻辑表相互独立，并行处理
func (c *Coordinator) compute(ctx context.Context, payload *parser.Payload, fingerprint string) (*Dataset, error) {
	bundle, err := payload.Parse()
	if err != nil {
		return nil, err
	}
	binding := c.recognizer.Bind(bundle)

	type job struct {
		binding model.SheetBinding
		raw     *model.Table
	}
	jobs := make([]job, 0, len(binding.Tables))
	for _, b := range model.SheetBindings {
		if t, ok := binding.Tables[b.Key]; ok {
			jobs = append(jobs, job{binding: b, raw: t})
		}
	}

	cleaned := make([]*model.Table, len(jobs))
	stats := make([]normalize.Stats, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cleaned[i], stats[i] = c.normalizer.Normalize(j.raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Format:      bundle.Format,
		Fingerprint: fingerprint,
		Tables:      make(map[model.LogicalKey]*model.Table, len(jobs)),
		Sheets:      make([]model.SheetReport, 0, len(jobs)),
		Missing:     binding.Missing,
		Ignored:     binding.Ignored,
	}
	for i, j := range jobs {
		t := cleaned[i]
		t.Key = j.binding.Key
		ds.Tables[j.binding.Key] = t
		ds.Sheets = append(ds.Sheets, model.SheetReport{
			Key:          j.binding.Key,
			SheetName:    j.raw.Name,
			Rows:         t.Rows(),
			Columns:      len(t.Columns),
			CoercedCells: stats[i].CoercedCells,
			MissingCells: stats[i].MissingCells,
			RescaledCols: stats[i].RescaledColumns,
		})
		c.metrics.ObserveTable(string(j.binding.Key), stats[i].MissingCells, len(stats[i].RescaledColumns))
	}
	return ds, nil
}

// fail 记录失败；ErrNoInput 使会话停止提供数据，其他错误保留上一次的结果
func (c *Coordinator) fail(emit func(ProgressEvent), report *model.LoadReport, start time.Time, err error) error {
	status := metrics.StatusFailed
	c.mu.Lock()
	c.lastErr = err
	if errors.Is(err, ErrNoInput) {
		status = metrics.StatusNoInput
		c.halted = true
		c.current = nil
	}
	c.mu.Unlock()

	c.metrics.ObserveLoad(status, time.Since(start), false)

	attrs := []any{"error", err}
	if report != nil {
		attrs = append(attrs, "load_id", report.LoadID, "source", report.Source)
	}
	c.logger.Error("load failed", attrs...)

	emit(ProgressEvent{Type: EventError, Message: err.Error()})
	return err
}

func (c *Coordinator) openJournal(report *model.LoadReport, name string, size int64) int64 {
	if c.journal == nil {
		return 0
	}
	id, err := c.journal.CreateImportLog(model.ImportLog{
		LoadID:   report.LoadID,
		Filename: name,
		FilePath: report.Source,
		FileSize: size,
		FileHash: report.Fingerprint,
		Format:   report.Format,
	})
	if err != nil {
		c.logger.Warn("import journal unavailable", "error", err)
		return 0
	}
	return id
}

func (c *Coordinator) closeJournal(id int64, report *model.LoadReport, loadErr error) {
	if c.journal == nil || id == 0 {
		return
	}
	status, message := model.ImportSuccess, ""
	if loadErr != nil {
		status, message = model.ImportFailed, loadErr.Error()
		if errors.Is(loadErr, ErrNoInput) {
			status = model.ImportNoInput
		}
	} else {
		metas := report.SheetMetas()
		if err := c.journal.InsertSheetMeta(id, metas); err != nil {
			c.logger.Warn("failed to record sheet metadata", "error", err)
		}
	}
	if err := c.journal.CompleteImportLog(id, status, message, report.CacheHit, report.MissingSheets); err != nil {
		c.logger.Warn("failed to complete import log", "error", err)
	}
}
