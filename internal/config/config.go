package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"pilotage/internal/normalize"
)

// EnvPrefix 环境变量前缀，例如 PILOTAGE_SERVER_PORT
const EnvPrefix = "PILOTAGE"

// FileName 配置文件名，位于可执行文件同目录下
const FileName = "config.toml"

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `toml:"server" envconfig:"SERVER"`
	Data      DataConfig      `toml:"data" envconfig:"DATA"`
	Normalize NormalizeConfig `toml:"normalize" envconfig:"NORMALIZE"`
	Logging   LoggingConfig   `toml:"logging" envconfig:"LOGGING"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            int           `toml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	DevMode         bool          `toml:"dev_mode" envconfig:"DEV_MODE"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=0"`
	MaxUploadMB     int64         `toml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB" validate:"min=1"`
	LoadRateLimit   float64       `toml:"load_rate_limit" envconfig:"LOAD_RATE_LIMIT" validate:"min=0"` // 每秒加载请求数，0 不限制
	LoadBurst       int           `toml:"load_burst" envconfig:"LOAD_BURST" validate:"min=1"`
}

// DataConfig 数据目录配置；相对路径以可执行文件目录为基准，子目录以 data_dir 为基准
type DataConfig struct {
	DataDir   string `toml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	SourceDir string `toml:"source_dir" envconfig:"SOURCE_DIR" validate:"required"`
	UploadDir string `toml:"upload_dir" envconfig:"UPLOAD_DIR" validate:"required"`
	// Journal 导入日志数据库文件；为空表示不记录
	Journal string `toml:"journal" envconfig:"JOURNAL"`
	// JournalRetentionDays 启动时删除早于该天数的导入日志；0 表示全部保留
	JournalRetentionDays int `toml:"journal_retention_days" envconfig:"JOURNAL_RETENTION_DAYS" validate:"min=0"`
}

// NormalizeConfig 规范化参数
type NormalizeConfig struct {
	// DefaultYear 年份列无法解析时的取值；0 表示当前年份
	DefaultYear     int      `toml:"default_year" envconfig:"DEFAULT_YEAR" validate:"min=0,max=9999"`
	YearColumns     []string `toml:"year_columns" envconfig:"YEAR_COLUMNS" validate:"dive,required"`
	PercentKeywords []string `toml:"percent_keywords" envconfig:"PERCENT_KEYWORDS" validate:"dive,required"`
	RatioThreshold  float64  `toml:"ratio_threshold" envconfig:"RATIO_THRESHOLD" validate:"gt=0"`
	MinNumericRatio float64  `toml:"min_numeric_ratio" envconfig:"MIN_NUMERIC_RATIO" validate:"min=0,max=1"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `toml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `toml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	FileFound     bool
	PortSpecified bool
}

// Paths 解析后的绝对路径
type Paths struct {
	DataDir   string
	SourceDir string
	UploadDir string
	Journal   string
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	opts := normalize.DefaultOptions()
	return &AppConfig{
		Server: ServerConfig{
			Port:            20262,
			DevMode:         false,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadMB:     32,
			LoadRateLimit:   2,
			LoadBurst:       4,
		},
		Data: DataConfig{
			DataDir:   "data",
			SourceDir: "sources",
			UploadDir: "uploads",
			Journal:   "journal.db",

			JournalRetentionDays: 90,
		},
		Normalize: NormalizeConfig{
			DefaultYear:     0,
			YearColumns:     append([]string(nil), opts.YearColumns...),
			PercentKeywords: append([]string(nil), opts.PercentKeywords...),
			RatioThreshold:  opts.RatioThreshold,
			MinNumericRatio: opts.MinNumericRatio,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Options 转换为规范化器参数
func (c NormalizeConfig) Options() normalize.Options {
	return normalize.Options{
		DefaultYear:     c.DefaultYear,
		YearColumns:     append([]string(nil), c.YearColumns...),
		PercentKeywords: append([]string(nil), c.PercentKeywords...),
		RatioThreshold:  c.RatioThreshold,
		MinNumericRatio: c.MinNumericRatio,
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

func exeDirOrCwd() string {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		return "."
	}
	return exeDir
}

// DefaultPath 默认配置文件路径
func DefaultPath() string {
	return filepath.Join(exeDirOrCwd(), FileName)
}

// LoadConfigWithInfo 从默认位置加载配置并返回元信息
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	return LoadFile(DefaultPath())
}

// LoadFile 加载指定配置文件：默认值 → 文件 → 环境变量，最后校验
//
// 文件不存在时使用默认配置。
func LoadFile(path string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{Path: path}
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.FileFound = true
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// 配置文件同目录的 .env（不覆盖已存在的环境变量）
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, info, fmt.Errorf("failed to read .env: %w", err)
	}

	// 环境变量覆盖
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, info, fmt.Errorf("failed to load config from env: %w", err)
	}
	if os.Getenv(EnvPrefix+"_SERVER_PORT") != "" {
		info.PortSpecified = true
	}

	if err := config.Validate(); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

// Validate 校验配置取值
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SaveConfig 保存配置到指定路径
func SaveConfig(config *AppConfig, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvePaths 计算各目录的绝对路径（不创建）
func ResolvePaths(config *AppConfig) Paths {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(exeDirOrCwd(), dataDir)
	}
	under := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dataDir, p)
	}
	return Paths{
		DataDir:   dataDir,
		SourceDir: under(config.Data.SourceDir),
		UploadDir: under(config.Data.UploadDir),
		Journal:   under(config.Data.Journal),
	}
}

// EnsureDataDir 确保数据目录及子目录存在
func EnsureDataDir(config *AppConfig) (Paths, error) {
	paths := ResolvePaths(config)
	for _, dir := range []string{paths.DataDir, paths.SourceDir, paths.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}
