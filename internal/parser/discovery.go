package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pilotage/internal/model"
)

// Source 一个可加载的源：单个工作簿，或一组平面表
type Source struct {
	Format model.SourceFormat
	Path   string   // 工作簿路径，或平面表所在目录
	Files  []string // 平面表文件（按名称排序）
}

// Payload 源文件的完整内容（读一次，同时用于指纹与解析）
type Payload struct {
	Source  Source
	Files   []FlatFile
	Size    int64
	ModTime time.Time
}

// Discover 在目录中查找源：优先取最近修改的 .xlsx，其次取全部 .csv
func Discover(dir string) (Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, fmt.Errorf("%w: directory %s does not exist", ErrNoInput, dir)
		}
		return Source{}, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var (
		workbook    string
		workbookMod time.Time
		flats       []string
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		// Excel 打开文件时产生的锁文件
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx":
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if workbook == "" || info.ModTime().After(workbookMod) {
				workbook = filepath.Join(dir, name)
				workbookMod = info.ModTime()
			}
		case ".csv":
			flats = append(flats, filepath.Join(dir, name))
		}
	}

	if workbook != "" {
		return WorkbookSource(workbook), nil
	}
	if len(flats) > 0 {
		sort.Strings(flats)
		return Source{Format: model.FormatFlat, Path: dir, Files: flats}, nil
	}
	return Source{}, fmt.Errorf("%w: no .xlsx or .csv in %s", ErrNoInput, dir)
}

// WorkbookSource 单个工作簿源
func WorkbookSource(path string) Source {
	return Source{Format: model.FormatWorkbook, Path: path}
}

// ResolveSource 路径为目录时执行发现，否则视为工作簿
func ResolveSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, fmt.Errorf("%w: %s does not exist", ErrNoInput, path)
		}
		return Source{}, err
	}
	if info.IsDir() {
		return Discover(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return Source{Format: model.FormatFlat, Path: filepath.Dir(path), Files: []string{path}}, nil
	}
	return WorkbookSource(path), nil
}

// Read 读取源的全部内容
func (s Source) Read() (*Payload, error) {
	paths := s.Files
	if s.Format == model.FormatWorkbook {
		paths = []string{s.Path}
	}
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	p := &Payload{Source: s}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s does not exist", ErrNoInput, path)
			}
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		p.Files = append(p.Files, FlatFile{Name: filepath.Base(path), Data: data})
		p.Size += info.Size()
		if info.ModTime().After(p.ModTime) {
			p.ModTime = info.ModTime()
		}
	}
	return p, nil
}

// Fingerprint 内容指纹（SHA-256）；平面表按文件名与内容一起计算
func (p *Payload) Fingerprint() string {
	h := sha256.New()
	for _, f := range p.Files {
		if p.Source.Format == model.FormatFlat {
			h.Write([]byte(f.Name))
			h.Write([]byte{0})
		}
		h.Write(f.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Parse 将内容解析为原始 sheet 集合
func (p *Payload) Parse() (*Bundle, error) {
	switch p.Source.Format {
	case model.FormatWorkbook:
		if len(p.Files) != 1 {
			return nil, ErrNoInput
		}
		return ReadWorkbookBytes(p.Source.Path, p.Files[0].Data)
	case model.FormatFlat:
		return ReadFlatFiles(p.Source.Path, p.Files)
	default:
		return nil, fmt.Errorf("unsupported source format: %q", p.Source.Format)
	}
}
