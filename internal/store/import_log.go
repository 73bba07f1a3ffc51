package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pilotage/internal/model"
)

// CreateImportLog 创建导入日志（状态 processing），返回 import_log_id
func (s *Store) CreateImportLog(entry model.ImportLog) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO import_logs (load_id, filename, file_path, file_size, file_hash, format, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.LoadID, entry.Filename, entry.FilePath, entry.FileSize, entry.FileHash, string(entry.Format), model.ImportProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get import log id: %w", err)
	}
	return id, nil
}

// CompleteImportLog 写入导入结果
func (s *Store) CompleteImportLog(id int64, status, errorMessage string, cacheHit bool, missingSheets []string) error {
	res, err := s.db.Exec(`
		UPDATE import_logs SET
			status = ?,
			error_message = ?,
			cache_hit = ?,
			missing_sheets_json = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, errorMessage, cacheHit, encodeStrings(missingSheets), id)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("import log %d not found", id)
	}
	return nil
}

// ListImportLogs 按时间倒序列出最近的导入日志（含 sheet 元信息）
func (s *Store) ListImportLogs(limit int) ([]model.ImportLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, load_id, filename, file_path, file_size, file_hash, format,
			status, error_message, cache_hit, missing_sheets_json, started_at, completed_at
		FROM import_logs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer rows.Close()

	logs := make([]model.ImportLog, 0)
	for rows.Next() {
		var (
			entry     model.ImportLog
			format    string
			missing   string
			completed sql.NullTime
		)
		if err := rows.Scan(
			&entry.ID, &entry.LoadID, &entry.Filename, &entry.FilePath, &entry.FileSize, &entry.FileHash, &format,
			&entry.Status, &entry.ErrorMessage, &entry.CacheHit, &missing, &entry.StartedAt, &completed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		entry.Format = model.SourceFormat(format)
		entry.MissingSheets = decodeStrings(missing)
		if completed.Valid {
			t := completed.Time
			entry.CompletedAt = &t
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// 先关闭游标再查子表（单连接）
	rows.Close()

	for i := range logs {
		sheets, err := s.ListSheetMeta(logs[i].ID)
		if err != nil {
			return nil, err
		}
		logs[i].Sheets = sheets
	}
	return logs, nil
}

// CountImportLogs 日志总数
func (s *Store) CountImportLogs() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM import_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count import logs: %w", err)
	}
	return n, nil
}

// PruneImportLogs 删除早于 before 的日志
func (s *Store) PruneImportLogs(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM import_logs WHERE started_at < ?`, before.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("failed to prune import logs: %w", err)
	}
	return res.RowsAffected()
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
