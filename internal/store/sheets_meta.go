package store

import (
	"fmt"

	"pilotage/internal/model"
)

// InsertSheetMeta 批量写入 sheet 元信息（同一事务）
func (s *Store) InsertSheetMeta(importLogID int64, metas []model.SheetMeta) error {
	if len(metas) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO sheets_meta (
			import_log_id, sheet_name, logical_key,
			total_rows, total_columns, missing_cells,
			rescaled_columns_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sheets_meta insert: %w", err)
	}
	defer stmt.Close()

	for _, meta := range metas {
		if _, err := stmt.Exec(
			importLogID, meta.SheetName, string(meta.LogicalKey),
			meta.TotalRows, meta.TotalColumns, meta.MissingCells,
			encodeStrings(meta.RescaledColumns),
		); err != nil {
			return fmt.Errorf("failed to insert sheets_meta: %w", err)
		}
	}
	return tx.Commit()
}

// ListSheetMeta 某次导入的 sheet 元信息
func (s *Store) ListSheetMeta(importLogID int64) ([]model.SheetMeta, error) {
	rows, err := s.db.Query(`
		SELECT import_log_id, sheet_name, logical_key, total_rows, total_columns, missing_cells, rescaled_columns_json
		FROM sheets_meta
		WHERE import_log_id = ?
		ORDER BY id
	`, importLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheets_meta: %w", err)
	}
	defer rows.Close()

	metas := make([]model.SheetMeta, 0)
	for rows.Next() {
		var (
			meta     model.SheetMeta
			key      string
			rescaled string
		)
		if err := rows.Scan(&meta.ImportLogID, &meta.SheetName, &key, &meta.TotalRows, &meta.TotalColumns, &meta.MissingCells, &rescaled); err != nil {
			return nil, fmt.Errorf("failed to scan sheets_meta: %w", err)
		}
		meta.LogicalKey = model.LogicalKey(key)
		meta.RescaledColumns = decodeStrings(rescaled)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}
