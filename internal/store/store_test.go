package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilotage/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "journal", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestImportLogLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id, err := s.CreateImportLog(model.ImportLog{
		LoadID:   "load-1",
		Filename: "pilotage.xlsx",
		FilePath: "/data/sources/pilotage.xlsx",
		FileSize: 2048,
		FileHash: "abc",
		Format:   model.FormatWorkbook,
	})
	require.NoError(t, err)

	report := &model.LoadReport{Sheets: []model.SheetReport{
		{Key: model.KeyRecruit, SheetName: "Recrutement_Mensuel", Rows: 12, Columns: 5, MissingCells: 1, RescaledCols: []string{"Taux Transfo"}},
		{Key: model.KeyYTD, SheetName: "CONSOLIDATION_YTD", Rows: 4, Columns: 2},
	}}
	require.NoError(t, s.InsertSheetMeta(id, report.SheetMetas()))
	require.NoError(t, s.CompleteImportLog(id, model.ImportSuccess, "", false, []string{"Suivi_Plan_Action"}))

	logs, err := s.ListImportLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	got := logs[0]
	assert.Equal(t, "load-1", got.LoadID)
	assert.Equal(t, model.FormatWorkbook, got.Format)
	assert.Equal(t, model.ImportSuccess, got.Status)
	assert.Equal(t, []string{"Suivi_Plan_Action"}, got.MissingSheets)
	assert.NotNil(t, got.CompletedAt)
	assert.False(t, got.StartedAt.IsZero())

	require.Len(t, got.Sheets, 2)
	assert.Equal(t, model.KeyRecruit, got.Sheets[0].LogicalKey)
	assert.Equal(t, []string{"Taux Transfo"}, got.Sheets[0].RescaledColumns)
	assert.Equal(t, []string{}, got.Sheets[1].RescaledColumns)
}

func TestListImportLogs_NewestFirstAndLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, name := range []string{"a.xlsx", "b.xlsx", "c.xlsx"} {
		id, err := s.CreateImportLog(model.ImportLog{LoadID: name, Filename: name, FilePath: name})
		require.NoError(t, err)
		require.NoError(t, s.CompleteImportLog(id, model.ImportSuccess, "", true, nil))
	}

	logs, err := s.ListImportLogs(2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "c.xlsx", logs[0].Filename)
	assert.Equal(t, "b.xlsx", logs[1].Filename)
	assert.True(t, logs[0].CacheHit)
	assert.Equal(t, []string{}, logs[0].MissingSheets)

	n, err := s.CountImportLogs()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCompleteImportLog_Unknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.CompleteImportLog(42, model.ImportFailed, "boom", false, nil)
	require.Error(t, err)
}

func TestPruneImportLogs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id, err := s.CreateImportLog(model.ImportLog{LoadID: "x", Filename: "x.xlsx", FilePath: "x.xlsx"})
	require.NoError(t, err)
	require.NoError(t, s.InsertSheetMeta(id, []model.SheetMeta{{SheetName: "Suivi_Plan_Action", LogicalKey: model.KeyPlan}}))

	n, err := s.PruneImportLogs(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	metas, err := s.ListSheetMeta(id)
	require.NoError(t, err)
	assert.Empty(t, metas, "sheet rows cascade with their log")
}
