package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"pilotage/internal/logging"
	"pilotage/internal/model"
	"pilotage/internal/normalize"
	"pilotage/internal/parser"
)

type sheetRows struct {
	name string
	rows [][]interface{}
}

func writeWorkbook(t *testing.T, path string, sheets []sheetRows) {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			t.Fatalf("NewSheet %s: %v", s.name, err)
		}
		for i, row := range s.rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			r := row
			if err := f.SetSheetRow(s.name, cell, &r); err != nil {
				t.Fatalf("SetSheetRow: %v", err)
			}
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		t.Fatalf("DeleteSheet: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}

// dashboardSheets 缺少 Suivi_Plan_Action 的典型工作簿
func dashboardSheets() []sheetRows {
	return []sheetRows{
		{name: "CONSOLIDATION_YTD", rows: [][]interface{}{
			{"Indicateur ", " Valeur YTD"},
			{"Taux Service", "88,5%"},
		}},
		{name: "Recrutement_Mensuel", rows: [][]interface{}{
			{"Mois", "Année", "Taux Transfo", "Nb Hired"},
			{"Janvier", "2026", 0.42, "12"},
			{"Février", "n/a", 0.55, "1 200,50"},
			{"Mars", nil, 0.81, "abc"},
		}},
		{name: "Absentéisme_Global_Mois", rows: [][]interface{}{
			{"Mois", "Taux Absentéisme"},
			{"Janvier", "4,2%"},
			{"Février", "3,9%"},
		}},
		{name: "KPI_Sourcing_Rendement", rows: [][]interface{}{
			{"Canal", "Rendement"},
			{"LinkedIn", 42},
			{"Cooptation", 55},
		}},
	}
}

func newTestCoordinator(opts ...Option) *Coordinator {
	n := normalize.New(normalize.Options{DefaultYear: 2025})
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewCoordinator(n, opts...)
}

func floats(t *testing.T, tbl *model.Table, col string) []float64 {
	t.Helper()
	c := tbl.Column(col)
	if c == nil {
		t.Fatalf("column %q not found in %v", col, tbl.ColumnNames())
	}
	out := make([]float64, len(c.Cells))
	for i, cell := range c.Cells {
		v, ok := cell.Float()
		if !ok {
			t.Fatalf("%s[%d] not numeric: %+v", col, i, cell)
		}
		out[i] = v
	}
	return out
}

func TestLoad_WorkbookWithoutPlan(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pilotage.xlsx")
	writeWorkbook(t, path, dashboardSheets())

	c := newTestCoordinator()
	res, err := c.Load(context.Background(), LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := res.Table(model.KeyPlan); ok {
		t.Fatalf("PLAN should be absent")
	}
	if len(res.Tables) != 4 {
		t.Fatalf("tables=%v", res.Report.Keys())
	}
	if got := res.Report.Keys(); got[0] != model.KeyYTD || got[1] != model.KeyRecruit {
		t.Fatalf("keys should follow binding order: %v", got)
	}
	if res.Report.MissingSheets[len(res.Report.MissingSheets)-1] != "Suivi_Plan_Action" {
		t.Fatalf("missing=%v", res.Report.MissingSheets)
	}

	recruit, _ := res.Table(model.KeyRecruit)
	want := []float64{42, 55, 81}
	for i, v := range floats(t, recruit, "Taux Transfo") {
		if v != want[i] {
			t.Fatalf("Taux Transfo=%v want %v", floats(t, recruit, "Taux Transfo"), want)
		}
	}
	years := recruit.Column("Année")
	if !years.Integer {
		t.Fatalf("year column should be integer")
	}
	wantYears := []float64{2026, 2025, 2025}
	for i, v := range floats(t, recruit, "Année") {
		if v != wantYears[i] {
			t.Fatalf("Année=%v", floats(t, recruit, "Année"))
		}
	}
	if c := recruit.Cell("Nb Hired", 1); c.Num != 1200.5 {
		t.Fatalf("Nb Hired[1]=%+v", c)
	}
	if c := recruit.Cell("Nb Hired", 2); !c.IsMissing() {
		t.Fatalf("unparseable token should be missing: %+v", c)
	}

	ytd, _ := res.Table(model.KeyYTD)
	if got := ytd.ColumnNames(); got[0] != "Indicateur" || got[1] != "Valeur YTD" {
		t.Fatalf("names not trimmed: %v", got)
	}

	abs, _ := res.Table(model.KeyAbsence)
	if got := floats(t, abs, "Taux Absentéisme"); got[0] != 4.2 || got[1] != 3.9 {
		t.Fatalf("Taux Absentéisme=%v", got)
	}

	src, _ := res.Table(model.KeySourcing)
	if got := floats(t, src, "Rendement"); got[0] != 42 || got[1] != 55 {
		t.Fatalf("already-percent column should be untouched: %v", got)
	}

	if _, err := c.Table(model.KeyPlan); !errors.Is(err, ErrTableAbsent) {
		t.Fatalf("expected ErrTableAbsent, got %v", err)
	}
}

func TestLoad_CachedUntilFileChanges(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pilotage.xlsx")
	writeWorkbook(t, path, dashboardSheets())

	c := newTestCoordinator()
	first, err := c.Load(context.Background(), LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := c.Load(context.Background(), LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first.Report.CacheHit || !second.Report.CacheHit {
		t.Fatalf("cache flags: first=%v second=%v", first.Report.CacheHit, second.Report.CacheHit)
	}
	if first.Tables[model.KeyRecruit] != second.Tables[model.KeyRecruit] {
		t.Fatalf("cached load should return the same tables")
	}
	if first.Report.LoadID == second.Report.LoadID {
		t.Fatalf("each load gets its own id")
	}

	sheets := dashboardSheets()
	sheets[1].rows[1][2] = 0.5
	writeWorkbook(t, path, sheets)

	third, err := c.Load(context.Background(), LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if third.Report.CacheHit {
		t.Fatalf("changed file should be recomputed")
	}
	recruit := third.Tables[model.KeyRecruit]
	if v := recruit.Cell("Taux Transfo", 0).Num; v != 50 {
		t.Fatalf("Taux Transfo[0]=%v", v)
	}
	if st := c.CacheStats(); st.Entries != 1 {
		t.Fatalf("previous content should be evicted: %+v", st)
	}
}

func TestLoad_ConcurrentCallersShareComputation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pilotage.xlsx")
	writeWorkbook(t, path, dashboardSheets())

	c := newTestCoordinator()
	var g errgroup.Group
	var mu sync.Mutex
	seen := map[*model.Table]struct{}{}
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res, err := c.Load(context.Background(), LoadOptions{Path: path})
			if err != nil {
				return err
			}
			mu.Lock()
			seen[res.Tables[model.KeyRecruit]] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("all callers should share one cleaned table, got %d", len(seen))
	}
	if st := c.CacheStats(); st.Misses != 1 {
		t.Fatalf("source should be computed once: %+v", st)
	}
}

func TestLoad_NoInputHaltsSession(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newTestCoordinator()

	_, err := c.Load(context.Background(), LoadOptions{Dir: dir})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if !c.Halted() {
		t.Fatalf("session should be halted")
	}
	if _, err := c.Table(model.KeyYTD); !errors.Is(err, ErrNoInput) {
		t.Fatalf("table reads should fail with ErrNoInput, got %v", err)
	}
	if st := c.State(); st.Loaded || st.LastError == "" {
		t.Fatalf("state=%+v", st)
	}

	writeWorkbook(t, filepath.Join(dir, "pilotage.xlsx"), dashboardSheets())
	if _, err := c.Load(context.Background(), LoadOptions{Dir: dir}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Halted() || c.LastError() != nil {
		t.Fatalf("successful load should resume the session")
	}
	if _, err := c.Table(model.KeyYTD); err != nil {
		t.Fatalf("Table: %v", err)
	}
}

func TestLoad_MalformedKeepsPreviousResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.xlsx")
	writeWorkbook(t, good, dashboardSheets())
	bad := filepath.Join(dir, "bad.xlsx")
	if err := os.WriteFile(bad, []byte("not a workbook"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := newTestCoordinator()
	if _, err := c.Load(context.Background(), LoadOptions{Path: good}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err := c.Load(context.Background(), LoadOptions{Path: bad})
	if !errors.Is(err, parser.ErrMalformedWorkbook) {
		t.Fatalf("expected ErrMalformedWorkbook, got %v", err)
	}
	var wbErr *parser.WorkbookError
	if !errors.As(err, &wbErr) || wbErr.Err == nil {
		t.Fatalf("cause should be preserved: %#v", err)
	}
	if c.Halted() {
		t.Fatalf("malformed workbook should not halt the session")
	}
	if _, err := c.Table(model.KeyRecruit); err != nil {
		t.Fatalf("previous result should still be served: %v", err)
	}
	if c.LastError() == nil {
		t.Fatalf("last error should be recorded")
	}
}

func TestLoad_NormalizedTablesAreStable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pilotage.xlsx")
	writeWorkbook(t, path, dashboardSheets())

	n := normalize.New(normalize.Options{DefaultYear: 2025})
	c := NewCoordinator(n, WithLogger(logging.Discard()))
	res, err := c.Load(context.Background(), LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for key, tbl := range res.Tables {
		again, _ := n.Normalize(tbl)
		if !again.Equal(tbl) {
			t.Fatalf("%s changed on second normalization", key)
		}
	}
}

func TestImport_ProgressEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pilotage.xlsx")
	writeWorkbook(t, path, dashboardSheets())

	c := newTestCoordinator()
	var types []string
	var report *model.LoadReport
	sheetDone := 0
	for evt := range c.Import(context.Background(), LoadOptions{Path: path, DisplayName: "Dashboard.xlsx"}) {
		types = append(types, evt.Type)
		switch evt.Type {
		case EventError:
			t.Fatalf("import error event: %s", evt.Message)
		case EventSheetDone:
			sheetDone++
		case EventDone:
			report, _ = evt.Data.(*model.LoadReport)
		}
		if evt.Timestamp.IsZero() {
			t.Fatalf("event without timestamp: %+v", evt)
		}
	}

	if types[0] != EventStart || types[len(types)-1] != EventDone {
		t.Fatalf("events=%v", types)
	}
	if sheetDone != 4 {
		t.Fatalf("sheet_done events=%d", sheetDone)
	}
	if report == nil || len(report.Sheets) != 4 {
		t.Fatalf("missing done report: %+v", report)
	}
}

func TestImport_ErrorEvent(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator()
	var last ProgressEvent
	for evt := range c.Import(context.Background(), LoadOptions{Path: filepath.Join(t.TempDir(), "absent.xlsx")}) {
		last = evt
	}
	if last.Type != EventError {
		t.Fatalf("last event=%+v", last)
	}
}

type fakeJournal struct {
	mu       sync.Mutex
	nextID   int64
	created  []model.ImportLog
	statuses map[int64]string
	hits     map[int64]bool
	sheets   map[int64][]model.SheetMeta
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{statuses: map[int64]string{}, hits: map[int64]bool{}, sheets: map[int64][]model.SheetMeta{}}
}

func (j *fakeJournal) CreateImportLog(entry model.ImportLog) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextID++
	j.created = append(j.created, entry)
	j.statuses[j.nextID] = model.ImportProcessing
	return j.nextID, nil
}

func (j *fakeJournal) CompleteImportLog(id int64, status, _ string, cacheHit bool, _ []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.statuses[id] = status
	j.hits[id] = cacheHit
	return nil
}

func (j *fakeJournal) InsertSheetMeta(id int64, metas []model.SheetMeta) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sheets[id] = metas
	return nil
}

func TestLoad_WritesJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pilotage.xlsx")
	writeWorkbook(t, path, dashboardSheets())
	bad := filepath.Join(dir, "bad.xlsx")
	if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	j := newFakeJournal()
	c := newTestCoordinator(WithJournal(j))
	for _, p := range []string{path, path} {
		if _, err := c.Load(context.Background(), LoadOptions{Path: p, DisplayName: "Dashboard.xlsx"}); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	_, _ = c.Load(context.Background(), LoadOptions{Path: bad})

	if len(j.created) != 3 {
		t.Fatalf("journal entries=%d", len(j.created))
	}
	if j.created[0].Filename != "Dashboard.xlsx" || j.created[0].Format != model.FormatWorkbook {
		t.Fatalf("entry=%+v", j.created[0])
	}
	if j.statuses[1] != model.ImportSuccess || j.hits[1] {
		t.Fatalf("first load: status=%s hit=%v", j.statuses[1], j.hits[1])
	}
	if !j.hits[2] {
		t.Fatalf("second load should be journaled as a cache hit")
	}
	if j.statuses[3] != model.ImportFailed {
		t.Fatalf("malformed load status=%s", j.statuses[3])
	}
	if len(j.sheets[1]) != 4 {
		t.Fatalf("sheet metadata=%+v", j.sheets[1])
	}
}
