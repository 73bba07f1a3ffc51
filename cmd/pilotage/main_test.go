package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"pilotage/internal/config"
	"pilotage/internal/importer"
	"pilotage/internal/logging"
	"pilotage/internal/model"
	"pilotage/internal/parser"
	"pilotage/internal/store"
)

func writePlanWorkbook(t *testing.T, path string) {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet("Suivi_Plan_Action"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	rows := [][]interface{}{
		{"Catégorie / Section", "% Atteinte", "Année"},
		{"GLOBAL", "75", "2025"},
		{"RECRUTEMENT", 0.8, ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Suivi_Plan_Action", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		t.Fatalf("DeleteSheet: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	stdout, _, err := runCLIWithStderr(t, args...)
	return stdout, err
}

func runCLIWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.toml")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNormalizeCmd_SingleKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pilotage.xlsx")
	writePlanWorkbook(t, path)

	out, err := runCLI(t, "normalize", path, "--key", "PLAN")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	var tbl struct {
		Key  string          `json:"key"`
		Rows [][]interface{} `json:"rows"`
	}
	if err := json.Unmarshal([]byte(out), &tbl); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if tbl.Key != "PLAN" || len(tbl.Rows) != 2 {
		t.Fatalf("unexpected table: %+v", tbl)
	}
	// 75 已是百分比口径，0.8 不会被放大
	if tbl.Rows[0][1] != 75.0 || tbl.Rows[1][1] != 0.8 {
		t.Fatalf("rows=%v", tbl.Rows)
	}
	if tbl.Rows[0][2] != 2025.0 {
		t.Fatalf("year=%v", tbl.Rows[0][2])
	}
}

func TestNormalizeCmd_ExportAndFullOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pilotage.xlsx")
	writePlanWorkbook(t, path)
	cleaned := filepath.Join(dir, "cleaned.xlsx")

	out, err := runCLI(t, "normalize", path, "--out", cleaned)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var doc struct {
		Report struct {
			MissingSheets []string `json:"missingSheets"`
		} `json:"report"`
		Tables []json.RawMessage `json:"tables"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(doc.Tables) != 1 || len(doc.Report.MissingSheets) != 6 {
		t.Fatalf("unexpected output: tables=%d missing=%v", len(doc.Tables), doc.Report.MissingSheets)
	}
	if _, err := os.Stat(cleaned); err != nil {
		t.Fatalf("cleaned workbook not written: %v", err)
	}
}

func TestNormalizeCmd_VerboseLogsExportProgress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pilotage.xlsx")
	writePlanWorkbook(t, path)

	_, stderr, err := runCLIWithStderr(t, "normalize", path, "-v", "--out", filepath.Join(dir, "cleaned.xlsx"))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{"export progress", "sheet=Suivi_Plan_Action", "stage=done"} {
		if !strings.Contains(stderr, want) {
			t.Fatalf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestNormalizeCmd_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCLI(t, "normalize", filepath.Join(dir, "absent.xlsx")); !errors.Is(err, importer.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}

	bad := filepath.Join(dir, "bad.xlsx")
	if err := os.WriteFile(bad, []byte("zzz"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := runCLI(t, "normalize", bad); !errors.Is(err, parser.ErrMalformedWorkbook) {
		t.Fatalf("expected ErrMalformedWorkbook, got %v", err)
	}

	good := filepath.Join(dir, "good.xlsx")
	writePlanWorkbook(t, good)
	if _, err := runCLI(t, "normalize", good, "--key", "YTD"); !errors.Is(err, importer.ErrTableAbsent) {
		t.Fatalf("expected ErrTableAbsent, got %v", err)
	}
	if _, err := runCLI(t, "normalize", good, "--key", "NOPE"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)

	out, err := runCLI(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("output=%q", out)
	}

	cfg, info, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !info.FileFound || cfg.Server.Port != config.DefaultConfig().Server.Port {
		t.Fatalf("unexpected config: %+v %+v", info, cfg.Server)
	}

	if _, err := runCLI(t, "--config", path, "config", "init"); err == nil {
		t.Fatalf("expected error for existing file")
	}
	if _, err := runCLI(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestServeFlags_PortOverridesConfig(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	flags := bindServeFlags(cmd)
	if err := cmd.ParseFlags([]string{"--port", "9999", "--data-dir", "/tmp/pilotage"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Server.Port = 9000
	if !flags.apply(cmd, cfg) {
		t.Fatalf("--port should be reported as set")
	}
	if cfg.Server.Port != 9999 || cfg.Data.DataDir != "/tmp/pilotage" {
		t.Fatalf("flags not applied: port=%d data_dir=%s", cfg.Server.Port, cfg.Data.DataDir)
	}

	cmd = &cobra.Command{Use: "serve"}
	flags = bindServeFlags(cmd)
	cfg = config.DefaultConfig()
	cfg.Server.Port = 9000
	if flags.apply(cmd, cfg) || cfg.Server.Port != 9000 {
		t.Fatalf("unset --port must keep the configured port, got %d", cfg.Server.Port)
	}
}

func TestPruneJournal(t *testing.T) {
	journal, err := store.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer journal.Close()

	if _, err := journal.CreateImportLog(model.ImportLog{LoadID: "l1", Filename: "a.xlsx", Format: model.FormatWorkbook}); err != nil {
		t.Fatalf("CreateImportLog: %v", err)
	}

	pruneJournal(journal, 0, time.Now().AddDate(1, 0, 0), logging.Discard())
	pruneJournal(journal, 30, time.Now(), logging.Discard())
	if n, _ := journal.CountImportLogs(); n != 1 {
		t.Fatalf("recent entry should be kept, count=%d", n)
	}

	pruneJournal(journal, 30, time.Now().AddDate(0, 0, 31), logging.Discard())
	if n, _ := journal.CountImportLogs(); n != 0 {
		t.Fatalf("old entry should be pruned, count=%d", n)
	}
}
