package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pilotage/internal/config"
	"pilotage/internal/importer"
	"pilotage/internal/logging"
	"pilotage/internal/metrics"
	"pilotage/internal/normalize"
	"pilotage/internal/server"
	"pilotage/internal/store"
	"pilotage/internal/util"
)

// serveFlags serve 命令行参数
type serveFlags struct {
	port        int
	devMode     bool
	dataDir     string
	openBrowser bool
}

// apply 命令行参数覆盖配置文件与环境变量；返回 --port 是否生效
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.AppConfig) bool {
	portSet := cmd.Flags().Changed("port")
	if portSet {
		cfg.Server.Port = f.port
	}
	if f.devMode {
		cfg.Server.DevMode = true
	}
	if f.dataDir != "" {
		cfg.Data.DataDir = f.dataDir
	}
	return portSet
}

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the source directory and serve cleaned tables over HTTP",
	}
	flags := bindServeFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, info, err := loadConfig(*configPath)
		if err != nil {
			return err
		}

		portSet := flags.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg, serveOptions{
			openBrowser:    flags.openBrowser,
			portOverridden: portSet && info.PortSpecified,
		})
	}
	return cmd
}

func bindServeFlags(cmd *cobra.Command) *serveFlags {
	flags := &serveFlags{}
	cmd.Flags().IntVar(&flags.port, "port", 0, "HTTP port (overrides config and environment)")
	cmd.Flags().BoolVar(&flags.devMode, "dev", false, "development mode")
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides config)")
	cmd.Flags().BoolVar(&flags.openBrowser, "open", false, "open the status page in a browser")
	return flags
}

func loadConfig(path string) (*config.AppConfig, config.LoadConfigInfo, error) {
	if path == "" {
		return config.LoadConfigWithInfo()
	}
	return config.LoadFile(path)
}

type serveOptions struct {
	openBrowser bool
	// portOverridden --port 覆盖了配置文件或环境变量中的端口
	portOverridden bool
}

func runServe(parent context.Context, cfg *config.AppConfig, so serveOptions) error {
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)
	if so.portOverridden {
		logger.Info("configured port overridden by --port", "port", cfg.Server.Port)
	}

	paths, err := config.EnsureDataDir(cfg)
	if err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logger.Info("data directory ready", "data_dir", paths.DataDir, "source_dir", paths.SourceDir)

	m := metrics.New()
	opts := []importer.Option{importer.WithMetrics(m), importer.WithLogger(logger)}

	var journal *store.Store
	if paths.Journal != "" {
		journal, err = store.New(paths.Journal)
		if err != nil {
			return fmt.Errorf("failed to open import journal: %w", err)
		}
		defer journal.Close()
		pruneJournal(journal, cfg.Data.JournalRetentionDays, time.Now(), logger)
		opts = append(opts, importer.WithJournal(journal))
	}

	coordinator := importer.NewCoordinator(normalize.New(cfg.Normalize.Options()), opts...)

	// 启动时加载一次；没有源文件不影响服务启动
	if _, err := coordinator.Load(parent, importer.LoadOptions{Dir: paths.SourceDir}); err != nil {
		logger.Warn("initial load failed", "error", err)
	}

	deps := server.Deps{
		Coordinator: coordinator,
		Metrics:     m,
		Logger:      logger,
		Paths:       paths,
	}
	if journal != nil {
		deps.Journal = journal
	}
	srv := server.NewServer(cfg, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	url := fmt.Sprintf("http://localhost:%d/api/status", cfg.Server.Port)
	if so.openBrowser {
		if err := util.OpenBrowser(url); err != nil {
			logger.Warn("could not open a browser", "url", url, "error", err)
		}
	}
	fmt.Printf("Pilotage RH listening on %s (Ctrl+C to stop)\n", url)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pruneJournal 删除超过保留天数的导入日志；失败只记录，不影响启动
func pruneJournal(journal *store.Store, retentionDays int, now time.Time, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	before := now.AddDate(0, 0, -retentionDays)
	n, err := journal.PruneImportLogs(before)
	if err != nil {
		logger.Warn("failed to prune import journal", "error", err)
		return
	}
	if n > 0 {
		logger.Info("import journal pruned", "removed", n, "before", before.Format(time.DateOnly))
	}
}
