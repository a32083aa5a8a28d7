package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vllmd/internal/config"
	"vllmd/internal/httpapi"
	"vllmd/internal/store"
	"vllmd/internal/supervisor"
	"vllmd/internal/tasks"
	"vllmd/internal/telemetry"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vllmd",
		Short:         "Daemon that supervises vLLM inference servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}

	// Flags with environment variable defaults
	root.Flags().String("addr", envStr("VLLMD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	root.Flags().String("models-dir", envStr("VLLMD_MODELS_DIR", "~/models/vllm"), "Directory holding model artifacts")
	root.Flags().String("db-path", envStr("VLLMD_DB_PATH", "vllmd.db"), "SQLite database path")
	root.Flags().Int("port-start", envInt("VLLMD_PORT_START", 8000), "First port assigned to model servers")
	root.Flags().String("python-bin", envStr("VLLMD_PYTHON_BIN", "python3"), "Python interpreter running vLLM")
	root.Flags().String("install-dir", envStr("VLLMD_INSTALL_DIR", "."), "vLLM installation directory (.install_info, vllm-source)")
	root.Flags().String("log-level", envStr("VLLMD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.Flags().String("config", envStr("VLLMD_CONFIG", ""), "Config file (yaml, json, or toml); flags override it")
	root.Flags().Bool("cors", envStr("VLLMD_CORS", "") == "1", "Enable permissive CORS for browser clients")
	return root
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	httpapi.SetLogger(logger)

	modelsDir, err := store.ResolveDir(cfg.ModelsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	if n, err := st.ScanDir(cmd.Context(), modelsDir); err == nil && n > 0 {
		logger.Info().Int("imported", n).Msg("imported models from disk")
	}

	sup := supervisor.New(st, supervisor.Config{
		PortStart: cfg.PortStart,
		PythonBin: cfg.PythonBin,
		Logger:    &logger,
	})
	svc := tasks.NewService(tasks.NewRunner(&logger), st, tasks.CLIFetcher{}, modelsDir, cfg.PythonBin, cfg.InstallDir)

	if enabled, _ := cmd.Flags().GetBool("cors"); enabled {
		httpapi.SetCORSOptions(true,
			[]string{"*"},
			[]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			[]string{"Content-Type"},
		)
	}

	mux := httpapi.NewMux(httpapi.Deps{
		Supervisor: sup,
		Records:    st,
		Tasks:      svc,
		GPUs:       telemetry.Collector{},
		ModelsDir:  modelsDir,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("models_dir", modelsDir).Msg("vllmd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown")
	}
	sup.StopAll()
	return nil
}

// resolveConfig merges the optional config file with flags. Flags the user
// set explicitly win over file values; file values win over flag defaults.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	cfg := config.Config{}
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if cfg.Addr == "" || flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if cfg.ModelsDir == "" || flags.Changed("models-dir") {
		cfg.ModelsDir, _ = flags.GetString("models-dir")
	}
	if cfg.DBPath == "" || flags.Changed("db-path") {
		cfg.DBPath, _ = flags.GetString("db-path")
	}
	if cfg.PortStart == 0 || flags.Changed("port-start") {
		cfg.PortStart, _ = flags.GetInt("port-start")
	}
	if cfg.PythonBin == "" || flags.Changed("python-bin") {
		cfg.PythonBin, _ = flags.GetString("python-bin")
	}
	if cfg.InstallDir == "" || flags.Changed("install-dir") {
		cfg.InstallDir, _ = flags.GetString("install-dir")
	}
	if cfg.LogLevel == "" || flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
