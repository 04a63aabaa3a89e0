package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"newstrader/internal/config"
	"newstrader/internal/logger"
)

const envConfigPath = "NEWSTRADER_CONFIG"

type rootOptions struct {
	configPath string
	closers    []io.Closer
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "newstrader",
		Short: "News-sentiment trading engine for US equities",
		Long: `newstrader scores company and macro news per symbol, turns the score into
buy, sell, hold or close decisions, and optionally submits bracket orders to Alpaca.

Without trading.enabled every decision is logged as a dry-run intent.`,
		SilenceUsage: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			ro.close()
		},
	}
	cmd.PersistentFlags().StringVarP(&ro.configPath, "config", "c", defaultConfigPath(), "config file (env "+envConfigPath+")")

	cmd.AddCommand(
		newRunCmd(ro),
		newScanCmd(ro),
		newStateCmd(ro),
		newUniverseCmd(ro),
		newChartCmd(ro),
	)
	return cmd
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// load reads the config and points the loggers at their files.
func (ro *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	logger.SetFormat(cfg.App.LogFormat)
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, err
	}
	if logFile != nil {
		ro.closers = append(ro.closers, logFile)
	} else {
		logger.SetOutput(os.Stdout)
	}
	logger.SetLLMWriter(nil)
	if cfg.App.LLMDump {
		f, err := setupLLMLogOutput(cfg.App.LLMLog)
		if err != nil {
			return nil, err
		}
		if f != nil {
			ro.closers = append(ro.closers, f)
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, mode=%s)", cfg.App.Env, cfg.Trading.Mode())
	return cfg, nil
}

func (ro *rootOptions) close() {
	for _, c := range ro.closers {
		_ = c.Close()
	}
	ro.closers = nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupLLMLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetLLMWriter(f)
	return f, nil
}
