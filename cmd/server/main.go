package main

import (
	"fmt"
	"os"

	"github.com/ihrahat0/whalespad-sub001/internal/config"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd 默认启动服务
var rootCmd = &cobra.Command{
	Use:           "ido-server",
	Short:         "IDO campaign lifecycle service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API together with the phase and chain sync jobs",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run one phase transition pass and one chain sync pass, then exit",
	RunE:  runOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/ido/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, runOnceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，然后按配置初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
