package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/logger"
	"Crowd_Conscious/internal/repository/mysql"
)

const programName = "crowd-conscious"

var configFile string

// setup 加载配置并初始化全局 logger
func setup() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Server.Mode); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if _, err := maxprocs.Set(maxprocs.Logger(logger.L.Sugar().Infof)); err != nil {
		logger.L.Warn("set maxprocs failed", zap.Error(err))
	}
	return cfg, nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			db, err := mysql.Open(cfg.MySQL.DSN, cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns)
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			if err := mysql.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.L.Info("migration done")
			return nil
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Community crowdfunding and corporate training API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to yaml config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
