// chives 撮合引擎命令行入口。
// 子命令：initdb 初始化数据库结构、start_engine 启动撮合引擎、
// benchmark 重建数据库并跑端到端基准测试
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xuganyu96/chives-exchange/pkg/config"
	"github.com/xuganyu96/chives-exchange/pkg/db"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

var (
	flagConfig  string
	flagSQLURI  string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chives",
		Short:         "Stock exchange matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "",
		"path to TOML config file")
	root.PersistentFlags().StringVarP(&flagSQLURI, "sql-uri", "s", "",
		"database URI, overrides config file and environment")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(newInitdbCmd(), newStartEngineCmd(), newBenchmarkCmd())
	return root
}

// loadConfig 按 命令行 > 环境变量 > 配置文件 > 默认值 的优先级组装配置
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagSQLURI != "" {
		cfg.Database.URI = flagSQLURI
	}
	if flagVerbose {
		cfg.Logger.Level = "debug"
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	})
}

func openDB(cfg *config.Config) (*db.DB, error) {
	return db.Init(db.Config{
		URI:                cfg.Database.URI,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
