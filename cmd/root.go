// Package cmd 命令行入口：serve 启动服务，其余子命令用于运维与排查。
package cmd

import (
	"os"
	_ "time/tzdata" // tick 时区在精简镜像中也可用

	"github.com/spf13/cobra"

	"github.com/bearhedge/APEYOLO-sub001/internal/config"
	"github.com/bearhedge/APEYOLO-sub001/internal/logger"
	"github.com/bearhedge/APEYOLO-sub001/internal/pkg/paths"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "apeyolo",
		Short:        "APEYOLO trading agent orchestrator",
		Long:         "apeyolo routes chat requests through deterministic tool plans or LLM tiers, validates trade proposals with a proposer/critic pair and runs the autonomous tick loop.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $APEYOLO_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newTickCmd(opts),
		newClassifyCmd(),
		newLessonCmd(opts),
	)
	return rootCmd
}

// loadConfig 读取配置并初始化全局日志
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger.SetOutput(os.Stderr, cfg.Logging.Console)
	logger.SetGlobalLevel(logger.ParseLevel(cfg.Logging.Level))
	return cfg, nil
}
