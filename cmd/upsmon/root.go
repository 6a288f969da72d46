package main

import (
	"strings"

	"github.com/spf13/cobra"

	"upsmon/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "upsmon",
		Short:         "UPS monitor: SNMP poller and Telegram notifier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file (default .env when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	cmd.AddCommand(
		newPollerCmd(opts),
		newNotifierCmd(opts),
		newStatusCmd(opts),
		newDrainCmd(opts),
		newProbeCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: o.configPath, EnvFile: o.envFile})
	if err != nil {
		return nil, err
	}
	if lvl := strings.TrimSpace(o.logLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}

func (o *rootOptions) level(cfg *config.Config) string {
	if cfg != nil && cfg.Logging.Level != "" {
		return cfg.Logging.Level
	}
	return "info"
}
