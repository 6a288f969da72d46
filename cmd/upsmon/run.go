package main

import (
	"github.com/spf13/cobra"

	"upsmon/internal/app"
)

func newPollerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poller",
		Short: "Poll the UPS and queue alerts and daily reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			p, err := app.NewPoller(cfg)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context())
		},
	}
}

func newNotifierCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notifier",
		Short: "Deliver queued messages to Telegram and answer bot commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			n, err := app.NewNotifier(cfg)
			if err != nil {
				return err
			}
			return n.Run(cmd.Context())
		},
	}
}
