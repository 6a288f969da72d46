package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"upsmon/internal/app"
	"upsmon/internal/config"
	"upsmon/internal/report"
	"upsmon/internal/storage"
	"upsmon/internal/ups"
	logx "upsmon/pkg/logx"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last stored UPS state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.RoleTool); err != nil {
				return err
			}
			msg, err := report.StatusFromFile(cfg.StatePath())
			if errors.Is(err, storage.ErrNoData) {
				msg, err = report.NoDataText, nil
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
}

func newDrainCmd(opts *rootOptions) *cobra.Command {
	var dryRun, asJSON bool
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Print pending queue entries and clear the queue",
		Long: "Print pending queue entries and clear the queue. With --dry-run the\n" +
			"queue is left untouched. Entries drained here are not delivered.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.RoleTool); err != nil {
				return err
			}
			q := storage.NewQueue(cfg.QueuePath(), logx.NewConsole(opts.level(cfg)))
			var entries []storage.Entry
			if dryRun {
				entries, err = q.Peek(cmd.Context())
			} else {
				entries, err = q.DrainAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries, asJSON)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list entries without removing them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as a JSON array")
	return cmd
}

func printEntries(w io.Writer, entries []storage.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "queue is empty")
		return err
	}
	for i, e := range entries {
		if _, err := fmt.Fprintf(w, "#%d %s %s %s\n%s\n\n", i+1, e.Timestamp.Format(time.RFC3339), e.Type, e.ID, e.Message); err != nil {
			return err
		}
	}
	return nil
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Query every configured OID once and print the result",
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
			defer p.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			values, err := p.Probe(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := ups.Reading{}
			for _, f := range ups.AllFields() {
				oid, ok := cfg.Fields()[f]
				if !ok {
					continue
				}
				v, got := values[string(f)]
				if !got {
					v = "(no value)"
				} else {
					r[f] = v
				}
				fmt.Fprintf(out, "%-18s %-32s %s\n", f, oid, v)
			}
			_, err = fmt.Fprintf(out, "\n%s\n", report.FullStateAt(r, time.Now()))
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall probe timeout")
	return cmd
}
