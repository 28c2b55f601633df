package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tamper-evident audit log",
	}

	var path string
	logPath := func() string {
		if path != "" {
			return path
		}
		return a.cfg.Audit.Path
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain of the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := audit.Verify(logPath())
			if err != nil {
				return fmt.Errorf("after %d good events: %w", n, err)
			}
			fmt.Fprintf(a.out, "ok: %d events\n", n)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := audit.Read(logPath())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tSUBJECT\tOK")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", e.TS.Local().Format(time.DateTime), e.Action, e.Subject, e.Success)
			}
			return tw.Flush()
		},
	}

	cmd.PersistentFlags().StringVar(&path, "path", "", "audit log file (default audit.path)")
	cmd.AddCommand(verify, show)
	return cmd
}
