package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/backup"
	"github.com/JoaoSantosCodes/SecureVault/internal/exchange"
	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

// formatOf picks csv or json from an explicit flag or the file extension.
func formatOf(flag, path string) (string, error) {
	f := strings.ToLower(flag)
	if f == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			f = "json"
		default:
			f = "csv"
		}
	}
	if f != "csv" && f != "json" {
		return "", fmt.Errorf("unknown format %q (want csv or json)", flag)
	}
	return f, nil
}

// writeOutput writes to path with owner-only permissions, or to stdout
// when path is empty or "-".
func (a *app) writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(a.out)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(path)
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all credentials in plain text (csv or json)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatOf(format, output)
			if err != nil {
				return err
			}
			if !a.confirm("The export contains every password unencrypted. Continue?", yes) {
				return errAborted
			}
			return a.withVault(func(v *vault.Vault) error {
				rows, err := exchange.Export(v)
				if err != nil {
					return a.record("export", f, err)
				}
				err = a.writeOutput(output, func(w io.Writer) error {
					if f == "json" {
						return exchange.WriteJSON(w, rows)
					}
					return exchange.WriteCSV(w, rows)
				})
				if err = a.record("export", f, err); err != nil {
					return err
				}
				fmt.Fprintf(a.errOut, "exported %d entries\n", len(rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv or json (default from the output extension, else csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add credentials from a csv or json export",
		Long: `Add credentials from a csv or json export ("-" reads stdin). Missing groups
are created; entries that already exist are skipped, not overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatOf(format, args[0])
			if err != nil {
				return err
			}
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			var rows []exchange.Row
			if f == "json" {
				rows, err = exchange.ReadJSON(bytes.NewReader(data))
			} else {
				rows, err = exchange.ReadCSV(bytes.NewReader(data))
			}
			if err != nil {
				return err
			}
			return a.withVault(func(v *vault.Vault) error {
				rep, err := exchange.Import(v, rows)
				if err = a.record("import", f, err); err != nil {
					return err
				}
				printReport(a, rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv or json (default from the file extension, else csv)")
	return cmd
}

func printReport(a *app, rep exchange.Report) {
	fmt.Fprintf(a.out, "added %d, skipped %d existing\n", rep.Added, rep.Skipped)
	if len(rep.GroupsCreated) > 0 {
		fmt.Fprintf(a.out, "created groups: %s\n", strings.Join(rep.GroupsCreated, ", "))
	}
}

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Passphrase-protected backups that do not depend on the key file",
	}

	var output string
	create := &cobra.Command{
		Use:   "create",
		Short: "Write a backup bundle of the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			return a.withVault(func(v *vault.Vault) error {
				pass, err := a.newSecret("backup passphrase", envPassphrase)
				if err != nil {
					return err
				}
				bundle, err := backup.Create(v, []byte(pass))
				if err == nil {
					err = a.writeOutput(output, func(w io.Writer) error {
						_, err := w.Write(bundle)
						return err
					})
				}
				if err = a.record("backup.create", output, err); err != nil {
					return err
				}
				fmt.Fprintf(a.errOut, "wrote %d entries to %s\n", v.Len(), output)
				return nil
			})
		},
	}
	create.Flags().StringVarP(&output, "output", "o", "", "bundle file to write")

	restore := &cobra.Command{
		Use:   "restore <file>",
		Short: "Add the entries of a backup bundle to the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			return a.withVault(func(v *vault.Vault) error {
				pass, err := a.secret("Backup passphrase: ", envPassphrase)
				if err != nil {
					return err
				}
				rep, err := backup.Restore(v, bundle, []byte(pass))
				if err = a.record("backup.restore", args[0], err); err != nil {
					return err
				}
				printReport(a, rep)
				return nil
			})
		},
	}

	cmd.AddCommand(create, restore)
	return cmd
}
