package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

func newGroupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "group",
		Aliases: []string{"groups"},
		Short:   "Manage entry groups",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an empty group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *vault.Vault) error {
				if err := a.record("group.add", args[0], v.CreateGroup(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "created group %s\n", args[0])
				return nil
			})
		},
	}

	var yes bool
	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a group and every entry in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return a.withVault(func(v *vault.Vault) error {
				if name == vault.DefaultGroup {
					return vault.ErrProtectedGroup
				}
				n := len(v.AllEntries()[name])
				if !a.confirm(fmt.Sprintf("Delete group %q and its %d entries?", name, n), yes) {
					return errAborted
				}
				found, err := v.DeleteGroup(name)
				if err = a.record("group.rm", name, err); err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %q", vault.ErrUnknownGroup, name)
				}
				fmt.Fprintf(a.out, "deleted group %s\n", name)
				return nil
			})
		},
	}
	rm.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	rename := &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a group, keeping its entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *vault.Vault) error {
				err := v.RenameGroup(args[0], args[1])
				if err = a.record("group.rename", args[0]+" -> "+args[1], err); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "renamed group %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List groups; the default group is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *vault.Vault) error {
				def := v.DefaultGroup()
				all := v.AllEntries()
				for _, g := range v.ListGroups() {
					mark := " "
					if g == def {
						mark = "*"
					}
					fmt.Fprintf(a.out, "%s %s (%d)\n", mark, g, len(all[g]))
				}
				return nil
			})
		},
	}

	def := &cobra.Command{
		Use:   "default [name]",
		Short: "Show or set the group new entries go to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *vault.Vault) error {
				if len(args) == 0 {
					fmt.Fprintln(a.out, v.DefaultGroup())
					return nil
				}
				found, err := v.SetDefaultGroup(args[0])
				if err = a.record("group.default", args[0], err); err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %q", vault.ErrUnknownGroup, args[0])
				}
				fmt.Fprintf(a.out, "default group is now %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, rm, rename, ls, def)
	return cmd
}
