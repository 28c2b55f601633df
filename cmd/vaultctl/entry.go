package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/search"
	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

func newEntryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entry",
		Aliases: []string{"entries"},
		Short:   "Manage stored credentials",
	}
	cmd.AddCommand(
		newEntryAddCmd(a),
		newEntryGetCmd(a),
		newEntryUpdateCmd(a),
		newEntryRmCmd(a),
		newEntryMvCmd(a),
		newEntryLsCmd(a),
		newEntryFindCmd(a),
	)
	return cmd
}

// entryPassword prompts for a password unless generate asks for a random one
// of that length.
func (a *app) entryPassword(website string, generate int) (string, bool, error) {
	if generate > 0 {
		pw, err := genPassword(generate)
		return pw, true, err
	}
	pw, err := a.secret(fmt.Sprintf("Password for %s: ", website), "")
	return pw, false, err
}

func newEntryAddCmd(a *app) *cobra.Command {
	var (
		username string
		group    string
		generate int
	)
	cmd := &cobra.Command{
		Use:   "add <website>",
		Short: "Store a new credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			website := args[0]
			return a.withVault(func(v *vault.Vault) error {
				pw, generated, err := a.entryPassword(website, generate)
				if err != nil {
					return err
				}
				err = v.AddEntry(website, username, pw, group)
				if err = a.record("entry.add", subject(group, website), err); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "added %s\n", website)
				if generated {
					fmt.Fprintf(a.out, "generated password: %s\n", pw)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account name on the website")
	cmd.Flags().StringVarP(&group, "group", "g", "", "target group (default group if empty)")
	cmd.Flags().IntVar(&generate, "generate", 0, "generate a random password of this length instead of prompting")
	return cmd
}

func newEntryGetCmd(a *app) *cobra.Command {
	var (
		group string
		show   bool
		toClip bool
	)
	cmd := &cobra.Command{
		Use:   "get <website>",
		Short: "Show a credential",
		Long: `Show a credential. Without --group the default group is searched first,
then the other groups in name order. The password is only printed with
--show; --copy puts it on the clipboard and clears it again after
clipboard_ttl.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec vault.Record
			err := a.withVault(func(v *vault.Vault) error {
				var err error
				rec, err = v.GetEntry(args[0], group)
				return a.record("entry.get", subject(group, args[0]), err)
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "website\t%s\n", rec.Website)
			fmt.Fprintf(tw, "group\t%s\n", rec.Group)
			fmt.Fprintf(tw, "username\t%s\n", rec.Username)
			if show {
				fmt.Fprintf(tw, "password\t%s\n", rec.Password)
			}
			if !rec.LastModified.IsZero() {
				fmt.Fprintf(tw, "modified\t%s\n", rec.LastModified.Local().Format(time.DateTime))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if toClip {
				ttl := a.cfg.ClipboardTTL
				if err := a.clip.Set(rec.Password, ttl); err != nil {
					return fmt.Errorf("clipboard: %w", err)
				}
				if ttl > 0 {
					fmt.Fprintf(a.errOut, "password copied; clearing in %s\n", ttl)
					a.clip.Wait()
				} else {
					fmt.Fprintln(a.errOut, "password copied")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "only look in this group")
	cmd.Flags().BoolVar(&show, "show", false, "print the password")
	cmd.Flags().BoolVarP(&toClip, "copy", "c", false, "copy the password to the clipboard")
	return cmd
}

func newEntryUpdateCmd(a *app) *cobra.Command {
	var (
		username    string
		group       string
		newPassword bool
		generate    int
	)
	cmd := &cobra.Command{
		Use:   "update <website>",
		Short: "Change the username or password of a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			website := args[0]
			return a.withVault(func(v *vault.Vault) error {
				cur, err := v.GetEntry(website, group)
				if err != nil {
					return err
				}
				user, pw, generated := cur.Username, cur.Password, false
				if cmd.Flags().Changed("username") {
					user = username
				}
				if newPassword || generate > 0 {
					if pw, generated, err = a.entryPassword(website, generate); err != nil {
						return err
					}
				}
				err = v.UpdateEntry(website, user, pw, cur.Group)
				if err = a.record("entry.update", subject(cur.Group, website), err); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "updated %s in %s\n", website, cur.Group)
				if generated {
					fmt.Fprintf(a.out, "generated password: %s\n", pw)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "new account name")
	cmd.Flags().StringVarP(&group, "group", "g", "", "only look in this group")
	cmd.Flags().BoolVarP(&newPassword, "password", "p", false, "prompt for a new password")
	cmd.Flags().IntVar(&generate, "generate", 0, "replace the password with a random one of this length")
	return cmd
}

func newEntryRmCmd(a *app) *cobra.Command {
	var (
		group string
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "rm <website>",
		Short: "Delete a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			website := args[0]
			return a.withVault(func(v *vault.Vault) error {
				rec, err := v.GetEntry(website, group)
				if err != nil {
					return err
				}
				if !a.confirm(fmt.Sprintf("Delete %s from %s?", website, rec.Group), yes) {
					return errAborted
				}
				found, err := v.DeleteEntry(website, rec.Group)
				if err = a.record("entry.rm", subject(rec.Group, website), err); err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %q", vault.ErrEntryNotFound, website)
				}
				fmt.Fprintf(a.out, "deleted %s from %s\n", website, rec.Group)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "only look in this group")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newEntryMvCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "mv <website> <to-group>",
		Short: "Move a credential to another group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			website, to := args[0], args[1]
			return a.withVault(func(v *vault.Vault) error {
				src := from
				if src == "" {
					rec, err := v.GetEntry(website, "")
					if err != nil {
						return err
					}
					src = rec.Group
				}
				found, err := v.MoveEntry(website, src, to)
				if err = a.record("entry.mv", subject(src, website)+" -> "+to, err); err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %q in %q, or no group %q", vault.ErrEntryNotFound, website, src, to)
				}
				fmt.Fprintf(a.out, "moved %s from %s to %s\n", website, src, to)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source group (found by search if empty)")
	return cmd
}

func newEntryLsCmd(a *app) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List credentials without their passwords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *vault.Vault) error {
				all := v.AllEntries()
				if group != "" {
					g, ok := all[group]
					if !ok {
						return fmt.Errorf("%w: %q", vault.ErrUnknownGroup, group)
					}
					all = map[string]map[string]vault.Entry{group: g}
				}
				return printHits(a, search.Build(all).Query(""))
			})
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "only list this group")
	return cmd
}

func newEntryFindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "find <text>",
		Aliases: []string{"search"},
		Short:   "Find credentials whose website or username contains text",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *vault.Vault) error {
				hits := search.Build(v.AllEntries()).Query(args[0])
				if len(hits) == 0 {
					fmt.Fprintln(a.errOut, "no matches")
					return nil
				}
				return printHits(a, hits)
			})
		},
	}
}

func printHits(a *app, hits []search.Hit) error {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tWEBSITE\tUSERNAME")
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Group, h.Website, h.Username)
	}
	return tw.Flush()
}

// subject names an entry in audit records; never a password.
func subject(group, website string) string {
	if group == "" {
		return website
	}
	return group + "/" + website
}
