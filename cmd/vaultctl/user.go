package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/auth"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage vault users",
	}
	cmd.AddCommand(
		newUserCreateCmd(a),
		newUserPasswdCmd(a),
		newUserSettingsCmd(a),
		newUserShowCmd(a),
		newUserListCmd(a),
	)
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var (
		email string
		admin bool
	)
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Register a new user with an empty vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			pw, err := a.newSecret("master password", envPassword)
			if err != nil {
				return err
			}
			reg, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.CreateUser(username, pw, email, admin)
			if err = a.record("user.create", username, err); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created user %s (%s)\n", username, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address used for password recovery (required)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUserPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password",
		Long: `Change the master password of --user. The vault itself is protected by its
key file, or by the vault passphrase in derived key mode, and is not
re-encrypted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()
			if err := a.login(reg); err != nil {
				return err
			}
			pw, err := a.newSecret("master password", envNewPassword)
			if err != nil {
				return err
			}
			_, err = reg.ChangePassword(a.user, pw)
			if err = a.record("user.passwd", a.user, err); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "password changed")
			return nil
		},
	}
}

func newUserSettingsCmd(a *app) *cobra.Command {
	var (
		theme      string
		autoLogout int
		vaultPath  string
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()
			if err := a.login(reg); err != nil {
				return err
			}

			var patch auth.SettingsPatch
			f := cmd.Flags()
			if f.Changed("theme") {
				patch.Theme = &theme
			}
			if f.Changed("auto-logout") {
				patch.AutoLogoutMinutes = &autoLogout
			}
			if f.Changed("vault-path") {
				patch.VaultPath = &vaultPath
			}
			if patch != (auth.SettingsPatch{}) {
				_, err := reg.UpdateUserSettings(a.user, patch)
				if err = a.record("user.settings", a.user, err); err != nil {
					return err
				}
			}

			s, err := reg.UserSettings(a.user)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "theme\t%s\n", s.Theme)
			fmt.Fprintf(tw, "auto_logout_minutes\t%d\n", s.AutoLogoutMinutes)
			fmt.Fprintf(tw, "vault_path\t%s\n", s.VaultPath)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "UI theme (e.g. dark, light)")
	cmd.Flags().IntVar(&autoLogout, "auto-logout", 0, "minutes of inactivity before logout")
	cmd.Flags().StringVar(&vaultPath, "vault-path", "", "location of the vault file")
	return cmd
}

func newUserShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the logged-in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()
			if err := a.login(reg); err != nil {
				return err
			}
			p, err := reg.Lookup(a.user)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "username\t%s\n", a.user)
			fmt.Fprintf(tw, "id\t%s\n", p.ID)
			fmt.Fprintf(tw, "email\t%s\n", p.Email)
			fmt.Fprintf(tw, "admin\t%t\n", p.IsAdmin)
			fmt.Fprintf(tw, "vault\t%s\n", p.Settings.VaultPath)
			return tw.Flush()
		},
	}
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users (administrators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()
			if err := a.login(reg); err != nil {
				return err
			}
			if !reg.IsAdmin(a.user) {
				return a.record("user.list", a.user, errors.New("administrator rights required"))
			}
			for _, u := range reg.Users() {
				marker := ""
				if reg.IsAdmin(u) {
					marker = " (admin)"
				}
				fmt.Fprintf(a.out, "%s%s\n", u, marker)
			}
			return nil
		},
	}
}
