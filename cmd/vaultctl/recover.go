package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/recovery"
)

func (a *app) recoveryService() (*recovery.Service, func(), error) {
	reg, err := a.openRegistry()
	if err != nil {
		return nil, nil, err
	}
	mailer := recovery.NewMailer(a.cfg.SMTP, a.log)
	svc := recovery.NewService(reg, mailer, recovery.WithLogger(a.log))
	return svc, func() { _ = reg.Close() }, nil
}

func newRecoverCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Reset a forgotten master password by email",
	}

	var email string
	request := &cobra.Command{
		Use:   "request",
		Short: "Mail a reset token to the address on file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.recoveryService()
			if err != nil {
				return err
			}
			defer done()
			if err := a.record("recover.request", email, svc.RequestReset(email)); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "If the address belongs to a user, a reset token is on its way.")
			return nil
		},
	}
	request.Flags().StringVar(&email, "email", "", "email address of the account")
	_ = request.MarkFlagRequired("email")

	var token string
	complete := &cobra.Command{
		Use:   "complete",
		Short: "Set a new master password using a mailed token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireUser(); err != nil {
				return err
			}
			tok := token
			if tok == "" {
				var err error
				if tok, err = a.secret("Reset token: ", ""); err != nil {
					return err
				}
			}
			pw, err := a.newSecret("master password", envNewPassword)
			if err != nil {
				return err
			}
			svc, done, err := a.recoveryService()
			if err != nil {
				return err
			}
			defer done()
			if err := a.record("recover.complete", a.user, svc.CompleteReset(a.user, tok, pw)); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "password reset")
			return nil
		},
	}
	complete.Flags().StringVar(&token, "token", "", "token from the reset mail (prompted if empty)")

	cmd.AddCommand(request, complete)
	return cmd
}
