package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JoaoSantosCodes/SecureVault/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var (
		system bool
		force  bool
	)
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a configuration file with the current settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfigFile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				var err error
				if path, err = config.DefaultPath(system); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Write(a.cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "write the system-wide file instead of the user file")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	view := &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			c.SMTP.Pass = mask(c.SMTP.Pass)
			c.Sync.S3.SecretKey = mask(c.Sync.S3.SecretKey)
			c.Sync.Mongo.URI = mask(c.Sync.Mongo.URI)
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}

	cmd.AddCommand(initCmd, view)
	return cmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
