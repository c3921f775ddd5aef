package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"journaltransporter/internal/ingest"
)

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the local store",
	}
	cmd.AddCommand(c.userCreateCmd(), c.userImportCmd())
	return cmd
}

func (c *cli) userCreateCmd() *cobra.Command {
	var p ingest.AccountPayload
	var password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update a staff account that may use the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(password) < 8 || len(password) > 72 {
				return c.fail(fmt.Errorf("password must be 8-72 chars"))
			}

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			acc, _, err := a.Importer.ImportAccount(cmd.Context(), &p)
			if err != nil {
				return c.fail(err)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return c.fail(fmt.Errorf("hash password: %w", err))
			}
			if err := a.Auth.Accounts.SetStaffCredentials(cmd.Context(), acc.ID, string(hash)); err != nil {
				return c.fail(err)
			}

			fmt.Fprintf(c.stdout, "staff account %s ready (%s)\n", acc.Email, acc.SourceRecordKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&p.FirstName, "first-name", "Staff", "first name")
	cmd.Flags().StringVar(&p.LastName, "last-name", "User", "last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) userImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import one account payload (JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return c.fail(fmt.Errorf("open %s: %w", args[0], err))
			}
			defer f.Close()

			p, err := ingest.DecodeAccount(f)
			if err != nil {
				return c.fail(err)
			}

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			acc, created, err := a.Importer.ImportAccount(cmd.Context(), p)
			if err != nil {
				return c.fail(err)
			}
			fmt.Fprintf(c.stdout, "account %s (%s, created=%t)\n", acc.Email, acc.SourceRecordKey, created)
			return nil
		},
	}
}
