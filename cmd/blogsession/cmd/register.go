package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
)

var (
	registerUsername string
	registerEmail    string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and verify it with the emailed code",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		m, err := buildManager(store, authflow.Callbacks{})
		if err != nil {
			return err
		}
		defer m.Close()

		if _, err := m.Hydrate(cmd.Context()); err != nil {
			return err
		}

		username := registerUsername
		if username == "" {
			if username, err = promptLine("Username: "); err != nil {
				return err
			}
		}
		email := registerEmail
		if email == "" {
			if email, err = promptLine("Email: "); err != nil {
				return err
			}
		}
		password, err := promptLine("Password: ")
		if err != nil {
			return err
		}

		if err := m.Register(cmd.Context(), username, email, []byte(password)); err != nil {
			return err
		}
		fmt.Printf("A verification code was sent to %s.\n", email)

		code, err := promptLine("Code: ")
		if err != nil {
			return err
		}
		if err := m.VerifyRegistration(cmd.Context(), email, code); err != nil {
			return err
		}
		fmt.Println(describe(m.State()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVarP(&registerUsername, "user", "u", "", "Username")
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "Email address")
}
