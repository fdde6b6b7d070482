package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
	"github.com/ComputerAnything/cpta-blog-sub000/blogapi"
)

var loginIdentifier string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in, completing the email second factor if required",
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

		st, err := m.Hydrate(cmd.Context())
		if err != nil {
			return err
		}
		if st.Kind == authflow.KindAuthenticated {
			fmt.Println(describe(st))
			return nil
		}
		if st.Kind == authflow.KindGuest {
			if err := m.Logout(cmd.Context()); err != nil {
				return err
			}
		}

		identifier := loginIdentifier
		if identifier == "" {
			identifier, err = promptLine("Username or email: ")
			if err != nil {
				return err
			}
		}
		password, err := promptLine("Password: ")
		if err != nil {
			return err
		}

		err = m.SubmitCredentials(cmd.Context(), identifier, []byte(password))
		if locked, ok := authflow.AsLocked(err); ok {
			return fmt.Errorf("too many attempts, retry in %s", locked.Remaining.Round(time.Second))
		}
		if err != nil {
			return err
		}

		if m.State().Kind == authflow.KindTwoFactorPending {
			if err := runTwoFactor(cmd.Context(), m); err != nil {
				return err
			}
		}
		fmt.Println(describe(m.State()))
		return nil
	},
}

// runTwoFactor prompts for the emailed code until it is accepted or the
// attempt fails for a reason other than a mistyped code.
func runTwoFactor(ctx context.Context, m *authflow.Manager) error {
	st := m.State()
	fmt.Printf("A verification code was sent to %s.\n", st.ContactEmail)
	for {
		code, err := promptLine("Code: ")
		if err != nil {
			return err
		}
		err = m.VerifyTwoFactor(ctx, code)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, authflow.ErrCodeFormat),
			errors.Is(err, blogapi.ErrInvalidOrExpiredCode):
			fmt.Println(err)
		default:
			return err
		}
	}
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginIdentifier, "user", "u", "", "Username or email")
}
