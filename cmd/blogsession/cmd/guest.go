package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
)

var guestCmd = &cobra.Command{
	Use:   "guest",
	Short: "Browse without an account",
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
		if st.Kind != authflow.KindAnonymous {
			return fmt.Errorf("cannot enter guest mode while %s", describe(st))
		}
		if err := m.ContinueAsGuest(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(describe(m.State()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(guestCmd)
}
