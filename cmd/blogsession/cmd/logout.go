package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out everywhere this state directory is shared",
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
		if st.Kind == authflow.KindAnonymous {
			fmt.Println("already signed out")
			return nil
		}
		if err := m.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
