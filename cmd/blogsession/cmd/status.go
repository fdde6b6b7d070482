package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
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
		fmt.Println(describe(st))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
