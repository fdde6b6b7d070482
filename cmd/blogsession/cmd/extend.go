package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ComputerAnything/cpta-blog-sub000/authflow"
)

var extendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Ask the service for a fresh session expiry",
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
		if err := m.ExtendSession(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(describe(m.State()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extendCmd)
}
