package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenwallet/internal/vault"
)

// listCmd prints the tokens recorded in the local vault.
var listCmd = &cobra.Command{
	Use:   "list-tokens",
	Short: "List tokens known to this wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := vault.Open(flagVaultPath)
		if err != nil {
			return err
		}
		defer v.Close()

		records, err := v.List()
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("no tokens recorded")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  status=%s scenario=%s  %s\n",
				rec.TokenID, orUnset(rec.Status), orUnset(rec.Scenario), rec.Path)
		}

		return nil
	},
}
