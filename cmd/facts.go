package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bvankempen/rigging/pkg"
)

var (
	factsSubset     []string
	factsInvalidate bool
)

var factsCmd = &cobra.Command{
	Use:   "facts [host]",
	Short: "Gather and print facts for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		facts, err := newFactStore()
		if err != nil {
			return err
		}
		host, err := inv.GetHost(args[0])
		if err != nil {
			return err
		}
		if factsInvalidate {
			facts.Invalidate(host.Name)
		}

		gathered, err := facts.Gather(cmd.Context(), host, pkg.LocalCollector{}, factsSubset)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(gathered, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	factsCmd.Flags().StringSliceVar(&factsSubset, "subset", []string{}, "Restrict gathering to these fact keys")
	factsCmd.Flags().BoolVar(&factsInvalidate, "invalidate", false, "Drop cached facts before gathering")
	rootCmd.AddCommand(factsCmd)
}
